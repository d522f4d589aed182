package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"cryptodash/internal/logger"
	"cryptodash/internal/models"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

var db *sql.DB

var (
	ErrTokenNotFound = errors.New("token not found")
	ErrAlertNotFound = errors.New("alert not found")
	ErrSymbolExists  = errors.New("symbol already tracked")
)

// InitDB initializes the database connection
func InitDB(connStr string) error {
	var err error
	db, err = sql.Open("postgres", connStr)
	if err != nil {
		return err
	}

	// Set connection pool parameters
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Test the connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return err
	}

	logger.Log.Info("Database connection established")
	return nil
}

// ---- tokens ----

// CreateToken inserts a new tracked token. Symbols are unique among
// active tokens; the symbol is stored upper-cased.
func CreateToken(ctx context.Context, token *models.Token) error {
	token.Symbol = strings.ToUpper(token.Symbol)
	if token.Symbol == "" {
		return models.ErrMissingSymbol
	}

	if _, err := GetTokenBySymbol(ctx, token.Symbol); err == nil {
		return ErrSymbolExists
	} else if !errors.Is(err, ErrTokenNotFound) {
		return err
	}

	query := `
		INSERT INTO tokens (id, symbol, name, exchanges, added, all_time_high, all_time_low, exchange_data)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	exchanges, err := json.Marshal(token.Exchanges)
	if err != nil {
		return err
	}
	exchangeData, err := marshalNullable(token.ExchangeData)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(
		ctx,
		query,
		token.ID,
		token.Symbol,
		token.Name,
		string(exchanges),
		token.Added,
		token.AllTimeHigh,
		token.AllTimeLow,
		exchangeData,
	)

	if err != nil {
		logger.Log.Error("Failed to create token in database",
			zap.String("symbol", token.Symbol),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// GetTokenBySymbol retrieves an active token by symbol
func GetTokenBySymbol(ctx context.Context, symbol string) (*models.Token, error) {
	query := `
		SELECT id, symbol, name, exchanges, added, all_time_high, all_time_low, exchange_data
		FROM tokens
		WHERE symbol = $1
	`

	row := db.QueryRowContext(ctx, query, strings.ToUpper(symbol))
	token, err := scanToken(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		logger.Log.Error("Failed to retrieve token",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return nil, err
	}
	return token, nil
}

// GetAllTokens retrieves every tracked token, oldest first
func GetAllTokens(ctx context.Context) ([]*models.Token, error) {
	query := `
		SELECT id, symbol, name, exchanges, added, all_time_high, all_time_low, exchange_data
		FROM tokens
		ORDER BY added ASC
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		logger.Log.Error("Failed to query all tokens", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var tokens []*models.Token
	for rows.Next() {
		token, err := scanToken(rows)
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, token)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return tokens, nil
}

// UpdateTokenExtremes records newly computed all-time high/low values
func UpdateTokenExtremes(ctx context.Context, symbol string, high, low *float64) error {
	query := `UPDATE tokens SET all_time_high = $1, all_time_low = $2 WHERE symbol = $3`

	result, err := db.ExecContext(ctx, query, high, low, strings.ToUpper(symbol))
	if err != nil {
		logger.Log.Error("Failed to update token extremes",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return err
	}
	return requireRow(result, ErrTokenNotFound)
}

// UpdateExchangeData stores the scraper's latest listing snapshot
func UpdateExchangeData(ctx context.Context, symbol string, data *models.ExchangeData) error {
	payload, err := marshalNullable(data)
	if err != nil {
		return err
	}

	query := `UPDATE tokens SET exchange_data = $1 WHERE symbol = $2`
	result, err := db.ExecContext(ctx, query, payload, strings.ToUpper(symbol))
	if err != nil {
		logger.Log.Error("Failed to update exchange data",
			zap.String("symbol", symbol),
			zap.Error(err),
		)
		return err
	}
	return requireRow(result, ErrTokenNotFound)
}

// DeleteToken removes a token and writes its audit record in one
// transaction. The reason is required; the token's id is never reused.
func DeleteToken(ctx context.Context, symbol, reason string) (*models.DeletedToken, error) {
	if strings.TrimSpace(reason) == "" {
		return nil, models.ErrMissingReason
	}

	token, err := GetTokenBySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	exchanges, err := json.Marshal(token.Exchanges)
	if err != nil {
		return nil, err
	}

	deleted := &models.DeletedToken{
		ID:             uuid.New().String(),
		TokenID:        token.ID,
		Symbol:         token.Symbol,
		Name:           token.Name,
		Exchanges:      token.Exchanges,
		Added:          token.Added,
		AllTimeHigh:    token.AllTimeHigh,
		AllTimeLow:     token.AllTimeLow,
		DeletionReason: reason,
		DateDeleted:    time.Now(),
	}

	insert := `
		INSERT INTO deleted_tokens (id, token_id, symbol, name, exchanges, added, all_time_high, all_time_low, deletion_reason, date_deleted)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err = tx.ExecContext(ctx, insert,
		deleted.ID,
		deleted.TokenID,
		deleted.Symbol,
		deleted.Name,
		string(exchanges),
		deleted.Added,
		deleted.AllTimeHigh,
		deleted.AllTimeLow,
		deleted.DeletionReason,
		deleted.DateDeleted,
	)
	if err != nil {
		logger.Log.Error("Failed to write deleted token audit record",
			zap.String("symbol", token.Symbol),
			zap.Error(err),
		)
		return nil, err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM tokens WHERE id = $1`, token.ID); err != nil {
		logger.Log.Error("Failed to delete token",
			zap.String("symbol", token.Symbol),
			zap.Error(err),
		)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return deleted, nil
}

// ListDeletedTokens returns the audit trail, newest first
func ListDeletedTokens(ctx context.Context) ([]*models.DeletedToken, error) {
	query := `
		SELECT id, token_id, symbol, name, exchanges, added, all_time_high, all_time_low, deletion_reason, date_deleted
		FROM deleted_tokens
		ORDER BY date_deleted DESC
	`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		logger.Log.Error("Failed to query deleted tokens", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var deleted []*models.DeletedToken
	for rows.Next() {
		var d models.DeletedToken
		var exchanges string
		var high, low sql.NullFloat64

		err := rows.Scan(
			&d.ID,
			&d.TokenID,
			&d.Symbol,
			&d.Name,
			&exchanges,
			&d.Added,
			&high,
			&low,
			&d.DeletionReason,
			&d.DateDeleted,
		)
		if err != nil {
			return nil, err
		}

		if err := json.Unmarshal([]byte(exchanges), &d.Exchanges); err != nil {
			return nil, err
		}
		d.AllTimeHigh = nullFloat(high)
		d.AllTimeLow = nullFloat(low)

		deleted = append(deleted, &d)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return deleted, nil
}

// RestoreToken re-creates a token from its audit record under a fresh id.
// The audit record itself is never mutated or removed.
func RestoreToken(ctx context.Context, deletedID string) (*models.Token, error) {
	query := `
		SELECT symbol, name, exchanges, added, all_time_high, all_time_low
		FROM deleted_tokens
		WHERE id = $1
	`

	var symbol, name, exchanges string
	var added time.Time
	var high, low sql.NullFloat64

	err := db.QueryRowContext(ctx, query, deletedID).Scan(&symbol, &name, &exchanges, &added, &high, &low)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}

	token := &models.Token{
		ID:          uuid.New().String(),
		Symbol:      symbol,
		Name:        name,
		Added:       time.Now(),
		AllTimeHigh: nullFloat(high),
		AllTimeLow:  nullFloat(low),
	}
	if err := json.Unmarshal([]byte(exchanges), &token.Exchanges); err != nil {
		return nil, err
	}

	if err := CreateToken(ctx, token); err != nil {
		return nil, err
	}
	return token, nil
}

// ---- alerts ----

// CreateAlert inserts a new alert into the database
func CreateAlert(ctx context.Context, alert *models.Alert) error {
	conditions, err := json.Marshal(alert.Conditions)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO alerts (id, token_symbol, token_name, alert_type, conditions, message, is_active, created_at, updated_at, last_triggered, trigger_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = db.ExecContext(
		ctx,
		query,
		alert.ID,
		strings.ToUpper(alert.TokenSymbol),
		alert.TokenName,
		string(alert.Type),
		string(conditions),
		alert.Message,
		alert.IsActive,
		alert.CreatedAt,
		alert.UpdatedAt,
		alert.LastTriggered,
		alert.TriggerCount,
	)

	if err != nil {
		logger.Log.Error("Failed to create alert in database",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
		return err
	}

	return nil
}

// GetAlertByID retrieves an alert by its ID
func GetAlertByID(ctx context.Context, id string) (*models.Alert, error) {
	query := alertSelect + ` WHERE id = $1`

	row := db.QueryRowContext(ctx, query, id)
	alert, err := scanAlert(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAlertNotFound
		}
		logger.Log.Error("Failed to retrieve alert",
			zap.String("alert_id", id),
			zap.Error(err),
		)
		return nil, err
	}
	return alert, nil
}

// GetAlertsBySymbol retrieves all alerts attached to one token symbol
func GetAlertsBySymbol(ctx context.Context, symbol string) ([]*models.Alert, error) {
	query := alertSelect + ` WHERE token_symbol = $1 ORDER BY created_at DESC`
	return queryAlerts(ctx, query, strings.ToUpper(symbol))
}

// GetActiveAlertsBySymbol retrieves the alerts the worker evaluates per tick
func GetActiveAlertsBySymbol(ctx context.Context, symbol string) ([]*models.Alert, error) {
	query := alertSelect + ` WHERE token_symbol = $1 AND is_active ORDER BY created_at DESC`
	return queryAlerts(ctx, query, strings.ToUpper(symbol))
}

// GetAllAlerts retrieves all alerts
func GetAllAlerts(ctx context.Context) ([]*models.Alert, error) {
	query := alertSelect + ` ORDER BY created_at DESC`
	return queryAlerts(ctx, query)
}

// UpdateAlert updates an existing alert's conditions, message and activity
func UpdateAlert(ctx context.Context, alert *models.Alert) error {
	conditions, err := json.Marshal(alert.Conditions)
	if err != nil {
		return err
	}

	query := `
		UPDATE alerts
		SET alert_type = $1, conditions = $2, message = $3, is_active = $4, updated_at = $5
		WHERE id = $6
	`

	result, err := db.ExecContext(
		ctx,
		query,
		string(alert.Type),
		string(conditions),
		alert.Message,
		alert.IsActive,
		alert.UpdatedAt,
		alert.ID,
	)

	if err != nil {
		logger.Log.Error("Failed to update alert",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
		return err
	}

	return requireRow(result, ErrAlertNotFound)
}

// CommitTrigger persists the trigger bookkeeping applied by the evaluator
func CommitTrigger(ctx context.Context, alert *models.Alert) error {
	query := `UPDATE alerts SET last_triggered = $1, trigger_count = $2 WHERE id = $3`

	result, err := db.ExecContext(ctx, query, alert.LastTriggered, alert.TriggerCount, alert.ID)
	if err != nil {
		logger.Log.Error("Failed to commit alert trigger",
			zap.String("alert_id", alert.ID),
			zap.Error(err),
		)
		return err
	}
	return requireRow(result, ErrAlertNotFound)
}

// DeleteAlert deletes an alert by ID
func DeleteAlert(ctx context.Context, id string) error {
	query := `DELETE FROM alerts WHERE id = $1`

	result, err := db.ExecContext(ctx, query, id)
	if err != nil {
		logger.Log.Error("Failed to delete alert",
			zap.String("alert_id", id),
			zap.Error(err),
		)
		return err
	}
	return requireRow(result, ErrAlertNotFound)
}

// ---- helpers ----

const alertSelect = `
	SELECT id, token_symbol, token_name, alert_type, conditions, message, is_active, created_at, updated_at, last_triggered, trigger_count
	FROM alerts`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanToken(row rowScanner) (*models.Token, error) {
	var token models.Token
	var exchanges string
	var exchangeData sql.NullString
	var high, low sql.NullFloat64

	err := row.Scan(
		&token.ID,
		&token.Symbol,
		&token.Name,
		&exchanges,
		&token.Added,
		&high,
		&low,
		&exchangeData,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(exchanges), &token.Exchanges); err != nil {
		return nil, err
	}
	if exchangeData.Valid && exchangeData.String != "" {
		var data models.ExchangeData
		if err := json.Unmarshal([]byte(exchangeData.String), &data); err != nil {
			return nil, err
		}
		token.ExchangeData = &data
	}
	token.AllTimeHigh = nullFloat(high)
	token.AllTimeLow = nullFloat(low)

	return &token, nil
}

func scanAlert(row rowScanner) (*models.Alert, error) {
	var alert models.Alert
	var alertType, conditions string
	var lastTriggered sql.NullTime

	err := row.Scan(
		&alert.ID,
		&alert.TokenSymbol,
		&alert.TokenName,
		&alertType,
		&conditions,
		&alert.Message,
		&alert.IsActive,
		&alert.CreatedAt,
		&alert.UpdatedAt,
		&lastTriggered,
		&alert.TriggerCount,
	)
	if err != nil {
		return nil, err
	}

	alert.Type = models.AlertType(alertType)
	if err := json.Unmarshal([]byte(conditions), &alert.Conditions); err != nil {
		return nil, err
	}
	if lastTriggered.Valid {
		t := lastTriggered.Time
		alert.LastTriggered = &t
	}

	return &alert, nil
}

func queryAlerts(ctx context.Context, query string, args ...interface{}) ([]*models.Alert, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Log.Error("Failed to query alerts", zap.Error(err))
		return nil, err
	}
	defer rows.Close()

	var alerts []*models.Alert
	for rows.Next() {
		alert, err := scanAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return alerts, nil
}

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	val := v.Float64
	return &val
}

func marshalNullable(v interface{}) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	switch data := v.(type) {
	case *models.ExchangeData:
		if data == nil {
			return sql.NullString{}, nil
		}
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(payload), Valid: true}, nil
}

func requireRow(result sql.Result, missing error) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return missing
	}
	return nil
}
