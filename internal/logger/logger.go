package logger

import (
	"log"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Log is the shared structured logger. Every service calls InitLogger once
// at startup; packages then log via logger.Log directly.
var Log *zap.Logger

// InitLogger builds the production zap logger used across all services.
func InitLogger() {
	config := zap.NewProductionConfig()
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.EncoderConfig.TimeKey = "time"

	var err error
	Log, err = config.Build()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
}
