package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"cryptodash/internal/config"
	"cryptodash/internal/database"
	"cryptodash/internal/exchange"
	"cryptodash/internal/logger"
	"cryptodash/internal/models"

	"github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"go.uber.org/zap"
)

// Kafka producer
func newKafkaProducer(brokers string) *kafka.Producer {
	p, err := kafka.NewProducer(&kafka.ConfigMap{"bootstrap.servers": brokers})
	if err != nil {
		logger.Log.Fatal("Failed to create Kafka producer", zap.Error(err))
	}
	return p
}

// Publish message to Kafka
func publishToKafka(producer *kafka.Producer, topic string, update models.PriceUpdate) {
	value, err := json.Marshal(update)
	if err != nil {
		logger.Log.Error("Error marshaling price update", zap.Error(err))
		return
	}

	err = producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &topic, Partition: kafka.PartitionAny},
		Value:          value,
	}, nil)

	if err != nil {
		logger.Log.Error("Error producing Kafka message", zap.Error(err))
	}
}

func main() {
	configPath := flag.String("config", ".", "Directory containing config.yaml")
	flag.Parse()

	logger.InitLogger()
	cfg := config.LoadConfig(*configPath)

	if err := database.InitDB(cfg.Database.URL); err != nil {
		logger.Log.Fatal("Failed to initialize database", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	tokens, err := database.GetAllTokens(ctx)
	if err != nil {
		logger.Log.Fatal("Failed to load tracked tokens", zap.Error(err))
	}
	if len(tokens) == 0 {
		logger.Log.Warn("No tracked tokens; feed will idle until restart")
	}

	mexcSymbols := make([]string, 0, len(tokens))
	gateioSymbols := make([]string, 0, len(tokens))
	for _, token := range tokens {
		mexcSymbols = append(mexcSymbols, token.Symbol+"USDT")
		gateioSymbols = append(gateioSymbols, token.Symbol+"_USDT")
	}

	producer := newKafkaProducer(cfg.Kafka.Brokers)
	defer producer.Close()

	updates := make(chan models.PriceUpdate, 256)

	go exchange.MEXCFeed(cfg.Exchange.MEXCWSURL).Run(ctx, mexcSymbols, updates)
	go exchange.GateioFeed(cfg.Exchange.GateioWSURL).Run(ctx, gateioSymbols, updates)

	// Stop cleanly on SIGINT/SIGTERM so Kafka delivery queues drain.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Log.Info("Shutting down price feed")
		cancel()
	}()

	logger.Log.Info("Price feed running",
		zap.Int("symbols", len(tokens)),
		zap.String("topic", cfg.Kafka.Topic),
	)

	for {
		select {
		case update := <-updates:
			logger.Log.Debug("Trade received",
				zap.String("exchange", update.Exchange),
				zap.String("symbol", update.Symbol),
				zap.Float64("price", update.Price),
			)
			publishToKafka(producer, cfg.Kafka.Topic, update)
		case <-ctx.Done():
			producer.Flush(5000)
			return
		}
	}
}
