package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/enterprise/fraud-detection/configs"
	"github.com/enterprise/fraud-detection/internal/detection"
	"github.com/enterprise/fraud-detection/internal/fraud"
	"github.com/enterprise/fraud-detection/internal/ingestion"
	"github.com/enterprise/fraud-detection/internal/queue"
	"github.com/enterprise/fraud-detection/internal/repositories"
)

func main() {
	// Load .env file if exists
	_ = godotenv.Load()

	// Load configuration
	cfg := configs.Load()

	// Setup logging
	setupLogging(cfg.Server.Environment)

	log.Info().
		Strs("brokers", cfg.Kafka.Brokers).
		Str("topic", cfg.Kafka.Topic).
		Str("group_id", cfg.Kafka.GroupID).
		Msg("Starting Kafka Ingestion Worker")

	// Initialize database
	db, err := repositories.NewDatabase(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	// Initialize Redis
	streamClient, err := queue.NewRedisStreamClient(cfg.Redis, cfg.Worker.DeadLetterStream)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis Stream")
	}
	defer streamClient.Close()

	cacheClient, err := queue.NewCacheClient(cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis Cache")
	}
	defer cacheClient.Close()

	// Initialize repositories
	txRepo := repositories.NewTransactionRepository(db)
	auditRepo := repositories.NewAuditRepository(db)

	// Initialize the scoring pipeline
	fraudCfg := fraud.Config{
		Threshold:   cfg.Fraud.Threshold,
		AmountLimit: cfg.Fraud.AmountLimit,
		BatchLimit:  cfg.Fraud.BatchLimit,
	}
	adapter := fraud.NewModelAdapter(cfg.Fraud.Threshold)
	artifacts, err := fraud.LoadArtifacts(cfg.Fraud.ModelPath)
	if err != nil {
		log.Fatal().Err(err).Str("model_path", cfg.Fraud.ModelPath).Msg("Failed to load model artifacts")
	}
	adapter.Reload(artifacts)
	pipeline := fraud.NewPipeline(adapter, fraud.NewRuleEngine(fraudCfg), fraudCfg)

	detectionService := detection.NewService(pipeline, adapter, txRepo, auditRepo, streamClient, cacheClient, cacheClient, cfg.Fraud.ModelPath)

	// Transactions from the switch without a user id are attributed to the
	// ingest service account.
	serviceUserID := serviceUser()

	// Create Kafka consumer group
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true
	config.Version = sarama.V3_0_0_0

	// Retry connecting to Kafka
	var consumerGroup sarama.ConsumerGroup
	for i := 0; i < 30; i++ {
		consumerGroup, err = sarama.NewConsumerGroup(cfg.Kafka.Brokers, cfg.Kafka.GroupID, config)
		if err == nil {
			break
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to connect to Kafka, retrying...")
		time.Sleep(5 * time.Second)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Kafka consumer group after retries")
	}
	defer consumerGroup.Close()

	consumer := ingestion.NewConsumer(detectionService, serviceUserID)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info().Msg("Shutdown signal received, stopping ingestion worker...")
		cancel()
	}()

	go func() {
		for err := range consumerGroup.Errors() {
			log.Error().Err(err).Msg("Consumer group error")
		}
	}()

	log.Info().Msg("Ingestion worker started, consuming switch transactions")

	for {
		if err := consumerGroup.Consume(ctx, []string{cfg.Kafka.Topic}, consumer); err != nil {
			log.Error().Err(err).Msg("Error from consumer")
		}

		if ctx.Err() != nil {
			log.Info().Msg("Context cancelled, shutting down ingestion worker")
			return
		}
	}
}

func serviceUser() uuid.UUID {
	if raw := os.Getenv("INGEST_SERVICE_USER_ID"); raw != "" {
		if id, err := uuid.Parse(raw); err == nil {
			return id
		}
		log.Warn().Str("value", raw).Msg("Invalid INGEST_SERVICE_USER_ID, using derived id")
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("fraud-detection/ingest-service"))
}

func setupLogging(env string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	if env == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
