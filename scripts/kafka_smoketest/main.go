// Command kafka_smoketest publishes one ledger event through the configured
// Kafka publisher and reads it back, to check a local cluster end to end.
package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"
	"time"

	infrabus "github.com/amirasaad/ledgersync/infra/messaging"
	"github.com/amirasaad/ledgersync/pkg/config"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	brokers := strings.TrimSpace(cfg.Kafka.Brokers)
	if brokers == "" {
		brokers = "localhost:9092"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pub, err := infrabus.NewKafkaPublisher(infrabus.KafkaConfig{
		Brokers:       brokers,
		TopicPrefix:   cfg.Kafka.TopicPrefix,
		SASLUsername:  cfg.Kafka.SASLUsername,
		SASLPassword:  cfg.Kafka.SASLPassword,
		TLSEnabled:    cfg.Kafka.TLSEnabled,
		TLSSkipVerify: cfg.Kafka.TLSSkipVerify,
	}, logger)
	if err != nil {
		return err
	}
	defer func() { _ = pub.Close() }()

	if err := pub.Ping(ctx); err != nil {
		logger.Error("brokers unreachable", "brokers", brokers, "error", err)
		return err
	}

	evt := messaging.LedgerEvent{
		Type:          messaging.EventTransactionSettled,
		AccountID:     uuid.NewString(),
		TransactionID: uuid.NewString(),
		Status:        "DONE",
		OccurredAt:    time.Now().UTC(),
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return err
	}
	if err := pub.Publish(ctx, messaging.RouteLedgerEvents, payload); err != nil {
		logger.Error("publish failed", "error", err)
		return err
	}
	topic := pub.Topic(messaging.RouteLedgerEvents)
	logger.Info("produced", "topic", topic, "transaction_id", evt.TransactionID)

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     strings.Split(brokers, ","),
		GroupID:     "ledger-smoketest-" + uuid.NewString()[:8],
		Topic:       topic,
		StartOffset: kafka.FirstOffset,
		MinBytes:    1,
		MaxBytes:    10e6,
		MaxWait:     500 * time.Millisecond,
	})
	defer func() { _ = r.Close() }()

	for {
		msg, err := r.FetchMessage(ctx)
		if err != nil {
			logger.Error("fetch failed", "topic", topic, "error", err)
			return err
		}
		var got messaging.LedgerEvent
		if json.Unmarshal(msg.Value, &got) == nil && got.TransactionID == evt.TransactionID {
			logger.Info("consumed", "topic", topic, "offset", msg.Offset)
			break
		}
	}

	logger.Info("kafka smoke test passed")
	return nil
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	if err := run(logger); err != nil {
		os.Exit(1)
	}
}
