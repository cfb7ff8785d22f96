package messaging

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/amirasaad/ledgersync/pkg/domain"
	"github.com/amirasaad/ledgersync/pkg/messaging"
	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"
)

// KafkaConfig configures a KafkaPublisher.
type KafkaConfig struct {
	Brokers       string
	TopicPrefix   string
	SASLUsername  string
	SASLPassword  string
	TLSEnabled    bool
	TLSSkipVerify bool
}

const defaultTopicPrefix = "ledger"

// KafkaPublisher sends fire-and-forget messages to one topic per route.
type KafkaPublisher struct {
	brokers []string
	prefix  string
	writer  *kafka.Writer
	dialer  *kafka.Dialer
	logger  *slog.Logger
}

// NewKafkaPublisher builds a publisher. It does not contact the brokers; use Ping for that.
func NewKafkaPublisher(cfg KafkaConfig, logger *slog.Logger) (*KafkaPublisher, error) {
	brokers := parseBrokers(cfg.Brokers)
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka publisher: brokers are required")
	}
	if strings.TrimSpace(cfg.TopicPrefix) == "" {
		cfg.TopicPrefix = defaultTopicPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}

	dialer := &kafka.Dialer{Timeout: 5 * time.Second}
	transport := &kafka.Transport{}
	secured := false
	if cfg.TLSEnabled {
		tlsConfig := &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.TLSSkipVerify, //nolint:gosec
		}
		dialer.TLS = tlsConfig
		transport.TLS = tlsConfig
		secured = true
	}
	if cfg.SASLUsername != "" {
		mechanism := plain.Mechanism{Username: cfg.SASLUsername, Password: cfg.SASLPassword}
		dialer.SASLMechanism = mechanism
		transport.SASL = mechanism
		secured = true
	}

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		AllowAutoTopicCreation: true,
		RequiredAcks:           kafka.RequireOne,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
	}
	if secured {
		writer.Transport = transport
	}

	return &KafkaPublisher{
		brokers: brokers,
		prefix:  cfg.TopicPrefix,
		writer:  writer,
		dialer:  dialer,
		logger:  logger.With("publisher", "kafka"),
	}, nil
}

// Topic returns the topic that carries route.
func (p *KafkaPublisher) Topic(route string) string {
	return topicNameFor(p.prefix, route)
}

// Publish writes payload to route's topic.
func (p *KafkaPublisher) Publish(ctx context.Context, route string, payload []byte) error {
	msg := kafka.Message{
		Topic: p.Topic(route),
		Key:   []byte(route),
		Value: payload,
		Time:  time.Now(),
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.Error("publish failed", "topic", msg.Topic, "error", err)
		return fmt.Errorf("%w: kafka publish on %s: %v", domain.ErrTransport, msg.Topic, err)
	}
	return nil
}

// Ping dials the first broker.
func (p *KafkaPublisher) Ping(ctx context.Context) error {
	conn, err := p.dialer.DialContext(ctx, "tcp", p.brokers[0])
	if err != nil {
		return fmt.Errorf("%w: kafka connection failed: %v", domain.ErrTransport, err)
	}
	return conn.Close()
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

func parseBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func topicNameFor(prefix, route string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = defaultTopicPrefix
	}
	return prefix + "." + strings.ReplaceAll(route, ":", ".")
}

var _ messaging.Publisher = (*KafkaPublisher)(nil)
