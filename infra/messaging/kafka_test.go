package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrokers(t *testing.T) {
	assert.Equal(t, []string{"a:9092", "b:9092"}, parseBrokers(" a:9092, ,b:9092 "))
	assert.Empty(t, parseBrokers(""))
}

func TestNewKafkaPublisher(t *testing.T) {
	_, err := NewKafkaPublisher(KafkaConfig{}, nil)
	assert.Error(t, err)

	p, err := NewKafkaPublisher(KafkaConfig{Brokers: "localhost:9092"}, nil)
	require.NoError(t, err)
	defer p.Close()
	assert.Equal(t, "ledger.ledger.events", p.Topic("ledger.events"))

	p2, err := NewKafkaPublisher(KafkaConfig{
		Brokers:      "localhost:9092",
		TopicPrefix:  "audit",
		SASLUsername: "u",
		SASLPassword: "p",
		TLSEnabled:   true,
	}, nil)
	require.NoError(t, err)
	defer p2.Close()
	assert.Equal(t, "audit.ledger.events", p2.Topic("ledger.events"))
	assert.NotNil(t, p2.writer.Transport)
	assert.NotNil(t, p2.dialer.TLS)
}
