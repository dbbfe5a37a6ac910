package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "memory", cfg.Enrichment.Queue)
	assert.Equal(t, 3, cfg.Enrichment.Workers)
	assert.Equal(t, 20*time.Second, cfg.Enrichment.CallTimeout)
	assert.Equal(t, 10*time.Minute, cfg.Redis.QuestionCacheTTL)
	assert.Equal(t, "attempt.scored", cfg.RabbitMQ.Queue)
	assert.Equal(t, 10*time.Minute, cfg.Enrichment.Lease)
}

func TestNewConfig_FromEnvironment(t *testing.T) {
	t.Setenv("ENRICHMENT_QUEUE", "rabbitmq")
	t.Setenv("ENRICHMENT_WORKERS", "0")
	t.Setenv("ENRICHMENT_CONSUMERS", "-2")
	t.Setenv("ENRICHMENT_CALL_TIMEOUT", "5s")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, "rabbitmq", cfg.Enrichment.Queue)
	assert.Equal(t, 3, cfg.Enrichment.Workers)
	assert.Equal(t, 1, cfg.Enrichment.Consumers)
	assert.Equal(t, 5*time.Second, cfg.Enrichment.CallTimeout)
	assert.Equal(t, "s3cret", cfg.JWTSecret)
}
