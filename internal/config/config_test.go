package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(overrides map[string]any) *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	for k, val := range overrides {
		v.Set(k, val)
	}
	return v
}

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := FromViper(newViper(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.CORSOrigins)
	assert.Equal(t, 1, cfg.Recon.Workers)
	assert.Equal(t, 15*time.Minute, cfg.Recon.LeaseTimeout)
	assert.Equal(t, "0.5", cfg.Recon.Tolerance.String())
	assert.Equal(t, 25, cfg.Recon.MaxCandidates)
	assert.Equal(t, 6, cfg.Recon.MaxDepth)
	assert.False(t, cfg.Kafka.Enabled())
}

func TestFromViper_KafkaBrokers(t *testing.T) {
	cfg, err := FromViper(newViper(map[string]any{"KAFKA_BROKERS": "k1:9092, k2:9092,"}))
	require.NoError(t, err)

	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.Kafka.Brokers)
	assert.True(t, cfg.Kafka.Enabled())
}

func TestFromViper_Invalid(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  any
	}{
		{name: "zero workers", key: "RECON_WORKERS", val: 0},
		{name: "bad lease", key: "RECON_LEASE_TIMEOUT", val: "soon"},
		{name: "negative tolerance", key: "RECON_TOLERANCE", val: "-1"},
		{name: "bad tolerance", key: "RECON_TOLERANCE", val: "half"},
		{name: "zero depth", key: "RECON_MAX_DEPTH", val: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromViper(newViper(map[string]any{tt.key: tt.val}))
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}
