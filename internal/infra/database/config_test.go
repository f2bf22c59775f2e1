package database

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	c := &Config{}
	c.ApplyDefaults("/var/lib/opcgw")
	assert.Equal(t, "/var/lib/opcgw/audit.db", c.AuditDBPath)
	assert.Equal(t, 90*24*time.Hour, c.AuditRetention())
	assert.Equal(t, 4, c.MaxOpenConns)
	assert.Equal(t, 2, c.MaxIdleConns)
	require.NoError(t, c.Validate())

	c = &Config{MaxOpenConns: 1}
	c.ApplyDefaults("data")
	assert.Equal(t, 1, c.MaxIdleConns)
}

func TestAuditRetentionDisabled(t *testing.T) {
	c := &Config{AuditRetentionDays: -1}
	c.ApplyDefaults("data")
	assert.Zero(t, c.AuditRetention())
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{name: "negative open", cfg: Config{MaxOpenConns: -1}},
		{name: "negative idle", cfg: Config{MaxIdleConns: -1}},
		{name: "idle above open", cfg: Config{MaxOpenConns: 2, MaxIdleConns: 3}},
		{name: "negative lifetime", cfg: Config{ConnMaxLifetimeSeconds: -5}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.cfg.Validate())
		})
	}
	assert.NoError(t, (&Config{MaxOpenConns: 0, MaxIdleConns: 3}).Validate())
}
