package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := NewViper()
	cfg := FromViper(v)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api", cfg.APIPrefix)
	assert.Equal(t, SnapshotSync, cfg.Store.SnapshotPolicy)
	assert.Equal(t, ".data", cfg.Store.DataDir)
	assert.Equal(t, time.Hour*24, cfg.Monitor.DelayCooldown)
	assert.Equal(t, 30*24*time.Hour, cfg.Monitor.AutoApproveAfter)
	assert.Equal(t, 10*time.Minute, cfg.OTP.TTL)
	assert.True(t, cfg.OTP.ExposeInResponse)
	assert.Equal(t, AlertBackendMemory, cfg.Monitor.AlertBackend)
}

func TestFromViperOverrides(t *testing.T) {
	v := NewViper()
	v.Set("ENV", EnvProduction)
	v.Set("STORE_SNAPSHOT_POLICY", "ASYNC")
	v.Set("MONITOR_ALERT_BACKEND", "bogus")
	v.Set("MONITOR_DELAY_COOLDOWN", "not-a-duration")
	v.Set("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := FromViper(v)

	assert.Equal(t, SnapshotAsync, cfg.Store.SnapshotPolicy)
	assert.Equal(t, AlertBackendMemory, cfg.Monitor.AlertBackend)
	assert.Equal(t, 24*time.Hour, cfg.Monitor.DelayCooldown)
	assert.False(t, cfg.OTP.ExposeInResponse)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
}
