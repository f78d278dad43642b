package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestDefaultServerConfig(t *testing.T) {
	cfg := DefaultServerConfig()
	assert.Equal(t, "127.0.0.1:8642", cfg.ListenAddr)
	assert.Equal(t, 100*time.Millisecond, cfg.TickInterval)
}

func TestLoadServerConfigOverridesDefaults(t *testing.T) {
	v := viper.New()
	v.Set("listen", "0.0.0.0:9000")
	v.Set("tick-interval", 250*time.Millisecond)

	cfg := LoadServerConfig(v)
	assert.Equal(t, "0.0.0.0:9000", cfg.ListenAddr)
	assert.Equal(t, 250*time.Millisecond, cfg.TickInterval)
}

func TestLoadServerConfigKeepsDefaultsWhenUnset(t *testing.T) {
	v := viper.New()
	cfg := LoadServerConfig(v)
	assert.Equal(t, DefaultServerConfig(), cfg)
}
