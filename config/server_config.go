package config

import (
	"time"

	"github.com/spf13/viper"
)

// ServerConfig is the process-level configuration the arbiter itself is
// started with, bound from flags and SC2_PROXY_* environment variables by
// cmd/arbiter. It mirrors the teacher's defaults-overridden-by-environment
// ServerConfig, generalized from a bespoke loader onto viper.
type ServerConfig struct {
	ListenAddr    string
	EngineBaseDir string
	TickInterval  time.Duration
}

// DefaultServerConfig returns the arbiter's baseline process settings.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		ListenAddr:   "127.0.0.1:8642",
		TickInterval: 100 * time.Millisecond,
	}
}

// LoadServerConfig builds a ServerConfig from viper, which cmd/arbiter has
// already bound to cobra flags and the SC2_PROXY_ environment prefix.
func LoadServerConfig(v *viper.Viper) ServerConfig {
	cfg := DefaultServerConfig()
	if addr := v.GetString("listen"); addr != "" {
		cfg.ListenAddr = addr
	}
	if base := v.GetString("engine-base-dir"); base != "" {
		cfg.EngineBaseDir = base
	}
	if tick := v.GetDuration("tick-interval"); tick > 0 {
		cfg.TickInterval = tick
	}
	return cfg
}
