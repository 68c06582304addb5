// Package server provides configuration helpers that define runtime defaults
// and validation for the relay service.
package server

import (
	"fmt"
	"strings"
	"time"
)

const (
	// DefaultPort is the TCP port the relay listens on when none is given.
	DefaultPort = 8080

	// DefaultMaxMessageSize bounds a single inbound message, in bytes.
	DefaultMaxMessageSize = 1 << 20

	// DefaultSendBufferSize is how many messages a connection queues before
	// further deliveries to it are dropped.
	DefaultSendBufferSize = 256

	defaultWriteWait = 10 * time.Second
	defaultPongWait  = 60 * time.Second
)

// Config holds the relay settings. Port is the only option the relay itself
// needs; the remaining fields bound per-connection resources.
type Config struct {
	// Port to listen on. Zero picks an ephemeral port.
	Port int
	// AllowedOrigins lists browser origins allowed to connect. "*" allows
	// any origin. Requests without an Origin header are always accepted.
	AllowedOrigins []string
	MaxMessageSize int64
	SendBufferSize int

	WriteWait    time.Duration
	PongWait     time.Duration
	PingInterval time.Duration
}

func defaultConfig() Config {
	return Config{
		Port:           DefaultPort,
		AllowedOrigins: []string{"*"},
		MaxMessageSize: DefaultMaxMessageSize,
		SendBufferSize: DefaultSendBufferSize,
		WriteWait:      defaultWriteWait,
		PongWait:       defaultPongWait,
		PingInterval:   pingIntervalFor(defaultPongWait),
	}
}

// pingIntervalFor keeps pings comfortably inside the pong deadline.
func pingIntervalFor(pongWait time.Duration) time.Duration {
	return pongWait * 9 / 10
}

// NewConfig creates a Config instance populated with default values for all settings.
func NewConfig() *Config {
	cfg := defaultConfig()
	return &cfg
}

// Validate reports settings that cannot be repaired by defaults.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be between 0 and 65535", c.Port)
	}
	if c.PingInterval > 0 && c.PongWait > 0 && c.PingInterval >= c.PongWait {
		return fmt.Errorf("ping interval %s must be shorter than pong wait %s", c.PingInterval, c.PongWait)
	}
	return nil
}

// Address returns the listen address for the configured port on all interfaces.
func (c Config) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func sanitizeConfig(cfg Config) Config {
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = DefaultMaxMessageSize
	}

	if cfg.SendBufferSize <= 0 {
		cfg.SendBufferSize = DefaultSendBufferSize
	}

	if cfg.WriteWait <= 0 {
		cfg.WriteWait = defaultWriteWait
	}

	if cfg.PongWait <= 0 {
		cfg.PongWait = defaultPongWait
	}

	if cfg.PingInterval <= 0 {
		cfg.PingInterval = pingIntervalFor(cfg.PongWait)
	}

	cfg.AllowedOrigins = append([]string(nil), cfg.AllowedOrigins...)
	return cfg
}

// ParseOrigins splits a comma separated origin list and trims each entry.
func ParseOrigins(origins string) []string {
	parts := strings.Split(origins, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
