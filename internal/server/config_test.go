package server

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, ":8080", cfg.Address())
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(DefaultMaxMessageSize), cfg.MaxMessageSize)
	assert.Equal(t, DefaultSendBufferSize, cfg.SendBufferSize)
	assert.Less(t, cfg.PingInterval, cfg.PongWait)
	assert.NoError(t, cfg.Validate())
}

func TestSanitizeConfig_FillsZeroValues(t *testing.T) {
	cfg := sanitizeConfig(Config{Port: 9000})

	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, int64(DefaultMaxMessageSize), cfg.MaxMessageSize)
	assert.Equal(t, DefaultSendBufferSize, cfg.SendBufferSize)
	assert.Equal(t, defaultWriteWait, cfg.WriteWait)
	assert.Equal(t, defaultPongWait, cfg.PongWait)
	assert.Equal(t, pingIntervalFor(defaultPongWait), cfg.PingInterval)
}

func TestSanitizeConfig_DerivesPingIntervalFromPongWait(t *testing.T) {
	cfg := sanitizeConfig(Config{PongWait: time.Second})
	assert.Equal(t, 900*time.Millisecond, cfg.PingInterval)
}

func TestSanitizeConfig_CopiesOrigins(t *testing.T) {
	origins := []string{"https://example.com"}
	cfg := sanitizeConfig(Config{AllowedOrigins: origins})
	origins[0] = "https://mutated.example"

	assert.Equal(t, []string{"https://example.com"}, cfg.AllowedOrigins)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "ephemeral port", cfg: Config{Port: 0}},
		{name: "highest port", cfg: Config{Port: 65535}},
		{name: "negative port", cfg: Config{Port: -1}, wantErr: true},
		{name: "port out of range", cfg: Config{Port: 70000}, wantErr: true},
		{
			name:    "ping not shorter than pong wait",
			cfg:     Config{PingInterval: time.Minute, PongWait: time.Minute},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParseOrigins(t *testing.T) {
	assert.Equal(t,
		[]string{"https://a.example", "http://b.example:8080"},
		ParseOrigins(" https://a.example , ,http://b.example:8080"))
	assert.Empty(t, ParseOrigins(""))
}
