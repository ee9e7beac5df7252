package main

import (
	"strings"
	"time"

	"github.com/goevery/realtime/internal/session"
	"golang.org/x/time/rate"
)

type Settings struct {
	Port        int    `env:"PORT,default=8000"`
	BasePath    string `env:"BASE_PATH"`
	LogEncoding string `env:"LOG_ENCODING,default=console"`

	JWTSecret      string `env:"JWT_SECRET,required=true"`
	JWTAudience    string `env:"JWT_AUDIENCE"`
	APIKeys        string `env:"API_KEYS"`
	AllowedOrigins string `env:"ALLOWED_ORIGINS"`

	MongoURI          string `env:"MONGO_URI"`
	MongoDatabase     string `env:"MONGO_DATABASE,default=blog"`
	IdentityTimeoutMs int    `env:"IDENTITY_TIMEOUT_MS,default=2000"`

	SendBufferSize    int  `env:"SEND_BUFFER_SIZE,default=256"`
	RegistryShards    int  `env:"REGISTRY_SHARDS,default=32"`
	InboundRate       int  `env:"INBOUND_RATE,default=10"`
	InboundBurst      int  `env:"INBOUND_BURST,default=20"`
	PresenceAggregate bool `env:"PRESENCE_AGGREGATE,default=false"`

	ShutdownTimeoutSeconds int `env:"SHUTDOWN_TIMEOUT_SECONDS,default=30"`
}

func (s Settings) GetAPIKeys() []string {
	return splitList(s.APIKeys)
}

func (s Settings) GetAllowedOrigins() []string {
	return splitList(s.AllowedOrigins)
}

func (s Settings) IdentityTimeout() time.Duration {
	return time.Duration(s.IdentityTimeoutMs) * time.Millisecond
}

func (s Settings) ShutdownTimeout() time.Duration {
	return time.Duration(s.ShutdownTimeoutSeconds) * time.Second
}

func (s Settings) SessionSettings() session.Settings {
	settings := session.DefaultSettings()
	settings.InboundRate = rate.Limit(float64(s.InboundRate))
	settings.InboundBurst = s.InboundBurst

	return settings
}

func splitList(raw string) []string {
	var values []string
	for _, value := range strings.Split(raw, ",") {
		if value = strings.TrimSpace(value); value != "" {
			values = append(values, value)
		}
	}

	return values
}
