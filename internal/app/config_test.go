package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, "dev", cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 10, cfg.PGMaxConn)
	assert.Equal(t, []string{"http://localhost:4200"}, cfg.CORSAllow)
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("APP_ENV", "prod")
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("CORS_ALLOW", "https://a.example, https://b.example,")
	t.Setenv("RATE_LIMIT_BURST", "5")

	cfg := LoadConfig()

	assert.Equal(t, "prod", cfg.Env)
	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllow)
	assert.Equal(t, 5, cfg.RateLimitBurst)
}
