package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mx-space/drafts/internal/config"
	"github.com/mx-space/drafts/internal/modules/draft"
)

func TestMatchOriginPattern(t *testing.T) {
	tests := []struct {
		pattern, host string
		want          bool
	}{
		{"wiki.example.com", "wiki.example.com", true},
		{"*.example.com", "edit.example.com", true},
		{"*.example.com", "example.org", false},
		{"localhost:*", "localhost:5173", true},
		{"localhost:*", "127.0.0.1:5173", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, matchOriginPattern(tt.pattern, tt.host), "%s vs %s", tt.pattern, tt.host)
	}
	assert.Equal(t, "wiki.example.com:8443", extractOriginHost("https://wiki.example.com:8443"))
}

func TestCorsConfigRestrictsOriginsInProduction(t *testing.T) {
	cfg := &config.AppConfig{Env: "production", AllowedOrigins: []string{"*.example.com"}}
	c := corsConfig(cfg)
	assert.True(t, c.AllowOriginFunc("https://edit.example.com"))
	assert.False(t, c.AllowOriginFunc("https://evil.test"))

	cfg.Env = "development"
	assert.True(t, corsConfig(cfg).AllowOriginFunc("https://evil.test"))
}

func TestParseTimezoneLocation(t *testing.T) {
	loc, err := parseTimezoneLocation("+08:00")
	require.NoError(t, err)
	_, offset := time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, 8*3600, offset)

	loc, err = parseTimezoneLocation("-03:30")
	require.NoError(t, err)
	_, offset = time.Date(2024, 1, 1, 0, 0, 0, 0, loc).Zone()
	assert.Equal(t, -(3*3600 + 30*60), offset)

	_, err = parseTimezoneLocation("Mars/Olympus")
	assert.Error(t, err)
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	store, release, err := OpenStore(ctx, &config.AppConfig{Drafts: config.DraftsConfig{Storage: config.StorageMemory}}, nil)
	require.NoError(t, err)
	defer release()
	assert.IsType(t, &draft.MemoryStore{}, store)

	_, _, err = OpenStore(ctx, &config.AppConfig{Drafts: config.DraftsConfig{Storage: config.StorageMySQL}}, nil)
	assert.Error(t, err)

	_, _, err = OpenStore(ctx, &config.AppConfig{Drafts: config.DraftsConfig{Storage: "sqlite"}}, nil)
	assert.Error(t, err)
}
