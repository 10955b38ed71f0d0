package service

import (
	"testing"

	"github.com/khangpv/imgprep/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheKey(t *testing.T) {
	source := []byte("image bytes")

	key := CacheKey(source, 800)
	assert.Equal(t, key, CacheKey(source, 800), "same input must produce the same key")
	assert.Contains(t, key, "img_cache:")

	assert.NotEqual(t, key, CacheKey(source, 400), "different bounds must not collide")
	assert.NotEqual(t, key, CacheKey([]byte("other bytes"), 800), "different sources must not collide")
}

func TestConfigured(t *testing.T) {
	cfg := &config.Config{}
	storage, err := NewStorageService(cfg)
	require.NoError(t, err)
	assert.False(t, storage.Configured())

	cfg.Supabase.URL = "https://example.supabase.co"
	cfg.Supabase.KEY = "service-key"
	cfg.Supabase.BUCKET = "photos"
	storage, err = NewStorageService(cfg)
	require.NoError(t, err)
	assert.True(t, storage.Configured())
}
