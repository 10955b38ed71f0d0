package service

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/khangpv/imgprep/internal/config"
	"github.com/redis/go-redis/v9"
	storage_go "github.com/supabase-community/storage-go"
)

type StorageService struct {
	sbClient      *storage_go.Client
	redisClient   *redis.Client
	bucket        string
	cacheDuration time.Duration
}

func NewStorageService(cfg *config.Config) (*StorageService, error) {
	var sbClient *storage_go.Client
	if cfg.Supabase.URL != "" && cfg.Supabase.KEY != "" {
		sbClient = storage_go.NewClient(cfg.Supabase.URL+"/storage/v1", cfg.Supabase.KEY, nil)
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	return &StorageService{
		sbClient:      sbClient,
		redisClient:   redisClient,
		bucket:        cfg.Supabase.BUCKET,
		cacheDuration: cfg.Processing.CacheDuration,
	}, nil
}

// Configured reports whether an object storage bucket is attached.
func (s *StorageService) Configured() bool {
	return s.sbClient != nil
}

// Upload pushes an encoded output to Supabase Storage and returns its public
// URL. Returns an error when no bucket is configured.
func (s *StorageService) Upload(ctx context.Context, buffer *bytes.Buffer, filename string) (string, error) {
	if s.sbClient == nil {
		return "", fmt.Errorf("object storage not configured")
	}

	key := s.generateStorageKey(filename)
	_, err := s.sbClient.UploadFile(s.bucket, key, bytes.NewReader(buffer.Bytes()))
	if err != nil {
		return "", fmt.Errorf("failed to upload to supabase: %w", err)
	}

	publicURL := s.sbClient.GetPublicUrl(s.bucket, key)
	return publicURL.SignedURL, nil
}

// GetFromCache retrieves a processed image from cache; nil means a miss.
func (s *StorageService) GetFromCache(ctx context.Context, cacheKey string) ([]byte, error) {
	data, err := s.redisClient.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get error: %w", err)
	}
	return data, nil
}

// SetCache stores a processed image in cache.
func (s *StorageService) SetCache(ctx context.Context, cacheKey string, data []byte) error {
	return s.redisClient.Set(ctx, cacheKey, data, s.cacheDuration).Err()
}

// CacheKey derives a cache key from the source bytes and the requested bound,
// so the same photo resized to the same dimension is only processed once.
func CacheKey(source []byte, maxDim int) string {
	hash := md5.New()
	hash.Write(source)
	fmt.Fprintf(hash, "fit_%d", maxDim)
	return fmt.Sprintf("img_cache:%x", hash.Sum(nil))
}

// HealthCheck reports Redis and Supabase availability.
func (s *StorageService) HealthCheck(ctx context.Context) map[string]string {
	status := make(map[string]string)

	if err := s.redisClient.Ping(ctx).Err(); err != nil {
		status["redis"] = "unhealthy: " + err.Error()
	} else {
		status["redis"] = "healthy"
	}

	if s.sbClient == nil {
		status["supabase"] = "not configured"
	} else if _, err := s.sbClient.ListFiles(s.bucket, "", storage_go.FileSearchOptions{}); err != nil {
		status["supabase"] = "unhealthy: " + err.Error()
	} else {
		status["supabase"] = "healthy"
	}

	return status
}

func (s *StorageService) Close() error {
	return s.redisClient.Close()
}

// generateStorageKey creates a unique storage key
func (s *StorageService) generateStorageKey(filename string) string {
	ext := filepath.Ext(filename)
	name := strings.TrimSuffix(filename, ext)
	timestamp := time.Now().Unix()
	uuid := uuid.New().String()[:8]

	return fmt.Sprintf("processed/%s_%d_%s%s", name, timestamp, uuid, ext)
}
