package utils

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

func DownloadImage(ctx context.Context, imageURL string, maxSize int64) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}

	client := &http.Client{
		Timeout: 30 * time.Second,
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download image: status %d", resp.StatusCode)
	}

	imageData, err := io.ReadAll(io.LimitReader(resp.Body, maxSize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read image data: %w", err)
	}

	if len(imageData) == 0 {
		return nil, "", fmt.Errorf("empty image data")
	}

	contentType := http.DetectContentType(imageData)
	return imageData, contentType, nil
}

// IsValidImageType checks if content type is a supported input type. HEIC is
// sniffed as octet-stream by the stdlib, so that is allowed through and
// rejected later by the decoder if it turns out not to be an image.
func IsValidImageType(contentType string) bool {
	validTypes := []string{
		"image/jpeg",
		"image/jpg",
		"image/png",
		"image/gif",
		"image/webp",
		"image/bmp",
		"image/tiff",
		"image/heic",
		"image/heif",
		"image/avif",
		"application/octet-stream",
	}

	ct := strings.ToLower(contentType)
	for _, validType := range validTypes {
		if strings.Contains(ct, validType) {
			return true
		}
	}
	return false
}

// GenerateFilename generates a unique filename for a processed image
func GenerateFilename(jobID string) string {
	timestamp := time.Now().Unix()
	return fmt.Sprintf("processed_%s_%d.jpg", jobID, timestamp)
}
