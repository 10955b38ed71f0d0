package models

import "time"

type ProcessedImage struct {
	ID           string    `json:"id"`
	OriginalName string    `json:"original_name"`
	URL          string    `json:"url,omitempty"`
	Width        int       `json:"width"`
	Height       int       `json:"height"`
	FileSize     int64     `json:"file_size"`
	ProcessedAt  time.Time `json:"processed_at"`
}
