package models

import (
	"errors"
	"time"
)

// ErrPreviewInUse is returned when a preview is already being executed.
var ErrPreviewInUse = errors.New("preview is already being executed")

// PreviewEntry is a computed diff awaiting confirmation, kept under an
// expiring identifier.
type PreviewEntry struct {
	ID         string           `json:"previewId"`
	SystemID   string           `json:"systemId"`
	Mode       ImportMode       `json:"mode"`
	Diff       DiffResult       `json:"diff"`
	Rows       []TransformedRow `json:"rows"`
	Validation ValidationResult `json:"validation"`
	Warnings   []string         `json:"warnings"`
	CreatedAt  time.Time        `json:"createdAt"`
	ExpiresAt  time.Time        `json:"expiresAt"`
}

// CacheStats counts the entries held by the preview cache.
type CacheStats struct {
	TotalEntries   int `json:"totalEntries"`
	ActiveEntries  int `json:"activeEntries"`
	ExpiredEntries int `json:"expiredEntries"`
}
