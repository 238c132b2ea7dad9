// Package alerts turns raw crime-risk proximity alerts into short,
// speakable narrations for the voice guidance layer.
package alerts

import (
	"context"
	"time"
)

// RawAlert is an unprocessed proximity alert from the risk monitor.
type RawAlert struct {
	ID             string    `json:"id"`
	CrimeType      string    `json:"crime_type"`
	Severity       int       `json:"severity"`
	DistanceMeters float64   `json:"distance_meters"`
	LocationHint   string    `json:"location_hint,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Urgency levels for spoken alerts.
const (
	UrgencyNotice  = "notice"
	UrgencyCaution = "caution"
	UrgencyDanger  = "danger"
)

// EnhancedNarration is a processed alert ready for text-to-speech.
type EnhancedNarration struct {
	ID          string    `json:"id"`
	Text        string    `json:"text"`
	Urgency     string    `json:"urgency"` // enum: notice, caution, danger
	ProcessedAt time.Time `json:"processed_at"`
}

// NarrationEnhancer produces speakable narrations from raw alerts.
type NarrationEnhancer interface {
	EnhanceAlert(ctx context.Context, raw RawAlert) (EnhancedNarration, error)

	// Health check for the narration backend
	HealthCheck(ctx context.Context) error
}

// NarrationCache caches narrations by content hash so repeated alerts
// for the same hotspot do not re-trigger the language model.
type NarrationCache interface {
	SetNarration(contentHash string, narration EnhancedNarration, ttl time.Duration) error
	GetNarration(contentHash string) (EnhancedNarration, bool, error)
	IsNarrationCached(contentHash string) bool
}
