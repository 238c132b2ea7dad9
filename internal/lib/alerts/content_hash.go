package alerts

import (
	"crypto/sha256"
	"fmt"
	"regexp"
	"strings"
)

// ContentHasher provides content-based deduplication for alerts
type ContentHasher struct{}

// NewContentHasher creates a new content hasher
func NewContentHasher() *ContentHasher {
	return &ContentHasher{}
}

// HashRawAlert creates a content hash for deduplication. Distance is
// bucketed to 100m so the same hotspot approached at slightly different
// ranges still hashes identically.
func (h *ContentHasher) HashRawAlert(raw RawAlert) string {
	distanceBucket := int(raw.DistanceMeters / 100)

	contentSignature := fmt.Sprintf("%s|%d|%d|%s",
		h.normalizeText(raw.CrimeType),
		raw.Severity,
		distanceBucket,
		h.normalizeText(raw.LocationHint),
	)

	hash := sha256.Sum256([]byte(contentSignature))
	return fmt.Sprintf("%x", hash)
}

// normalizeText cleans text for consistent hashing
func (h *ContentHasher) normalizeText(text string) string {
	normalized := strings.ToLower(text)
	normalized = regexp.MustCompile(`\s+`).ReplaceAllString(normalized, " ")
	normalized = regexp.MustCompile(`[.,;:!?()-]`).ReplaceAllString(normalized, "")
	return strings.TrimSpace(normalized)
}
