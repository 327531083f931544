// Package requestid generates per-request identifiers for tracing.
package requestid

import (
	"crypto/rand"
	"encoding/hex"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

const (
	maxLength    = 36 // same as a UUID
	prefixLength = 5
	maxCustomLen = maxLength - prefixLength - 1
)

var invalidChars = regexp.MustCompile(`[^a-zA-Z0-9-]+`)

// New returns a request ID. A caller-supplied ID from X-Request-ID is
// sanitized to [a-zA-Z0-9-] and prefixed with random characters so it stays
// unique; an empty or fully-invalid custom ID falls back to a UUID.
func New(customID string) string {
	sanitized := strings.ReplaceAll(customID, " ", "-")
	sanitized = invalidChars.ReplaceAllString(sanitized, "")
	sanitized = strings.Trim(sanitized, "-")

	if sanitized == "" {
		return uuid.New().String()
	}

	if len(sanitized) > maxCustomLen {
		sanitized = sanitized[:maxCustomLen]
	}
	return randomPrefix() + "-" + sanitized
}

func randomPrefix() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return uuid.New().String()[:prefixLength]
	}
	return hex.EncodeToString(b)[:prefixLength]
}
