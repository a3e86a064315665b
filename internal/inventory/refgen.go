package inventory

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewReferenceID generates a reference for ad-hoc adjustments when the caller
// supplies none: ADJ-<unix-ms>-<token>.
func NewReferenceID(now time.Time) string {
	token := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("ADJ-%d-%s", now.UnixMilli(), token)
}

// FormatChange renders a signed delta for display, e.g. "+5" or "-3".
func FormatChange(delta int64) string {
	if delta >= 0 {
		return fmt.Sprintf("+%d", delta)
	}
	return fmt.Sprintf("%d", delta)
}
