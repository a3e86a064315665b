package purchasing

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const codePrefix = "PUR-"

// NextCode derives the sequential purchase code following the last issued
// one. An empty or unparseable last code restarts the sequence.
func NextCode(last string) string {
	n := 0
	if suffix, ok := strings.CutPrefix(last, codePrefix); ok {
		if parsed, err := strconv.Atoi(suffix); err == nil && parsed > 0 {
			n = parsed
		}
	}
	return fmt.Sprintf("%s%06d", codePrefix, n+1)
}

// RandomCode is the collision fallback when sequential inserts keep hitting
// the unique index under concurrent creates.
func RandomCode() string {
	token := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
	return codePrefix + token
}
