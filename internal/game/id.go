package game

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a game ID of the form <base36 unix-ms>-<8 hex chars>. It is
// short enough to fit in callback payloads.
func NewID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return strconv.FormatInt(now.UnixMilli(), 36) + "-" + suffix
}
