package moderation

import (
	"math"
	"regexp"
	"strconv"
	"time"
)

var muteDurationRe = regexp.MustCompile(`^(\d+)([smhd])$`)

// ParseMuteDuration reads values such as 30s, 5m, 1h or 2d. The second
// return is false when the argument is not a duration or does not fit into
// time.Duration.
func ParseMuteDuration(arg string) (time.Duration, bool) {
	m := muteDurationRe.FindStringSubmatch(arg)
	if m == nil {
		return 0, false
	}
	value, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil || value <= 0 {
		return 0, false
	}
	unit := map[string]time.Duration{
		"s": time.Second,
		"m": time.Minute,
		"h": time.Hour,
		"d": 24 * time.Hour,
	}[m[2]]
	if value > math.MaxInt64/int64(unit) {
		return 0, false
	}
	return time.Duration(value) * unit, true
}
