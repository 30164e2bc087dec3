package workflow

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// unitDurations is the closed set of units accepted in relative-time
// expressions. Singular and plural forms are equivalent.
var unitDurations = map[string]time.Duration{
	"second":  time.Second,
	"seconds": time.Second,
	"minute":  time.Minute,
	"minutes": time.Minute,
	"hour":    time.Hour,
	"hours":   time.Hour,
	"day":     24 * time.Hour,
	"days":    24 * time.Hour,
	"week":    7 * 24 * time.Hour,
	"weeks":   7 * 24 * time.Hour,
}

// ParseDuration converts a relative-time expression of the form
// "N second(s)|minute(s)|hour(s)|day(s)|week(s)" into a duration. N must be a
// non-negative integer; surrounding and interior whitespace is tolerated.
// Timers add the parsed duration to the store clock to obtain the absolute
// wake time.
func ParseDuration(expr string) (time.Duration, error) {
	fields := strings.Fields(expr)
	if len(fields) != 2 {
		return 0, fmt.Errorf("invalid duration %q: want \"N unit\"", expr)
	}
	n, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q: %w", expr, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid duration %q: negative count", expr)
	}
	unit, ok := unitDurations[strings.ToLower(fields[1])]
	if !ok {
		return 0, fmt.Errorf("invalid duration %q: unknown unit %q", expr, fields[1])
	}
	return time.Duration(n) * unit, nil
}
