package helpers

import (
	"fmt"
	"time"
)

// ParseDuration parses a duration string from the settings file.
// Empty strings are the caller's responsibility; they should apply
// their documented default before calling.
func ParseDuration(s string) (time.Duration, error) {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid duration '%s': %w", s, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("duration '%s' must not be negative", s)
	}
	return d, nil
}
