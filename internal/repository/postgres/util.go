package postgres

import (
	"fmt"
	"time"
)

// textArray keeps NOT NULL text[] columns non-null.
func textArray(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// pgInterval renders d for a $n::interval parameter. Negative durations
// collapse to zero so the row becomes due immediately.
func pgInterval(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%f seconds", d.Seconds())
}

func roleStrings[T ~string](roles []T) []string {
	out := make([]string, 0, len(roles))
	for _, r := range roles {
		out = append(out, string(r))
	}
	return out
}
