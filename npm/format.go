package npm

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
)

func formatCount(n int64) string {
	return humanize.Comma(n)
}

func formatBytes(n int64) string {
	return humanize.IBytes(uint64(max(n, 0)))
}

// formatScore renders a [0,1] score as a percentage.
func formatScore(score float64) string {
	return fmt.Sprintf("%.0f%%", score*100)
}

// formatDate trims an RFC 3339 timestamp to its date.
func formatDate(raw string) string {
	if t, ok := parseTime(raw); ok {
		return t.Format(time.DateOnly)
	}
	return raw
}

func parseTime(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// dependencyList renders a dependency map as sorted "name@range" entries.
func dependencyList(deps map[string]string) []string {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	slices.Sort(names)
	out := make([]string, 0, len(names))
	for _, name := range names {
		out = append(out, name+"@"+deps[name])
	}
	return out
}

func truncateText(s string, limit int) (string, bool) {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s, false
	}
	return string(runes[:limit]), true
}

func valueOr(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
