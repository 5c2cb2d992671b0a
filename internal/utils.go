package internal

import (
	"fmt"
	"strings"
	"time"
)

// MaxMessageLength is the longest message content the service accepts.
const MaxMessageLength = 2000

// replaceIfEmpty replaces the value if the initial value is empty.
func replaceIfEmpty(v, value string) string {
	if v == "" {
		return value
	}

	return v
}

// formatDuration renders a duration as "1d 2h 3m 4s", skipping leading
// zero units.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}

	d = d.Round(time.Second)

	days := int64(d / (24 * time.Hour))
	hours := int64(d/time.Hour) % 24
	minutes := int64(d/time.Minute) % 60
	seconds := int64(d/time.Second) % 60

	parts := make([]string, 0, 4)

	if days > 0 {
		parts = append(parts, fmt.Sprintf("%dd", days))
	}

	if hours > 0 || len(parts) > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}

	if minutes > 0 || len(parts) > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}

	parts = append(parts, fmt.Sprintf("%ds", seconds))

	return strings.Join(parts, " ")
}

// splitMessage splits content into chunks no longer than limit,
// preferring line boundaries. A single line longer than the limit is cut
// mid-line.
func splitMessage(content string, limit int) []string {
	if len(content) <= limit {
		return []string{content}
	}

	var chunks []string

	var builder strings.Builder

	for _, line := range strings.Split(content, "\n") {
		for len(line) > limit {
			if builder.Len() > 0 {
				chunks = append(chunks, builder.String())
				builder.Reset()
			}

			chunks = append(chunks, line[:limit])
			line = line[limit:]
		}

		// The +1 accounts for the newline separator.
		if builder.Len() > 0 && builder.Len()+len(line)+1 > limit {
			chunks = append(chunks, builder.String())
			builder.Reset()
		}

		if builder.Len() > 0 {
			builder.WriteByte('\n')
		}

		builder.WriteString(line)
	}

	if builder.Len() > 0 {
		chunks = append(chunks, builder.String())
	}

	return chunks
}
