package internal

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReplaceIfEmpty(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "fallback", replaceIfEmpty("", "fallback"))
	assert.Equal(t, "value", replaceIfEmpty("value", "fallback"))
}

func TestFormatDuration(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "0s", formatDuration(0))
	assert.Equal(t, "45s", formatDuration(45*time.Second))
	assert.Equal(t, "2m 5s", formatDuration(2*time.Minute+5*time.Second))
	assert.Equal(t, "3h 0m 10s", formatDuration(3*time.Hour+10*time.Second))
	assert.Equal(t, "1d 2h 3m 4s", formatDuration(26*time.Hour+3*time.Minute+4*time.Second))
	assert.Equal(t, "0s", formatDuration(-time.Minute))
}

func TestSplitMessageShort(t *testing.T) {
	t.Parallel()

	chunks := splitMessage("hello world", MaxMessageLength)

	assert.Equal(t, []string{"hello world"}, chunks)
}

func TestSplitMessageLineBoundaries(t *testing.T) {
	t.Parallel()

	content := "aaaa\nbbbb\ncccc"

	chunks := splitMessage(content, 9)

	assert.Equal(t, []string{"aaaa\nbbbb", "cccc"}, chunks)
}

func TestSplitMessageLongLine(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("a", 25)

	chunks := splitMessage(content, 10)

	assert.Equal(t, []string{strings.Repeat("a", 10), strings.Repeat("a", 10), strings.Repeat("a", 5)}, chunks)

	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk), 10)
	}
}

func TestSplitMessageNeverExceedsLimit(t *testing.T) {
	t.Parallel()

	content := strings.Repeat("word word word\n", 300)

	for _, chunk := range splitMessage(content, MaxMessageLength) {
		assert.LessOrEqual(t, len(chunk), MaxMessageLength)
		assert.NotEmpty(t, chunk)
	}
}
