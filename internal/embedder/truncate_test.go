package embedder

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		limit    int
		strategy TruncationStrategy
		want     string
	}{
		{
			name:     "short text unchanged",
			text:     "hello",
			limit:    10,
			strategy: TruncateTail,
			want:     "hello",
		},
		{
			name:     "exact limit unchanged",
			text:     "hello",
			limit:    5,
			strategy: TruncateTail,
			want:     "hello",
		},
		{
			name:     "tail keeps the head",
			text:     "chronological record",
			limit:    13,
			strategy: TruncateTail,
			want:     "chronological",
		},
		{
			name:     "head keeps the tail",
			text:     "chronological record",
			limit:    6,
			strategy: TruncateHead,
			want:     "record",
		},
		{
			name:     "zero limit is a no-op",
			text:     "hello",
			limit:    0,
			strategy: TruncateTail,
			want:     "hello",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, truncate(tt.text, tt.limit, tt.strategy))
		})
	}
}

func TestTruncate_MultibyteSafe(t *testing.T) {
	// 4 runes, 12 bytes; a byte-based slice at 6 would split a rune
	text := "日本語文"

	got := truncate(text, 2, TruncateTail)
	assert.Equal(t, "日本", got)
	assert.True(t, strings.HasPrefix(text, got))

	got = truncate(text, 2, TruncateHead)
	assert.Equal(t, "語文", got)
	assert.True(t, strings.HasSuffix(text, got))
}

func TestTruncateAll(t *testing.T) {
	t.Run("nothing to shorten returns the same slice", func(t *testing.T) {
		texts := []string{"a", "b", "c"}
		got := truncateAll(texts, 10, TruncateTail)
		assert.Equal(t, texts, got)
		// No copy when nothing changed
		assert.Same(t, &texts[0], &got[0])
	})

	t.Run("shortens only over-limit texts", func(t *testing.T) {
		texts := []string{"short", strings.Repeat("x", 20), "tiny"}
		got := truncateAll(texts, 8, TruncateTail)

		assert.Equal(t, "short", got[0])
		assert.Equal(t, strings.Repeat("x", 8), got[1])
		assert.Equal(t, "tiny", got[2])

		// Input slice untouched
		assert.Len(t, texts[1], 20)
	})
}
