package embedder

// TruncationStrategy selects which end of an over-long input survives
type TruncationStrategy string

const (
	// TruncateTail keeps the head of the text and drops the tail
	TruncateTail TruncationStrategy = "tail"

	// TruncateHead keeps the tail of the text and drops the head.
	// Useful when the most recent part of a document matters most.
	TruncateHead TruncationStrategy = "head"
)

// truncate shortens text to at most limit runes. Rune-based slicing
// keeps the result valid UTF-8.
func truncate(text string, limit int, strategy TruncationStrategy) string {
	if limit <= 0 || len(text) <= limit {
		return text
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	if strategy == TruncateHead {
		return string(runes[len(runes)-limit:])
	}
	return string(runes[:limit])
}

// truncateAll applies truncate to every text, copying only when at
// least one text actually shrinks.
func truncateAll(texts []string, limit int, strategy TruncationStrategy) []string {
	var out []string
	for i, text := range texts {
		shortened := truncate(text, limit, strategy)
		if shortened == text {
			if out != nil {
				out[i] = text
			}
			continue
		}
		if out == nil {
			out = make([]string, len(texts))
			copy(out, texts[:i])
		}
		out[i] = shortened
	}
	if out == nil {
		return texts
	}
	return out
}
