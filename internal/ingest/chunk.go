package ingest

import "strings"

// Default chunking window, in whitespace-separated words
const (
	DefaultWindowWords  = 300
	DefaultOverlapWords = 30
)

// Chunk splits text into overlapping word windows. Text of at most window
// words comes back as a single chunk; longer text is covered by windows
// advancing window-overlap words at a time.
func Chunk(text string, window, overlap int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if window <= 0 {
		window = DefaultWindowWords
	}
	if overlap < 0 || overlap >= window {
		overlap = 0
	}

	if len(words) <= window {
		return []string{strings.Join(words, " ")}
	}

	step := window - overlap
	var chunks []string
	for start := 0; ; start += step {
		end := min(start+window, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
		if end == len(words) {
			break
		}
	}
	return chunks
}
