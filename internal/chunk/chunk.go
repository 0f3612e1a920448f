// Package chunk splits text into bounded, overlapping segments sized for a
// summarizer's input limit.
package chunk

import "fmt"

const (
	DefaultMaxSize = 1500
	DefaultOverlap = 200
)

// Split cuts content into chunks of at most maxSize characters (runes).
// Consecutive chunks share exactly overlap characters: each chunk starts
// maxSize-overlap characters after the previous one, and the final chunk
// ends at the end of content. Empty content yields no chunks.
func Split(content string, maxSize, overlap int) ([]string, error) {
	if maxSize <= 0 {
		return nil, fmt.Errorf("chunk: maxSize must be > 0, got %d", maxSize)
	}
	if overlap < 0 || overlap >= maxSize {
		return nil, fmt.Errorf("chunk: overlap must be in [0, %d), got %d", maxSize, overlap)
	}
	if content == "" {
		return nil, nil
	}

	runes := []rune(content)
	if len(runes) <= maxSize {
		return []string{content}, nil
	}

	stride := maxSize - overlap
	chunks := make([]string, 0, len(runes)/stride+1)
	for start := 0; ; start += stride {
		end := start + maxSize
		if end >= len(runes) {
			chunks = append(chunks, string(runes[start:]))
			break
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks, nil
}
