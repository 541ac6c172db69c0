// Package knowledge maintains the searchable knowledge index: document
// chunking, embedding, retrieval, and the background refresh cycle.
package knowledge

import "fmt"

// ChunkerConfig holds chunking configuration.
type ChunkerConfig struct {
	// Size is the chunk window size in characters (runes).
	Size int

	// Overlap is the fraction of a window shared with its successor, in [0, 0.9].
	Overlap float64
}

// DefaultChunkerConfig returns sensible chunking defaults.
func DefaultChunkerConfig() ChunkerConfig {
	return ChunkerConfig{Size: 800, Overlap: 0.25}
}

// Validate checks if the configuration is valid.
func (c ChunkerConfig) Validate() error {
	if c.Size < 64 {
		return fmt.Errorf("chunk size too small: %d (min 64)", c.Size)
	}
	if c.Overlap < 0 || c.Overlap > 0.9 {
		return fmt.Errorf("overlap out of range: %v (must be in [0, 0.9])", c.Overlap)
	}
	return nil
}

// Chunker splits documents into fixed-size overlapping windows.
type Chunker struct {
	config ChunkerConfig
}

// NewChunker creates a Chunker, falling back to defaults for a zero config.
func NewChunker(cfg ChunkerConfig) (*Chunker, error) {
	if cfg.Size == 0 {
		cfg = DefaultChunkerConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{config: cfg}, nil
}

// Split cuts text into overlapping windows. Whitespace-only input yields no
// chunks. A trailing window shorter than a tenth of the chunk size is merged
// into its predecessor so the index never carries trivial fragments.
func (c *Chunker) Split(text string) []string {
	runes := []rune(text)
	if !hasContent(runes) {
		return nil
	}

	size := c.config.Size
	step := size - int(float64(size)*c.config.Overlap)
	if step < 1 {
		step = 1
	}
	minTail := size / 10

	var chunks []string
	start := 0
	for {
		end := start + size
		if end >= len(runes) {
			if len(chunks) > 0 && len(runes)-start < minTail {
				// Extend the previous window to the end of the document
				// instead of emitting a trivial fragment.
				prevStart := start - step
				chunks[len(chunks)-1] = string(runes[prevStart:])
			} else {
				chunks = append(chunks, string(runes[start:]))
			}
			break
		}
		chunks = append(chunks, string(runes[start:end]))
		start += step
	}
	return chunks
}

func hasContent(runes []rune) bool {
	for _, r := range runes {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return true
		}
	}
	return false
}
