package parser

import (
	"strings"
	"unicode/utf8"
)

// Chunk is a window over the source text. Text == source[Start:End].
type Chunk struct {
	Text  string
	Start int
	End   int
}

// ChunkConfig defines chunking parameters. Sizes count characters (runes);
// Chunk offsets stay byte offsets into the source.
type ChunkConfig struct {
	// Size is the maximum chunk length.
	Size int
	// Overlap is the maximum number of characters shared by adjacent chunks.
	Overlap int
}

// DefaultChunkConfig returns the retrieval defaults.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		Size:    1500,
		Overlap: 150,
	}
}

// separators in order of preference.
var separators = []string{"\n\n", "\n", ". ", "? ", "! ", " "}

// Split cuts text into overlapping windows of at most config.Size characters.
// Cuts prefer paragraph, then line, then sentence, then word boundaries and
// fall back to a hard cut on a rune boundary. Windows cover the whole text
// with no gaps.
func Split(text string, config ChunkConfig) []Chunk {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if config.Size <= 0 {
		config = DefaultChunkConfig()
	}
	if config.Overlap < 0 || config.Overlap >= config.Size/2 {
		config.Overlap = 0
	}

	n := len(text)
	if utf8.RuneCountInString(text) <= config.Size {
		return []Chunk{{Text: text, Start: 0, End: n}}
	}

	var chunks []Chunk
	start := 0
	for {
		end := n
		if limit := forward(text, start, config.Size); limit < n {
			end = cutPoint(text, start, limit, config)
		}
		chunks = append(chunks, Chunk{Text: text[start:end], Start: start, End: end})
		if end == n {
			return chunks
		}

		next := backward(text, end, config.Overlap)
		// Start the overlap on a word when one is available.
		if sp := strings.IndexByte(text[next:end], ' '); sp >= 0 && next+sp+1 < end {
			next += sp + 1
		}
		if next <= start {
			next = end
		}
		start = next
	}
}

// cutPoint picks the end of the window [start, limit). limit is a rune boundary.
func cutPoint(text string, start, limit int, config ChunkConfig) int {
	floor := min(forward(text, start, max(config.Size/2, config.Overlap+1)), limit)
	window := text[floor:limit]
	for _, sep := range separators {
		if idx := strings.LastIndex(window, sep); idx >= 0 {
			return floor + idx + len(sep)
		}
	}
	return limit
}

// forward returns the byte offset n runes after from, capped at len(text).
func forward(text string, from, n int) int {
	i := from
	for ; n > 0 && i < len(text); n-- {
		_, size := utf8.DecodeRuneInString(text[i:])
		i += size
	}
	return i
}

// backward returns the byte offset n runes before from, floored at 0.
func backward(text string, from, n int) int {
	i := from
	for ; n > 0 && i > 0; n-- {
		_, size := utf8.DecodeLastRuneInString(text[:i])
		i -= size
	}
	return i
}
