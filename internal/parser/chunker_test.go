package parser

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertCoverage checks the windowing invariants for chunks of text.
func assertCoverage(t *testing.T, text string, chunks []Chunk, config ChunkConfig) {
	t.Helper()
	require.NotEmpty(t, chunks)
	assert.Equal(t, 0, chunks[0].Start, "first chunk starts at 0")
	assert.Equal(t, len(text), chunks[len(chunks)-1].End, "last chunk reaches the end")

	var rebuilt strings.Builder
	prevEnd := 0
	for i, c := range chunks {
		assert.Equal(t, text[c.Start:c.End], c.Text, "chunk %d text matches offsets", i)
		assert.LessOrEqual(t, utf8.RuneCountInString(c.Text), config.Size, "chunk %d within size", i)
		assert.True(t, utf8.ValidString(c.Text), "chunk %d is valid UTF-8", i)
		if i > 0 {
			assert.LessOrEqual(t, c.Start, prevEnd, "chunk %d leaves no gap", i)
			assert.LessOrEqual(t, utf8.RuneCountInString(text[c.Start:prevEnd]), config.Overlap, "chunk %d overlap bounded", i)
			assert.Greater(t, c.End, prevEnd, "chunk %d makes progress", i)
		}
		rebuilt.WriteString(text[prevEnd:c.End])
		prevEnd = c.End
	}
	assert.Equal(t, text, rebuilt.String(), "windows reconstruct the source")
}

func TestSplit_Empty(t *testing.T) {
	tests := []struct {
		name string
		text string
	}{
		{"empty", ""},
		{"whitespace only", "   \n\n\t  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Empty(t, Split(tt.text, DefaultChunkConfig()))
		})
	}
}

func TestSplit_ShortTextIsSingleChunk(t *testing.T) {
	text := "A short submission that fits in one chunk."
	chunks := Split(text, DefaultChunkConfig())

	require.Len(t, chunks, 1)
	assert.Equal(t, Chunk{Text: text, Start: 0, End: len(text)}, chunks[0])
}

func TestSplit_Coverage(t *testing.T) {
	sentence := "The experiment measured the rate of reaction at several temperatures. "
	paragraph := strings.Repeat(sentence, 8)

	tests := []struct {
		name   string
		text   string
		config ChunkConfig
	}{
		{"paragraphs", strings.Repeat(paragraph+"\n\n", 12), DefaultChunkConfig()},
		{"single long paragraph", strings.Repeat(sentence, 80), DefaultChunkConfig()},
		{"lines", strings.Repeat("line of text without a period\n", 200), DefaultChunkConfig()},
		{"no separators", strings.Repeat("x", 5000), DefaultChunkConfig()},
		{"multibyte no separators", strings.Repeat("é", 3000), DefaultChunkConfig()},
		{"small windows", strings.Repeat(sentence, 20), ChunkConfig{Size: 200, Overlap: 40}},
		{"no overlap", strings.Repeat(sentence, 40), ChunkConfig{Size: 300, Overlap: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := Split(tt.text, tt.config)
			require.Greater(t, len(chunks), 1)
			assertCoverage(t, tt.text, chunks, tt.config)
		})
	}
}

func TestSplit_PrefersParagraphBoundary(t *testing.T) {
	first := strings.Repeat("a", 1000)
	second := strings.Repeat("b", 1000)
	text := first + "\n\n" + second

	chunks := Split(text, DefaultChunkConfig())

	require.Len(t, chunks, 2)
	assert.Equal(t, first+"\n\n", chunks[0].Text)
	assert.True(t, strings.HasSuffix(chunks[1].Text, second))
}

func TestSplit_PrefersSentenceOverWord(t *testing.T) {
	sentence := strings.Repeat("word ", 150) + "end. "
	text := sentence + strings.Repeat("tail ", 300)

	chunks := Split(text, DefaultChunkConfig())

	require.GreaterOrEqual(t, len(chunks), 2)
	assert.Equal(t, sentence, chunks[0].Text)
}

func TestSplit_InvalidConfigFallsBack(t *testing.T) {
	text := strings.Repeat("Some words here. ", 300)

	chunks := Split(text, ChunkConfig{Size: 0, Overlap: -1})
	assertCoverage(t, text, chunks, DefaultChunkConfig())

	cfg := ChunkConfig{Size: 100, Overlap: 90}
	chunks = Split(text, cfg)
	assertCoverage(t, text, chunks, ChunkConfig{Size: 100, Overlap: 0})
}

func TestSplit_SizesCountCharacters(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		minFirst int
	}{
		{"cyrillic words", strings.Repeat("привет ", 1000), 1400},
		{"cjk without spaces", strings.Repeat("漢字", 2000), 1500},
		{"ascii words", strings.Repeat("hello ", 1200), 1400},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultChunkConfig()
			chunks := Split(tt.text, config)

			assertCoverage(t, tt.text, chunks, config)
			first := utf8.RuneCountInString(chunks[0].Text)
			assert.LessOrEqual(t, first, config.Size)
			assert.GreaterOrEqual(t, first, tt.minFirst, "first chunk fills the window")
		})
	}
}

func TestSplit_MultibyteFitsInOneChunk(t *testing.T) {
	// 1000 characters but 2000 bytes.
	text := strings.Repeat("é", 1000)
	chunks := Split(text, DefaultChunkConfig())

	require.Len(t, chunks, 1)
	assert.Equal(t, len(text), chunks[0].End)
}
