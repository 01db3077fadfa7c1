package service

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/raphaelgruber/homework-marker/internal/index"
	"github.com/raphaelgruber/homework-marker/internal/llm"
	"github.com/raphaelgruber/homework-marker/internal/metrics"
	"github.com/raphaelgruber/homework-marker/internal/models"
	"github.com/raphaelgruber/homework-marker/internal/parser"
)

// NoContext is returned when retrieval is unavailable or finds nothing.
const NoContext = ""

// Retrieval limits.
const (
	matchesPerChunk = 3
	maxSnippets     = 3
)

// Assembler indexes the current rubric and gathers related rubric snippets
// for a submission.
type Assembler struct {
	index   index.Index
	chunks  parser.ChunkConfig
	metrics *metrics.Collector
}

// NewAssembler creates an assembler over idx.
func NewAssembler(idx index.Index, collector *metrics.Collector) *Assembler {
	return &Assembler{
		index:   idx,
		chunks:  parser.DefaultChunkConfig(),
		metrics: collector,
	}
}

// CriteriaID returns the index id for an assignment's rubric.
func CriteriaID(assignmentTitle string) string {
	slug := models.Slugify(assignmentTitle)
	if slug == "" {
		slug = "unknown"
	}
	return "criteria_" + slug
}

// Assemble returns up to three distinct snippets joined by blank lines.
// Any failure is logged and yields NoContext; it never fails the job.
func (a *Assembler) Assemble(ctx context.Context, rubric, submission, assignmentTitle string) (out string) {
	if a == nil || a.index == nil {
		return NoContext
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			slog.Warn("context retrieval panicked, continuing without context", "panic", r)
			out = NoContext
		}
		if a.metrics != nil {
			a.metrics.RecordTiming(metrics.OpRetrieval, time.Since(start))
		}
	}()

	snippets, err := a.retrieve(ctx, rubric, submission, assignmentTitle)
	if errors.Is(err, llm.ErrFatalAPI) {
		slog.Error("embedding provider rejected the request, continuing without context", "error", err)
		return NoContext
	}
	if err != nil {
		slog.Warn("context retrieval failed, continuing without context", "error", err)
		return NoContext
	}

	slog.Debug("context assembled", "snippets", len(snippets))
	return strings.Join(snippets, "\n\n")
}

type scoredSnippet struct {
	text  string
	score float64
	order int
}

func (a *Assembler) retrieve(ctx context.Context, rubric, submission, assignmentTitle string) ([]string, error) {
	id := CriteriaID(assignmentTitle)
	metadata := map[string]any{
		"source":        "current_assignment",
		"assignment_id": strings.TrimPrefix(id, "criteria_"),
	}
	// A failed upsert means the embedder is down or rejecting us; querying
	// each chunk would repeat the same call.
	if _, err := a.index.Upsert(ctx, id, rubric, metadata); err != nil {
		return nil, fmt.Errorf("index marking criteria: %w", err)
	}

	best := make(map[string]*scoredSnippet)
	for _, chunk := range parser.Split(submission, a.chunks) {
		if strings.TrimSpace(chunk.Text) == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, m := range a.index.Query(ctx, chunk.Text, matchesPerChunk) {
			if m.Text == "" {
				continue
			}
			if s, ok := best[m.Text]; ok {
				s.score = max(s.score, m.Score)
				continue
			}
			best[m.Text] = &scoredSnippet{text: m.Text, score: m.Score, order: len(best)}
		}
	}

	ranked := make([]*scoredSnippet, 0, len(best))
	for _, s := range best {
		ranked = append(ranked, s)
	}
	slices.SortFunc(ranked, func(x, y *scoredSnippet) int {
		if c := cmp.Compare(y.score, x.score); c != 0 {
			return c
		}
		return cmp.Compare(x.order, y.order)
	})
	if len(ranked) > maxSnippets {
		ranked = ranked[:maxSnippets]
	}

	out := make([]string, len(ranked))
	for i, s := range ranked {
		out[i] = s.text
	}
	return out, nil
}
