package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// Response markers the model is instructed to emit.
const (
	markerMark            = "MARK:"
	markerFeedback        = "FEEDBACK:"
	markerRecommendations = "RECOMMENDATIONS:"
)

// ErrMalformedResponse indicates a model response without the expected markers.
var ErrMalformedResponse = errors.New("malformed model response")

// LanguageModel generates a completion for a single prompt.
type LanguageModel interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Result is a parsed marking outcome.
type Result struct {
	Mark     Mark   `json:"mark"`
	Feedback string `json:"feedback"`
}

// Generator prompts the language model and parses its answer.
type Generator struct {
	model LanguageModel
}

// NewGenerator creates a feedback generator.
func NewGenerator(model LanguageModel) *Generator {
	return &Generator{model: model}
}

// Generate marks submission against rubric. Model errors are returned;
// unparseable answers are not.
func (g *Generator) Generate(ctx context.Context, rubric, submission, context string) (Result, error) {
	prompt := BuildPrompt(rubric, submission, context)

	raw, err := g.model.Generate(ctx, prompt)
	if err != nil {
		return Result{}, fmt.Errorf("generate feedback: %w", err)
	}

	return ParseResponse(raw), nil
}

const promptInstructions = `You are an experienced teacher marking a student's homework.
Assess the student submission strictly against the marking criteria below.
Award a numerical mark, explain what the student did well and where marks were lost,
and give concrete recommendations for improvement.`

const promptFormat = `Respond using exactly this format:

MARK: [numerical mark]

FEEDBACK:
[detailed feedback on the submission]

RECOMMENDATIONS:
[specific recommendations for improvement]`

// BuildPrompt assembles the marking prompt. The additional context section
// is present only when context is non-empty.
func BuildPrompt(rubric, submission, context string) string {
	var b strings.Builder
	b.WriteString(promptInstructions)
	b.WriteString("\n\n## Marking Criteria:\n")
	b.WriteString(rubric)
	b.WriteString("\n\n## Student Submission:\n")
	b.WriteString(submission)
	if context != "" {
		b.WriteString("\n\n## Additional Context:\n")
		b.WriteString(context)
	}
	b.WriteString("\n\n")
	b.WriteString(promptFormat)
	return b.String()
}

// ParseResponse extracts the mark and feedback body from a model answer.
// A malformed answer yields the raw text as feedback with mark N/A.
func ParseResponse(raw string) Result {
	res, err := parseStructured(raw)
	if err != nil {
		slog.Warn("could not parse model response, using raw text", "error", err, "response_len", len(raw))
		return Result{Mark: RawMark(NotAvailable), Feedback: raw}
	}
	return res
}

// parseStructured requires MARK:, FEEDBACK: and RECOMMENDATIONS: in that order.
func parseStructured(raw string) (Result, error) {
	i := strings.Index(raw, markerMark)
	if i < 0 {
		return Result{}, fmt.Errorf("%w: missing %s", ErrMalformedResponse, markerMark)
	}
	rest := raw[i+len(markerMark):]

	j := strings.Index(rest, markerFeedback)
	if j < 0 {
		return Result{}, fmt.Errorf("%w: missing %s", ErrMalformedResponse, markerFeedback)
	}
	markText := rest[:j]
	rest = rest[j+len(markerFeedback):]

	k := strings.Index(rest, markerRecommendations)
	if k < 0 {
		return Result{}, fmt.Errorf("%w: missing %s", ErrMalformedResponse, markerRecommendations)
	}
	feedback := strings.TrimSpace(rest[:k])
	recommendations := strings.TrimSpace(rest[k+len(markerRecommendations):])

	if nl := strings.IndexAny(markText, "\r\n"); nl >= 0 {
		markText = markText[:nl]
	}

	return Result{
		Mark:     ParseMark(markText),
		Feedback: feedback + "\n\n" + markerRecommendations + "\n" + recommendations,
	}, nil
}
