package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModel struct {
	response string
	err      error
	prompts  []string
}

func (s *stubModel) Generate(_ context.Context, prompt string) (string, error) {
	s.prompts = append(s.prompts, prompt)
	return s.response, s.err
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name         string
		raw          string
		wantMark     string
		wantNumeric  bool
		wantFeedback string
	}{
		{
			name:         "well formed",
			raw:          "MARK: 85\nFEEDBACK:\nGood work\nRECOMMENDATIONS:\nAdd more detail",
			wantMark:     "85.0",
			wantNumeric:  true,
			wantFeedback: "Good work\n\nRECOMMENDATIONS:\nAdd more detail",
		},
		{
			name:         "preamble and spacing",
			raw:          "Here is my assessment.\n\nMARK:   92.5  \n\nFEEDBACK:\n\n  Strong argument.\nWeak conclusion.  \n\nRECOMMENDATIONS:\n\n- Revise the ending\n",
			wantMark:     "92.5",
			wantNumeric:  true,
			wantFeedback: "Strong argument.\nWeak conclusion.\n\nRECOMMENDATIONS:\n- Revise the ending",
		},
		{
			name:         "non numeric mark",
			raw:          "MARK: 17/20\nFEEDBACK: Solid.\nRECOMMENDATIONS: None.",
			wantMark:     "17/20",
			wantFeedback: "Solid.\n\nRECOMMENDATIONS:\nNone.",
		},
		{
			name:         "mark on same line as feedback marker",
			raw:          "MARK: 60 FEEDBACK: brief RECOMMENDATIONS: more",
			wantMark:     "60.0",
			wantNumeric:  true,
			wantFeedback: "brief\n\nRECOMMENDATIONS:\nmore",
		},
		{
			name:         "empty mark",
			raw:          "MARK:\nFEEDBACK:\nx\nRECOMMENDATIONS:\ny",
			wantMark:     "N/A",
			wantFeedback: "x\n\nRECOMMENDATIONS:\ny",
		},
		{
			name:         "windows line endings",
			raw:          "MARK: 70\r\nFEEDBACK:\r\nOk\r\nRECOMMENDATIONS:\r\nMore",
			wantMark:     "70.0",
			wantNumeric:  true,
			wantFeedback: "Ok\n\nRECOMMENDATIONS:\nMore",
		},
		{
			name:         "missing mark",
			raw:          "FEEDBACK:\nGood\nRECOMMENDATIONS:\nMore",
			wantMark:     "N/A",
			wantFeedback: "FEEDBACK:\nGood\nRECOMMENDATIONS:\nMore",
		},
		{
			name:         "missing feedback",
			raw:          "MARK: 50\nRECOMMENDATIONS:\nMore",
			wantMark:     "N/A",
			wantFeedback: "MARK: 50\nRECOMMENDATIONS:\nMore",
		},
		{
			name:         "missing recommendations",
			raw:          "MARK: 50\nFEEDBACK:\nGood",
			wantMark:     "N/A",
			wantFeedback: "MARK: 50\nFEEDBACK:\nGood",
		},
		{
			name:         "markers out of order",
			raw:          "FEEDBACK: fine\nMARK: 40\nRECOMMENDATIONS: more",
			wantMark:     "N/A",
			wantFeedback: "FEEDBACK: fine\nMARK: 40\nRECOMMENDATIONS: more",
		},
		{
			name:         "free text",
			raw:          "I cannot mark this submission.",
			wantMark:     "N/A",
			wantFeedback: "I cannot mark this submission.",
		},
		{
			name:         "empty",
			raw:          "",
			wantMark:     "N/A",
			wantFeedback: "",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ParseResponse(tt.raw)
			assert.Equal(t, tt.wantMark, res.Mark.String())
			_, numeric := res.Mark.Numeric()
			assert.Equal(t, tt.wantNumeric, numeric)
			assert.Equal(t, tt.wantFeedback, res.Feedback)
		})
	}
}

func TestParseStructuredReportsMissingMarker(t *testing.T) {
	_, err := parseStructured("MARK: 1\nFEEDBACK: x")
	require.ErrorIs(t, err, ErrMalformedResponse)
	assert.Contains(t, err.Error(), markerRecommendations)
}

func TestBuildPrompt(t *testing.T) {
	t.Run("with context", func(t *testing.T) {
		p := BuildPrompt("rubric text", "essay text", "related criteria")

		criteria := strings.Index(p, "## Marking Criteria:\nrubric text")
		submission := strings.Index(p, "## Student Submission:\nessay text")
		extra := strings.Index(p, "## Additional Context:\nrelated criteria")
		format := strings.Index(p, "MARK: [numerical mark]")

		require.GreaterOrEqual(t, criteria, 0)
		assert.Greater(t, submission, criteria)
		assert.Greater(t, extra, submission)
		assert.Greater(t, format, extra)
		assert.Contains(t, p, "FEEDBACK:")
		assert.Contains(t, p, "RECOMMENDATIONS:")
	})

	t.Run("without context", func(t *testing.T) {
		p := BuildPrompt("rubric text", "essay text", NoContext)
		assert.NotContains(t, p, "## Additional Context")
		assert.Contains(t, p, "## Student Submission:\nessay text")
	})
}

func TestGeneratorGenerate(t *testing.T) {
	model := &stubModel{response: "MARK: 85\nFEEDBACK:\nGood work\nRECOMMENDATIONS:\nAdd more detail"}
	g := NewGenerator(model)

	res, err := g.Generate(context.Background(), "rubric", "essay", "ctx")
	require.NoError(t, err)

	v, ok := res.Mark.Numeric()
	require.True(t, ok)
	assert.InDelta(t, 85.0, v, 1e-9)
	assert.Contains(t, res.Feedback, "Good work")
	assert.Contains(t, res.Feedback, "Add more detail")
	require.Len(t, model.prompts, 1)
	assert.Contains(t, model.prompts[0], "## Additional Context:\nctx")
}

func TestGeneratorMalformedIsNotAnError(t *testing.T) {
	g := NewGenerator(&stubModel{response: "just prose"})

	res, err := g.Generate(context.Background(), "rubric", "essay", "")
	require.NoError(t, err)
	assert.Equal(t, "N/A", res.Mark.String())
	assert.Equal(t, "just prose", res.Feedback)
}

func TestGeneratorModelError(t *testing.T) {
	boom := errors.New("connection refused")
	g := NewGenerator(&stubModel{err: boom})

	_, err := g.Generate(context.Background(), "rubric", "essay", "")
	assert.ErrorIs(t, err, boom)
}
