package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/homework-marker/internal/metrics"
	"github.com/raphaelgruber/homework-marker/internal/models"
	"github.com/raphaelgruber/homework-marker/internal/parser"
	"github.com/raphaelgruber/homework-marker/internal/report"
)

// ReportRenderer writes a feedback report to path.
type ReportRenderer interface {
	Render(path string, r report.Report) error
}

// Pipeline marks one submission: extract, retrieve, generate, render.
type Pipeline struct {
	extract   func(ctx context.Context, path string) (string, error)
	assembler *Assembler
	generator *Generator
	renderer  ReportRenderer
	outputDir string
	metrics   *metrics.Collector
}

// NewPipeline creates a pipeline writing reports into outputDir.
func NewPipeline(assembler *Assembler, generator *Generator, renderer ReportRenderer, outputDir string, collector *metrics.Collector) *Pipeline {
	return &Pipeline{
		extract:   parser.ExtractFile,
		assembler: assembler,
		generator: generator,
		renderer:  renderer,
		outputDir: outputDir,
		metrics:   collector,
	}
}

// Process implements Processor. The report goes to job.ResultPath when set,
// otherwise to the default result path for the job id.
func (p *Pipeline) Process(ctx context.Context, job models.JobRecord, advance func(JobStage)) (Outcome, error) {
	if advance == nil {
		advance = func(JobStage) {}
	}
	log := slog.With("job_id", job.ID)

	advance(StageExtracting)
	rubric, err := p.extractText(ctx, job.CriteriaPath)
	if err != nil {
		return Outcome{}, fmt.Errorf("extract marking criteria: %w", err)
	}
	submission, err := p.extractText(ctx, job.HomeworkPath)
	if err != nil {
		return Outcome{}, fmt.Errorf("extract homework: %w", err)
	}
	log.Debug("text extracted", "criteria_len", len(rubric), "homework_len", len(submission))

	advance(StageRetrieving)
	retrieved := p.assembler.Assemble(ctx, rubric, submission, job.AssignmentTitle)

	advance(StageGenerating)
	result, err := p.generator.Generate(ctx, rubric, submission, retrieved)
	if err != nil {
		return Outcome{}, err
	}

	advance(StageRendering)
	out := job.ResultPath
	if out == "" {
		out = ResultPath(p.outputDir, job.ID)
	}
	mark := result.Mark.String()
	err = p.renderer.Render(out, report.Report{
		StudentName:     job.StudentName,
		AssignmentTitle: job.AssignmentTitle,
		Mark:            mark,
		Feedback:        result.Feedback,
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("render report: %w", err)
	}

	return Outcome{ResultPath: out, Mark: mark}, nil
}

func (p *Pipeline) extractText(ctx context.Context, path string) (string, error) {
	start := time.Now()
	text, err := p.extract(ctx, path)
	if p.metrics != nil {
		p.metrics.RecordTiming(metrics.OpPDFExtract, time.Since(start))
	}
	return text, err
}
