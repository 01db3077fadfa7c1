// Package report lays out marking feedback and renders it as a PDF document.
package report

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"github.com/raphaelgruber/homework-marker/internal/metrics"
)

// ErrRender indicates the report could not be laid out or written.
var ErrRender = errors.New("report rendering failed")

const (
	defaultStudent    = "Unknown Student"
	defaultAssignment = "Untitled Assignment"
	feedbackHeading   = "Detailed Feedback:"

	pageMargin = 72.0
	fontFamily = "Helvetica"
)

// Report is the content of one feedback document.
type Report struct {
	StudentName     string
	AssignmentTitle string
	Mark            string
	Feedback        string
}

// BlockKind selects the visual style of a block.
type BlockKind int

const (
	BlockTitle BlockKind = iota
	BlockHeading
	BlockMark
	BlockParagraph
)

func (k BlockKind) String() string {
	switch k {
	case BlockTitle:
		return "title"
	case BlockHeading:
		return "heading"
	case BlockMark:
		return "mark"
	case BlockParagraph:
		return "paragraph"
	default:
		return fmt.Sprintf("BlockKind(%d)", int(k))
	}
}

// Block is one laid-out element of the report.
type Block struct {
	Kind BlockKind
	Text string
}

type blockStyle struct {
	fontStyle  string
	size       float64
	align      string
	color      [3]int
	spaceAfter float64
}

var styles = map[BlockKind]blockStyle{
	BlockTitle:     {fontStyle: "B", size: 18, align: "C", spaceAfter: 12},
	BlockHeading:   {fontStyle: "B", size: 14, align: "L", spaceAfter: 6},
	BlockMark:      {fontStyle: "B", size: 14, align: "L", color: [3]int{0, 0, 255}, spaceAfter: 12},
	BlockParagraph: {fontStyle: "", size: 11, align: "L", spaceAfter: 6},
}

// Layout returns the report blocks in reading order: title, student, mark,
// feedback heading, then one paragraph per non-empty feedback line.
func Layout(r Report) []Block {
	student := strings.TrimSpace(r.StudentName)
	if student == "" {
		student = defaultStudent
	}
	assignment := strings.TrimSpace(r.AssignmentTitle)
	if assignment == "" {
		assignment = defaultAssignment
	}

	blocks := []Block{
		{Kind: BlockTitle, Text: "Feedback: " + assignment},
		{Kind: BlockHeading, Text: "Student: " + student},
		{Kind: BlockMark, Text: "Mark: " + r.Mark},
		{Kind: BlockHeading, Text: feedbackHeading},
	}
	for line := range strings.Lines(r.Feedback) {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		blocks = append(blocks, Block{Kind: BlockParagraph, Text: line})
	}
	return blocks
}

// Render writes the report to path, replacing any existing file. The document
// is written to a temporary file in the same folder and renamed into place.
func Render(path string, r Report) error {
	doc := fpdf.New("P", "pt", "Letter", "")
	doc.SetMargins(pageMargin, pageMargin, pageMargin)
	doc.SetAutoPageBreak(true, pageMargin)
	blocks := Layout(r)
	doc.SetTitle(blocks[0].Text, true)
	doc.SetCreator("homework-marker", true)
	doc.AddPage()

	tr := doc.UnicodeTranslatorFromDescriptor("")
	for _, b := range blocks {
		st := styles[b.Kind]
		doc.SetFont(fontFamily, st.fontStyle, st.size)
		doc.SetTextColor(st.color[0], st.color[1], st.color[2])
		doc.MultiCell(0, st.size*1.3, tr(b.Text), "", st.align, false)
		doc.Ln(st.spaceAfter)
	}
	if err := doc.Error(); err != nil {
		return fmt.Errorf("%w: layout: %w", ErrRender, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".feedback-*.pdf")
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRender, err)
	}
	defer os.Remove(tmp.Name())

	if err := doc.Output(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("%w: write: %w", ErrRender, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close: %w", ErrRender, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: %w", ErrRender, err)
	}
	return nil
}

// Renderer renders reports and records how long it takes.
type Renderer struct {
	metrics *metrics.Collector
}

// NewRenderer creates a renderer. collector may be nil.
func NewRenderer(collector *metrics.Collector) *Renderer {
	return &Renderer{metrics: collector}
}

// Render writes the report to path.
func (r *Renderer) Render(path string, rep Report) error {
	start := time.Now()
	err := Render(path, rep)
	if r.metrics != nil {
		r.metrics.RecordTiming(metrics.OpReportRender, time.Since(start))
	}
	return err
}
