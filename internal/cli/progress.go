package cli

import (
	"context"
	"fmt"
	"time"

	"charm.land/bubbles/v2/progress"
	tea "charm.land/bubbletea/v2"
	"github.com/charmbracelet/lipgloss"
	"github.com/raphaelgruber/homework-marker/internal/client"
)

const pollInterval = time.Second

// Theme holds the color scheme for the progress display.
type Theme struct {
	Status  lipgloss.Color
	Success lipgloss.Color
	Error   lipgloss.Color
	Hint    lipgloss.Color
	Mark    lipgloss.Color
}

var defaultTheme = Theme{
	Status:  lipgloss.Color("#5FAFD7"), // light blue
	Success: lipgloss.Color("#00D787"), // green
	Error:   lipgloss.Color("#FF005F"), // red
	Hint:    lipgloss.Color("#6C6C6C"), // dim gray
	Mark:    lipgloss.Color("#0066CC"), // report blue
}

func (t Theme) statusStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Status)
}

func (t Theme) completedStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Success).Bold(true)
}

func (t Theme) errorStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Error).Bold(true)
}

func (t Theme) hintStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Hint).Italic(true)
}

func (t Theme) markStyle() lipgloss.Style {
	return lipgloss.NewStyle().Foreground(t.Mark).Bold(true)
}

// tickMsg triggers polling the job status
type tickMsg time.Time

// jobUpdateMsg carries the updated job data
type jobUpdateMsg struct {
	job *client.Job
	err error
}

// progressModel is the bubbletea model for a marking job.
type progressModel struct {
	client   *client.Client
	jobID    string
	job      *client.Job
	progress progress.Model
	theme    Theme
	done     bool
	quitting bool
	err      error
}

func newProgressModel(c *client.Client, jobID string) progressModel {
	return progressModel{
		client:   c,
		jobID:    jobID,
		progress: progress.New(progress.WithDefaultBlend(), progress.WithWidth(40)),
		theme:    defaultTheme,
	}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(m.fetchJob(), m.progress.Init())
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyPressMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			m.quitting = true
			return m, tea.Quit
		}

	case tickMsg:
		return m, m.fetchJob()

	case jobUpdateMsg:
		if msg.err != nil {
			m.err = fmt.Errorf("fetch job status: %w", msg.err)
			m.done = true
			return m, tea.Quit
		}
		if msg.job == nil {
			m.err = fmt.Errorf("%w: %s", client.ErrNotFound, m.jobID)
			m.done = true
			return m, tea.Quit
		}

		m.job = msg.job
		switch m.job.Status {
		case "completed":
			m.done = true
			return m, tea.Quit
		case "failed":
			m.done = true
			if m.job.Error != "" {
				m.err = fmt.Errorf("%s", m.job.Error)
			} else {
				m.err = fmt.Errorf("job failed with unknown error")
			}
			return m, tea.Quit
		}
		return m, tickCmd()

	case progress.FrameMsg:
		var cmd tea.Cmd
		m.progress, cmd = m.progress.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m progressModel) View() tea.View {
	return tea.NewView(m.renderContent())
}

func (m progressModel) renderContent() string {
	if m.done || m.quitting {
		return m.finalView()
	}
	if m.job == nil {
		return "Loading job status...\n"
	}

	status := m.theme.statusStyle().Render(fmt.Sprintf("[%s]", m.job.Stage))
	bar := m.progress.ViewAs(stageFraction(m.job))
	counts := fmt.Sprintf("%d/%d stages", m.job.Progress, m.job.Total)
	hint := m.theme.hintStyle().Render("Press Ctrl+C to continue in background")

	return fmt.Sprintf("%s %s %s\n%s\n", status, bar, counts, hint)
}

func (m progressModel) finalView() string {
	if m.quitting {
		msg := fmt.Sprintf("\nJob %s continues in background.\nUse 'marker jobs %s' to check status.\n",
			m.jobID, m.jobID)
		return m.theme.hintStyle().Render(msg)
	}
	if m.err != nil {
		return m.theme.errorStyle().Render(fmt.Sprintf("\n✗ Marking failed: %s\n", m.err))
	}
	return completedSummary(m.theme, m.job)
}

// completedSummary renders the outcome of a finished job.
func completedSummary(t Theme, job *client.Job) string {
	out := t.completedStyle().Render("✓ Marked") + "\n\n"
	if job == nil {
		return out
	}
	if job.StudentName != "" {
		out += fmt.Sprintf("  Student:    %s\n", job.StudentName)
	}
	if job.AssignmentTitle != "" {
		out += fmt.Sprintf("  Assignment: %s\n", job.AssignmentTitle)
	}
	if job.Mark != "" {
		out += fmt.Sprintf("  Mark:       %s\n", t.markStyle().Render(job.Mark))
	}
	return out
}

func stageFraction(job *client.Job) float64 {
	if job == nil || job.Total <= 0 {
		return 0
	}
	return min(float64(job.Progress)/float64(job.Total), 1)
}

// fetchJob runs as a command so Update never blocks on the network.
func (m progressModel) fetchJob() tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		job, err := m.client.GetJob(ctx, m.jobID)
		return jobUpdateMsg{job: job, err: err}
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// RunJobProgress shows the interactive progress UI until the job finishes.
// It returns the last seen job and whether the user detached with Ctrl+C.
func RunJobProgress(c *client.Client, jobID string) (*client.Job, bool, error) {
	p := tea.NewProgram(newProgressModel(c, jobID))

	finalModel, err := p.Run()
	if err != nil {
		return nil, false, fmt.Errorf("progress UI error: %w", err)
	}

	m, ok := finalModel.(progressModel)
	if !ok {
		return nil, false, nil
	}
	if m.quitting {
		return m.job, true, nil
	}
	return m.job, false, m.err
}
