package cli

import (
	"errors"
	"testing"

	"github.com/raphaelgruber/homework-marker/internal/client"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStageFraction(t *testing.T) {
	tests := []struct {
		name string
		job  *client.Job
		want float64
	}{
		{"nil job", nil, 0},
		{"no total", &client.Job{Progress: 2}, 0},
		{"halfway", &client.Job{Progress: 2, Total: 4}, 0.5},
		{"done", &client.Job{Progress: 4, Total: 4}, 1},
		{"clamped", &client.Job{Progress: 5, Total: 4}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, stageFraction(tt.job), 1e-9)
		})
	}
}

func TestProgressModelUpdate(t *testing.T) {
	t.Run("running job keeps polling", func(t *testing.T) {
		m := newProgressModel(nil, "job-1")
		next, cmd := m.Update(jobUpdateMsg{job: &client.Job{ID: "job-1", Status: "running", Stage: "generating", Progress: 2, Total: 4}})

		pm := next.(progressModel)
		assert.False(t, pm.done)
		assert.NotNil(t, cmd)
		assert.Contains(t, pm.renderContent(), "[generating]")
		assert.Contains(t, pm.renderContent(), "2/4 stages")
	})

	t.Run("completed job shows the mark", func(t *testing.T) {
		m := newProgressModel(nil, "job-1")
		next, _ := m.Update(jobUpdateMsg{job: &client.Job{ID: "job-1", Status: "completed", Mark: "85.0", StudentName: "Jane Doe"}})

		pm := next.(progressModel)
		assert.True(t, pm.done)
		require.NoError(t, pm.err)
		assert.Contains(t, pm.renderContent(), "85.0")
		assert.Contains(t, pm.renderContent(), "Jane Doe")
	})

	t.Run("failed job carries its error", func(t *testing.T) {
		m := newProgressModel(nil, "job-1")
		next, _ := m.Update(jobUpdateMsg{job: &client.Job{ID: "job-1", Status: "failed", Error: "extract homework: pdf extraction failed"}})

		pm := next.(progressModel)
		assert.True(t, pm.done)
		require.Error(t, pm.err)
		assert.Contains(t, pm.err.Error(), "pdf extraction failed")
	})

	t.Run("unknown job", func(t *testing.T) {
		m := newProgressModel(nil, "job-1")
		next, _ := m.Update(jobUpdateMsg{})

		pm := next.(progressModel)
		assert.ErrorIs(t, pm.err, client.ErrNotFound)
	})

	t.Run("poll error", func(t *testing.T) {
		m := newProgressModel(nil, "job-1")
		next, _ := m.Update(jobUpdateMsg{err: errors.New("connection refused")})

		pm := next.(progressModel)
		assert.True(t, pm.done)
		assert.Contains(t, pm.err.Error(), "connection refused")
	})
}
