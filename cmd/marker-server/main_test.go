package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/homework-marker/internal/models"
	"github.com/raphaelgruber/homework-marker/internal/service"
)

// hangingProcessor stands in for a model call that never returns.
type hangingProcessor struct {
	started chan struct{}
}

func (p hangingProcessor) Process(ctx context.Context, _ models.JobRecord, advance func(service.JobStage)) (service.Outcome, error) {
	advance(service.StageGenerating)
	close(p.started)
	<-ctx.Done()
	return service.Outcome{}, ctx.Err()
}

func TestDrainJobsIsBounded(t *testing.T) {
	ctx := context.Background()
	proc := hangingProcessor{started: make(chan struct{})}
	manager := service.NewJobManager(proc, service.ManagerOptions{Workers: 1})
	manager.Start(ctx)

	job, err := manager.Submit(ctx, service.JobRequest{StudentName: "Jane Doe"})
	require.NoError(t, err)

	select {
	case <-proc.started:
	case <-time.After(5 * time.Second):
		t.Fatal("job never started")
	}

	done := make(chan struct{})
	go func() {
		drainJobs(manager, 50*time.Millisecond)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("drainJobs did not return after its timeout")
	}

	rec, err := manager.Get(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, string(service.JobStatusFailed), rec.Status)
	assert.Contains(t, rec.Error, "context canceled")
}
