package db

import (
	"context"
	"fmt"
	"time"

	"github.com/raphaelgruber/homework-marker/internal/metrics"
	"github.com/raphaelgruber/homework-marker/internal/models"
	"github.com/surrealdb/surrealdb.go"
	surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"
)

// passageRecordID scopes a passage key to its collection.
func passageRecordID(collection, key string) string {
	return collection + "/" + key
}

// UpsertPassage stores or replaces a passage.
func (c *Client) UpsertPassage(ctx context.Context, collection, key string, embedding []float32, metadata map[string]any) error {
	defer c.observe(metrics.OpDBQuery, time.Now())

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("passage", $rid) SET
			key = $key,
			collection = $collection,
			embedding = $embedding,
			metadata = $metadata,
			updated = time::now()
	`, map[string]any{
		"rid":        passageRecordID(collection, key),
		"key":        key,
		"collection": collection,
		"embedding":  embedding,
		"metadata":   metadata,
	})
	if err != nil {
		return fmt.Errorf("upsert passage: %w", wrapQueryError(err))
	}
	return nil
}

// SearchPassages returns the k nearest passages in collection by cosine similarity.
func (c *Client) SearchPassages(ctx context.Context, collection string, embedding []float32, k int) ([]models.Passage, error) {
	defer c.observe(metrics.OpDBSearch, time.Now())

	// HNSW with ef=40, as for every vector query here.
	sql := fmt.Sprintf(`
		SELECT id, key, collection, metadata,
			vector::similarity::cosine(embedding, $emb) AS score
		FROM passage
		WHERE collection = $collection AND embedding <|%d,40|> $emb
		ORDER BY score DESC
	`, k)

	results, err := surrealdb.Query[[]models.Passage](ctx, c.db, sql, map[string]any{
		"emb":        embedding,
		"collection": collection,
	})
	if err != nil {
		return nil, fmt.Errorf("search passages: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.Passage{}, nil
	}
	passages := (*results)[0].Result
	if len(passages) > k {
		passages = passages[:k]
	}
	return passages, nil
}

// jobRow is the stored shape of a marking job.
type jobRow struct {
	ID              surrealmodels.RecordID `json:"id"`
	Status          string                 `json:"status"`
	Stage           string                 `json:"stage"`
	Progress        int                    `json:"progress"`
	Total           int                    `json:"total"`
	StudentName     string                 `json:"student_name"`
	AssignmentTitle string                 `json:"assignment_title"`
	CriteriaPath    string                 `json:"criteria_path"`
	HomeworkPath    string                 `json:"homework_path"`
	ResultPath      *string                `json:"result_path"`
	Mark            *string                `json:"mark"`
	Error           *string                `json:"error"`
	StartedAt       time.Time              `json:"started_at"`
	CompletedAt     *time.Time             `json:"completed_at"`
}

func (r jobRow) record() (models.JobRecord, error) {
	id, err := models.RecordIDString(r.ID)
	if err != nil {
		return models.JobRecord{}, err
	}
	return models.JobRecord{
		ID:              id,
		Status:          r.Status,
		Stage:           r.Stage,
		Progress:        r.Progress,
		Total:           r.Total,
		StudentName:     r.StudentName,
		AssignmentTitle: r.AssignmentTitle,
		CriteriaPath:    r.CriteriaPath,
		HomeworkPath:    r.HomeworkPath,
		ResultPath:      deref(r.ResultPath),
		Mark:            deref(r.Mark),
		Error:           deref(r.Error),
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
	}, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// SaveJob upserts the job record.
func (c *Client) SaveJob(ctx context.Context, job models.JobRecord) error {
	defer c.observe(metrics.OpDBQuery, time.Now())

	_, err := surrealdb.Query[any](ctx, c.db, `
		UPSERT type::record("marking_job", $id) SET
			status = $status,
			stage = $stage,
			progress = $progress,
			total = $total,
			student_name = $student_name,
			assignment_title = $assignment_title,
			criteria_path = $criteria_path,
			homework_path = $homework_path,
			result_path = $result_path,
			mark = $mark,
			error = $error,
			started_at = $started_at,
			completed_at = $completed_at
	`, map[string]any{
		"id":               job.ID,
		"status":           job.Status,
		"stage":            job.Stage,
		"progress":         job.Progress,
		"total":            job.Total,
		"student_name":     job.StudentName,
		"assignment_title": job.AssignmentTitle,
		"criteria_path":    job.CriteriaPath,
		"homework_path":    job.HomeworkPath,
		"result_path":      optional(job.ResultPath),
		"mark":             optional(job.Mark),
		"error":            optional(job.Error),
		"started_at":       job.StartedAt,
		"completed_at":     job.CompletedAt,
	})
	if err != nil {
		return fmt.Errorf("save job: %w", wrapQueryError(err))
	}
	return nil
}

// GetJob loads a job record.
// Returns nil if not found.
func (c *Client) GetJob(ctx context.Context, id string) (*models.JobRecord, error) {
	defer c.observe(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		SELECT * FROM type::record("marking_job", $id)
	`, map[string]any{"id": id})
	if err != nil {
		return nil, fmt.Errorf("get job: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 || len((*results)[0].Result) == 0 {
		return nil, nil
	}

	rec, err := (*results)[0].Result[0].record()
	if err != nil {
		return nil, fmt.Errorf("get job: %w", err)
	}
	return &rec, nil
}

// ListJobs returns all job records, most recent first.
func (c *Client) ListJobs(ctx context.Context) ([]models.JobRecord, error) {
	defer c.observe(metrics.OpDBQuery, time.Now())

	results, err := surrealdb.Query[[]jobRow](ctx, c.db, `
		SELECT * FROM marking_job ORDER BY started_at DESC
	`, nil)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", wrapQueryError(err))
	}

	if results == nil || len(*results) == 0 {
		return []models.JobRecord{}, nil
	}

	records := make([]models.JobRecord, 0, len((*results)[0].Result))
	for _, row := range (*results)[0].Result {
		rec, err := row.record()
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		records = append(records, rec)
	}
	return records, nil
}
