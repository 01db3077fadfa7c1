// Package client provides a REST client for the marking server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/raphaelgruber/homework-marker/internal/metrics"
)

// ErrNotFound is returned when the server does not know the job.
var ErrNotFound = errors.New("job not found")

// APIError is a non-success response from the server.
type APIError struct {
	StatusCode int
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("server error: %d %s", e.StatusCode, http.StatusText(e.StatusCode))
	}
	return fmt.Sprintf("server error: %d %s", e.StatusCode, e.Detail)
}

// Client talks to the marking server over HTTP.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for baseURL (e.g. http://localhost:8000).
// A zero timeout means no timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8000"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// =============================================================================
// TYPES (matching the server's JSON)
// =============================================================================

// Job is a marking job as reported by the server.
type Job struct {
	ID              string     `json:"job_id"`
	Status          string     `json:"status"`
	Stage           string     `json:"stage"`
	Progress        int        `json:"progress"`
	Total           int        `json:"total"`
	StudentName     string     `json:"student_name,omitempty"`
	AssignmentTitle string     `json:"assignment_title,omitempty"`
	Mark            string     `json:"mark,omitempty"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
	ResultEndpoint  string     `json:"result_endpoint"`
}

// Terminal reports whether the job has finished.
func (j *Job) Terminal() bool {
	return j.Status == "completed" || j.Status == "failed"
}

// Submission names the files and details of one upload.
type Submission struct {
	CriteriaPath    string
	HomeworkPath    string
	StudentName     string
	AssignmentTitle string
}

// UploadResponse is returned by a successful upload.
type UploadResponse struct {
	JobID          string `json:"job_id"`
	Status         string `json:"status"`
	Message        string `json:"message"`
	ResultEndpoint string `json:"result_endpoint"`
}

// ResultStatus describes a result that is not (yet) a report.
type ResultStatus struct {
	JobID   string `json:"job_id"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
	Stage   string `json:"stage,omitempty"`
}

// Ready reports whether the report was downloaded.
func (r ResultStatus) Ready() bool {
	return r.Status == "completed"
}

// ServerStats is the /api/stats payload.
type ServerStats struct {
	Workers int               `json:"workers"`
	Queued  int               `json:"queued"`
	Metrics *metrics.Snapshot `json:"metrics,omitempty"`
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Upload sends the marking criteria and homework PDFs and returns the new job id.
func (c *Client) Upload(ctx context.Context, sub Submission) (*UploadResponse, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	if err := addFile(mw, "marking_criteria", sub.CriteriaPath); err != nil {
		return nil, err
	}
	if err := addFile(mw, "homework", sub.HomeworkPath); err != nil {
		return nil, err
	}
	if sub.StudentName != "" {
		if err := mw.WriteField("student_name", sub.StudentName); err != nil {
			return nil, fmt.Errorf("write form: %w", err)
		}
	}
	if sub.AssignmentTitle != "" {
		if err := mw.WriteField("assignment_title", sub.AssignmentTitle); err != nil {
			return nil, fmt.Errorf("write form: %w", err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("write form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/upload/", &body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out UploadResponse
	if err := c.do(req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetJob retrieves a job by ID. Returns nil if the server does not know it.
func (c *Client) GetJob(ctx context.Context, id string) (*Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs/"+url.PathEscape(id), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var job Job
	if err := c.do(req, &job); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// ListJobs returns all jobs, most recent first.
func (c *Client) ListJobs(ctx context.Context) ([]Job, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/jobs", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var jobs []Job
	if err := c.do(req, &jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

// FetchResult downloads the report into w when it is ready. Otherwise the
// returned status says why not and nothing is written.
func (c *Client) FetchResult(ctx context.Context, id string, w io.Writer) (ResultStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/results/"+url.PathEscape(id), nil)
	if err != nil {
		return ResultStatus{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ResultStatus{}, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	switch {
	case resp.StatusCode == http.StatusOK && mediaType == "application/pdf":
		if _, err := io.Copy(w, resp.Body); err != nil {
			return ResultStatus{}, fmt.Errorf("download report: %w", err)
		}
		return ResultStatus{JobID: id, Status: "completed"}, nil

	case resp.StatusCode == http.StatusNotFound:
		return ResultStatus{JobID: id, Status: "not_found"}, ErrNotFound

	case resp.StatusCode == http.StatusOK:
		var status ResultStatus
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return ResultStatus{}, fmt.Errorf("unmarshal response: %w", err)
		}
		return status, nil

	default:
		return ResultStatus{}, readAPIError(resp)
	}
}

// DownloadResult saves the report to path, writing a temporary file first.
func (c *Client) DownloadResult(ctx context.Context, id, path string) (ResultStatus, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*.pdf")
	if err != nil {
		return ResultStatus{}, fmt.Errorf("create %s: %w", path, err)
	}
	defer os.Remove(tmp.Name())

	status, err := c.FetchResult(ctx, id, tmp)
	if cerr := tmp.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("close %s: %w", tmp.Name(), cerr)
	}
	if err != nil || !status.Ready() {
		return status, err
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return ResultStatus{}, fmt.Errorf("save report: %w", err)
	}
	return status, nil
}

// WaitForJob polls the job until it finishes or ctx ends. onUpdate, if set,
// sees every polled state.
func (c *Client) WaitForJob(ctx context.Context, id string, interval time.Duration, onUpdate func(*Job)) (*Job, error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		job, err := c.GetJob(ctx, id)
		if err != nil {
			return nil, err
		}
		if job == nil {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		if onUpdate != nil {
			onUpdate(job)
		}
		if job.Terminal() {
			return job, nil
		}

		select {
		case <-ctx.Done():
			return job, ctx.Err()
		case <-ticker.C:
		}
	}
}

// Stats returns the server's worker pool state and runtime statistics.
func (c *Client) Stats(ctx context.Context) (*ServerStats, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/stats", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	var stats ServerStats
	if err := c.do(req, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// Health checks that the server is reachable.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	return c.do(req, nil)
}

func (c *Client) do(req *http.Request, out any) error {
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return readAPIError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var payload struct {
		Detail string `json:"detail"`
	}
	detail := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &payload) == nil && payload.Detail != "" {
		detail = payload.Detail
	}
	return &APIError{StatusCode: resp.StatusCode, Detail: detail}
}

func addFile(mw *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	part, err := mw.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return fmt.Errorf("write form: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	return nil
}
