// Package metrics provides runtime statistics collection: an in-memory
// snapshot for /api/stats and Prometheus series for /metrics.
package metrics

import (
	"maps"
	"math"
	"sync"
	"time"
)

// OperationMetrics aggregates every sample of one operation.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration

	// Token metrics (only for LLM operations)
	TotalInputTokens  int64
	TotalOutputTokens int64
	MinInputTokens    int64
	MaxInputTokens    int64
	MinOutputTokens   int64
	MaxOutputTokens   int64
}

// OperationSnapshot is the JSON view of OperationMetrics.
type OperationSnapshot struct {
	Count       int64   `json:"count"`
	TotalTimeMs int64   `json:"total_time_ms"`
	AvgTimeMs   float64 `json:"avg_time_ms"`
	MinTimeMs   int64   `json:"min_time_ms"`
	MaxTimeMs   int64   `json:"max_time_ms"`

	// Token stats (nil if not applicable)
	TotalInputTokens  *int64   `json:"total_input_tokens,omitempty"`
	TotalOutputTokens *int64   `json:"total_output_tokens,omitempty"`
	AvgInputTokens    *float64 `json:"avg_input_tokens,omitempty"`
	AvgOutputTokens   *float64 `json:"avg_output_tokens,omitempty"`
	MinInputTokens    *int64   `json:"min_input_tokens,omitempty"`
	MaxInputTokens    *int64   `json:"max_input_tokens,omitempty"`
	MinOutputTokens   *int64   `json:"min_output_tokens,omitempty"`
	MaxOutputTokens   *int64   `json:"max_output_tokens,omitempty"`
}

// Snapshot represents the full server statistics at a point in time.
type Snapshot struct {
	UptimeSeconds float64            `json:"uptime_seconds"`
	Embedding     *OperationSnapshot `json:"embedding,omitempty"`
	LLMGenerate   *OperationSnapshot `json:"llm_generate,omitempty"`
	PDFExtract    *OperationSnapshot `json:"pdf_extract,omitempty"`
	Retrieval     *OperationSnapshot `json:"retrieval,omitempty"`
	ReportRender  *OperationSnapshot `json:"report_render,omitempty"`
	DBQuery       *OperationSnapshot `json:"db_query,omitempty"`
	DBSearch      *OperationSnapshot `json:"db_search,omitempty"`
	Jobs          map[string]int64   `json:"jobs"`
}

// Operation names for the collector.
const (
	OpEmbedding    = "embedding"
	OpLLMGenerate  = "llm_generate"
	OpPDFExtract   = "pdf_extract"
	OpRetrieval    = "retrieval"
	OpReportRender = "report_render"
	OpDBQuery      = "db_query"
	OpDBSearch     = "db_search"
)

// Collector aggregates runtime statistics.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
	jobs      map[string]int64
	prom      *promMetrics
}

// NewCollector creates a new metrics collector with its own Prometheus registry.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
		jobs:      make(map[string]int64),
		prom:      newPromMetrics(),
	}
}

// Caller must hold the write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	if m, ok := c.ops[op]; ok {
		return m
	}
	m := &OperationMetrics{
		MinTime:         time.Duration(math.MaxInt64),
		MinInputTokens:  math.MaxInt64,
		MinOutputTokens: math.MaxInt64,
	}
	c.ops[op] = m
	return m
}

func (m *OperationMetrics) addTiming(duration time.Duration) {
	m.Count++
	m.TotalTime += duration
	m.MinTime = min(m.MinTime, duration)
	m.MaxTime = max(m.MaxTime, duration)
}

// RecordTiming records timing for an operation.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	c.getOrCreate(op).addTiming(duration)
	c.mu.Unlock()

	c.prom.observe(op, duration)
}

// RecordLLMUsage records timing and token usage for an LLM operation.
func (c *Collector) RecordLLMUsage(op string, duration time.Duration, inputTokens, outputTokens int64) {
	c.mu.Lock()
	m := c.getOrCreate(op)
	m.addTiming(duration)

	m.TotalInputTokens += inputTokens
	m.TotalOutputTokens += outputTokens
	m.MinInputTokens = min(m.MinInputTokens, inputTokens)
	m.MaxInputTokens = max(m.MaxInputTokens, inputTokens)
	m.MinOutputTokens = min(m.MinOutputTokens, outputTokens)
	m.MaxOutputTokens = max(m.MaxOutputTokens, outputTokens)
	c.mu.Unlock()

	c.prom.observe(op, duration)
	c.prom.tokens(op, inputTokens, outputTokens)
}

// RecordJob counts a job reaching the given status.
func (c *Collector) RecordJob(status string) {
	c.mu.Lock()
	c.jobs[status]++
	c.mu.Unlock()

	c.prom.job(status)
}

func snapshotOp(m *OperationMetrics, includeTokens bool) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	n := float64(m.Count)
	snap := &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / n,
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
	if !includeTokens || (m.TotalInputTokens == 0 && m.TotalOutputTokens == 0) {
		return snap
	}

	snap.TotalInputTokens = ptr(m.TotalInputTokens)
	snap.TotalOutputTokens = ptr(m.TotalOutputTokens)
	snap.AvgInputTokens = ptr(float64(m.TotalInputTokens) / n)
	snap.AvgOutputTokens = ptr(float64(m.TotalOutputTokens) / n)
	snap.MinInputTokens = ptr(unsentinel(m.MinInputTokens))
	snap.MaxInputTokens = ptr(m.MaxInputTokens)
	snap.MinOutputTokens = ptr(unsentinel(m.MinOutputTokens))
	snap.MaxOutputTokens = ptr(m.MaxOutputTokens)
	return snap
}

func ptr[T any](v T) *T { return &v }

// unsentinel maps the MaxInt64 "no sample yet" minimum to zero.
func unsentinel(v int64) int64 {
	if v == math.MaxInt64 {
		return 0
	}
	return v
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Embedding:     snapshotOp(c.ops[OpEmbedding], false),
		LLMGenerate:   snapshotOp(c.ops[OpLLMGenerate], true),
		PDFExtract:    snapshotOp(c.ops[OpPDFExtract], false),
		Retrieval:     snapshotOp(c.ops[OpRetrieval], false),
		ReportRender:  snapshotOp(c.ops[OpReportRender], false),
		DBQuery:       snapshotOp(c.ops[OpDBQuery], false),
		DBSearch:      snapshotOp(c.ops[OpDBSearch], false),
		Jobs:          maps.Clone(c.jobs),
	}
}
