// Package models defines the records shared by the marking pipeline and its stores.
package models

import "time"

// JobRecord is the persisted form of a marking job.
type JobRecord struct {
	ID              string     `json:"job_id"`
	Status          string     `json:"status"`
	Stage           string     `json:"stage"`
	Progress        int        `json:"progress"`
	Total           int        `json:"total"`
	StudentName     string     `json:"student_name"`
	AssignmentTitle string     `json:"assignment_title"`
	CriteriaPath    string     `json:"criteria_path"`
	HomeworkPath    string     `json:"homework_path"`
	ResultPath      string     `json:"result_path,omitempty"`
	Mark            string     `json:"mark,omitempty"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// Terminal reports whether the job has finished, successfully or not.
func (r JobRecord) Terminal() bool {
	return r.Status == "completed" || r.Status == "failed"
}
