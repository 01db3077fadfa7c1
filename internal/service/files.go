package service

import (
	"fmt"
	"path/filepath"
)

// CriteriaPath is where the uploaded marking criteria for a job are stored.
func CriteriaPath(dir, jobID string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_criteria.pdf", jobID))
}

// HomeworkPath is where the uploaded submission for a job is stored.
func HomeworkPath(dir, jobID string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_homework.pdf", jobID))
}

// ResultPath is where the feedback report for a job is written.
func ResultPath(dir, jobID string) string {
	return filepath.Join(dir, fmt.Sprintf("%s_feedback.pdf", jobID))
}
