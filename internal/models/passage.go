package models

import surrealmodels "github.com/surrealdb/surrealdb.go/pkg/models"

// PassageType tags rubric passages stored in the similarity index.
const PassageType = "marking_criteria"

// MaxPassageText caps the text copy kept in passage metadata.
const MaxPassageText = 1000

// Passage is an indexed text passage with its embedding.
// Key is the caller's id; the record id also encodes the collection.
type Passage struct {
	ID         surrealmodels.RecordID `json:"id"`
	Key        string                 `json:"key"`
	Collection string                 `json:"collection"`
	Embedding  []float32              `json:"embedding,omitempty"`
	Metadata   map[string]any         `json:"metadata"`
	Score      float64                `json:"score,omitempty"`
}
