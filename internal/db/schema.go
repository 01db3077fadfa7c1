package db

import "fmt"

const (
	tablePassage = "passage"
	tableJob     = "marking_job"
)

// SchemaSQL returns the schema definition with an HNSW index of the given dimension.
func SchemaSQL(dimension int) string {
	return fmt.Sprintf(`
    -- ==========================================================================
    -- PASSAGE TABLE (similarity index)
    -- ==========================================================================
    DEFINE TABLE IF NOT EXISTS passage SCHEMAFULL;
    DEFINE FIELD IF NOT EXISTS key ON passage TYPE string;
    DEFINE FIELD IF NOT EXISTS collection ON passage TYPE string;
    DEFINE FIELD IF NOT EXISTS embedding ON passage TYPE array<float>;
    DEFINE FIELD IF NOT EXISTS metadata ON passage TYPE object FLEXIBLE;
    DEFINE FIELD IF NOT EXISTS updated ON passage TYPE datetime DEFAULT time::now();

    DEFINE INDEX IF NOT EXISTS passage_collection ON passage FIELDS collection;
    DEFINE INDEX IF NOT EXISTS passage_embedding ON passage FIELDS embedding HNSW DIMENSION %d DIST COSINE TYPE F32;

    -- ==========================================================================
    -- MARKING JOB TABLE
    -- ==========================================================================
    -- Optional fields (mark, error, completed_at) are written as NULL.
    DEFINE TABLE IF NOT EXISTS marking_job SCHEMALESS;
    DEFINE INDEX IF NOT EXISTS marking_job_status ON marking_job FIELDS status;
    DEFINE INDEX IF NOT EXISTS marking_job_started ON marking_job FIELDS started_at;
`, dimension)
}
