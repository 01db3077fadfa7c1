package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/surrealdb/surrealdb.go"
)

// ErrTransactionConflict indicates concurrent writers touched the same record.
// Use errors.Is() to check for it in calling code.
var ErrTransactionConflict = errors.New("transaction conflict")

// wrapQueryError maps known SurrealDB query errors onto sentinel errors.
func wrapQueryError(err error) error {
	if err == nil {
		return nil
	}

	var queryErr *surrealdb.QueryError
	if errors.As(err, &queryErr) && strings.Contains(queryErr.Message, "Transaction conflict") {
		return fmt.Errorf("%w: %s", ErrTransactionConflict, queryErr.Message)
	}
	return err
}
