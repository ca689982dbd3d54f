package core

import (
	"context"
	"errors"

	"github.com/schemaflow/schemaflow/internal/chunker"
	"github.com/schemaflow/schemaflow/internal/llm"
	"github.com/schemaflow/schemaflow/internal/merger"
	"github.com/schemaflow/schemaflow/internal/schema"
)

// Transient reports whether a failed job attempt should be retried.
// Schema and chunking failures are structural, so retrying the same input
// cannot help; model-call failures carry their own classification; merge
// failures and everything else (including database hiccups) get the
// benefit of the doubt.
func Transient(err error) bool {
	var cerr *llm.CallError
	if errors.As(err, &cerr) {
		return cerr.Transient()
	}
	var serr *schema.SchemaError
	if errors.As(err, &serr) {
		return false
	}
	var cherr *chunker.ChunkingError
	if errors.As(err, &cherr) {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return true
}

// ErrorKindOf maps a failure to the kind label stored on the job row.
func ErrorKindOf(err error) string {
	var cerr *llm.CallError
	if errors.As(err, &cerr) {
		return string(cerr.Kind)
	}
	var serr *schema.SchemaError
	if errors.As(err, &serr) {
		return "schema"
	}
	var cherr *chunker.ChunkingError
	if errors.As(err, &cherr) {
		return "chunking"
	}
	var merr *merger.MergeError
	if errors.As(err, &merr) {
		return "merge"
	}
	return "internal"
}
