package core

import (
	"context"
	"errors"
	"testing"

	"github.com/schemaflow/schemaflow/internal/chunker"
	"github.com/schemaflow/schemaflow/internal/llm"
	"github.com/schemaflow/schemaflow/internal/merger"
	"github.com/schemaflow/schemaflow/internal/schema"
)

func TestTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"rate limit", llm.NewCallError(llm.KindRateLimit, "x", nil), true},
		{"timeout", llm.NewCallError(llm.KindTimeout, "x", nil), true},
		{"network", llm.NewCallError(llm.KindNetwork, "x", nil), true},
		{"auth", llm.NewCallError(llm.KindAuth, "x", nil), false},
		{"malformed output", llm.NewCallError(llm.KindMalformedOutput, "x", nil), false},
		{"schema error", &schema.SchemaError{Message: "bad"}, false},
		{"chunking error", &chunker.ChunkingError{Message: "bad"}, false},
		{"merge error", &merger.MergeError{Message: "bad"}, true},
		{"context cancelled", context.Canceled, false},
		{"unknown error", errors.New("db blip"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Transient(tc.err); got != tc.want {
				t.Errorf("Transient() = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestErrorKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{"call error kind", llm.NewCallError(llm.KindRateLimit, "x", nil), "rate_limit"},
		{"wrapped call error", errors.Join(errors.New("outer"), llm.NewCallError(llm.KindAuth, "x", nil)), "auth"},
		{"schema", &schema.SchemaError{Message: "bad"}, "schema"},
		{"chunking", &chunker.ChunkingError{Message: "bad"}, "chunking"},
		{"merge", &merger.MergeError{Message: "bad"}, "merge"},
		{"other", errors.New("boom"), "internal"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ErrorKindOf(tc.err); got != tc.want {
				t.Errorf("ErrorKindOf() = %q, want %q", got, tc.want)
			}
		})
	}
}
