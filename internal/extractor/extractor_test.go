package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/schemaflow/schemaflow/internal/llm"
)

type fakeCaller struct {
	responses []json.RawMessage
	errs      []error
	calls     []llm.CallRequest
}

func (f *fakeCaller) Call(_ context.Context, req llm.CallRequest) (json.RawMessage, error) {
	f.calls = append(f.calls, req)
	i := len(f.calls) - 1
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.responses) {
		return f.responses[i], nil
	}
	return nil, errors.New("fake caller exhausted")
}

func testSchema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"title": map[string]any{"type": "string"},
			"total": map[string]any{"type": "number"},
		},
		"required": []string{"title"},
	}
}

func TestExtractValidFirstTry(t *testing.T) {
	caller := &fakeCaller{responses: []json.RawMessage{
		json.RawMessage(`{"title": "Invoice 1", "total": 12.5}`),
	}}
	ext := New(caller, nil)

	got, err := ext.Extract(context.Background(), Request{
		Schema:      testSchema(),
		SchemaName:  "Invoice",
		ChunkText:   "some text",
		TotalChunks: 1,
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	var obj map[string]any
	if err := json.Unmarshal(got, &obj); err != nil {
		t.Fatal(err)
	}
	if obj["title"] != "Invoice 1" {
		t.Errorf("title = %v", obj["title"])
	}
	if len(caller.calls) != 1 {
		t.Errorf("calls = %d, want 1", len(caller.calls))
	}
}

func TestExtractRepairSucceeds(t *testing.T) {
	caller := &fakeCaller{responses: []json.RawMessage{
		json.RawMessage(`{"total": 12.5}`),                    // missing required title
		json.RawMessage(`{"title": "Fixed", "total": 12.5}`), // repaired
	}}
	ext := New(caller, nil)

	got, err := ext.Extract(context.Background(), Request{
		Schema:      testSchema(),
		ChunkText:   "text",
		TotalChunks: 1,
	})
	if err != nil {
		t.Fatalf("Extract() error = %v", err)
	}
	var obj map[string]any
	_ = json.Unmarshal(got, &obj)
	if obj["title"] != "Fixed" {
		t.Errorf("title = %v, want Fixed", obj["title"])
	}
	if len(caller.calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(caller.calls))
	}
	// The repair prompt carries the invalid attempt and the validation error.
	repair := caller.calls[1].UserPrompt
	if !strings.Contains(repair, "PREVIOUS ATTEMPT") || !strings.Contains(repair, `"total"`) {
		t.Errorf("repair prompt missing invalid payload: %q", repair)
	}
}

func TestExtractRepairFailsPermanently(t *testing.T) {
	caller := &fakeCaller{responses: []json.RawMessage{
		json.RawMessage(`{"total": 1}`),
		json.RawMessage(`{"total": 2}`), // still missing title
	}}
	ext := New(caller, nil)

	_, err := ext.Extract(context.Background(), Request{
		Schema:      testSchema(),
		ChunkText:   "text",
		TotalChunks: 1,
	})
	var cerr *llm.CallError
	if !errors.As(err, &cerr) {
		t.Fatalf("error type = %T, want *llm.CallError", err)
	}
	if cerr.Kind != llm.KindMalformedOutput {
		t.Errorf("kind = %s, want malformed_output", cerr.Kind)
	}
	if cerr.Transient() {
		t.Error("malformed output after repair must be permanent")
	}
}

func TestExtractCallErrorPassesThrough(t *testing.T) {
	want := llm.NewCallError(llm.KindRateLimit, "throttled", nil)
	caller := &fakeCaller{errs: []error{want}}
	ext := New(caller, nil)

	_, err := ext.Extract(context.Background(), Request{
		Schema:      testSchema(),
		ChunkText:   "text",
		TotalChunks: 1,
	})
	var cerr *llm.CallError
	if !errors.As(err, &cerr) || cerr.Kind != llm.KindRateLimit {
		t.Fatalf("error = %v, want rate_limit CallError", err)
	}
}

func TestExtractContinuationPrompt(t *testing.T) {
	caller := &fakeCaller{responses: []json.RawMessage{
		json.RawMessage(`{"title": "Doc"}`),
	}}
	ext := New(caller, nil)

	acc := []byte(`{"title": "Doc", "total": 5}`)
	_, err := ext.Extract(context.Background(), Request{
		Schema:      testSchema(),
		ChunkText:   "chunk two text",
		ChunkIndex:  1,
		TotalChunks: 3,
		Accumulated: acc,
	})
	if err != nil {
		t.Fatal(err)
	}
	call := caller.calls[0]
	if !strings.Contains(call.UserPrompt, "PREVIOUS RESULT") {
		t.Error("continuation prompt missing previous result block")
	}
	if !strings.Contains(call.UserPrompt, `"total": 5`) {
		t.Error("continuation prompt missing accumulated data")
	}
	if !strings.Contains(call.SystemPrompt, "chunk 2 of 3") {
		t.Errorf("system prompt missing chunk position: %q", call.SystemPrompt)
	}
}
