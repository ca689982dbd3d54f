package openai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/schemaflow/schemaflow/internal/llm"
)

func chatResponse(content string) string {
	b, _ := json.Marshal(map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"content": content}},
		},
	})
	return string(b)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, MaxAttempts: 3}, nil)
	return client, srv
}

func callReq() llm.CallRequest {
	return llm.CallRequest{
		Schema:       map[string]any{"type": "object"},
		SystemPrompt: "extract",
		UserPrompt:   "document text",
		Model:        llm.ModelConfig{Provider: "openai", Model: "gpt-4o"},
	}
}

func TestCallSuccess(t *testing.T) {
	var gotAuth string
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Errorf("request body not JSON: %v", err)
		}
		if body["model"] != "gpt-4o" {
			t.Errorf("model = %v", body["model"])
		}
		w.Write([]byte(chatResponse(`{"title": "Doc"}`)))
	})

	out, err := client.Call(context.Background(), callReq())
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if string(out) != `{"title": "Doc"}` {
		t.Errorf("payload = %s", out)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
}

func TestCallStripsFences(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(chatResponse("```json\n{\"a\": 1}\n```")))
	})
	out, err := client.Call(context.Background(), callReq())
	if err != nil {
		t.Fatal(err)
	}
	if string(out) != `{"a": 1}` {
		t.Errorf("payload = %s", out)
	}
}

func TestCallRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(chatResponse(`{}`)))
	})

	if _, err := client.Call(context.Background(), callReq()); err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if hits.Load() != 3 {
		t.Errorf("hits = %d, want 3", hits.Load())
	}
}

func TestCallAuthFailureNotRetried(t *testing.T) {
	var hits atomic.Int32
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := client.Call(context.Background(), callReq())
	var cerr *llm.CallError
	if !errors.As(err, &cerr) || cerr.Kind != llm.KindAuth {
		t.Fatalf("error = %v, want auth CallError", err)
	}
	if hits.Load() != 1 {
		t.Errorf("hits = %d, want 1 (no retry on auth)", hits.Load())
	}
}

func TestClassifyStatus(t *testing.T) {
	cases := []struct {
		status int
		want   llm.ErrorKind
	}{
		{http.StatusUnauthorized, llm.KindAuth},
		{http.StatusForbidden, llm.KindAuth},
		{http.StatusTooManyRequests, llm.KindRateLimit},
		{http.StatusInternalServerError, llm.KindNetwork},
		{http.StatusServiceUnavailable, llm.KindNetwork},
		{http.StatusBadRequest, llm.KindMalformedOutput},
	}
	for _, tc := range cases {
		err := classifyStatus(tc.status, nil)
		var cerr *llm.CallError
		if !errors.As(err, &cerr) || cerr.Kind != tc.want {
			t.Errorf("classifyStatus(%d) kind = %v, want %s", tc.status, err, tc.want)
		}
	}
}

func TestCallNoChoices(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	})
	_, err := client.Call(context.Background(), callReq())
	var cerr *llm.CallError
	if !errors.As(err, &cerr) || cerr.Kind != llm.KindMalformedOutput {
		t.Fatalf("error = %v, want malformed_output", err)
	}
}

func TestTruncate(t *testing.T) {
	cases := []struct {
		name string
		in   string
		n    int
		want string
	}{
		{"short string untouched", "hello", 10, "hello"},
		{"ascii cut exact", "hello world", 5, "hello…"},
		{"cut inside a rune backs off", "日本語", 4, "日…"},
		{"cut at a rune start keeps it", "日本語", 6, "日本…"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := truncate(tc.in, tc.n)
			if got != tc.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tc.in, tc.n, got, tc.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("truncate produced invalid UTF-8: %q", got)
			}
		})
	}
}
