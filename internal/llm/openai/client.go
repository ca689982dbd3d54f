package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/avast/retry-go/v4"
	"github.com/google/uuid"

	"github.com/schemaflow/schemaflow/internal/llm"
)

// Call implements llm.Caller using text-only chat/completions with JSON
// output mode. The compiled schema rides along in a system message; strict
// schema validation is the extractor's job.
func (c *Client) Call(ctx context.Context, req llm.CallRequest) (json.RawMessage, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.call.start",
		"req_id", rid,
		"provider", "openai",
		"model", req.Model.Model,
		"temp", req.Model.Temperature,
		"prompt_len", len(req.UserPrompt),
	)

	if req.Model.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Model.Timeout)
		defer cancel()
	}

	body := map[string]any{
		"model":           req.Model.Model,
		"temperature":     req.Model.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": req.SystemPrompt},
			{"role": "user", "content": req.UserPrompt + "\n\nReturn ONLY JSON that matches the provided schema."},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(req.Schema)},
		},
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	raw, err := c.post(ctx, rid, endpoint, body)
	if err != nil {
		c.log.Error("llm.call.http_error",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, err
	}

	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return nil, llm.NewCallError(llm.KindMalformedOutput, "decode openai response", err)
	}
	if len(cc.Choices) == 0 {
		return nil, llm.NewCallError(llm.KindMalformedOutput, "no choices in openai response", nil)
	}

	content := llm.StripFences([]byte(cc.Choices[0].Message.Content))
	c.log.Info("llm.call.ok",
		"req_id", rid,
		"response_bytes", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return json.RawMessage(content), nil
}

// post sends the request, retrying transient HTTP failures (429 and 5xx)
// a bounded number of times before classifying and surfacing the error.
func (c *Client) post(ctx context.Context, rid, url string, body map[string]any) ([]byte, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	var out []byte
	err = retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
			if err != nil {
				return retry.Unrecoverable(err)
			}
			req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.httpClient.Do(req)
			if err != nil {
				return classifyTransport(ctx, err)
			}
			defer func() {
				if cerr := resp.Body.Close(); cerr != nil {
					c.log.Warn("openai response body close error", "req_id", rid, "error", cerr)
				}
			}()

			payload, err := io.ReadAll(resp.Body)
			if err != nil {
				return llm.NewCallError(llm.KindNetwork, "read openai response", err)
			}
			if resp.StatusCode < 200 || resp.StatusCode >= 300 {
				return classifyStatus(resp.StatusCode, payload)
			}
			out = payload
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(c.cfg.MaxAttempts),
		retry.Delay(time.Second),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var ce *llm.CallError
			return errors.As(err, &ce) && ce.Transient() && ctx.Err() == nil
		}),
		retry.OnRetry(func(n uint, err error) {
			c.log.Warn("llm.call.retry", "req_id", rid, "attempt", n+1, "error", err)
		}),
	)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func classifyTransport(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return llm.NewCallError(llm.KindTimeout, "model call timed out", err)
	}
	return llm.NewCallError(llm.KindNetwork, "openai http error", err)
}

func classifyStatus(status int, body []byte) error {
	msg := fmt.Sprintf("openai status %d: %s", status, truncate(string(body), 512))
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return llm.NewCallError(llm.KindAuth, msg, nil)
	case status == http.StatusTooManyRequests:
		return llm.NewCallError(llm.KindRateLimit, msg, nil)
	case status >= 500:
		return llm.NewCallError(llm.KindNetwork, msg, nil)
	default:
		return llm.NewCallError(llm.KindMalformedOutput, msg, nil)
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	// Back off to a rune start so the cut never leaves a partial rune.
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n] + "…"
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
