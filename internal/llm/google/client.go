// Package google implements llm.Caller on the Gemini API.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/schemaflow/schemaflow/internal/llm"
)

type Client struct {
	client *genai.Client
	log    *slog.Logger
}

// NewClient dials the Gemini API with the given key. Close releases the
// underlying connection.
func NewClient(ctx context.Context, apiKey string, logger *slog.Logger) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	gc, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("dial gemini: %w", err)
	}
	return &Client{client: gc, log: logger}, nil
}

func (c *Client) Close() error {
	return c.client.Close()
}

// Call implements llm.Caller. Gemini is asked for application/json output
// with the compiled schema embedded in the system instruction; strict
// validation stays with the extractor.
func (c *Client) Call(ctx context.Context, req llm.CallRequest) (json.RawMessage, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.log.Info("llm.call.start",
		"req_id", rid,
		"provider", "google",
		"model", req.Model.Model,
		"prompt_len", len(req.UserPrompt),
	)

	if req.Model.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Model.Timeout)
		defer cancel()
	}

	model := c.client.GenerativeModel(req.Model.Model)
	model.SetTemperature(req.Model.Temperature)
	model.ResponseMIMEType = "application/json"
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{
		genai.Text(req.SystemPrompt + "\n\nJSON Schema the response MUST match:\n" + mustJSON(req.Schema)),
	}}

	resp, err := model.GenerateContent(ctx, genai.Text(req.UserPrompt))
	if err != nil {
		cerr := classify(ctx, err)
		c.log.Error("llm.call.error",
			"req_id", rid, "error", cerr,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return nil, cerr
	}

	content, err := firstText(resp)
	if err != nil {
		return nil, llm.NewCallError(llm.KindMalformedOutput, "gemini response", err)
	}

	out := llm.StripFences([]byte(content))
	c.log.Info("llm.call.ok",
		"req_id", rid,
		"response_bytes", len(out),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return json.RawMessage(out), nil
}

func firstText(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return "", fmt.Errorf("no candidates returned")
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			return string(t), nil
		}
	}
	return "", fmt.Errorf("no text part in candidate")
}

func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return llm.NewCallError(llm.KindTimeout, "model call timed out", err)
	}
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		switch {
		case gerr.Code == 401 || gerr.Code == 403:
			return llm.NewCallError(llm.KindAuth, "gemini auth failure", err)
		case gerr.Code == 429:
			return llm.NewCallError(llm.KindRateLimit, "gemini rate limit", err)
		case gerr.Code >= 500:
			return llm.NewCallError(llm.KindNetwork, "gemini server error", err)
		}
	}
	return llm.NewCallError(llm.KindNetwork, "gemini call failed", err)
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
