// Package openai implements llm.Client against any OpenAI-compatible chat
// completions endpoint.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/plaudehq/opsgate/llm"
)

const defaultMaxResponseBytes = 8 * 1024 * 1024

type Client struct {
	Endpoint string
	APIKey   string

	HTTP             *http.Client
	MaxResponseBytes int64
}

func New(endpoint, apiKey string) *Client {
	return &Client{
		Endpoint:         strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		APIKey:           strings.TrimSpace(apiKey),
		HTTP:             &http.Client{Timeout: 120 * time.Second},
		MaxResponseBytes: defaultMaxResponseBytes,
	}
}

type wireMessage struct {
	Role       string         `json:"role"`
	Content    string         `json:"content"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
	ToolCalls  []wireToolCall `json:"tool_calls,omitempty"`
}

type wireToolCall struct {
	ID       string `json:"id,omitempty"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type wireRequest struct {
	Model          string         `json:"model"`
	Messages       []wireMessage  `json:"messages"`
	Tools          []any          `json:"tools,omitempty"`
	ResponseFormat map[string]any `json:"response_format,omitempty"`
	MaxTokens      any            `json:"max_tokens,omitempty"`
	Temperature    any            `json:"temperature,omitempty"`
}

type wireResponse struct {
	Choices []struct {
		Message wireMessage `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

func (c *Client) Chat(ctx context.Context, req llm.Request) (llm.Result, error) {
	if c == nil {
		return llm.Result{}, fmt.Errorf("nil openai client")
	}
	if strings.TrimSpace(c.Endpoint) == "" {
		return llm.Result{}, fmt.Errorf("missing llm endpoint")
	}

	body := wireRequest{Model: req.Model}
	for _, m := range req.Messages {
		wm := wireMessage{Role: m.Role, Content: m.Content, ToolCallID: m.ToolCallID}
		for _, tc := range m.ToolCalls {
			args, _ := json.Marshal(tc.Arguments)
			wtc := wireToolCall{ID: tc.ID, Type: "function"}
			wtc.Function.Name = tc.Name
			wtc.Function.Arguments = string(args)
			wm.ToolCalls = append(wm.ToolCalls, wtc)
		}
		body.Messages = append(body.Messages, wm)
	}
	for _, t := range req.Tools {
		var schema any
		if strings.TrimSpace(t.ParametersJSON) != "" {
			_ = json.Unmarshal([]byte(t.ParametersJSON), &schema)
		}
		body.Tools = append(body.Tools, map[string]any{
			"type": "function",
			"function": map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  schema,
			},
		})
	}
	if req.ForceJSON {
		body.ResponseFormat = map[string]any{"type": "json_object"}
	}
	if v, ok := req.Parameters["max_tokens"]; ok {
		body.MaxTokens = v
	}
	if v, ok := req.Parameters["temperature"]; ok {
		body.Temperature = v
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return llm.Result{}, err
	}

	url := c.Endpoint
	if !strings.HasSuffix(url, "/chat/completions") {
		url += "/chat/completions"
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return llm.Result{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.APIKey)
	}

	client := c.HTTP
	if client == nil {
		client = &http.Client{Timeout: 120 * time.Second}
	}

	start := time.Now()
	resp, err := client.Do(httpReq)
	if err != nil {
		return llm.Result{}, fmt.Errorf("llm request: %w", err)
	}
	defer resp.Body.Close()

	limit := c.MaxResponseBytes
	if limit <= 0 {
		limit = defaultMaxResponseBytes
	}
	raw, err := io.ReadAll(io.LimitReader(resp.Body, limit))
	if err != nil {
		return llm.Result{}, err
	}

	var parsed wireResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return llm.Result{}, fmt.Errorf("invalid llm response: %w", err)
	}
	if parsed.Error != nil {
		return llm.Result{}, fmt.Errorf("llm error (%s): %s", parsed.Error.Type, parsed.Error.Message)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return llm.Result{}, fmt.Errorf("llm status %d", resp.StatusCode)
	}
	if len(parsed.Choices) == 0 {
		return llm.Result{}, fmt.Errorf("llm response has no choices")
	}

	msg := parsed.Choices[0].Message
	out := llm.Result{
		Text:     msg.Content,
		Duration: time.Since(start),
		Usage: llm.Usage{
			InputTokens:  parsed.Usage.PromptTokens,
			OutputTokens: parsed.Usage.CompletionTokens,
			TotalTokens:  parsed.Usage.TotalTokens,
		},
	}
	for _, wtc := range msg.ToolCalls {
		args := map[string]any{}
		if strings.TrimSpace(wtc.Function.Arguments) != "" {
			_ = json.Unmarshal([]byte(wtc.Function.Arguments), &args)
		}
		out.ToolCalls = append(out.ToolCalls, llm.ToolCall{
			ID:        wtc.ID,
			Name:      wtc.Function.Name,
			Arguments: args,
		})
	}
	return out, nil
}
