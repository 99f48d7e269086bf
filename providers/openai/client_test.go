package openai

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/plaudehq/opsgate/llm"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) {
	return f(r)
}

func TestClient_ResponseBodyTruncated(t *testing.T) {
	// Build a response body larger than the limit.
	const limit int64 = 256
	bigBody := strings.Repeat("x", int(limit)+100)

	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: 200,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(bigBody)),
			Request:    r,
		}, nil
	})

	c := New("http://fake.test", "key")
	c.HTTP = &http.Client{Transport: rt}
	c.MaxResponseBytes = limit

	// Chat will fail to unmarshal truncated JSON, but the key thing is
	// that io.ReadAll did not read more than limit bytes.
	_, err := c.Chat(context.Background(), llm.Request{
		Model:    "test",
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil {
		t.Fatal("expected error from truncated JSON, got nil")
	}
	if !strings.Contains(err.Error(), "invalid") && !strings.Contains(err.Error(), "unexpected") {
		t.Fatalf("expected JSON parse error, got: %v", err)
	}
}

func TestClient_NormalResponseParsed(t *testing.T) {
	validJSON := `{"choices":[{"message":{"content":"hello"}}],"usage":{"prompt_tokens":1,"completion_tokens":1,"total_tokens":2}}`

	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: 200,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(validJSON)),
			Request:    r,
		}, nil
	})

	c := New("http://fake.test", "key")
	c.HTTP = &http.Client{Transport: rt}

	res, err := c.Chat(context.Background(), llm.Request{
		Model:    "test",
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err != nil {
		t.Fatalf("expected nil error, got %v", err)
	}
	if res.Text != "hello" {
		t.Fatalf("expected text %q, got %q", "hello", res.Text)
	}
	if res.Usage.TotalTokens != 2 {
		t.Fatalf("expected 2 total tokens, got %d", res.Usage.TotalTokens)
	}
}

func TestClient_NativeToolCallsParsed(t *testing.T) {
	body := `{"choices":[{"message":{"content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"request_approval","arguments":"{\"operation_type\":\"refund\",\"amount\":75}"}}]}}]}`

	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: 200,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    r,
		}, nil
	})

	c := New("http://fake.test", "key")
	c.HTTP = &http.Client{Transport: rt}

	res, err := c.Chat(context.Background(), llm.Request{
		Model:    "test",
		Messages: []llm.Message{{Role: "user", Content: "refund please"}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if len(res.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(res.ToolCalls))
	}
	tc := res.ToolCalls[0]
	if tc.ID != "call_1" || tc.Name != "request_approval" {
		t.Fatalf("unexpected tool call: %+v", tc)
	}
	if tc.Arguments["operation_type"] != "refund" {
		t.Fatalf("arguments not decoded: %+v", tc.Arguments)
	}
}

func TestClient_RequestShape(t *testing.T) {
	var captured map[string]any

	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s, want /v1/chat/completions", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer key" {
			t.Errorf("auth header = %q", got)
		}
		raw, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(raw, &captured); err != nil {
			t.Errorf("request body is not json: %v", err)
		}
		return &http.Response{
			StatusCode: 200,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"choices":[{"message":{"content":"ok"}}]}`)),
			Request:    r,
		}, nil
	})

	c := New("http://fake.test/v1", "key")
	c.HTTP = &http.Client{Transport: rt}

	_, err := c.Chat(context.Background(), llm.Request{
		Model:    "test-model",
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
		Tools: []llm.Tool{{
			Name:           "request_approval",
			Description:    "ask a human",
			ParametersJSON: `{"type":"object"}`,
		}},
	})
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if captured["model"] != "test-model" {
		t.Errorf("model = %v", captured["model"])
	}
	tools, ok := captured["tools"].([]any)
	if !ok || len(tools) != 1 {
		t.Fatalf("tools not sent: %v", captured["tools"])
	}
}

func TestClient_APIErrorSurfaced(t *testing.T) {
	body := `{"error":{"message":"rate limited","type":"rate_limit_error"}}`

	rt := roundTripFunc(func(r *http.Request) (*http.Response, error) {
		return &http.Response{
			StatusCode: 429,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(body)),
			Request:    r,
		}, nil
	})

	c := New("http://fake.test", "key")
	c.HTTP = &http.Client{Transport: rt}

	_, err := c.Chat(context.Background(), llm.Request{
		Model:    "test",
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
	})
	if err == nil || !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("expected api error, got %v", err)
	}
}
