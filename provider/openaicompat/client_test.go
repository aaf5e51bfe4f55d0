package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	anuris "github.com/anuris-ai/anuris"
)

func newTestClient(t *testing.T, server *httptest.Server, opts ...Option) *Client {
	t.Helper()
	opts = append(opts, WithHTTPClient(server.Client()))
	c, err := New("test-key", "gpt-4o", server.URL+"/v1", opts...)
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func okResponse(content string) string {
	return `{"choices":[{"message":{"role":"assistant","content":` + mustQuote(content) + `}}]}`
}

func mustQuote(s string) string {
	data, _ := json.Marshal(s)
	return string(data)
}

func TestChatSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth = %q", got)
		}
		w.Write([]byte(okResponse("hello")))
	}))
	defer server.Close()

	c := newTestClient(t, server)
	resp, err := c.Chat(context.Background(), anuris.ChatRequest{
		Messages: []anuris.ChatMessage{anuris.UserMessage("hi")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "hello" {
		t.Fatalf("content = %q", resp.Content)
	}
}

func TestChatShapeFallbackDropsTools(t *testing.T) {
	var bodies []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		if _, hasTools := body["tools"]; hasTools {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"tools unsupported"}`))
			return
		}
		w.Write([]byte(okResponse("reduced ok")))
	}))
	defer server.Close()

	c := newTestClient(t, server, WithTemperature(0.4))
	resp, err := c.Chat(context.Background(), anuris.ChatRequest{
		Messages: []anuris.ChatMessage{anuris.UserMessage("hi")},
		Tools:    []anuris.ToolDefinition{{Name: "bash"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if resp.Content != "reduced ok" {
		t.Fatalf("content = %q", resp.Content)
	}
	// No extra_body here, so the ladder jumps straight to dropping tools.
	if len(bodies) != 2 {
		t.Fatalf("attempts = %d", len(bodies))
	}
	if _, ok := bodies[1]["tools"]; ok {
		t.Fatal("second attempt still carries tools")
	}
	if _, ok := bodies[1]["temperature"]; !ok {
		t.Fatal("temperature dropped too early")
	}
}

func TestChatShapeFallbackDropsExtraBodyFirst(t *testing.T) {
	var bodies []map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		bodies = append(bodies, body)
		if _, hasThinking := body["thinking"]; hasThinking {
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"error":"unknown field thinking"}`))
			return
		}
		w.Write([]byte(okResponse("ok")))
	}))
	defer server.Close()

	c := newTestClient(t, server, WithReasoning(true))
	c.family = FamilyDeepSeek
	_, err := c.Chat(context.Background(), anuris.ChatRequest{
		Messages: []anuris.ChatMessage{anuris.UserMessage("hi")},
		Tools:    []anuris.ToolDefinition{{Name: "bash"}},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(bodies) != 2 {
		t.Fatalf("attempts = %d", len(bodies))
	}
	if _, ok := bodies[1]["thinking"]; ok {
		t.Fatal("second attempt still carries thinking")
	}
	if _, ok := bodies[1]["tools"]; !ok {
		t.Fatal("tools dropped before extra_body")
	}
}

func TestChatShapeFallbackExhausted(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":"unsupported parameter"}`))
	}))
	defer server.Close()

	// A bare request has nothing left to reduce, so the first rejection is
	// final.
	c := newTestClient(t, server)
	_, err := c.Chat(context.Background(), anuris.ChatRequest{
		Messages: []anuris.ChatMessage{anuris.UserMessage("hi")},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d", attempts)
	}
}

func TestChatAuthErrorNeverRetries(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":"invalid api key"}`))
	}))
	defer server.Close()

	c := newTestClient(t, server)
	_, err := c.Chat(context.Background(), anuris.ChatRequest{
		Messages: []anuris.ChatMessage{anuris.UserMessage("hi")},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d", attempts)
	}
	var httpErr *anuris.ErrHTTP
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusUnauthorized {
		t.Fatalf("err = %v", err)
	}
}

func TestChatServerErrorNoRetry(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server)
	_, err := c.Chat(context.Background(), anuris.ChatRequest{
		Messages: []anuris.ChatMessage{anuris.UserMessage("hi")},
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d", attempts)
	}
}

func TestStreamAccumulates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		json.NewDecoder(r.Body).Decode(&body)
		if body["stream"] != true {
			t.Errorf("stream flag = %v", body["stream"])
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"str"}}]}` + "\n\n"))
		w.Write([]byte(`data: {"choices":[{"delta":{"content":"eam"}}]}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n"))
	}))
	defer server.Close()

	c := newTestClient(t, server)
	result, err := c.Stream(context.Background(), anuris.ChatRequest{
		Messages: []anuris.ChatMessage{anuris.UserMessage("hi")},
	})
	if err != nil {
		t.Fatal(err)
	}
	if result.Content != "stream" {
		t.Fatalf("content = %q", result.Content)
	}
}

func TestIsRetriableShapeError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{&anuris.ErrHTTP{Status: 400, Body: "bad"}, true},
		{&anuris.ErrHTTP{Status: 422, Body: "bad"}, true},
		{&anuris.ErrHTTP{Status: 500, Body: "oops"}, false},
		{&anuris.ErrHTTP{Status: 400, Body: "rate limit exceeded"}, false},
		{&anuris.ErrLLM{Provider: "x", Message: "unsupported parameter"}, true},
		{&anuris.ErrLLM{Provider: "x", Message: "connection failed: refused"}, false},
		{&anuris.ErrLLM{Provider: "x", Message: "invalid api key"}, false},
	}
	for _, c := range cases {
		if got := isRetriableShapeError(c.err); got != c.want {
			t.Errorf("isRetriableShapeError(%v) = %v, want %v", c.err, got, c.want)
		}
	}
}
