package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	anuris "github.com/anuris-ai/anuris"
)

const defaultTimeout = 30 * time.Second

// Client implements anuris.CompletionClient against any OpenAI-compatible
// chat completions endpoint.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	family      Family
	temperature *float64
	reasoning   bool
	httpClient  *http.Client
	name        string
	logger      *slog.Logger
	tracer      anuris.Tracer

	onContent   func(string)
	onReasoning func(string)
}

// Option configures a Client.
type Option func(*clientConfig)

type clientConfig struct {
	proxy       string
	timeout     time.Duration
	temperature *float64
	reasoning   bool
	httpClient  *http.Client
	name        string
	logger      *slog.Logger
	tracer      anuris.Tracer
	onContent   func(string)
	onReasoning func(string)
}

// WithProxy sets an explicit proxy URL, overriding the environment.
func WithProxy(p string) Option {
	return func(c *clientConfig) { c.proxy = p }
}

// WithClientTimeout sets the request timeout. Default 30s.
func WithClientTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithTemperature sets the sampling temperature sent with every request.
func WithTemperature(t float64) Option {
	return func(c *clientConfig) { c.temperature = &t }
}

// WithReasoning toggles provider thinking mode where the family supports it.
func WithReasoning(v bool) Option {
	return func(c *clientConfig) { c.reasoning = v }
}

// WithHTTPClient replaces the HTTP client entirely, bypassing proxy
// resolution. Intended for tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *clientConfig) { c.httpClient = h }
}

// WithName overrides the client name used in error prefixes and spans.
func WithName(n string) Option {
	return func(c *clientConfig) {
		if n != "" {
			c.name = n
		}
	}
}

// WithClientLogger sets the logger.
func WithClientLogger(l *slog.Logger) Option {
	return func(c *clientConfig) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithClientTracer sets the tracer for request spans.
func WithClientTracer(t anuris.Tracer) Option {
	return func(c *clientConfig) { c.tracer = t }
}

// WithDeltaFunc installs streaming delta callbacks for live rendering.
func WithDeltaFunc(onContent, onReasoning func(string)) Option {
	return func(c *clientConfig) {
		c.onContent = onContent
		c.onReasoning = onReasoning
	}
}

// New builds a client for the given endpoint. The base URL is normalized and
// the provider family detected from it and the model name.
func New(apiKey, model, baseURL string, opts ...Option) (*Client, error) {
	cfg := clientConfig{timeout: defaultTimeout, name: "openaicompat"}
	for _, opt := range opts {
		opt(&cfg)
	}

	normalized := NormalizeBaseURL(baseURL)
	httpClient := cfg.httpClient
	if httpClient == nil {
		transport, err := newTransport(ResolveProxy(cfg.proxy, normalized))
		if err != nil {
			return nil, err
		}
		httpClient = &http.Client{Transport: transport, Timeout: cfg.timeout}
	}

	c := &Client{
		baseURL:     normalized,
		apiKey:      apiKey,
		model:       model,
		family:      DetectFamily(normalized, model),
		temperature: cfg.temperature,
		reasoning:   cfg.reasoning,
		httpClient:  httpClient,
		name:        cfg.name,
		logger:      cfg.logger,
		tracer:      cfg.tracer,
		onContent:   cfg.onContent,
		onReasoning: cfg.onReasoning,
	}
	if c.logger == nil {
		c.logger = nopLogger
	}
	return c, nil
}

var nopLogger = slog.New(discardHandler{})

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (discardHandler) WithAttrs([]slog.Attr) slog.Handler        { return discardHandler{} }
func (discardHandler) WithGroup(string) slog.Handler             { return discardHandler{} }

// Name returns the client name.
func (c *Client) Name() string { return c.name }

// Family returns the detected provider family.
func (c *Client) Family() Family { return c.family }

// Chat sends a non-streaming request, retrying rejected shapes with a
// progressively reduced payload.
func (c *Client) Chat(ctx context.Context, req anuris.ChatRequest) (anuris.ChatResponse, error) {
	var out anuris.ChatResponse
	err := c.withShapeFallback(ctx, req, false, func(resp *http.Response) error {
		var wire wireResponse
		if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
			return &anuris.ErrLLM{Provider: c.name, Message: fmt.Sprintf("decode response: %v", err)}
		}
		out = parseResponse(wire)
		return nil
	})
	return out, err
}

// Stream sends a streaming request and accumulates deltas until the stream
// ends or ctx is cancelled.
func (c *Client) Stream(ctx context.Context, req anuris.ChatRequest) (anuris.StreamResult, error) {
	var out anuris.StreamResult
	err := c.withShapeFallback(ctx, req, true, func(resp *http.Response) error {
		result, err := readStream(ctx, resp.Body, c.onContent, c.onReasoning)
		if err != nil {
			return &anuris.ErrLLM{Provider: c.name, Message: fmt.Sprintf("read stream: %v", err)}
		}
		out = result
		return nil
	})
	return out, err
}

// withShapeFallback runs one request, reducing the payload in strict order
// on retriable shape rejections: extra_body first, then tools with
// tool_choice, then temperature. Authorization failures never retry.
func (c *Client) withShapeFallback(ctx context.Context, req anuris.ChatRequest, stream bool, handle func(*http.Response) error) error {
	body := buildBody(req, c.model, c.family, c.temperature, c.reasoning)
	body.Stream = stream

	// A reduction that leaves the payload unchanged is skipped so every
	// retry sends a genuinely different body.
	reductions := []struct {
		applies func(wireRequest) bool
		apply   func(*wireRequest)
	}{
		{
			applies: func(b wireRequest) bool { return len(b.ExtraBody) > 0 },
			apply:   func(b *wireRequest) { b.ExtraBody = nil },
		},
		{
			applies: func(b wireRequest) bool { return len(b.Tools) > 0 },
			apply:   func(b *wireRequest) { b.Tools = nil; b.ToolChoice = "" },
		},
		{
			applies: func(b wireRequest) bool { return b.Temperature != nil },
			apply:   func(b *wireRequest) { b.Temperature = nil },
		},
	}

	for {
		resp, err := c.send(ctx, body)
		if err == nil {
			defer resp.Body.Close()
			return handle(resp)
		}
		if !isRetriableShapeError(err) {
			return err
		}
		reduced := false
		for !reduced && len(reductions) > 0 {
			if reductions[0].applies(body) {
				reductions[0].apply(&body)
				reduced = true
			}
			reductions = reductions[1:]
		}
		if !reduced {
			return err
		}
		c.logger.Warn("request shape rejected, retrying reduced", "error", err)
	}
}

// send performs one HTTP attempt and converts failures into the typed errors
// the fallback classifier understands.
func (c *Client) send(ctx context.Context, body wireRequest) (*http.Response, error) {
	if c.tracer != nil {
		var span anuris.Span
		ctx, span = c.tracer.Start(ctx, "llm.request",
			anuris.StringAttr("model", c.model),
			anuris.StringAttr("family", string(c.family)),
			anuris.BoolAttr("stream", body.Stream))
		defer span.End()
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &anuris.ErrLLM{Provider: c.name, Message: fmt.Sprintf("marshal request: %v", err)}
	}

	url := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, &anuris.ErrLLM{Provider: c.name, Message: fmt.Sprintf("create request: %v", err)}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		switch {
		case errors.Is(err, context.DeadlineExceeded):
			return nil, &anuris.ErrLLM{Provider: c.name, Message: "request timed out"}
		case errors.Is(err, context.Canceled):
			return nil, &anuris.ErrLLM{Provider: c.name, Message: "request cancelled"}
		default:
			return nil, &anuris.ErrLLM{Provider: c.name, Message: fmt.Sprintf("connection failed: %v", err)}
		}
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, &anuris.ErrHTTP{Status: resp.StatusCode, Body: string(data)}
	}
	return resp, nil
}

var authKeywords = []string{"api key", "unauthorized", "forbidden", "quota", "rate limit"}

var shapeKeywords = []string{
	"invalid", "unsupported", "unknown", "unrecognized", "unexpected",
	"not allowed", "bad request", "parameter", "params", "setting",
	"schema", "tool", "temperature", "extra_body",
}

// isRetriableShapeError reports whether the failure looks like the provider
// rejecting the request shape rather than the credentials or the network.
func isRetriableShapeError(err error) bool {
	text := strings.ToLower(err.Error())
	for _, kw := range authKeywords {
		if strings.Contains(text, kw) {
			return false
		}
	}

	var httpErr *anuris.ErrHTTP
	if errors.As(err, &httpErr) {
		switch httpErr.Status {
		case http.StatusBadRequest, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity:
			return true
		default:
			return false
		}
	}

	for _, kw := range shapeKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

var _ anuris.CompletionClient = (*Client)(nil)
