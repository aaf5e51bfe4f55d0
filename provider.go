package anuris

import "context"

// CompletionClient abstracts the chat completion backend. The
// provider/openaicompat package provides the standard implementation with
// base-URL normalization, proxy resolution, provider-family detection, and
// shape-fallback retry.
type CompletionClient interface {
	// Chat sends a non-streaming request and returns the normalized response.
	Chat(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// Stream sends a streaming request, consuming deltas until the stream
	// ends or ctx is cancelled, and returns the accumulated result.
	Stream(ctx context.Context, req ChatRequest) (StreamResult, error)
	// Name returns the client name for error prefixes and spans.
	Name() string
}
