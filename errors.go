package anuris

import "fmt"

// ErrLLM wraps a provider-side failure with a concise prefixed message.
type ErrLLM struct {
	Provider string
	Message  string
}

func (e *ErrLLM) Error() string {
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

// ErrHTTP is a non-2xx completion response. Status may be 0 when the failure
// happened before a status line was read (timeouts, connection errors carry
// their own error types instead).
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("http %d: %s", e.Status, e.Body)
}

// ErrMaxRounds is raised when the agent loop exhausts its round budget
// without a no-tool-call termination.
type ErrMaxRounds struct {
	MaxRounds int
}

func (e *ErrMaxRounds) Error() string {
	return fmt.Sprintf("Agent loop exceeded max rounds (%d)", e.MaxRounds)
}
