package team

import (
	"fmt"
	"time"
)

// Budget bounds one teammate worker: wall-clock runtime, rounds, tool calls,
// and how long it may sit idle between polls.
type Budget struct {
	MaxRuntime   time.Duration
	MaxRounds    int
	MaxToolCalls int
	IdleTimeout  time.Duration
	PollInterval time.Duration
}

// DefaultBudget is applied where a field is zero.
var DefaultBudget = Budget{
	MaxRuntime:   10 * time.Minute,
	MaxRounds:    24,
	MaxToolCalls: 60,
	IdleTimeout:  2 * time.Minute,
	PollInterval: 2 * time.Second,
}

func (b Budget) withDefaults() Budget {
	if b.MaxRuntime <= 0 {
		b.MaxRuntime = DefaultBudget.MaxRuntime
	}
	if b.MaxRounds <= 0 {
		b.MaxRounds = DefaultBudget.MaxRounds
	}
	if b.MaxToolCalls <= 0 {
		b.MaxToolCalls = DefaultBudget.MaxToolCalls
	}
	if b.IdleTimeout <= 0 {
		b.IdleTimeout = DefaultBudget.IdleTimeout
	}
	if b.PollInterval <= 0 {
		b.PollInterval = DefaultBudget.PollInterval
	}
	return b
}

// BudgetTracker counts rounds and tool calls against a Budget. Checked
// before every round and before every tool call.
type BudgetTracker struct {
	budget    Budget
	start     time.Time
	rounds    int
	toolCalls int
}

// NewBudgetTracker starts tracking against b from now.
func NewBudgetTracker(b Budget) *BudgetTracker {
	return &BudgetTracker{budget: b.withDefaults(), start: time.Now()}
}

// CountRound records one completed round.
func (t *BudgetTracker) CountRound() { t.rounds++ }

// CountToolCall records one executed tool call.
func (t *BudgetTracker) CountToolCall() { t.toolCalls++ }

// Exceeded returns the violation reason when any budget is spent.
func (t *BudgetTracker) Exceeded() (string, bool) {
	if elapsed := time.Since(t.start); elapsed > t.budget.MaxRuntime {
		return fmt.Sprintf("runtime exceeded (%ds)", int(t.budget.MaxRuntime.Seconds())), true
	}
	if t.rounds >= t.budget.MaxRounds {
		return fmt.Sprintf("round budget exceeded (%d)", t.budget.MaxRounds), true
	}
	if t.toolCalls >= t.budget.MaxToolCalls {
		return fmt.Sprintf("tool-call budget exceeded (%d)", t.budget.MaxToolCalls), true
	}
	return "", false
}
