package logging

import "context"

type contextKey string

const (
	bracketIDKey contextKey = "mohb-bracket-id"
	budgetKey    contextKey = "mohb-budget"
)

// WithBracketID attaches a bracket id to the context so that every log
// line produced while working on that bracket carries it.
func WithBracketID(ctx context.Context, bracketID int) context.Context {
	return context.WithValue(ctx, bracketIDKey, bracketID)
}

// GetBracketID retrieves the bracket id from the context.
func GetBracketID(ctx context.Context) (int, bool) {
	id, ok := ctx.Value(bracketIDKey).(int)
	return id, ok
}

// WithBudget attaches the fidelity level of the current evaluation.
func WithBudget(ctx context.Context, budget float64) context.Context {
	return context.WithValue(ctx, budgetKey, budget)
}

// GetBudget retrieves the fidelity level from the context.
func GetBudget(ctx context.Context) (float64, bool) {
	b, ok := ctx.Value(budgetKey).(float64)
	return b, ok
}
