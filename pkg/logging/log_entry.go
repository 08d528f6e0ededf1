package logging

// LogEntry represents a structured log record emitted by the optimizer.
type LogEntry struct {
	// Standard fields
	Time     int64
	Severity Severity
	Message  string
	File     string
	Line     int
	Function string

	// Optimization-specific fields
	BracketID int     // Hyperband bracket the event belongs to, -1 if none
	Budget    float64 // Fidelity level of the evaluation, 0 if none

	// General structured data
	Fields map[string]interface{}
}
