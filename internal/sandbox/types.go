package sandbox

import (
	"context"
	"time"
)

// RuntimeConfig defines script runtime limits
type RuntimeConfig struct {
	Timeout       time.Duration // Execution timeout
	EnableConsole bool          // Allow console.log/warn/error
}

// DefaultRuntimeConfig returns the limits used for page scripts
func DefaultRuntimeConfig() RuntimeConfig {
	return RuntimeConfig{
		Timeout:       5 * time.Second,
		EnableConsole: true,
	}
}

// Result holds execution result
type Result struct {
	Value    interface{}   // Return value
	Console  []LogEntry    // Console output
	Duration time.Duration // Execution time

	// One channel per cookie write, closed when its batch is final
	Syncs []<-chan struct{}
}

// Wait blocks until every cookie write of the script has been synchronized
// across the page or ctx is done.
func (r *Result) Wait(ctx context.Context) error {
	for _, done := range r.Syncs {
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// LogEntry represents console output
type LogEntry struct {
	Level   string    // log, warn, error
	Message string    // Log message
	Time    time.Time // Timestamp
}
