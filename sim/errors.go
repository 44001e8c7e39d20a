// Error kinds shared across the pipeline.

package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned by queue and transport operations after shutdown.
	ErrClosed = errors.New("closed")

	// ErrTimeout signals that a deadline elapsed before the operation completed.
	ErrTimeout = errors.New("timeout")

	// ErrLegFailed marks a stage-2 leg that answered ok=false for the attempt.
	ErrLegFailed = errors.New("leg failed")

	// ErrExhausted marks a request retired after max retries.
	ErrExhausted = errors.New("max retries exhausted")

	// ErrTransport marks a lost delivery channel. Inside a leg it is treated
	// the same as ErrLegFailed for success determination.
	ErrTransport = errors.New("transport error")
)

// ConfigError reports an invalid configuration field. It is fatal at startup,
// before any node is launched.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Reason)
}
