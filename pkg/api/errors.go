package api

import (
	"fmt"
)

// ConfigurationError is returned when a rule or a cluster view is constructed
// from malformed parameters: a negative replica target, a node listed under
// more than one tier, an empty datasource name, and so on. It's fatal to the
// single rule invocation (or view construction) which returned it, but not to
// the cycle.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s", e.Reason)
}

// ConfigErrorf returns a ConfigurationError with a formatted reason.
func ConfigErrorf(format string, a ...interface{}) error {
	return &ConfigurationError{Reason: fmt.Sprintf(format, a...)}
}
