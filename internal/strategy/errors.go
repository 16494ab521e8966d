package strategy

import (
	"errors"
	"fmt"
)

// ConfigError reports an invalid strategy configuration.
// It is always returned at construction time, never per record.
type ConfigError struct {
	// Strategy is the configured strategy name (or kind when unnamed).
	Strategy string

	// Param is the offending parameter, empty for structural errors.
	Param string

	// Message is a human-readable description.
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Param != "" {
		return fmt.Sprintf("strategy %s: param %s: %s", e.Strategy, e.Param, e.Message)
	}
	return fmt.Sprintf("strategy %s: %s", e.Strategy, e.Message)
}

// IsConfigError reports whether err is (or wraps) a *ConfigError.
func IsConfigError(err error) bool {
	var ce *ConfigError
	return errors.As(err, &ce)
}

func configErrorf(strategy, param, format string, args ...any) *ConfigError {
	return &ConfigError{
		Strategy: strategy,
		Param:    param,
		Message:  fmt.Sprintf(format, args...),
	}
}
