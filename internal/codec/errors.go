package codec

import (
	"errors"
	"fmt"
)

// ConfigurationError reports a type name with no registered constructor.
// It is fatal to the subtree being deserialized, not to its parent.
type ConfigurationError struct {
	TypeName string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no constructor registered for type %q", e.TypeName)
}

// IsConfigurationError returns true if err is or wraps a ConfigurationError.
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
