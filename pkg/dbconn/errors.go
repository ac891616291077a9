package dbconn

import "fmt"

// ConfigurationError reports a required setting that is missing. It is
// returned before any dial is attempted and is never cached.
type ConfigurationError struct {
	Variable string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("%s is not set", e.Variable)
}

// ConnectionError wraps a failed establishment attempt. Every caller that
// joined the attempt receives the same error.
type ConnectionError struct {
	Err error
}

func (e *ConnectionError) Error() string {
	return "database connection failed: " + e.Err.Error()
}

func (e *ConnectionError) Unwrap() error { return e.Err }
