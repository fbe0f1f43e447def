package models

import "fmt"

// ConfigurationError reports an invalid monitor definition. It is raised when a monitor
// is saved, never during a run.
type ConfigurationError struct {
	Msg string
}

func (e *ConfigurationError) Error() string {
	return e.Msg
}

func configErrorf(format string, args ...any) error {
	return &ConfigurationError{Msg: fmt.Sprintf(format, args...)}
}
