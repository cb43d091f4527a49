package runner

import "fmt"

// ConfigError is a resource misconfiguration. It fails the resource, other resources still run.
type ConfigError struct {
	Resource string
	Err      error
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("resource %q is misconfigured: %v", e.Resource, e.Err)
}

func (e ConfigError) Unwrap() error {
	return e.Err
}
