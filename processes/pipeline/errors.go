package pipeline

import "fmt"

// DestinationError is a failure of the destination store. Unlike source or data failures it is not scoped to a
// resource, so the orchestrator stops on it.
type DestinationError struct {
	Err error
}

func (d DestinationError) Error() string {
	return fmt.Sprintf("destination failed: %v", d.Err)
}

func (d DestinationError) Unwrap() error {
	return d.Err
}
