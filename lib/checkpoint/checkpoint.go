package checkpoint

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"github.com/padm/dwh/lib/config"
	"github.com/padm/dwh/lib/config/constants"
	"github.com/padm/dwh/lib/cursor"
)

// State is the last committed checkpoint of one (resource, source database) pair.
type State struct {
	Resource string
	SourceDB string
	Value    any
}

func (s State) Encode() (cursor.Kind, string, error) {
	kind, value, err := cursor.Encode(s.Value)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode checkpoint for %q/%q: %w", s.Resource, s.SourceDB, err)
	}
	return kind, value, nil
}

// States returns the states of a resource ordered by source database.
func States(resource string, values map[string]any) []State {
	var states []State
	for _, sourceDB := range slices.Sorted(maps.Keys(values)) {
		states = append(states, State{Resource: resource, SourceDB: sourceDB, Value: values[sourceDB]})
	}
	return states
}

// Mirror receives checkpoints after the destination committed them. It never holds the only copy, so a failed
// publish is logged by the caller and does not fail the run.
type Mirror interface {
	Publish(ctx context.Context, states []State) error
	Close() error
}

type NoopMirror struct{}

func (NoopMirror) Publish(_ context.Context, _ []State) error {
	return nil
}

func (NoopMirror) Close() error {
	return nil
}

func NewMirror(ctx context.Context, cfg config.Config) (Mirror, error) {
	switch cfg.Checkpoints.Mirror {
	case constants.RedisMirror:
		return NewRedisMirror(ctx, cfg.Redis)
	default:
		return NoopMirror{}, nil
	}
}
