package models

import (
	"fmt"
	"slices"

	"github.com/padm/dwh/lib/config/constants"
	"github.com/padm/dwh/lib/cursor"
)

// Cursor declares how a resource is extracted incrementally.
type Cursor struct {
	Column       string
	Kind         cursor.Kind
	InitialValue any
}

// ColumnKind is the column kind cursor values are stored as. The two kind sets share their names.
func (c Cursor) ColumnKind() ColumnKind {
	return ColumnKind(c.Kind)
}

type Identity struct {
	Policy constants.RowIdentityPolicy
	// Fields are hashed in this order to build [constants.StableKeyColumn].
	Fields []string
}

// ResourceDescriptor is the table-driven definition of one bronze dataset.
type ResourceDescriptor struct {
	Name          string
	BaseQuery     string
	FallbackQuery string
	WriteMode     constants.WriteMode
	// Cursor is nil for full-refresh resources.
	Cursor              *Cursor
	Identity            Identity
	ColumnTypeOverrides map[string]ColumnKind
}

func (r ResourceDescriptor) IsIncremental() bool {
	return r.Cursor != nil
}

func (r ResourceDescriptor) HasFallback() bool {
	return r.FallbackQuery != ""
}

func (r ResourceDescriptor) UsesStableKey() bool {
	return r.Identity.Policy == constants.HashedKey
}

func (r ResourceDescriptor) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("resource name is empty")
	}

	if r.BaseQuery == "" {
		return fmt.Errorf("resource %q has an empty base query", r.Name)
	}

	if !r.WriteMode.IsValid() {
		return fmt.Errorf("resource %q has an invalid write mode: %q", r.Name, r.WriteMode)
	}

	if !r.Identity.Policy.IsValid() {
		return fmt.Errorf("resource %q has an invalid row identity policy: %q", r.Name, r.Identity.Policy)
	}

	if r.UsesStableKey() && len(r.Identity.Fields) == 0 {
		return fmt.Errorf("resource %q uses %q but declares no key fields", r.Name, constants.HashedKey)
	}

	if slices.Contains(r.Identity.Fields, constants.StableKeyColumn) {
		return fmt.Errorf("resource %q cannot hash %q into itself", r.Name, constants.StableKeyColumn)
	}

	if r.Cursor != nil {
		if r.Cursor.Column == "" {
			return fmt.Errorf("resource %q is incremental but has no checkpoint column", r.Name)
		}

		if !r.Cursor.Kind.IsValid() {
			return fmt.Errorf("resource %q has an invalid checkpoint kind: %q", r.Name, r.Cursor.Kind)
		}

		if r.Cursor.InitialValue != nil && cursor.KindOf(r.Cursor.InitialValue) != r.Cursor.Kind {
			return fmt.Errorf("resource %q has an initial checkpoint of kind %q, expected %q", r.Name, cursor.KindOf(r.Cursor.InitialValue), r.Cursor.Kind)
		}

		if r.WriteMode == constants.Replace {
			// A replace would wipe every row older than the checkpoint.
			return fmt.Errorf("resource %q is incremental and must use write mode %q", r.Name, constants.Append)
		}
	}

	for column, kind := range r.ColumnTypeOverrides {
		if _, err := ParseColumnKind(string(kind)); err != nil {
			return fmt.Errorf("resource %q has an invalid type override for %q: %w", r.Name, column, err)
		}
	}

	return nil
}

// InitialCheckpoint is the lower bound used when nothing has been persisted for a (resource, source) pair.
// A backfill floor raises it, never lowers it.
func (r ResourceDescriptor) InitialCheckpoint(floor any) (any, error) {
	if r.Cursor == nil {
		return nil, nil
	}

	initial := r.Cursor.InitialValue
	if floor == nil || !r.Cursor.Kind.IsTemporal() {
		return initial, nil
	}

	if initial == nil {
		return cursor.CoerceToKind(floor, r.Cursor.Kind), nil
	}

	return cursor.Max(initial, floor)
}
