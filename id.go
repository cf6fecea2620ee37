package cadence

import (
	"fmt"

	"github.com/google/uuid"
)

// IDGenerator creates new identifiers for enrollments and activity records.
type IDGenerator interface {
	// New returns a new identifier.
	New() (string, error)
}

// UUIDGenerator produces time-ordered UUID v7 identifiers.
type UUIDGenerator struct{}

// New creates a new UUID v7 identifier.
func (UUIDGenerator) New() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("cadence: generate id failed: %w", err)
	}

	return id.String(), nil
}

// IDGeneratorFunc adapts a function to IDGenerator.
type IDGeneratorFunc func() (string, error)

// New implements IDGenerator.
func (fn IDGeneratorFunc) New() (string, error) {
	return fn()
}
