// Package uuid generates run and session identifiers.
package uuid

import (
	"fmt"

	"github.com/google/uuid"
)

// Generator creates time-ordered UUIDv7 strings, so session rows sort by
// creation time.
type Generator struct {
	newUUID func() (uuid.UUID, error)
}

// New creates a Generator.
func New() *Generator {
	return &Generator{newUUID: uuid.NewV7}
}

// NewID returns a UUIDv7 string.
func (g *Generator) NewID() (string, error) {
	id, err := g.newUUID()
	if err != nil {
		return "", fmt.Errorf("generate uuid7: %w", err)
	}
	return id.String(), nil
}
