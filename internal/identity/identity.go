package identity

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// Generator hands out process-wide-unique task identifiers. Implementations
// must be safe for concurrent callers.
type Generator interface {
	NextTaskID() string
}

// ULIDGenerator issues ULID-based task ids with a fixed prefix so ids remain
// lexically sortable by creation time.
type ULIDGenerator struct {
	prefix string
}

func NewULIDGenerator(prefix string) *ULIDGenerator {
	if prefix == "" {
		prefix = "task"
	}
	return &ULIDGenerator{prefix: prefix}
}

func (g *ULIDGenerator) NextTaskID() string {
	return fmt.Sprintf("%s-%s", g.prefix, ulid.Make().String())
}
