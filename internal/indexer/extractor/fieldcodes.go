// internal/indexer/extractor/fieldcodes.go
package extractor

import (
	"context"
	"strconv"
	"sync"
)

// FieldCodeSource provides the field-id to human-readable code table.
type FieldCodeSource interface {
	GetFieldCodes(ctx context.Context) (map[int]string, error)
}

// FieldCodeCache loads the field-code table once and publishes it to every
// worker. The compute-and-publish happens under sync.Once, so concurrent
// first use from the worker pool sees exactly one consistent table.
type FieldCodeCache struct {
	source FieldCodeSource

	once  sync.Once
	codes map[int]string
	err   error
}

func NewFieldCodeCache(source FieldCodeSource) *FieldCodeCache {
	return &FieldCodeCache{source: source}
}

// Codes returns the full table, loading it on first use.
func (c *FieldCodeCache) Codes(ctx context.Context) (map[int]string, error) {
	c.once.Do(func() {
		c.codes, c.err = c.source.GetFieldCodes(ctx)
	})
	return c.codes, c.err
}

// Lookup resolves a field id to its registered code, falling back to the
// raw numeric id when none is registered or the table failed to load.
func (c *FieldCodeCache) Lookup(ctx context.Context, fieldID int) string {
	codes, err := c.Codes(ctx)
	if err != nil {
		return strconv.Itoa(fieldID)
	}
	if code, ok := codes[fieldID]; ok {
		return code
	}
	return strconv.Itoa(fieldID)
}
