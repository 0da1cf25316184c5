package reconcile

import (
	"context"
	"strconv"
	"strings"
)

// ColorIndexKey is the state-store key holding the next palette index.
const ColorIndexKey = "color_index"

// DefaultPalette lists Chrome tab-group colors in assignment order.
var DefaultPalette = []string{"blue", "red", "yellow", "green", "pink", "purple", "cyan", "orange"}

// Allocator hands out group colors round-robin.
type Allocator struct {
	Index   int      `json:"index"`
	Palette []string `json:"palette"`
}

// NewAllocator starts at index over palette. An empty palette uses DefaultPalette.
func NewAllocator(index int, palette []string) Allocator {
	if len(palette) == 0 {
		palette = DefaultPalette
	}
	a := Allocator{Palette: palette}
	a.Index = a.wrap(index)
	return a
}

// Color returns the color at the current index.
func (a Allocator) Color() string {
	if len(a.Palette) == 0 {
		return ""
	}
	return a.Palette[a.wrap(a.Index)]
}

// Next returns the allocator advanced by one step.
func (a Allocator) Next() Allocator {
	a.Index = a.wrap(a.Index + 1)
	return a
}

func (a Allocator) wrap(i int) int {
	n := len(a.Palette)
	if n == 0 {
		return 0
	}
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// LoadAllocator reads the persisted index. A missing or malformed value
// starts from zero; only a store failure is returned.
func LoadAllocator(ctx context.Context, store StateStore, palette []string) (Allocator, error) {
	if store == nil {
		return NewAllocator(0, palette), nil
	}
	raw, ok, err := store.Get(ctx, ColorIndexKey)
	if err != nil {
		return NewAllocator(0, palette), err
	}
	if !ok {
		return NewAllocator(0, palette), nil
	}
	n, convErr := strconv.Atoi(strings.TrimSpace(raw))
	if convErr != nil {
		return NewAllocator(0, palette), nil
	}
	return NewAllocator(n, palette), nil
}

// SaveAllocator persists the allocator index.
func SaveAllocator(ctx context.Context, store StateStore, a Allocator) error {
	if store == nil {
		return nil
	}
	return store.Set(ctx, ColorIndexKey, strconv.Itoa(a.Index))
}
