package dataset

import (
	"github.com/outofforest/tilestream/content"
	"github.com/outofforest/tilestream/types"
)

// Handle identifies visual representation of the tile created by renderer.
type Handle uint64

// Renderer creates and releases visual representations of hot tiles.
type Renderer interface {
	Create(tile types.TileIndex, payload content.Payload) (Handle, error)
	Release(handle Handle)
}

// NopRenderer creates no representation. It is used when only content needs to be streamed.
type NopRenderer struct{}

// Create returns tile index as the handle.
func (NopRenderer) Create(tile types.TileIndex, _ content.Payload) (Handle, error) {
	return Handle(tile), nil
}

// Release does nothing.
func (NopRenderer) Release(Handle) {}
