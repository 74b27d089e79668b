package alloc

import "github.com/pkg/errors"

// Block addresses a contiguous run of items inside Blocks arena.
type Block struct {
	Offset uint32
	Count  uint32
}

// NewBlocks creates block arena able to store capacity items in total.
func NewBlocks[T any](capacity uint32) *Blocks[T] {
	return &Blocks[T]{
		items:    make([]T, 0, capacity),
		released: map[uint32][]uint32{},
	}
}

// Blocks stores variable-length blocks of items in one backing array.
// Released blocks are reused by later allocations of the same length.
type Blocks[T any] struct {
	items    []T
	released map[uint32][]uint32
}

// Allocate stores items in a new block.
func (b *Blocks[T]) Allocate(items ...T) (Block, error) {
	count := uint32(len(items))
	if count == 0 {
		return Block{}, nil
	}

	if offsets := b.released[count]; len(offsets) > 0 {
		offset := offsets[len(offsets)-1]
		b.released[count] = offsets[:len(offsets)-1]
		copy(b.items[offset:offset+count], items)
		return Block{Offset: offset, Count: count}, nil
	}

	if len(b.items)+len(items) > cap(b.items) {
		return Block{}, errors.Wrapf(ErrOutOfSpace, "block of %d items does not fit, used: %d, capacity: %d",
			count, len(b.items), cap(b.items))
	}

	offset := uint32(len(b.items))
	b.items = append(b.items, items...)
	return Block{Offset: offset, Count: count}, nil
}

// Get returns items of the block. Returned slice aliases the arena.
func (b *Blocks[T]) Get(block Block) []T {
	if block.Count == 0 {
		return nil
	}
	return b.items[block.Offset : block.Offset+block.Count : block.Offset+block.Count]
}

// Remove deletes item at position i of the block, preserving order of the remaining items. The freed tail row is
// released as one-item block.
func (b *Blocks[T]) Remove(block Block, i uint32) Block {
	if i >= block.Count {
		panic(errors.Errorf("item %d out of block of %d items", i, block.Count))
	}
	if block.Count == 1 {
		b.Release(block)
		return Block{}
	}

	items := b.Get(block)
	copy(items[i:], items[i+1:])
	b.Release(Block{Offset: block.Offset + block.Count - 1, Count: 1})
	return Block{Offset: block.Offset, Count: block.Count - 1}
}

// Release marks block as reusable.
func (b *Blocks[T]) Release(block Block) {
	if block.Count == 0 {
		return
	}
	clear(b.items[block.Offset : block.Offset+block.Count])
	b.released[block.Count] = append(b.released[block.Count], block.Offset)
}

// Used returns number of item rows taken from the arena.
func (b *Blocks[T]) Used() uint32 {
	return uint32(len(b.items))
}

// Capacity returns total number of item rows in the arena.
func (b *Blocks[T]) Capacity() uint32 {
	return uint32(cap(b.items))
}

// Reset releases all the blocks at once.
func (b *Blocks[T]) Reset() {
	clear(b.items)
	b.items = b.items[:0]
	clear(b.released)
}
