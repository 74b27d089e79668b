package alloc

import "github.com/pkg/errors"

// ErrOutOfSpace is returned when arena has no free slot left.
var ErrOutOfSpace = errors.New("out of space")

// Index is the constraint satisfied by slot indices.
type Index interface {
	~uint32
}

// NewSlots creates allocator handing out indices 0..capacity-1.
func NewSlots[T Index](capacity uint32) *Slots[T] {
	free := make([]T, capacity)
	for i := range free {
		free[i] = T(i)
	}
	return &Slots[T]{
		free:      free,
		capacity:  uint64(capacity),
		commitPtr: uint64(capacity),
		putPtr:    uint64(capacity),
	}
}

// Slots is the ring of free indices of fixed-capacity arena.
// Deallocated indices become available again only after Commit, so an index released during a tick
// is never handed out again within the same tick.
type Slots[T Index] struct {
	free     []T
	capacity uint64

	// Pointers grow monotonically, position in the ring is ptr % capacity.
	getPtr, commitPtr, putPtr uint64
}

// Capacity returns the number of indices managed by allocator.
func (s *Slots[T]) Capacity() uint32 {
	return uint32(s.capacity)
}

// InUse returns number of allocated indices, including the ones deallocated but not committed yet.
func (s *Slots[T]) InUse() uint32 {
	return uint32(s.capacity - (s.putPtr - s.getPtr))
}

// Allocate returns free index.
func (s *Slots[T]) Allocate() (T, error) {
	if s.getPtr == s.commitPtr {
		return 0, errors.WithStack(ErrOutOfSpace)
	}
	index := s.free[s.getPtr%s.capacity]
	s.getPtr++
	return index, nil
}

// Deallocate returns index to the ring.
func (s *Slots[T]) Deallocate(index T) {
	if uint64(index) >= s.capacity {
		panic(errors.Errorf("index %d out of bounds, capacity: %d", index, s.capacity))
	}
	if s.putPtr-s.getPtr == s.capacity {
		// This is really critical because it means that we deallocated more than allocated.
		panic("no space left in the ring")
	}

	s.free[s.putPtr%s.capacity] = index
	s.putPtr++
}

// Commit makes deallocated indices available for allocation.
func (s *Slots[T]) Commit() {
	s.commitPtr = s.putPtr
}

// Reset returns all the indices to the allocator.
func (s *Slots[T]) Reset() {
	for i := range s.free {
		s.free[i] = T(i)
	}
	s.getPtr = 0
	s.commitPtr = s.capacity
	s.putPtr = s.capacity
}
