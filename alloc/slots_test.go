package alloc

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

const slotsCapacity = 10

type testIndex uint32

func TestSlotsMaxAllocation(t *testing.T) {
	requireT := require.New(t)
	s := NewSlots[testIndex](slotsCapacity)

	for i := range testIndex(slotsCapacity) {
		index, err := s.Allocate()
		requireT.NoError(err, i)
		requireT.Equal(i, index)
	}
	requireT.EqualValues(slotsCapacity, s.InUse())

	index, err := s.Allocate()
	requireT.Error(err)
	requireT.True(errors.Is(err, ErrOutOfSpace))
	requireT.Equal(testIndex(0), index)
}

func TestSlotsDeallocatedAvailableAfterCommit(t *testing.T) {
	requireT := require.New(t)
	s := NewSlots[testIndex](slotsCapacity)

	for range slotsCapacity {
		_, err := s.Allocate()
		requireT.NoError(err)
	}

	s.Deallocate(3)
	s.Deallocate(7)

	_, err := s.Allocate()
	requireT.Error(err)

	s.Commit()
	requireT.EqualValues(slotsCapacity-2, s.InUse())

	index, err := s.Allocate()
	requireT.NoError(err)
	requireT.Equal(testIndex(3), index)

	index, err = s.Allocate()
	requireT.NoError(err)
	requireT.Equal(testIndex(7), index)

	_, err = s.Allocate()
	requireT.Error(err)
}

func TestSlotsWrapAround(t *testing.T) {
	requireT := require.New(t)
	s := NewSlots[testIndex](3)

	for range 100 {
		a, err := s.Allocate()
		requireT.NoError(err)
		b, err := s.Allocate()
		requireT.NoError(err)

		s.Deallocate(a)
		s.Deallocate(b)
		s.Commit()
	}
	requireT.EqualValues(0, s.InUse())
}

func TestSlotsDoubleDeallocationPanics(t *testing.T) {
	requireT := require.New(t)
	s := NewSlots[testIndex](2)

	requireT.Panics(func() {
		s.Deallocate(0)
	})
	requireT.Panics(func() {
		s.Deallocate(5)
	})
}

func TestSlotsReset(t *testing.T) {
	requireT := require.New(t)
	s := NewSlots[testIndex](3)

	for range 3 {
		_, err := s.Allocate()
		requireT.NoError(err)
	}
	s.Reset()
	requireT.EqualValues(0, s.InUse())

	index, err := s.Allocate()
	requireT.NoError(err)
	requireT.Equal(testIndex(0), index)
}
