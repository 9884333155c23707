//go:build unix

package regionset

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shynur/ipcator/pkg/pagesize"
	"github.com/shynur/ipcator/pkg/region"
)

func TestOrderedAllocateTracksExactlyOneRegion(t *testing.T) {
	s := NewOrdered()
	defer s.Close()

	p, err := s.Allocate(200, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, s.Len())

	r, err := s.FindArena(p)
	require.NoError(t, err)
	assert.Equal(t, p, r.Addr())
	assert.GreaterOrEqual(t, uintptr(r.Len()), uintptr(200))
	assert.LessOrEqual(t, uintptr(r.Len()), pagesize.Ceil(200))
}

func TestOrderedFindArenaWithinRange(t *testing.T) {
	s := NewOrdered()
	defer s.Close()

	p, err := s.Allocate(200, 1)
	require.NoError(t, err)
	obj := p + 73
	r, err := s.FindArena(obj)
	require.NoError(t, err)
	assert.Equal(t, p, r.Addr())
}

func TestOrderedFindArenaForeignPointerIsInvalidArgument(t *testing.T) {
	s := NewOrdered()
	defer s.Close()

	_, err := s.Allocate(200, 1)
	require.NoError(t, err)

	foreign := uintptr(unsafe.Pointer(new(int)))
	_, err = s.FindArena(foreign)
	assert.ErrorIs(t, err, region.ErrInvalidArgument)
}

func TestOrderedDeallocateRestoresSize(t *testing.T) {
	s := NewOrdered()
	defer s.Close()

	p, err := s.Allocate(4096, 1)
	require.NoError(t, err)
	before := s.Len()
	require.NoError(t, s.Deallocate(p, 4096, 1))
	assert.Equal(t, before-1, s.Len())
}

func TestAlignmentTooLarge(t *testing.T) {
	s := NewOrdered()
	defer s.Close()
	_, err := s.Allocate(64, 2*pagesize.Size())
	assert.Error(t, err)
}

func TestOrderedIterVisitsEveryTrackedRegion(t *testing.T) {
	s := NewOrdered()
	defer s.Close()

	p1, err := s.Allocate(64, 1)
	require.NoError(t, err)
	p2, err := s.Allocate(128, 1)
	require.NoError(t, err)

	seen := make(map[uintptr]bool)
	for r := range s.Iter() {
		seen[r.Addr()] = true
	}
	assert.True(t, seen[p1])
	assert.True(t, seen[p2])
	assert.Len(t, seen, 2)
}

func TestOrderedIterStopsOnFalse(t *testing.T) {
	s := NewOrdered()
	defer s.Close()

	_, err := s.Allocate(64, 1)
	require.NoError(t, err)
	_, err = s.Allocate(64, 1)
	require.NoError(t, err)

	visited := 0
	for range s.Iter() {
		visited++
		break
	}
	assert.Equal(t, 1, visited)
}

func TestHashedLastInserted(t *testing.T) {
	s := NewHashed()
	defer s.Close()

	p1, err := s.Allocate(64, 1)
	require.NoError(t, err)
	r, err := s.LastInserted()
	require.NoError(t, err)
	assert.Equal(t, p1, r.Addr())

	p2, err := s.Allocate(64, 1)
	require.NoError(t, err)
	r, err = s.LastInserted()
	require.NoError(t, err)
	assert.Equal(t, p2, r.Addr())
}

func TestHashedIterVisitsEveryTrackedRegion(t *testing.T) {
	s := NewHashed()
	defer s.Close()

	p1, err := s.Allocate(64, 1)
	require.NoError(t, err)
	p2, err := s.Allocate(64, 1)
	require.NoError(t, err)

	seen := make(map[uintptr]bool)
	for r := range s.Iter() {
		seen[r.Addr()] = true
	}
	assert.True(t, seen[p1])
	assert.True(t, seen[p2])
	assert.Len(t, seen, 2)
}

func TestIsEqualIdentity(t *testing.T) {
	s1 := NewOrdered()
	defer s1.Close()
	s2 := NewOrdered()
	defer s2.Close()

	assert.True(t, s1.IsEqual(s1))
	assert.False(t, s1.IsEqual(s2))
}

func TestOrderedDeallocateUnknownPointerErrors(t *testing.T) {
	s := NewOrdered()
	defer s.Close()
	err := s.Deallocate(0xdeadbeef, 8, 1)
	assert.Error(t, err)
}
