//go:build unix

package monobuf

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shynur/ipcator/pkg/pagesize"
	"github.com/shynur/ipcator/pkg/region"
)

func TestAllocateWithinLastInsertedRegion(t *testing.T) {
	b := WithInitialSize(pagesize.Size())
	defer b.Release()

	p, err := b.Allocate(100, 1)
	require.NoError(t, err)
	r, err := b.Upstream().LastInserted()
	require.NoError(t, err)
	assert.Truef(t, r.Contains(p), "Allocate returned %#x, not within last-inserted region [%#x, %#x)", p, r.Addr(), r.Addr()+uintptr(r.Len()))
}

func TestGrowthCrossesRegions(t *testing.T) {
	b := WithInitialSize(4096)
	defer b.Release()

	p1, err := b.Allocate(100, 1)
	require.NoError(t, err)
	r1, err := b.Upstream().LastInserted()
	require.NoError(t, err)

	p2, err := b.Allocate(4096, 1)
	require.NoError(t, err)
	r2, err := b.Upstream().LastInserted()
	require.NoError(t, err)

	assert.NotEqual(t, r1.Addr(), r2.Addr(), "expected the large second allocation to land in a different region")
	assert.True(t, r1.Contains(p1), "p1 should be within the first region")
	assert.True(t, r2.Contains(p2), "p2 should be within the second region")
	assert.GreaterOrEqual(t, uintptr(r2.Len()), uintptr(4096))
}

func TestDeallocateIsNoop(t *testing.T) {
	b := WithInitialSize(4096)
	defer b.Release()

	p, err := b.Allocate(64, 1)
	require.NoError(t, err)
	assert.NoError(t, b.Deallocate(p, 64, 1))

	// The region backing p must still be intact after the no-op.
	r, err := b.Upstream().LastInserted()
	require.NoError(t, err)
	assert.True(t, r.Contains(p))
}

func TestReleaseResetsNextChunk(t *testing.T) {
	b := WithInitialSize(4096)

	_, err := b.Allocate(100, 1)
	require.NoError(t, err)
	_, err = b.Allocate(4096, 1)
	require.NoError(t, err)
	b.Release()

	assert.Equal(t, 0, b.Upstream().Len())
	assert.Equal(t, b.initialSize, b.nextChunk)
}

func TestZeroSizeAllocateIsInvalidArgument(t *testing.T) {
	b := WithInitialSize(4096)
	defer b.Release()
	_, err := b.Allocate(0, 1)
	assert.ErrorIs(t, err, region.ErrInvalidArgument)
}

func TestAllocateAlignmentAtPageSizeSucceeds(t *testing.T) {
	b := WithInitialSize(4096)
	defer b.Release()
	_, err := b.Allocate(64, pagesize.Size())
	assert.NoError(t, err)
}

func TestAllocateAlignmentBeyondPageSizeIsUnsupported(t *testing.T) {
	b := WithInitialSize(4096)
	defer b.Release()
	_, err := b.Allocate(64, pagesize.Size()*2)
	assert.ErrorIs(t, err, region.ErrAlignmentUnsupported)
}
