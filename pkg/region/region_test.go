//go:build unix

package region

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniqueName(t *testing.T) string {
	t.Helper()
	return "/ipcator-test-" + t.Name() + "-region"
}

func TestCreateZeroSizeIsInvalidArgument(t *testing.T) {
	_, err := Create(uniqueName(t), 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestCreateAndOpenRoundTrip(t *testing.T) {
	name := uniqueName(t)
	w, err := Create(name, 16)
	require.NoError(t, err)
	defer w.Close()

	w.Bytes()[5] = 42

	r, err := Open(name, false)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, byte(42), r.Bytes()[5])
	assert.Equal(t, AccessorReadOnly, r.Mode())
}

func TestDuplicateCreateIsAlreadyExists(t *testing.T) {
	name := uniqueName(t)
	w, err := Create(name, 16)
	require.NoError(t, err)
	defer w.Close()

	_, err = Create(name, 16)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestOpenNonexistentIsNotFoundFast(t *testing.T) {
	start := time.Now()
	_, err := Open("/ipcator-test-does-not-exist-ever", false)
	elapsed := time.Since(start)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Lessf(t, elapsed, 100*time.Millisecond, "Open on nonexistent name took %s, want fast failure", elapsed)
}

func TestCrossProcessUnlinkStillReadable(t *testing.T) {
	name := uniqueName(t)
	w, err := Create(name, 16)
	require.NoError(t, err)
	w.Bytes()[0] = 7

	r, err := Open(name, false)
	require.NoError(t, err)

	// Creator drops (unlinks); the already-open accessor's mapping stays
	// valid.
	require.NoError(t, w.Close())

	assert.Equal(t, byte(7), r.Bytes()[0])
	r.Close()

	_, err = Open(name, false)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMovedFromCloseIsNoop(t *testing.T) {
	var r Region
	assert.NoError(t, r.Close())
}

func TestDoubleCloseIsNoop(t *testing.T) {
	name := uniqueName(t)
	w, err := Create(name, 16)
	require.NoError(t, err)
	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestOpenWithRetrySucceedsAfterDelay(t *testing.T) {
	name := uniqueName(t)
	go func() {
		time.Sleep(30 * time.Millisecond)
		w, err := Create(name, 16)
		if err == nil {
			// Kept alive for the test's lifetime; closed (and so
			// unlinked) once the test finishes.
			t.Cleanup(func() { w.Close() })
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r, err := OpenWithRetry(ctx, name, false, time.Second)
	require.NoError(t, err)
	defer r.Close()
}

func TestCreateNameAtMaterializedPathLimitSucceeds(t *testing.T) {
	// shmRoot ("/dev/shm", 8 bytes) + name must be <= 255 bytes; a name of
	// 247 bytes (including its leading '/') sits exactly at that boundary.
	name := "/" + strings.Repeat("a", 246)
	require.Len(t, name, 247)

	w, err := Create(name, 16)
	require.NoError(t, err)
	defer w.Close()
}

func TestCreateNameExceedingMaterializedPathLimitIsInvalidArgument(t *testing.T) {
	name := "/" + strings.Repeat("a", 247)
	require.Len(t, name, 248)

	_, err := Create(name, 16)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestEqualByName(t *testing.T) {
	name := uniqueName(t)
	w, err := Create(name, 16)
	require.NoError(t, err)
	defer w.Close()

	r1, err := Open(name, false)
	require.NoError(t, err)
	defer r1.Close()
	r2, err := Open(name, false)
	require.NoError(t, err)
	defer r2.Close()

	assert.True(t, r1.Equal(r2))
}
