package volkv

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlotAllocatorSkipsReserved(t *testing.T) {
	t.Parallel()

	a := newSlotAllocator(t.TempDir())
	first := a.allocate()
	assert.Equal(t, Slot(2), first, "slot 0 is null, slot 1 is the root")
	assert.Equal(t, Slot(3), a.allocate())
}

func TestSlotAllocatorSkipsExistingFiles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(batchPath(dir, 2), []byte{leafTag}, 0o644))
	require.NoError(t, os.WriteFile(batchPath(dir, 3), []byte{leafTag}, 0o644))

	a := newSlotAllocator(dir)
	assert.Equal(t, Slot(4), a.allocate())
}

func TestSlotReleaseAndRestartReclaimsHoles(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	a := newSlotAllocator(dir)
	for s := Slot(2); s <= 5; s++ {
		got := a.allocate()
		require.Equal(t, s, got)
		require.NoError(t, os.WriteFile(batchPath(dir, got), []byte{leafTag}, 0o644))
	}

	require.NoError(t, a.release(3))
	// The live counter never moves backwards...
	assert.Equal(t, Slot(6), a.allocate())

	// ...but a fresh allocator over the same directory finds the hole.
	b := newSlotAllocator(dir)
	assert.Equal(t, Slot(3), b.allocate())
}

func TestSlotReleaseMissingFile(t *testing.T) {
	t.Parallel()

	a := newSlotAllocator(t.TempDir())
	assert.NoError(t, a.release(42))
}
