package volkv

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLExpiry(t *testing.T) {
	t.Parallel()

	vol, _ := setup(t)
	require.NoError(t, vol.StartAutoDelete())

	for i := uint64(1); i <= 5; i++ {
		require.NoError(t, vol.PutTTL(i, "short", 1))
	}
	for i := uint64(6); i <= 10; i++ {
		require.NoError(t, vol.PutTTL(i, "long", 5))
	}

	time.Sleep(2500 * time.Millisecond)
	for i := uint64(1); i <= 5; i++ {
		_, err := vol.Get(i)
		require.ErrorIs(t, err, ErrKeyNotFound, "key %d should have expired", i)
	}
	for i := uint64(6); i <= 10; i++ {
		got, err := vol.Get(i)
		require.NoError(t, err, "key %d expired early", i)
		require.Equal(t, "long", got)
	}

	time.Sleep(4 * time.Second)
	for i := uint64(6); i <= 10; i++ {
		_, err := vol.Get(i)
		require.ErrorIs(t, err, ErrKeyNotFound, "key %d should have expired", i)
	}
}

func TestStartAutoDeleteTwice(t *testing.T) {
	t.Parallel()

	vol, _ := setup(t)
	require.NoError(t, vol.StartAutoDelete())
	assert.ErrorIs(t, vol.StartAutoDelete(), ErrAlreadyStarted)
}

func TestTTLWithoutWorkerIsIgnored(t *testing.T) {
	t.Parallel()

	vol, _ := setup(t)
	require.NoError(t, vol.PutTTL(1, "keep", 1))
	time.Sleep(1500 * time.Millisecond)
	got, err := vol.Get(1)
	require.NoError(t, err, "no worker running, nothing may expire")
	assert.Equal(t, "keep", got)
}

func TestTTLSurvivesRestart(t *testing.T) {
	t.Parallel()

	vol, dir := setup(t)
	require.NoError(t, vol.StartAutoDelete())
	require.NoError(t, vol.PutTTL(1, "doomed", 2))
	require.NoError(t, vol.Put(2, "keeper"))
	require.NoError(t, vol.StopAndFlush())

	_, err := os.Stat(filepath.Join(dir, expiryFile))
	require.NoError(t, err, "deadlines must be persisted on stop")

	vol2 := reopen(t, dir, WithAutoDelete())
	time.Sleep(3 * time.Second)

	_, err = vol2.Get(1)
	assert.ErrorIs(t, err, ErrKeyNotFound, "persisted deadline must fire after restart")
	got, err := vol2.Get(2)
	require.NoError(t, err)
	assert.Equal(t, "keeper", got)
}

func TestTTLOverwrittenByNewDeadline(t *testing.T) {
	t.Parallel()

	vol, _ := setup(t)
	require.NoError(t, vol.StartAutoDelete())
	require.NoError(t, vol.PutTTL(1, "v", 1))

	// Replace the deadline before it fires; the entry must live on.
	require.NoError(t, vol.Delete(1))
	require.NoError(t, vol.PutTTL(1, "v2", 10))

	time.Sleep(2500 * time.Millisecond)
	got, err := vol.Get(1)
	require.NoError(t, err, "overwritten deadline fired")
	assert.Equal(t, "v2", got)
}

func TestExplicitDeleteDropsDeadline(t *testing.T) {
	t.Parallel()

	vol, _ := setup(t)
	require.NoError(t, vol.StartAutoDelete())
	require.NoError(t, vol.PutTTL(1, "v", 1))
	require.NoError(t, vol.Delete(1))

	// Re-inserting without a TTL must not inherit the stale deadline.
	require.NoError(t, vol.Put(1, "fresh"))
	time.Sleep(2500 * time.Millisecond)
	got, err := vol.Get(1)
	require.NoError(t, err, "stale deadline deleted a fresh key")
	assert.Equal(t, "fresh", got)
}
