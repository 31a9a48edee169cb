//go:build unix

package file

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireLock_ExclusiveUntilReleased(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store", ".lock")

	first, err := AcquireLock(path)
	require.NoError(t, err)
	assert.Equal(t, path, first.Path())

	_, err = AcquireLock(path)
	require.ErrorIs(t, err, ErrLocked)

	require.NoError(t, first.Release())

	second, err := AcquireLock(path)
	require.NoError(t, err)
	require.NoError(t, second.Release())
}

func TestLock_ReleaseTwiceIsSafe(t *testing.T) {
	l, err := AcquireLock(filepath.Join(t.TempDir(), ".lock"))
	require.NoError(t, err)
	require.NoError(t, l.Release())
	require.NoError(t, l.Release())

	var nilLock *Lock
	assert.NoError(t, nilLock.Release())
}

func TestSyncDir(t *testing.T) {
	require.NoError(t, SyncDir(t.TempDir()))
	assert.Error(t, SyncDir(filepath.Join(t.TempDir(), "missing")))
}
