package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSyncCmd_Use(t *testing.T) {
	assert.Equal(t, "sync [dir]", syncCmd.Use)
	assert.Equal(t, "watch [dir]", watchCmd.Use)
}

func TestSyncCmd_RequiresDirectory(t *testing.T) {
	_, err := execute(t, "sync")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestSyncCmd_Executes(t *testing.T) {
	mocks, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "sync", "/kb")

	require.NoError(t, err)
	assert.Equal(t, "/kb", mocks.sync.lastRoot)
	assert.Contains(t, out, "Synchronising /kb...")
	assert.Contains(t, out, "Ingested: 2  Reindexed: 1  Deleted: 0  Unchanged: 4  Skipped: 0  Errors: 0")
}

func TestSyncCmd_Error(t *testing.T) {
	mocks, cleanup := setupTestServices()
	defer cleanup()
	mocks.sync.err = errBackend

	_, err := execute(t, "sync", "/kb")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync failed")
	assert.ErrorIs(t, err, errBackend)
}

func TestSyncCmd_ServiceNotConfigured(t *testing.T) {
	_, cleanup := setupTestServices()
	defer cleanup()
	syncService = nil

	_, err := execute(t, "sync", "/kb")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync service not configured")
}

func TestWatchCmd_Executes(t *testing.T) {
	mocks, cleanup := setupTestServices()
	defer cleanup()

	out, err := execute(t, "watch", "/kb")

	require.NoError(t, err)
	assert.Equal(t, "/kb", mocks.sync.lastRoot)
	assert.Contains(t, out, "Watching /kb")
	assert.Contains(t, out, "Ingested: 2")
}

func TestWatchCmd_Error(t *testing.T) {
	mocks, cleanup := setupTestServices()
	defer cleanup()
	mocks.sync.err = errBackend

	_, err := execute(t, "watch", "/kb")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "watch failed")
}
