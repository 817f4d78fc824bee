package syncer

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/evidentry/evidentry/pkg/store"
)

func setupRetention(t *testing.T, retentionDays int) (*LogRetentionWorker, *store.IntegrationStore, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	integrations := store.NewIntegrationStore(db)
	require.NoError(t, integrations.AutoMigrate())

	return NewLogRetentionWorker(integrations, retentionDays, nil), integrations, db
}

func TestNewLogRetentionWorker(t *testing.T) {
	worker := NewLogRetentionWorker(nil, 30, nil)
	assert.Equal(t, 30*24*time.Hour, worker.retention)
	assert.Equal(t, 24*time.Hour, worker.interval)
}

func TestLogRetentionWorkerDisabled(t *testing.T) {
	// Zero retention disables the worker; Run returns without ticking.
	worker := NewLogRetentionWorker(nil, 0, nil)
	done := make(chan struct{})
	go func() {
		worker.Run(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("disabled worker did not return")
	}
}

func TestLogRetentionCleanup(t *testing.T) {
	worker, integrations, db := setupRetention(t, 90)

	integration := createDueIntegration(t, integrations, "retained")

	backdate := func(logID string, age time.Duration) {
		t.Helper()
		require.NoError(t, db.Model(&store.IntegrationLog{}).
			Where("id = ?", logID).
			Update("completed_at", time.Now().Add(-age)).Error)
	}

	// Terminal log past retention: deleted.
	oldCompleted, err := integrations.StartSyncLog(integration.ID, "sync")
	require.NoError(t, err)
	require.NoError(t, integrations.CompleteSync(integration.ID, oldCompleted.ID, 1, 0, nil))
	backdate(oldCompleted.ID, 120*24*time.Hour)

	// Never finalized: kept regardless of age.
	oldRunning, err := integrations.StartSyncLog(integration.ID, "sync")
	require.NoError(t, err)

	// Terminal log within retention: kept.
	recent, err := integrations.StartSyncLog(integration.ID, "sync")
	require.NoError(t, err)
	require.NoError(t, integrations.CompleteSync(integration.ID, recent.ID, 1, 0, nil))

	worker.cleanup()

	gone, err := integrations.GetLog(oldCompleted.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	for _, id := range []string{oldRunning.ID, recent.ID} {
		kept, err := integrations.GetLog(id)
		require.NoError(t, err)
		assert.NotNil(t, kept, id)
	}
}
