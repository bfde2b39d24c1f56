package geoset

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/geoset/core"
	"github.com/poiesic/geoset/storage"
	"github.com/poiesic/geoset/storage/flatstore"
)

func TestNewStore_ElectsLocalBackend(t *testing.T) {
	ctx := context.Background()

	store := NewStore(ctx, WithDataDir(t.TempDir()))
	defer store.Close()

	mode, err := store.Adapter().ActiveMode(ctx)
	require.NoError(t, err)
	// With no remote configured the directory tree wins the election.
	assert.Equal(t, storage.ModeDirectory, mode)

	record := core.NewRecord(core.RecordData{
		Query:             "highest mountain in africa",
		GroundTruthAnswer: "kilimanjaro",
	})
	require.NoError(t, store.Adapter().SaveRecord(ctx, record))

	got, err := store.Adapter().GetRecord(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.Query, got.Query)
}

func TestStore_ManagerFactories(t *testing.T) {
	ctx := context.Background()

	store := NewStore(ctx, WithDataDir(t.TempDir()))
	defer store.Close()

	assert.NotNil(t, store.NewExporter())
	assert.NotNil(t, store.NewBackupManager())

	legacy := flatstore.New(t.TempDir() + "/legacy.json")
	defer legacy.Close()

	manager, err := store.NewMigrationManager(ctx, legacy)
	require.NoError(t, err)
	assert.NotNil(t, manager)
}
