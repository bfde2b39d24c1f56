package flatstore

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/geoset/codec"
	"github.com/poiesic/geoset/core"
	"github.com/poiesic/geoset/media"
	"github.com/poiesic/geoset/storage"
)

func newTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	store := New(filepath.Join(t.TempDir(), "flat.json"), opts...)
	require.True(t, store.Initialize(context.Background()))
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(query string) *core.Record {
	return core.NewRecord(core.RecordData{
		Query:             query,
		GroundTruthAnswer: "answer",
	})
}

func TestStore_SaveAndGetRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	record := testRecord("Which desert is this likely to be?")
	record.Image = media.EncodeDataURI("image/png", []byte("fake png bytes"))
	require.NoError(t, store.SaveRecord(ctx, record))

	got, err := store.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.Query, got.Query)
	assert.Equal(t, record.Image, got.Image)
}

func TestStore_GetRecordAbsent(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetRecord(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_UpsertReplaces(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	record := testRecord("q")
	require.NoError(t, store.SaveRecord(ctx, record))

	core.ApplyUpdate(record, core.RecordData{Query: "q2", GroundTruthAnswer: "a2"})
	require.NoError(t, store.SaveRecord(ctx, record))

	all, err := store.GetAllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "q2", all[0].Query)
	assert.Equal(t, 2, all[0].Version)
}

func TestStore_UpsertWithoutImageDropsStoredImage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	record := testRecord("q")
	record.Image = media.EncodeDataURI("image/png", []byte("bytes"))
	require.NoError(t, store.SaveRecord(ctx, record))

	record.Image = ""
	require.NoError(t, store.SaveRecord(ctx, record))

	got, err := store.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Image)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.ImageCount)
}

func TestStore_DeleteRecordIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	record := testRecord("q")
	require.NoError(t, store.SaveRecord(ctx, record))
	require.NoError(t, store.DeleteRecord(ctx, record.ID))
	require.NoError(t, store.DeleteRecord(ctx, record.ID))
	require.NoError(t, store.DeleteRecord(ctx, "never existed"))

	all, err := store.GetAllRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_OrderedByUpdatedDesc(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	older := testRecord("first")
	older.UpdatedAt = time.Now().Add(-time.Hour)
	newer := testRecord("second")

	require.NoError(t, store.SaveRecord(ctx, older))
	require.NoError(t, store.SaveRecord(ctx, newer))

	all, err := store.GetAllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "second", all[0].Query)
	assert.Equal(t, "first", all[1].Query)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "flat.json")

	store := New(path)
	require.True(t, store.Initialize(ctx))
	record := testRecord("persisted?")
	record.Image = media.EncodeDataURI("image/png", []byte("img"))
	require.NoError(t, store.SaveRecord(ctx, record))
	require.NoError(t, store.SaveConfig(ctx, storage.ConfigKeyExportConfig, json.RawMessage(`{"format":"json"}`)))
	require.NoError(t, store.Close())

	reopened := New(path)
	require.True(t, reopened.Initialize(ctx))
	defer reopened.Close()

	got, err := reopened.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.Image, got.Image)

	cfg, err := reopened.GetConfig(ctx, storage.ConfigKeyExportConfig)
	require.NoError(t, err)
	assert.JSONEq(t, `{"format":"json"}`, string(cfg))

	stats, err := reopened.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ImageCount)
}

func TestStore_LegacyPlainValuesStillParse(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "flat.json")

	// A file written before compression was introduced: plain JSON
	// values without the codec prefix.
	records := []*core.Record{testRecord("legacy record")}
	plain, err := storage.MarshalRecordList(records)
	require.NoError(t, err)
	kv := map[string]string{
		"dataEntries": string(plain),
		"tagConfigs":  `[{"id":"region","name":"region","type":"text"}]`,
	}
	raw, err := json.Marshal(kv)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	store := New(path)
	require.True(t, store.Initialize(ctx))
	defer store.Close()

	all, err := store.GetAllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "legacy record", all[0].Query)

	cfg, err := store.GetConfig(ctx, storage.ConfigKeyTagDefinitions)
	require.NoError(t, err)
	assert.Contains(t, string(cfg), "region")
}

func TestStore_CorruptFileStartsEmpty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "flat.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store := New(path)
	assert.True(t, store.Initialize(ctx))
	defer store.Close()

	all, err := store.GetAllRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestStore_EvictsOldestImagesPastHighWater(t *testing.T) {
	ctx := context.Background()
	// Small capacity so a handful of incompressible images crosses the
	// high-water mark. Eviction keeps at most two.
	store := newTestStore(t, WithCapacity(16<<10), WithTargetImageCount(2))

	ids := make([]string, 0, 6)
	for i := 0; i < 6; i++ {
		record := testRecord(fmt.Sprintf("q%d", i))
		record.Image = media.EncodeDataURI("image/png", randomish(3<<10, byte(i)))
		require.NoError(t, store.SaveRecord(ctx, record))
		ids = append(ids, record.ID)
	}

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, stats.EntryCount)
	assert.Less(t, stats.ImageCount, 6)

	// Text fields survive eviction even where the image did not.
	for _, id := range ids {
		got, gerr := store.GetRecord(ctx, id)
		require.NoError(t, gerr)
		require.NotNil(t, got)
	}

	// The newest image is the one guaranteed to remain.
	last, err := store.GetRecord(ctx, ids[len(ids)-1])
	require.NoError(t, err)
	assert.NotEmpty(t, last.Image)

	first, err := store.GetRecord(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, first.Image)
}

func TestStore_OversizedImageKeepsTextFields(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t, WithCapacity(8<<10), WithTargetImageCount(0))

	record := testRecord("tiny capacity")
	// Incompressible and larger than the whole store; recompression
	// cannot run on a non-image payload, so the image is dropped.
	record.Image = media.EncodeDataURI("image/png", randomish(64<<10, 7))
	require.NoError(t, store.SaveRecord(ctx, record))

	got, err := store.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "tiny capacity", got.Query)
	assert.Empty(t, got.Image)
}

func TestStore_StatsMeasuresCompression(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	record := testRecord(strings.Repeat("the quick brown fox ", 200))
	require.NoError(t, store.SaveRecord(ctx, record))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Greater(t, stats.CompressionRatio, 0.0)
	assert.Less(t, stats.CompressionRatio, 1.0)
	assert.Greater(t, stats.CapacityRatio, 0.0)
}

func TestStore_ClearAll(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveRecord(ctx, testRecord("q")))
	require.NoError(t, store.SaveConfig(ctx, storage.ConfigKeyTagDefinitions, json.RawMessage(`[]`)))
	require.NoError(t, store.ClearAll(ctx))

	all, err := store.GetAllRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	cfg, err := store.GetConfig(ctx, storage.ConfigKeyTagDefinitions)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestStore_ClosedRejectsWrites(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	require.NoError(t, store.Close())

	err := store.SaveRecord(ctx, testRecord("q"))
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}

func TestStore_StoredValuesAreCompressed(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "flat.json")

	store := New(path)
	require.True(t, store.Initialize(ctx))
	require.NoError(t, store.SaveRecord(ctx, testRecord("q")))
	require.NoError(t, store.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	var kv map[string]string
	require.NoError(t, json.Unmarshal(raw, &kv))
	assert.True(t, codec.IsCompressed(kv["dataEntries"]))
}

// randomish fills a buffer with a pattern flate cannot shrink much.
func randomish(n int, seed byte) []byte {
	out := make([]byte, n)
	state := uint32(seed) + 1
	for i := range out {
		state = state*1664525 + 1013904223
		out[i] = byte(state >> 24)
	}
	return out
}
