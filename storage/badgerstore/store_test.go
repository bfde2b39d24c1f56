package badgerstore

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/geoset/core"
	"github.com/poiesic/geoset/media"
	"github.com/poiesic/geoset/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store := New("", WithInMemory())
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

// pngDataURI renders a real decodable PNG so thumbnailing has
// something to work on.
func pngDataURI(t *testing.T, width, height int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return media.EncodeDataURI("image/png", buf.Bytes())
}

func TestStore_SaveAndGetRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	record := testRecord("Which continent is this savanna most likely on?")
	record.Image = pngDataURI(t, 32, 32)
	require.NoError(t, store.SaveRecord(ctx, record))

	got, err := store.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, record.Query, got.Query)
	assert.Equal(t, record.Image, got.Image)
	assert.Equal(t, record.Version, got.Version)
}

func TestStore_GetRecordAbsent(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetRecord(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_ListUsesThumbnails(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	record := testRecord("large image")
	// Larger than the thumbnail bound so the thumbnail genuinely
	// differs from the original.
	record.Image = pngDataURI(t, 512, 512)
	require.NoError(t, store.SaveRecord(ctx, record))

	list, err := store.GetAllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.NotEmpty(t, list[0].Image)
	assert.True(t, strings.HasPrefix(list[0].Image, "data:image/jpeg"))
	assert.NotEqual(t, record.Image, list[0].Image)

	export, err := store.GetAllRecordsForExport(ctx)
	require.NoError(t, err)
	require.Len(t, export, 1)
	assert.Equal(t, record.Image, export[0].Image)
}

func TestStore_OrderedByUpdatedDesc(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	base := time.Now().UTC()
	for i, q := range []string{"oldest", "middle", "newest"} {
		record := testRecord(q)
		record.UpdatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, store.SaveRecord(ctx, record))
	}

	all, err := store.GetAllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "newest", all[0].Query)
	assert.Equal(t, "middle", all[1].Query)
	assert.Equal(t, "oldest", all[2].Query)
}

func TestStore_UpsertMovesIndexEntry(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	first := testRecord("first")
	first.UpdatedAt = time.Now().UTC().Add(-time.Hour)
	second := testRecord("second")
	require.NoError(t, store.SaveRecord(ctx, first))
	require.NoError(t, store.SaveRecord(ctx, second))

	// Updating the older record moves it to the front without leaving
	// a duplicate index entry behind.
	core.ApplyUpdate(first, core.RecordData{Query: "first updated", GroundTruthAnswer: "a"})
	require.NoError(t, store.SaveRecord(ctx, first))

	all, err := store.GetAllRecords(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "first updated", all[0].Query)
}

func TestStore_DeleteRecord(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	record := testRecord("q")
	record.Image = pngDataURI(t, 16, 16)
	require.NoError(t, store.SaveRecord(ctx, record))
	require.NoError(t, store.DeleteRecord(ctx, record.ID))
	require.NoError(t, store.DeleteRecord(ctx, record.ID))

	got, err := store.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Nil(t, got)

	all, err := store.GetAllRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.EntryCount)
	assert.Zero(t, stats.ImageCount)
}

func TestStore_UpsertWithoutImageDropsStoredImage(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	record := testRecord("q")
	record.Image = pngDataURI(t, 16, 16)
	require.NoError(t, store.SaveRecord(ctx, record))

	record.Image = ""
	require.NoError(t, store.SaveRecord(ctx, record))

	got, err := store.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Image)
}

func TestStore_MalformedImageKeepsTextFields(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	record := testRecord("q")
	record.Image = "not a data uri"
	require.NoError(t, store.SaveRecord(ctx, record))

	got, err := store.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "q", got.Query)
	assert.Empty(t, got.Image)
}

func TestStore_Config(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	value, err := store.GetConfig(ctx, storage.ConfigKeyTagDefinitions)
	require.NoError(t, err)
	assert.Nil(t, value)

	defs := json.RawMessage(`[{"id":"region","name":"region","type":"select","options":["asia"]}]`)
	require.NoError(t, store.SaveConfig(ctx, storage.ConfigKeyTagDefinitions, defs))

	value, err = store.GetConfig(ctx, storage.ConfigKeyTagDefinitions)
	require.NoError(t, err)
	assert.JSONEq(t, string(defs), string(value))
}

func TestStore_Stats(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	withImage := testRecord("with image")
	withImage.Image = pngDataURI(t, 16, 16)
	require.NoError(t, store.SaveRecord(ctx, withImage))
	require.NoError(t, store.SaveRecord(ctx, testRecord("text only")))

	stats, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.EntryCount)
	assert.Equal(t, 1, stats.ImageCount)
	assert.Zero(t, stats.CapacityRatio)
}

func TestStore_ClearAll(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	require.NoError(t, store.SaveRecord(ctx, testRecord("q")))
	require.NoError(t, store.SaveConfig(ctx, storage.ConfigKeyExportConfig, json.RawMessage(`{}`)))
	require.NoError(t, store.ClearAll(ctx))

	all, err := store.GetAllRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	cfg, err := store.GetConfig(ctx, storage.ConfigKeyExportConfig)
	require.NoError(t, err)
	assert.Nil(t, cfg)
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	store := New(dir)
	require.True(t, store.Initialize(ctx))
	record := testRecord("persisted")
	require.NoError(t, store.SaveRecord(ctx, record))
	require.NoError(t, store.Close())

	reopened := New(dir)
	require.True(t, reopened.Initialize(ctx))
	defer reopened.Close()

	got, err := reopened.GetRecord(ctx, record.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "persisted", got.Query)
}

func TestStore_ClosedReportsStorageClosed(t *testing.T) {
	ctx := context.Background()
	store := New("", WithInMemory())
	require.True(t, store.Initialize(ctx))
	require.NoError(t, store.Close())

	err := store.SaveRecord(ctx, testRecord("q"))
	assert.ErrorIs(t, err, storage.ErrStorageClosed)
}
