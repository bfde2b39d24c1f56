package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poiesic/geoset/core"
	"github.com/poiesic/geoset/storage"
	"github.com/poiesic/geoset/storage/dirstore"
)

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	backend := dirstore.New(t.TempDir())
	require.True(t, backend.Initialize(context.Background()))

	ts := httptest.NewServer(New(backend).Handler())
	t.Cleanup(func() {
		ts.Close()
		backend.Close()
	})
	return ts
}

func marshalRecord(t *testing.T, record *core.Record) string {
	t.Helper()
	data, err := json.Marshal(record)
	require.NoError(t, err)
	return string(data)
}

func testRecord(query string) *core.Record {
	return core.NewRecord(core.RecordData{
		Query:             query,
		GroundTruthAnswer: "answer",
	})
}

func TestServer_EntriesLifecycle(t *testing.T) {
	ts := newTestServer(t)
	record := testRecord("Which sea is most likely behind these cliffs?")

	resp, err := http.Post(ts.URL+"/entries", "application/json",
		strings.NewReader(marshalRecord(t, record)))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var saved map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&saved))
	assert.Equal(t, record.ID, saved["id"])

	resp, err = http.Get(ts.URL + "/entries/" + record.ID)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var got core.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, record.Query, got.Query)

	resp, err = http.Get(ts.URL + "/entries")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list []*core.Record
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	assert.Len(t, list, 1)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/entries/"+record.ID, nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestServer_GetEntryNotFound(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/entries/nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var payload map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
	assert.NotEmpty(t, payload["error"])
}

func TestServer_EmptyListIsArray(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/entries")
	require.NoError(t, err)
	defer resp.Body.Close()

	var raw json.RawMessage
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&raw))
	assert.Equal(t, "[]", strings.TrimSpace(string(raw)))
}

func TestServer_SaveRejectsMalformedAndInvalid(t *testing.T) {
	ts := newTestServer(t)

	t.Run("malformed json", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/entries", "application/json", strings.NewReader("{nope"))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})

	t.Run("invalid record", func(t *testing.T) {
		invalid := testRecord("q")
		invalid.Query = ""
		resp, err := http.Post(ts.URL+"/entries", "application/json",
			strings.NewReader(marshalRecord(t, invalid)))
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var payload map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		assert.Contains(t, payload["error"], "query")
	})
}

func TestServer_Config(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.URL + "/config/" + storage.ConfigKeyExportConfig)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, err = http.Post(ts.URL+"/config/"+storage.ConfigKeyExportConfig,
		"application/json", strings.NewReader(`{"format":"json"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/config/" + storage.ConfigKeyExportConfig)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var cfg map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cfg))
	assert.Equal(t, "json", cfg["format"])

	t.Run("rejects non-json value", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/config/whatever",
			"application/json", strings.NewReader("not json at all"))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServer_StatsAndClear(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/entries", "application/json",
		strings.NewReader(marshalRecord(t, testRecord("q"))))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	var stats storage.Stats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	assert.Equal(t, 1, stats.EntryCount)

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/clear", nil)
	require.NoError(t, err)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(ts.URL + "/stats")
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	resp.Body.Close()
	assert.Zero(t, stats.EntryCount)
}
