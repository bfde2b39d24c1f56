package flatstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLedgerRoundTrip(t *testing.T) {
	entries := []ledgerEntry{
		{RecordID: "a", InsertedAt: 1_700_000_000_000_000, Size: 512},
		{RecordID: "b", InsertedAt: 1_700_000_000_000_001, Size: 2048},
		{RecordID: "c", InsertedAt: 1_700_000_000_000_002, Size: 0},
	}

	got, err := unmarshalLedger(marshalLedger(entries))
	require.NoError(t, err)
	assert.Equal(t, entries, got)
}

func TestLedgerEmpty(t *testing.T) {
	got, err := unmarshalLedger(marshalLedger(nil))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestUnmarshalLedgerTruncated(t *testing.T) {
	data := marshalLedger([]ledgerEntry{{RecordID: "abcdef", InsertedAt: 1, Size: 2}})
	_, err := unmarshalLedger(data[:len(data)-3])
	assert.Error(t, err)
}

func TestWithoutID(t *testing.T) {
	entries := []ledgerEntry{{RecordID: "a"}, {RecordID: "b"}, {RecordID: "a"}}
	kept := withoutID(entries, "a")
	require.Len(t, kept, 1)
	assert.Equal(t, "b", kept[0].RecordID)
}
