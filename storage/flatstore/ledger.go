package flatstore

import (
	"fmt"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
)

// ledgerEntry records one stored image in insertion order. The ledger
// is the orderable index behind FIFO eviction: oldest entries are
// dropped first, without scanning the key space.
type ledgerEntry struct {
	RecordID   string
	InsertedAt int64 // unix micro
	Size       int64 // stored token bytes
}

func marshalLedger(entries []ledgerEntry) []byte {
	size := varint.PositiveInt.Size(len(entries))
	for _, e := range entries {
		size += ord.String.Size(e.RecordID)
		size += varint.Int64.Size(e.InsertedAt)
		size += varint.Int64.Size(e.Size)
	}

	buf := make([]byte, size)
	n := varint.PositiveInt.Marshal(len(entries), buf)
	for _, e := range entries {
		n += ord.String.Marshal(e.RecordID, buf[n:])
		n += varint.Int64.Marshal(e.InsertedAt, buf[n:])
		n += varint.Int64.Marshal(e.Size, buf[n:])
	}
	return buf
}

func unmarshalLedger(data []byte) ([]ledgerEntry, error) {
	count, n, err := varint.PositiveInt.Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("ledger count: %w", err)
	}

	entries := make([]ledgerEntry, 0, count)
	for i := 0; i < count; i++ {
		var e ledgerEntry
		var m int

		e.RecordID, m, err = ord.String.Unmarshal(data[n:])
		if err != nil {
			return nil, fmt.Errorf("ledger entry %d: %w", i, err)
		}
		n += m

		e.InsertedAt, m, err = varint.Int64.Unmarshal(data[n:])
		if err != nil {
			return nil, fmt.Errorf("ledger entry %d: %w", i, err)
		}
		n += m

		e.Size, m, err = varint.Int64.Unmarshal(data[n:])
		if err != nil {
			return nil, fmt.Errorf("ledger entry %d: %w", i, err)
		}
		n += m

		entries = append(entries, e)
	}
	return entries, nil
}

// withoutID returns the ledger minus any entry for id.
func withoutID(entries []ledgerEntry, id string) []ledgerEntry {
	out := entries[:0]
	for _, e := range entries {
		if e.RecordID != id {
			out = append(out, e)
		}
	}
	return out
}
