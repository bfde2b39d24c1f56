package core

import "time"

// NewRecord creates a fresh record at version 1 with empty history.
// The caller keeps ownership of data; the record stores a deep copy.
func NewRecord(data RecordData) *Record {
	now := time.Now().UTC()
	return &Record{
		ID:         NewID(),
		RecordData: data.Clone(),
		CreatedAt:  now,
		UpdatedAt:  now,
		Version:    1,
	}
}

// ApplyUpdate replaces the record's mutable fields with data, pushing
// the prior state onto history and bumping the version. After N updates
// to a freshly created record, Version == N+1 and History holds entries
// for versions 1..N in order.
func ApplyUpdate(record *Record, data RecordData) {
	action := ActionUpdate
	if record.Version == 1 && len(record.History) == 0 {
		action = ActionCreate
	}

	record.History = append(record.History, HistoryEntry{
		Version:   record.Version,
		Timestamp: record.UpdatedAt,
		Action:    action,
		Data:      record.RecordData.Clone(),
	})
	record.RecordData = data.Clone()
	record.Version++
	record.UpdatedAt = time.Now().UTC()
}
