// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package storage

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/poiesic/geoset/core"
)

// MarshalRecord serializes a record to the canonical JSON form shared
// by every backend and by the backup format.
func MarshalRecord(record *core.Record) ([]byte, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalRecord deserializes a record from its canonical JSON form.
func UnmarshalRecord(data []byte) (*core.Record, error) {
	var record core.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return &record, nil
}

// MarshalRecordList serializes a record slice, used by backends that
// store all entries under one key.
func MarshalRecordList(records []*core.Record) ([]byte, error) {
	data, err := json.Marshal(records)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return data, nil
}

// UnmarshalRecordList deserializes a record slice.
func UnmarshalRecordList(data []byte) ([]*core.Record, error) {
	var records []*core.Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSerializationFailed, err)
	}
	return records, nil
}

// SortByUpdatedDesc orders records by UpdatedAt descending, the order
// every list accessor must return.
func SortByUpdatedDesc(records []*core.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].UpdatedAt.After(records[j].UpdatedAt)
	})
}
