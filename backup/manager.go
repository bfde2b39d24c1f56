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


// Package backup produces and consumes backend-independent snapshots
// of the whole record store, for disaster recovery or transfer between
// machines. Snapshots serialize to a single JSON document suitable for
// download as a file.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/poiesic/geoset/core"
	"github.com/poiesic/geoset/storage"
)

// FormatVersion is the snapshot format this build reads and writes.
// Other versions are read with a warning.
const FormatVersion = "1.0"

// ErrInvalidSnapshot indicates a snapshot that fails structural
// validation.
var ErrInvalidSnapshot = errors.New("invalid backup snapshot")

// Metadata describes the snapshot's contents.
type Metadata struct {
	EntryCount int          `json:"entryCount"`
	TotalBytes int64        `json:"totalBytes"`
	Backend    storage.Mode `json:"backend"`
}

// Snapshot is a full copy of the store at one instant.
type Snapshot struct {
	Version        string          `json:"version"`
	CreatedAt      time.Time       `json:"createdAt"`
	Metadata       Metadata        `json:"metadata"`
	Entries        []*core.Record  `json:"entries"`
	TagDefinitions json.RawMessage `json:"tagConfigs,omitempty"`
	ExportConfig   json.RawMessage `json:"exportConfig,omitempty"`
}

// Options controls snapshot creation.
type Options struct {
	// IncludeImages keeps image payloads in the snapshot. Stripping
	// them yields a much smaller file that restores text-complete
	// records.
	IncludeImages bool

	// Validate runs the structural checks on the freshly built
	// snapshot before returning it.
	Validate bool
}

// RestoreOptions controls snapshot restoration.
type RestoreOptions struct {
	// Overwrite skips the safety snapshot of current state. With it
	// false, a restore that fails partway re-applies the prior state
	// instead of leaving the store partially filled.
	Overwrite bool
}

// Manager creates and restores snapshots through the storage adapter,
// independent of which backend is active.
type Manager struct {
	adapter *storage.Adapter
	logger  *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewManager creates a backup manager over the adapter.
func NewManager(adapter *storage.Adapter, opts ...Option) *Manager {
	m := &Manager{
		adapter: adapter,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Create builds a snapshot from the full record set at export fidelity.
func (m *Manager) Create(ctx context.Context, opts Options) (*Snapshot, error) {
	records, err := m.adapter.GetAllRecordsForExport(ctx)
	if err != nil {
		return nil, err
	}

	entries := make([]*core.Record, len(records))
	for i, record := range records {
		entries[i] = record.Clone()
		if !opts.IncludeImages {
			stripImages(entries[i])
		}
	}

	mode, err := m.adapter.ActiveMode(ctx)
	if err != nil {
		return nil, err
	}

	snapshot := &Snapshot{
		Version:   FormatVersion,
		CreatedAt: time.Now().UTC(),
		Entries:   entries,
	}

	if tags, err := m.adapter.GetConfig(ctx, storage.ConfigKeyTagDefinitions); err == nil && tags != nil {
		snapshot.TagDefinitions = tags
	}
	if export, err := m.adapter.GetConfig(ctx, storage.ConfigKeyExportConfig); err == nil && export != nil {
		snapshot.ExportConfig = export
	}

	serialized, err := json.Marshal(snapshot)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrSerializationFailed, err)
	}
	snapshot.Metadata = Metadata{
		EntryCount: len(entries),
		TotalBytes: int64(len(serialized)),
		Backend:    mode,
	}

	if opts.Validate {
		if err := m.Validate(snapshot); err != nil {
			return nil, err
		}
	}
	return snapshot, nil
}

// Validate runs structural checks. Missing version, timestamp or
// entries, and records without an id or query, are fatal; a metadata
// count that disagrees with the entries array, or an unexpected format
// version, only logs a warning.
func (m *Manager) Validate(snapshot *Snapshot) error {
	if snapshot == nil {
		return fmt.Errorf("%w: snapshot is nil", ErrInvalidSnapshot)
	}
	if snapshot.Version == "" {
		return fmt.Errorf("%w: missing version", ErrInvalidSnapshot)
	}
	if snapshot.CreatedAt.IsZero() {
		return fmt.Errorf("%w: missing creation timestamp", ErrInvalidSnapshot)
	}
	if snapshot.Entries == nil {
		return fmt.Errorf("%w: missing entries", ErrInvalidSnapshot)
	}

	for i, record := range snapshot.Entries {
		if record == nil || record.ID == "" {
			return fmt.Errorf("%w: entry %d has no id", ErrInvalidSnapshot, i)
		}
		if record.Query == "" {
			return fmt.Errorf("%w: entry %s has an empty query", ErrInvalidSnapshot, record.ID)
		}
	}

	if snapshot.Metadata.EntryCount != len(snapshot.Entries) {
		m.logger.Warn("snapshot metadata count disagrees with entries",
			"declared", snapshot.Metadata.EntryCount, "actual", len(snapshot.Entries))
	}
	if snapshot.Version != FormatVersion {
		m.logger.Warn("snapshot format version differs from expected",
			"snapshot", snapshot.Version, "expected", FormatVersion)
	}
	return nil
}

// Restore replaces the store's contents with the snapshot. Records
// replay in input order, then both named configs. Without Overwrite, a
// safety snapshot of current state is taken first and re-applied if
// replay fails partway, so a failed restore never leaves the store
// empty.
func (m *Manager) Restore(ctx context.Context, snapshot *Snapshot, opts RestoreOptions) error {
	if err := m.Validate(snapshot); err != nil {
		return err
	}

	var safety *Snapshot
	if !opts.Overwrite {
		var err error
		safety, err = m.Create(ctx, Options{IncludeImages: true})
		if err != nil {
			return fmt.Errorf("creating safety snapshot: %w", err)
		}
	}

	if err := m.replay(ctx, snapshot); err != nil {
		if safety != nil {
			m.logger.Error("restore failed, re-applying safety snapshot", "err", err)
			if rerr := m.replay(context.WithoutCancel(ctx), safety); rerr != nil {
				m.logger.Error("safety snapshot re-apply failed", "err", rerr)
			}
		}
		return err
	}
	return nil
}

// replay clears the store and writes the snapshot's contents.
func (m *Manager) replay(ctx context.Context, snapshot *Snapshot) error {
	if err := m.adapter.ClearAll(ctx); err != nil {
		return fmt.Errorf("clearing store: %w", err)
	}

	for _, record := range snapshot.Entries {
		if err := m.adapter.SaveRecord(ctx, record); err != nil {
			return fmt.Errorf("restoring record %s: %w", record.ID, err)
		}
	}

	if snapshot.TagDefinitions != nil {
		if err := m.adapter.SaveConfig(ctx, storage.ConfigKeyTagDefinitions, snapshot.TagDefinitions); err != nil {
			return fmt.Errorf("restoring tag definitions: %w", err)
		}
	}
	if snapshot.ExportConfig != nil {
		if err := m.adapter.SaveConfig(ctx, storage.ConfigKeyExportConfig, snapshot.ExportConfig); err != nil {
			return fmt.Errorf("restoring export config: %w", err)
		}
	}
	return nil
}

// stripImages clears image payloads from the record and its history.
func stripImages(record *core.Record) {
	record.Image = ""
	for i := range record.History {
		record.History[i].Data.Image = ""
	}
}
