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


// Package migrate moves records and configs from the legacy flat store
// into a structured backend, once, safely on every startup.
//
// The run is batched with bounded parallelism and optimizes for maximum
// data recovered: a record that fails to transfer is logged and counted
// but does not abort its batch. Config transfer, validation and the
// completion marker are all-or-nothing; an unrecoverable failure there
// triggers a rollback that re-seeds the legacy store from whatever
// reached the destination, then re-raises the original error.
package migrate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/panjf2000/ants/v2"

	"github.com/poiesic/geoset/storage"
)

// Version is the current migration-format version. A stored marker with
// an older version does not count as completed.
const Version = 1

// MarkerKey is the destination config key holding the completion
// marker.
const MarkerKey = "migrationMarker"

// DefaultBatchSize is how many records move per batch.
const DefaultBatchSize = 50

// DefaultParallelism bounds concurrent record transfers within a batch.
const DefaultParallelism = 4

// State describes where a migration stands.
type State string

const (
	StateNotNeeded      State = "not_needed"
	StateNeedsMigration State = "needs_migration"
	StateInProgress     State = "in_progress"
	StateCompleted      State = "completed"
)

// Marker is the persisted completion record.
type Marker struct {
	Version      int       `json:"version"`
	CompletedAt  time.Time `json:"completedAt"`
	EntriesCount int       `json:"entriesCount"`
	ConfigsCount int       `json:"configsCount"`
	FailedCount  int       `json:"failedCount,omitempty"`
}

// Report summarizes one migration run.
type Report struct {
	State    State
	Migrated int
	Failed   int
	Total    int
	Duration time.Duration
}

// Manager performs the one-shot legacy transfer.
type Manager struct {
	legacy      storage.Backend
	dest        storage.Backend
	batchSize   int
	parallelism int
	logger      *slog.Logger
	onProgress  func(migrated, total int)

	state atomic.Value // State
}

// Option configures a Manager.
type Option func(*Manager)

// WithBatchSize overrides the records-per-batch count.
func WithBatchSize(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.batchSize = n
		}
	}
}

// WithParallelism bounds concurrent transfers within a batch.
func WithParallelism(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.parallelism = n
		}
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithProgress registers a callback invoked as (migrated, total) after
// each batch and after the final config transfer. Total counts records
// plus the two named configs.
func WithProgress(fn func(migrated, total int)) Option {
	return func(m *Manager) { m.onProgress = fn }
}

// NewManager creates a manager moving data from legacy into dest. Both
// backends must already be initialized.
func NewManager(legacy, dest storage.Backend, opts ...Option) *Manager {
	m := &Manager{
		legacy:      legacy,
		dest:        dest,
		batchSize:   DefaultBatchSize,
		parallelism: DefaultParallelism,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.state.Store(StateNotNeeded)
	return m
}

// State returns the last observed migration state.
func (m *Manager) State() State {
	return m.state.Load().(State)
}

// NeedsMigration reports whether a migration should run: true iff no
// completed marker at the current version exists in the destination AND
// the legacy store holds data.
func (m *Manager) NeedsMigration(ctx context.Context) (bool, error) {
	raw, err := m.dest.GetConfig(ctx, MarkerKey)
	if err != nil {
		return false, err
	}
	if raw != nil {
		var marker Marker
		if err := json.Unmarshal(raw, &marker); err == nil && marker.Version >= Version {
			m.state.Store(StateCompleted)
			return false, nil
		}
	}

	stats, err := m.legacy.Stats(ctx)
	if err != nil {
		return false, err
	}
	if stats.EntryCount > 0 {
		m.state.Store(StateNeedsMigration)
		return true, nil
	}

	for _, key := range []string{storage.ConfigKeyTagDefinitions, storage.ConfigKeyExportConfig} {
		value, err := m.legacy.GetConfig(ctx, key)
		if err != nil {
			return false, err
		}
		if value != nil {
			m.state.Store(StateNeedsMigration)
			return true, nil
		}
	}

	m.state.Store(StateNotNeeded)
	return false, nil
}

// Migrate runs the transfer. Safe to call on every startup: when no
// migration is needed it returns immediately with a NotNeeded report.
func (m *Manager) Migrate(ctx context.Context) (*Report, error) {
	needed, err := m.NeedsMigration(ctx)
	if err != nil {
		return nil, err
	}
	if !needed {
		return &Report{State: m.State()}, nil
	}

	m.state.Store(StateInProgress)
	started := time.Now()

	records, err := m.legacy.GetAllRecordsForExport(ctx)
	if err != nil {
		return nil, m.rollback(ctx, fmt.Errorf("reading legacy records: %w", err))
	}

	// The two named configs count toward the reported total.
	total := len(records) + 2

	pool, err := ants.NewPool(m.parallelism)
	if err != nil {
		return nil, err
	}
	defer pool.Release()

	var failed atomic.Int64
	processed := 0
	for start := 0; start < len(records); start += m.batchSize {
		end := min(start+m.batchSize, len(records))
		batch := records[start:end]

		var wg sync.WaitGroup
		for _, record := range batch {
			wg.Add(1)
			if perr := pool.Submit(func() {
				defer wg.Done()
				if serr := m.dest.SaveRecord(ctx, record); serr != nil {
					m.logger.Warn("record not migrated", "record", record.ID, "err", serr)
					failed.Add(1)
				}
			}); perr != nil {
				// Pool rejection runs the transfer inline instead.
				if serr := m.dest.SaveRecord(ctx, record); serr != nil {
					m.logger.Warn("record not migrated", "record", record.ID, "err", serr)
					failed.Add(1)
				}
				wg.Done()
			}
		}
		wg.Wait()

		processed = end
		// The final batch reports together with the configs below.
		if processed < len(records) {
			m.reportProgress(processed, total)
		}

		if ctx.Err() != nil {
			return nil, m.rollback(ctx, ctx.Err())
		}
	}

	configsMoved, err := m.migrateConfigs(ctx)
	if err != nil {
		return nil, m.rollback(ctx, err)
	}
	m.reportProgress(total, total)

	migrated := len(records) - int(failed.Load())
	if err := m.validate(ctx, migrated); err != nil {
		return nil, m.rollback(ctx, err)
	}

	marker := Marker{
		Version:      Version,
		CompletedAt:  time.Now().UTC(),
		EntriesCount: migrated,
		ConfigsCount: configsMoved,
		FailedCount:  int(failed.Load()),
	}
	markerJSON, err := json.Marshal(marker)
	if err != nil {
		return nil, m.rollback(ctx, err)
	}
	if err := m.dest.SaveConfig(ctx, MarkerKey, markerJSON); err != nil {
		return nil, m.rollback(ctx, fmt.Errorf("writing completion marker: %w", err))
	}

	m.state.Store(StateCompleted)
	m.logger.Info("migration completed",
		"migrated", migrated, "failed", failed.Load(), "configs", configsMoved)

	return &Report{
		State:    StateCompleted,
		Migrated: migrated,
		Failed:   int(failed.Load()),
		Total:    total,
		Duration: time.Since(started),
	}, nil
}

func (m *Manager) migrateConfigs(ctx context.Context) (int, error) {
	moved := 0
	for _, key := range []string{storage.ConfigKeyTagDefinitions, storage.ConfigKeyExportConfig} {
		value, err := m.legacy.GetConfig(ctx, key)
		if err != nil {
			return moved, fmt.Errorf("reading legacy config %s: %w", key, err)
		}
		if value == nil {
			continue
		}
		err = RetryWithBackoff(ctx, func() error {
			return m.dest.SaveConfig(ctx, key, value)
		}, 2, 200*time.Millisecond)
		if err != nil {
			return moved, fmt.Errorf("migrating config %s: %w", key, err)
		}
		moved++
	}
	return moved, nil
}

// validate checks that entry counts match and that both named configs
// round-trip through the destination.
func (m *Manager) validate(ctx context.Context, expectedEntries int) error {
	stats, err := m.dest.Stats(ctx)
	if err != nil {
		return err
	}
	if stats.EntryCount != expectedEntries {
		return fmt.Errorf("%w: destination has %d entries, expected %d",
			ErrValidationFailed, stats.EntryCount, expectedEntries)
	}

	for _, key := range []string{storage.ConfigKeyTagDefinitions, storage.ConfigKeyExportConfig} {
		source, err := m.legacy.GetConfig(ctx, key)
		if err != nil {
			return err
		}
		if source == nil {
			continue
		}
		dest, err := m.dest.GetConfig(ctx, key)
		if err != nil {
			return err
		}
		if !jsonEqual(source, dest) {
			return fmt.Errorf("%w: config %s did not round-trip", ErrValidationFailed, key)
		}
	}
	return nil
}

// rollback re-seeds the legacy store from whatever reached the
// destination, so a failed migration leaves the legacy data materially
// intact, then re-raises the original error.
func (m *Manager) rollback(ctx context.Context, original error) error {
	m.state.Store(StateNeedsMigration)
	m.logger.Error("migration failed, restoring legacy store", "err", original)

	ctx = context.WithoutCancel(ctx)
	records, err := m.dest.GetAllRecordsForExport(ctx)
	if err != nil {
		m.logger.Error("rollback could not read destination", "err", err)
		return original
	}

	for _, record := range records {
		if serr := m.legacy.SaveRecord(ctx, record); serr != nil {
			m.logger.Warn("rollback re-seed failed for record", "record", record.ID, "err", serr)
		}
	}
	for _, key := range []string{storage.ConfigKeyTagDefinitions, storage.ConfigKeyExportConfig} {
		value, gerr := m.dest.GetConfig(ctx, key)
		if gerr != nil || value == nil {
			continue
		}
		if serr := m.legacy.SaveConfig(ctx, key, value); serr != nil {
			m.logger.Warn("rollback re-seed failed for config", "key", key, "err", serr)
		}
	}

	return original
}

func (m *Manager) reportProgress(migrated, total int) {
	if m.onProgress != nil {
		m.onProgress(migrated, total)
	}
}

// jsonEqual compares two JSON documents structurally, ignoring
// whitespace and key order.
func jsonEqual(a, b json.RawMessage) bool {
	var av, bv any
	if err := json.Unmarshal(a, &av); err != nil {
		return bytes.Equal(a, b)
	}
	if err := json.Unmarshal(b, &bv); err != nil {
		return false
	}
	ac, _ := json.Marshal(av)
	bc, _ := json.Marshal(bv)
	return bytes.Equal(ac, bc)
}
