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
	"context"
	"encoding/json"
	"log/slog"

	"github.com/poiesic/geoset/core"
)

// Adapter owns the single active-backend decision for the process
// lifetime. Construction starts the election asynchronously; every
// method awaits it before dispatching, so callers never race the
// decision. Once elected, the active backend never changes: a later
// per-call failure is surfaced to the caller, not retried elsewhere.
type Adapter struct {
	candidates []Backend
	logger     *slog.Logger

	ready   chan struct{}
	active  Backend
	initErr error
}

// AdapterOption configures an Adapter.
type AdapterOption func(*Adapter)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) AdapterOption {
	return func(a *Adapter) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// NewAdapter probes candidates in order and commits to the first whose
// Initialize reports success. The probe sequence runs on a background
// goroutine started here; losing candidates are closed immediately.
func NewAdapter(ctx context.Context, candidates []Backend, opts ...AdapterOption) *Adapter {
	a := &Adapter{
		candidates: candidates,
		logger:     slog.Default(),
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(a)
	}

	go a.elect(ctx)
	return a
}

func (a *Adapter) elect(ctx context.Context) {
	defer close(a.ready)

	for _, candidate := range a.candidates {
		if ctx.Err() != nil {
			a.initErr = ctx.Err()
			return
		}

		if !candidate.Initialize(ctx) {
			a.logger.Debug("storage backend unavailable", "mode", candidate.Mode())
			if err := candidate.Close(); err != nil {
				a.logger.Debug("closing unavailable backend", "mode", candidate.Mode(), "err", err)
			}
			continue
		}

		// Candidates after this one are never probed and hold no
		// resources until their own Initialize runs.
		a.active = candidate
		a.logger.Info("storage backend selected", "mode", candidate.Mode())
		return
	}

	a.initErr = ErrBackendUnavailable
	a.logger.Error("no storage backend available")
}

// await blocks until the election has finished.
func (a *Adapter) await(ctx context.Context) (Backend, error) {
	select {
	case <-a.ready:
		return a.active, a.initErr
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Active returns the elected backend, blocking until the election has
// finished. Callers that need the raw Backend contract, such as the
// migration manager, use this instead of the pass-through methods.
func (a *Adapter) Active(ctx context.Context) (Backend, error) {
	return a.await(ctx)
}

// ActiveMode reports the elected backend's mode, blocking until the
// election has finished.
func (a *Adapter) ActiveMode(ctx context.Context) (Mode, error) {
	backend, err := a.await(ctx)
	if err != nil {
		return "", err
	}
	return backend.Mode(), nil
}

// SaveRecord routes to the active backend.
func (a *Adapter) SaveRecord(ctx context.Context, record *core.Record) error {
	backend, err := a.await(ctx)
	if err != nil {
		return err
	}
	return backend.SaveRecord(ctx, record)
}

// GetRecord routes to the active backend. Absent records are (nil, nil).
func (a *Adapter) GetRecord(ctx context.Context, id string) (*core.Record, error) {
	backend, err := a.await(ctx)
	if err != nil {
		return nil, err
	}
	return backend.GetRecord(ctx, id)
}

// GetAllRecords routes to the active backend.
func (a *Adapter) GetAllRecords(ctx context.Context) ([]*core.Record, error) {
	backend, err := a.await(ctx)
	if err != nil {
		return nil, err
	}
	return backend.GetAllRecords(ctx)
}

// GetAllRecordsForExport routes to the active backend.
func (a *Adapter) GetAllRecordsForExport(ctx context.Context) ([]*core.Record, error) {
	backend, err := a.await(ctx)
	if err != nil {
		return nil, err
	}
	return backend.GetAllRecordsForExport(ctx)
}

// DeleteRecord routes to the active backend.
func (a *Adapter) DeleteRecord(ctx context.Context, id string) error {
	backend, err := a.await(ctx)
	if err != nil {
		return err
	}
	return backend.DeleteRecord(ctx, id)
}

// SaveConfig routes to the active backend.
func (a *Adapter) SaveConfig(ctx context.Context, key string, value json.RawMessage) error {
	backend, err := a.await(ctx)
	if err != nil {
		return err
	}
	return backend.SaveConfig(ctx, key, value)
}

// GetConfig routes to the active backend. Absent keys are (nil, nil).
func (a *Adapter) GetConfig(ctx context.Context, key string) (json.RawMessage, error) {
	backend, err := a.await(ctx)
	if err != nil {
		return nil, err
	}
	return backend.GetConfig(ctx, key)
}

// StorageStats returns the active backend's stats tagged with its mode.
func (a *Adapter) StorageStats(ctx context.Context) (*Stats, error) {
	backend, err := a.await(ctx)
	if err != nil {
		return nil, err
	}
	stats, err := backend.Stats(ctx)
	if err != nil {
		return nil, err
	}
	stats.Mode = backend.Mode()
	return stats, nil
}

// ClearAll routes to the active backend.
func (a *Adapter) ClearAll(ctx context.Context) error {
	backend, err := a.await(ctx)
	if err != nil {
		return err
	}
	return backend.ClearAll(ctx)
}

// ImageWrites exposes the active backend's background image-write
// results where the backend decouples image persistence from the save
// path, nil otherwise.
func (a *Adapter) ImageWrites(ctx context.Context) <-chan ImageWriteResult {
	backend, err := a.await(ctx)
	if err != nil {
		return nil
	}
	if obs, ok := backend.(ImageWriteObserver); ok {
		return obs.ImageWrites()
	}
	return nil
}

// Close waits for the election to settle and closes the active backend.
func (a *Adapter) Close() error {
	<-a.ready
	if a.active == nil {
		return nil
	}
	return a.active.Close()
}
