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


package geoset

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/poiesic/geoset/backup"
	"github.com/poiesic/geoset/export"
	"github.com/poiesic/geoset/migrate"
	"github.com/poiesic/geoset/storage"
	"github.com/poiesic/geoset/storage/badgerstore"
	"github.com/poiesic/geoset/storage/dirstore"
	"github.com/poiesic/geoset/storage/flatstore"
	"github.com/poiesic/geoset/storage/remote"
)

// Store is the top-level handle over the elected storage backend and
// the managers built on it.
type Store struct {
	adapter *storage.Adapter
	logger  *slog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*storeOptions)

type storeOptions struct {
	dataDir   string
	remoteURL string
	logger    *slog.Logger
}

// WithDataDir sets the root directory for the on-disk backends.
// Default is "geoset-data" under the working directory.
func WithDataDir(dir string) StoreOption {
	return func(o *storeOptions) {
		if dir != "" {
			o.dataDir = dir
		}
	}
}

// WithRemoteURL adds a remote file server as the most-preferred
// backend candidate.
func WithRemoteURL(url string) StoreOption {
	return func(o *storeOptions) {
		o.remoteURL = url
	}
}

// WithStoreLogger sets a custom logger. Default is slog.Default().
func WithStoreLogger(logger *slog.Logger) StoreOption {
	return func(o *storeOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewStore builds the candidate chain in preference order, remote
// server first when configured, then the directory tree, the flat
// single-file store, and finally the embedded database, and starts
// the background election. The returned store is usable immediately;
// operations wait for the election to settle.
func NewStore(ctx context.Context, opts ...StoreOption) *Store {
	options := &storeOptions{
		dataDir: "geoset-data",
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}

	var candidates []storage.Backend
	if options.remoteURL != "" {
		candidates = append(candidates, remote.New(options.remoteURL,
			remote.WithLogger(options.logger)))
	}
	candidates = append(candidates,
		dirstore.New(filepath.Join(options.dataDir, "files"),
			dirstore.WithLogger(options.logger)),
		flatstore.New(filepath.Join(options.dataDir, "flat.json"),
			flatstore.WithLogger(options.logger)),
		badgerstore.New(filepath.Join(options.dataDir, "badger"),
			badgerstore.WithLogger(options.logger)),
	)

	adapter := storage.NewAdapter(ctx, candidates,
		storage.WithLogger(options.logger))

	return &Store{
		adapter: adapter,
		logger:  options.logger,
	}
}

// Adapter exposes the underlying storage adapter.
func (s *Store) Adapter() *storage.Adapter {
	return s.adapter
}

// NewExporter builds an exporter over this store.
func (s *Store) NewExporter(opts ...export.Option) *export.Exporter {
	opts = append([]export.Option{export.WithLogger(s.logger)}, opts...)
	return export.NewExporter(s.adapter, opts...)
}

// NewBackupManager builds a backup manager over this store.
func (s *Store) NewBackupManager(opts ...backup.Option) *backup.Manager {
	opts = append([]backup.Option{backup.WithLogger(s.logger)}, opts...)
	return backup.NewManager(s.adapter, opts...)
}

// NewMigrationManager builds a migration manager moving data from a
// legacy backend into this store's elected backend. It waits for the
// backend election to settle.
func (s *Store) NewMigrationManager(ctx context.Context, legacy storage.Backend, opts ...migrate.Option) (*migrate.Manager, error) {
	dest, err := s.adapter.Active(ctx)
	if err != nil {
		return nil, err
	}
	opts = append([]migrate.Option{migrate.WithLogger(s.logger)}, opts...)
	return migrate.NewManager(legacy, dest, opts...), nil
}

// Close shuts down the elected backend and releases any candidates
// still initializing.
func (s *Store) Close() error {
	return s.adapter.Close()
}
