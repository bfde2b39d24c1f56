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


// Package badgerstore implements the structured last-resort backend on
// BadgerDB. Records, images, thumbnails and config values live under
// separate key prefixes; an updatedAt index keeps list queries in
// newest-first order without scanning values.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"

	"github.com/poiesic/geoset/core"
	"github.com/poiesic/geoset/media"
	"github.com/poiesic/geoset/storage"
)

// Store is the BadgerDB backend.
type Store struct {
	path     string
	inMemory bool
	logger   *slog.Logger
	db       *badger.DB
}

// badgerLoggerAdapter adapts slog.Logger to badger.Logger interface.
type badgerLoggerAdapter struct {
	logger *slog.Logger
}

var _ badger.Logger = (*badgerLoggerAdapter)(nil)

func (bl *badgerLoggerAdapter) Errorf(msg string, items ...any) {
	bl.logger.Error(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Warningf(msg string, items ...any) {
	bl.logger.Warn(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Infof(msg string, items ...any) {
	bl.logger.Info(fmt.Sprintf(msg, items...))
}

func (bl *badgerLoggerAdapter) Debugf(msg string, items ...any) {
	bl.logger.Debug(fmt.Sprintf(msg, items...))
}

// Option configures a Store.
type Option func(*Store)

// WithInMemory opens the database without a backing directory.
func WithInMemory() Option {
	return func(s *Store) { s.inMemory = true }
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a badger store rooted at path. The database is not opened
// until Initialize.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:   path,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize opens the database. Failure to open (missing permissions,
// lock held by another process) is routine unavailability, reported as
// false.
func (s *Store) Initialize(ctx context.Context) bool {
	var opts badger.Options

	if s.inMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(s.path, 0o755); err != nil {
			s.logger.Debug("badger directory unavailable", "path", s.path, "err", err)
			return false
		}
		opts = badger.DefaultOptions(s.path)
	}

	opts.Logger = &badgerLoggerAdapter{logger: s.logger}
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		s.logger.Debug("badger open failed", "path", s.path, "err", err)
		return false
	}
	s.db = db
	return true
}

// Mode identifies this backend.
func (s *Store) Mode() storage.Mode { return storage.ModeDatabase }

// SaveRecord upserts the record. Text fields commit in their own
// transaction; the image and thumbnail commit afterwards, so an image
// failure never rolls back the text write.
func (s *Store) SaveRecord(ctx context.Context, record *core.Record) error {
	if s.db == nil || s.db.IsClosed() {
		return storage.ErrStorageClosed
	}

	stored := record.Clone()
	image := stored.Image
	stored.Image = ""

	data, err := storage.MarshalRecord(stored)
	if err != nil {
		return err
	}

	err = s.db.Update(func(tx *badger.Txn) error {
		// Drop the stale index entry when the record moved in time.
		if old, gerr := getRecordTx(tx, stored.ID); gerr == nil && old != nil &&
			!old.UpdatedAt.Equal(stored.UpdatedAt) {
			if derr := tx.Delete(makeUpdatedKey(old.UpdatedAt, old.ID)); derr != nil {
				return derr
			}
		}
		if serr := tx.Set(makeRecordKey(stored.ID), data); serr != nil {
			return serr
		}
		return tx.Set(makeUpdatedKey(stored.UpdatedAt, stored.ID), []byte(stored.ID))
	})
	if err != nil {
		return translateErr(err)
	}

	if image == "" {
		if derr := s.db.Update(func(tx *badger.Txn) error {
			if e := deleteIgnoreMissing(tx, makeImageKey(stored.ID)); e != nil {
				return e
			}
			return deleteIgnoreMissing(tx, makeThumbKey(stored.ID))
		}); derr != nil {
			s.logger.Warn("stale image cleanup failed", "record", stored.ID, "err", derr)
		}
		return nil
	}

	if err := s.saveImage(ctx, stored.ID, image); err != nil {
		s.logger.Warn("image not persisted, keeping text fields",
			"record", stored.ID, "err", err)
	}
	return nil
}

func (s *Store) saveImage(ctx context.Context, id, dataURI string) error {
	mediaType, raw, err := media.DecodeDataURI(dataURI)
	if err != nil {
		return fmt.Errorf("%w: %v", storage.ErrSerializationFailed, err)
	}

	// Thumbnail generation is best-effort and bounded; a timeout only
	// costs list-view fidelity.
	var thumb []byte
	if thumbURI, terr := media.Thumbnail(ctx, dataURI, media.DefaultThumbnailSize); terr == nil {
		if _, tb, derr := media.DecodeDataURI(thumbURI); derr == nil {
			thumb = tb
		}
	} else {
		s.logger.Warn("thumbnail generation failed", "record", id, "err", terr)
	}

	err = s.db.Update(func(tx *badger.Txn) error {
		env := marshalEnvelope(imageEnvelope{MediaType: mediaType, Data: raw})
		if serr := tx.Set(makeImageKey(id), env); serr != nil {
			return serr
		}
		if thumb == nil {
			return deleteIgnoreMissing(tx, makeThumbKey(id))
		}
		return tx.Set(makeThumbKey(id), thumb)
	})
	return translateErr(err)
}

// GetRecord returns the record with its full image rehydrated, or
// (nil, nil) if absent.
func (s *Store) GetRecord(ctx context.Context, id string) (*core.Record, error) {
	if s.db == nil || s.db.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var record *core.Record
	err := s.db.View(func(tx *badger.Txn) error {
		var gerr error
		record, gerr = getRecordTx(tx, id)
		if gerr != nil || record == nil {
			return gerr
		}
		return attachImageTx(tx, record, false)
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return record, nil
}

// GetAllRecords returns every record in updatedAt-descending order via
// the index, with thumbnails standing in for full images where one was
// generated.
func (s *Store) GetAllRecords(ctx context.Context) ([]*core.Record, error) {
	return s.getAll(true)
}

// GetAllRecordsForExport returns every record with the original
// full-resolution image bytes.
func (s *Store) GetAllRecordsForExport(ctx context.Context) ([]*core.Record, error) {
	return s.getAll(false)
}

func (s *Store) getAll(thumbnails bool) ([]*core.Record, error) {
	if s.db == nil || s.db.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var records []*core.Record
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(updatedPrefix + ":")
		opts.Reverse = true
		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Reverse iteration needs a seek past the whole prefix range.
		seek := append([]byte(updatedPrefix+":"), 0xff, 0xff, 0xff, 0xff,
			0xff, 0xff, 0xff, 0xff, 0xff)

		for iter.Seek(seek); iter.Valid(); iter.Next() {
			var id string
			if err := iter.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}

			record, err := getRecordTx(tx, id)
			if err != nil {
				return err
			}
			if record == nil {
				continue
			}
			if err := attachImageTx(tx, record, thumbnails); err != nil {
				return err
			}
			records = append(records, record)
		}
		return nil
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return records, nil
}

// DeleteRecord removes the record, its index entry and its image bytes.
// Deleting a nonexistent ID is not an error.
func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	if s.db == nil || s.db.IsClosed() {
		return storage.ErrStorageClosed
	}

	err := s.db.Update(func(tx *badger.Txn) error {
		record, gerr := getRecordTx(tx, id)
		if gerr != nil {
			return gerr
		}
		if record == nil {
			return nil
		}
		if derr := tx.Delete(makeUpdatedKey(record.UpdatedAt, id)); derr != nil {
			return derr
		}
		if derr := tx.Delete(makeRecordKey(id)); derr != nil {
			return derr
		}
		if derr := deleteIgnoreMissing(tx, makeImageKey(id)); derr != nil {
			return derr
		}
		return deleteIgnoreMissing(tx, makeThumbKey(id))
	})
	return translateErr(err)
}

// SaveConfig persists an opaque config value.
func (s *Store) SaveConfig(ctx context.Context, key string, value json.RawMessage) error {
	if s.db == nil || s.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	err := s.db.Update(func(tx *badger.Txn) error {
		return tx.Set(makeConfigKey(key), []byte(value))
	})
	return translateErr(err)
}

// GetConfig returns a named config value, or (nil, nil) if absent.
func (s *Store) GetConfig(ctx context.Context, key string) (json.RawMessage, error) {
	if s.db == nil || s.db.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	var value json.RawMessage
	err := s.db.View(func(tx *badger.Txn) error {
		item, gerr := tx.Get(makeConfigKey(key))
		if errors.Is(gerr, badger.ErrKeyNotFound) {
			return nil
		}
		if gerr != nil {
			return gerr
		}
		return item.Value(func(val []byte) error {
			value = append(json.RawMessage(nil), val...)
			return nil
		})
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return value, nil
}

// Stats counts entries and images and reports the database's on-disk
// footprint. Badger has no fixed ceiling, so the capacity ratio is
// unknowable here.
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	if s.db == nil || s.db.IsClosed() {
		return nil, storage.ErrStorageClosed
	}

	stats := &storage.Stats{}
	err := s.db.View(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			key := string(iter.Item().Key())
			switch {
			case strings.HasPrefix(key, recordPrefix+":"):
				stats.EntryCount++
			case strings.HasPrefix(key, imagePrefix+":"):
				stats.ImageCount++
			}
			stats.TotalBytes += iter.Item().EstimatedSize()
		}
		return nil
	})
	if err != nil {
		return nil, translateErr(err)
	}

	lsm, vlog := s.db.Size()
	if lsm+vlog > stats.TotalBytes {
		stats.TotalBytes = lsm + vlog
	}
	return stats, nil
}

// ClearAll drops every key.
func (s *Store) ClearAll(ctx context.Context) error {
	if s.db == nil || s.db.IsClosed() {
		return storage.ErrStorageClosed
	}
	return translateErr(s.db.DropAll())
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil || s.db.IsClosed() {
		return nil
	}
	return s.db.Close()
}

func getRecordTx(tx *badger.Txn, id string) (*core.Record, error) {
	item, err := tx.Get(makeRecordKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var record *core.Record
	err = item.Value(func(val []byte) error {
		var uerr error
		record, uerr = storage.UnmarshalRecord(val)
		return uerr
	})
	return record, err
}

// attachImageTx rehydrates the record's image to a data URI. When
// thumbnail is true and a thumbnail exists it stands in for the full
// image; the full bytes remain the export representation.
func attachImageTx(tx *badger.Txn, record *core.Record, thumbnail bool) error {
	if thumbnail {
		item, err := tx.Get(makeThumbKey(record.ID))
		if err == nil {
			return item.Value(func(val []byte) error {
				record.Image = media.EncodeDataURI("image/jpeg", val)
				return nil
			})
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
	}

	item, err := tx.Get(makeImageKey(record.ID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		env, uerr := unmarshalEnvelope(val)
		if uerr != nil {
			return uerr
		}
		record.Image = media.EncodeDataURI(env.MediaType, env.Data)
		return nil
	})
}

func deleteIgnoreMissing(tx *badger.Txn, key []byte) error {
	err := tx.Delete(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	return err
}

// translateErr maps badger failures onto the storage error taxonomy.
func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrTxnTooBig):
		return fmt.Errorf("%w: %v", storage.ErrQuotaExceeded, err)
	case errors.Is(err, badger.ErrDBClosed):
		return storage.ErrStorageClosed
	case errors.Is(err, os.ErrPermission):
		return fmt.Errorf("%w: %v", storage.ErrPermissionDenied, err)
	default:
		return err
	}
}

var _ storage.Backend = (*Store)(nil)
