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


// Package dirstore implements the directory-tree backend: one JSON file
// per record plus separate image and thumbnail files under a root the
// user granted access to.
//
// Image persistence is deliberately decoupled from the save path:
// SaveRecord returns once the text fields are durable, while image and
// thumbnail files are written by a background goroutine. Completions
// and failures are observable on the ImageWrites channel; failures are
// logged, never raised.
package dirstore

import (
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/poiesic/geoset/core"
	"github.com/poiesic/geoset/media"
	"github.com/poiesic/geoset/storage"
)

const (
	entriesDir = "entries"
	imagesDir  = "images"
	thumbsDir  = "thumbs"
	configDir  = "config"
)

// Store is the directory backend.
type Store struct {
	root   string
	logger *slog.Logger

	wg      sync.WaitGroup
	results chan storage.ImageWriteResult

	mu     sync.Mutex
	closed bool
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a directory store rooted at root. Nothing touches the
// filesystem until Initialize.
func New(root string, opts ...Option) *Store {
	s := &Store{
		root:    root,
		logger:  slog.Default(),
		results: make(chan storage.ImageWriteResult, 32),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize creates the directory layout. A root that cannot be
// created or written (permission not granted) is routine
// unavailability.
func (s *Store) Initialize(ctx context.Context) bool {
	for _, dir := range []string{entriesDir, imagesDir, thumbsDir, configDir} {
		if err := os.MkdirAll(filepath.Join(s.root, dir), 0o755); err != nil {
			s.logger.Debug("directory store unavailable", "root", s.root, "err", err)
			return false
		}
	}

	// Creating directories can succeed on a read-only mount where file
	// writes won't; probe with an actual write.
	probe := filepath.Join(s.root, ".probe")
	if err := os.WriteFile(probe, []byte("ok"), 0o644); err != nil {
		s.logger.Debug("directory store not writable", "root", s.root, "err", err)
		return false
	}
	_ = os.Remove(probe)
	return true
}

// Mode identifies this backend.
func (s *Store) Mode() storage.Mode { return storage.ModeDirectory }

// ImageWrites exposes background image-write outcomes.
func (s *Store) ImageWrites() <-chan storage.ImageWriteResult {
	return s.results
}

// SaveRecord writes the record's text fields synchronously, then hands
// the image to a background writer. It may return success while image
// bytes are still in flight; observe ImageWrites for their outcome.
func (s *Store) SaveRecord(ctx context.Context, record *core.Record) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return storage.ErrStorageClosed
	}
	s.mu.Unlock()

	stored := record.Clone()
	image := stored.Image
	stored.Image = ""

	data, err := json.MarshalIndent(stored, "", "  ")
	if err != nil {
		return storage.ErrSerializationFailed
	}
	if err := atomicWrite(s.entryPath(stored.ID), data); err != nil {
		return translateErr(err)
	}

	if image == "" {
		s.removeImageFiles(stored.ID)
		return nil
	}

	s.wg.Add(1)
	go s.writeImage(context.WithoutCancel(ctx), stored.ID, image)
	return nil
}

func (s *Store) writeImage(ctx context.Context, id, dataURI string) {
	defer s.wg.Done()

	err := func() error {
		mediaType, raw, err := media.DecodeDataURI(dataURI)
		if err != nil {
			return err
		}

		path := s.imagePath(id, media.ExtForMediaType(mediaType))
		if existing, rerr := os.ReadFile(path); rerr == nil &&
			media.ContentHash(existing) == media.ContentHash(raw) {
			// Unchanged image bytes; the files on disk are already right.
			return nil
		}

		// A changed extension (png replaced by jpeg, say) leaves stale
		// files behind otherwise.
		s.removeImageFiles(id)

		if err := atomicWrite(path, raw); err != nil {
			return err
		}

		thumbURI, err := media.Thumbnail(ctx, dataURI, media.DefaultThumbnailSize)
		if err != nil {
			// Thumbnails are an optimization; the record stays fully
			// usable without one.
			s.logger.Warn("thumbnail generation failed", "record", id, "err", err)
			return nil
		}
		_, thumb, err := media.DecodeDataURI(thumbURI)
		if err != nil {
			return err
		}
		return atomicWrite(s.thumbPath(id), thumb)
	}()

	if err != nil {
		s.logger.Warn("background image write failed", "record", id, "err", err)
	}

	// Non-blocking: observers are optional.
	select {
	case s.results <- storage.ImageWriteResult{RecordID: id, Err: err}:
	default:
	}
}

// GetRecord reads the record and rehydrates its image, or (nil, nil) if
// absent.
func (s *Store) GetRecord(ctx context.Context, id string) (*core.Record, error) {
	data, err := os.ReadFile(s.entryPath(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, translateErr(err)
	}

	record, err := storage.UnmarshalRecord(data)
	if err != nil {
		return nil, err
	}
	s.attachImage(record, false)
	return record, nil
}

// GetAllRecords returns every record newest-first, with thumbnails
// standing in for full images where one exists.
func (s *Store) GetAllRecords(ctx context.Context) ([]*core.Record, error) {
	return s.getAll(true)
}

// GetAllRecordsForExport returns every record with original images.
func (s *Store) GetAllRecordsForExport(ctx context.Context) ([]*core.Record, error) {
	return s.getAll(false)
}

func (s *Store) getAll(thumbnails bool) ([]*core.Record, error) {
	dir := filepath.Join(s.root, entriesDir)
	names, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, translateErr(err)
	}

	var records []*core.Record
	for _, entry := range names {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		data, rerr := os.ReadFile(filepath.Join(dir, entry.Name()))
		if rerr != nil {
			s.logger.Warn("unreadable entry file skipped", "file", entry.Name(), "err", rerr)
			continue
		}
		record, uerr := storage.UnmarshalRecord(data)
		if uerr != nil {
			s.logger.Warn("corrupt entry file skipped", "file", entry.Name(), "err", uerr)
			continue
		}
		s.attachImage(record, thumbnails)
		records = append(records, record)
	}

	storage.SortByUpdatedDesc(records)
	return records, nil
}

// DeleteRecord removes the record file and any image files. Idempotent.
func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	if err := os.Remove(s.entryPath(id)); err != nil && !os.IsNotExist(err) {
		return translateErr(err)
	}
	s.removeImageFiles(id)
	return nil
}

// SaveConfig persists an opaque config value as its own file.
func (s *Store) SaveConfig(ctx context.Context, key string, value json.RawMessage) error {
	return translateErr(atomicWrite(s.configPath(key), []byte(value)))
}

// GetConfig returns a named config value, or (nil, nil) if absent.
func (s *Store) GetConfig(ctx context.Context, key string) (json.RawMessage, error) {
	data, err := os.ReadFile(s.configPath(key))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, translateErr(err)
	}
	return json.RawMessage(data), nil
}

// Stats walks the tree counting entries, images and bytes. Free-space
// ratios are not knowable portably here, so the capacity ratio stays 0.
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	stats := &storage.Stats{}

	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		info, ierr := d.Info()
		if ierr != nil {
			return nil
		}
		stats.TotalBytes += info.Size()

		switch filepath.Base(filepath.Dir(path)) {
		case entriesDir:
			stats.EntryCount++
		case imagesDir:
			stats.ImageCount++
		}
		return nil
	})
	if err != nil {
		return nil, translateErr(err)
	}
	return stats, nil
}

// ClearAll removes and recreates the directory layout.
func (s *Store) ClearAll(ctx context.Context) error {
	s.wg.Wait()
	for _, dir := range []string{entriesDir, imagesDir, thumbsDir, configDir} {
		path := filepath.Join(s.root, dir)
		if err := os.RemoveAll(path); err != nil {
			return translateErr(err)
		}
		if err := os.MkdirAll(path, 0o755); err != nil {
			return translateErr(err)
		}
	}
	return nil
}

// Close waits for in-flight image writes and closes the result channel.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.wg.Wait()
	close(s.results)
	return nil
}

func (s *Store) entryPath(id string) string {
	return filepath.Join(s.root, entriesDir, id+".json")
}

func (s *Store) imagePath(id, ext string) string {
	return filepath.Join(s.root, imagesDir, id+ext)
}

func (s *Store) thumbPath(id string) string {
	return filepath.Join(s.root, thumbsDir, id+".jpg")
}

func (s *Store) configPath(key string) string {
	return filepath.Join(s.root, configDir, key+".json")
}

// attachImage rehydrates the record's image from disk. With thumbnail
// set, a generated thumbnail stands in for the full image.
func (s *Store) attachImage(record *core.Record, thumbnail bool) {
	if thumbnail {
		if data, err := os.ReadFile(s.thumbPath(record.ID)); err == nil {
			record.Image = media.EncodeDataURI("image/jpeg", data)
			return
		}
	}

	matches, err := filepath.Glob(s.imagePath(record.ID, ".*"))
	if err != nil || len(matches) == 0 {
		return
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		s.logger.Warn("stored image unreadable", "record", record.ID, "err", err)
		return
	}
	record.Image = media.EncodeDataURI(media.MediaTypeForExt(filepath.Ext(matches[0])), data)
}

func (s *Store) removeImageFiles(id string) {
	if matches, err := filepath.Glob(s.imagePath(id, ".*")); err == nil {
		for _, m := range matches {
			_ = os.Remove(m)
		}
	}
	_ = os.Remove(s.thumbPath(id))
}

func atomicWrite(path string, data []byte) error {
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// translateErr maps filesystem failures onto the storage error
// taxonomy.
func translateErr(err error) error {
	switch {
	case err == nil:
		return nil
	case os.IsPermission(err):
		return storage.ErrPermissionDenied
	default:
		return err
	}
}

var _ storage.Backend = (*Store)(nil)
var _ storage.ImageWriteObserver = (*Store)(nil)
