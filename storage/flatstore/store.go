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


// Package flatstore implements the legacy flat key-value backend: one
// compressed string per logical key (dataEntries, tagConfigs,
// exportConfig) plus one entry per image keyed by record id, all held
// in a single file with a hard capacity ceiling.
//
// When usage crosses the high-water mark the store evicts the oldest
// image entries, FIFO by insertion order via a maintained ledger, then
// retries the write. A write that still exceeds capacity is retried
// once with lossier image recompression before giving up.
package flatstore

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/poiesic/geoset/codec"
	"github.com/poiesic/geoset/core"
	"github.com/poiesic/geoset/media"
	"github.com/poiesic/geoset/storage"
)

const (
	// DefaultCapacity mirrors the ~5MB ceiling of browser key-value
	// storage that this format was designed for.
	DefaultCapacity = 5 << 20

	// DefaultHighWater is the usage fraction that triggers proactive
	// image eviction before a write.
	DefaultHighWater = 0.8

	// DefaultTargetImageCount is how many images eviction keeps.
	DefaultTargetImageCount = 20

	// recompressQuality is the JPEG quality for the one lossier retry.
	recompressQuality = 40
)

const (
	keyEntries     = "dataEntries"
	keyLedger      = "imageLedger"
	imageKeyPrefix = "image:"
)

// Store is the legacy flat backend. It always initializes successfully:
// if the backing file cannot be read or written it degrades to a
// memory-only map, which keeps it viable as the guaranteed fallback.
type Store struct {
	path             string
	capacity         int64
	highWater        float64
	targetImageCount int
	logger           *slog.Logger

	mu      sync.Mutex
	kv      map[string]string
	ledger  []ledgerEntry
	memOnly bool
	closed  bool
}

// Option configures a Store.
type Option func(*Store)

// WithCapacity overrides the capacity ceiling in bytes.
func WithCapacity(capacity int64) Option {
	return func(s *Store) {
		if capacity > 0 {
			s.capacity = capacity
		}
	}
}

// WithTargetImageCount overrides how many images eviction keeps.
func WithTargetImageCount(n int) Option {
	return func(s *Store) {
		if n >= 0 {
			s.targetImageCount = n
		}
	}
}

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a flat store backed by the file at path. Nothing is read
// until Initialize.
func New(path string, opts ...Option) *Store {
	s := &Store{
		path:             path,
		capacity:         DefaultCapacity,
		highWater:        DefaultHighWater,
		targetImageCount: DefaultTargetImageCount,
		logger:           slog.Default(),
		kv:               make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Initialize loads the backing file. It never reports unavailability:
// the flat store is the fallback of last practical resort and a broken
// file only downgrades it to memory-only.
func (s *Store) Initialize(ctx context.Context) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		s.logger.Warn("flat store directory unavailable, running memory-only", "err", err)
		s.memOnly = true
		return true
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("flat store file unreadable, starting empty", "err", err)
		}
		return true
	}

	var kv map[string]string
	if err := json.Unmarshal(data, &kv); err != nil {
		s.logger.Warn("flat store file corrupt, starting empty", "err", err)
		return true
	}
	s.kv = kv

	if raw, ok := kv[keyLedger]; ok {
		bs, err := base64.StdEncoding.DecodeString(raw)
		if err == nil {
			if entries, lerr := unmarshalLedger(bs); lerr == nil {
				s.ledger = entries
			} else {
				s.logger.Warn("image ledger corrupt, rebuilding empty", "err", lerr)
			}
		}
	}
	return true
}

// Mode identifies this backend.
func (s *Store) Mode() storage.Mode { return storage.ModeFlat }

// SaveRecord upserts the record. Text fields are written and persisted
// first; the image is stored under its own key afterwards, so an image
// that cannot fit never rolls back the text write. An unrecoverable
// image failure is logged, not returned.
func (s *Store) SaveRecord(ctx context.Context, record *core.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStorageClosed
	}

	records, err := s.loadEntriesLocked()
	if err != nil {
		return err
	}

	stored := record.Clone()
	image := stored.Image
	stored.Image = ""

	replaced := false
	for i, r := range records {
		if r.ID == stored.ID {
			records[i] = stored
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, stored)
	}

	data, err := storage.MarshalRecordList(records)
	if err != nil {
		return err
	}
	if err := s.setValueLocked(keyEntries, codec.Compress(string(data))); err != nil {
		return err
	}
	s.persistLocked()

	if image == "" {
		// An upsert without an image drops any previously stored one.
		s.removeImageLocked(stored.ID)
		s.persistLocked()
		return nil
	}

	if err := s.putImageLocked(ctx, stored.ID, image); err != nil {
		s.logger.Warn("image not persisted, keeping text fields",
			"record", stored.ID, "err", err)
	}
	s.persistLocked()
	return nil
}

// putImageLocked stores one image token, evicting the oldest images
// when usage is past the high-water mark and retrying once with lossier
// recompression when the token alone exceeds what is left.
func (s *Store) putImageLocked(ctx context.Context, id, dataURI string) error {
	token := codec.Compress(dataURI)
	key := imageKeyPrefix + id

	if s.projectedUsageLocked(key, token) > int64(s.highWater*float64(s.capacity)) {
		s.evictImagesLocked()
	}

	if s.projectedUsageLocked(key, token) > s.capacity {
		smaller, err := media.Recompress(ctx, dataURI, recompressQuality)
		if err != nil {
			return storage.ErrQuotaExceeded
		}
		token = codec.Compress(smaller)
		if s.projectedUsageLocked(key, token) > s.capacity {
			return storage.ErrQuotaExceeded
		}
	}

	s.kv[key] = token
	s.ledger = append(withoutID(s.ledger, id), ledgerEntry{
		RecordID:   id,
		InsertedAt: time.Now().UnixMicro(),
		Size:       int64(len(token)),
	})
	s.storeLedgerLocked()
	return nil
}

// GetRecord returns the record with its image reattached, or (nil, nil)
// if absent.
func (s *Store) GetRecord(ctx context.Context, id string) (*core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadEntriesLocked()
	if err != nil {
		return nil, err
	}

	for _, r := range records {
		if r.ID == id {
			out := r.Clone()
			s.attachImageLocked(out)
			return out, nil
		}
	}
	return nil, nil
}

// GetAllRecords returns every record, newest update first. The flat
// store keeps no thumbnails, so list and export fidelity are the same.
func (s *Store) GetAllRecords(ctx context.Context) ([]*core.Record, error) {
	return s.GetAllRecordsForExport(ctx)
}

// GetAllRecordsForExport returns every record with full images, newest
// update first.
func (s *Store) GetAllRecordsForExport(ctx context.Context) ([]*core.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadEntriesLocked()
	if err != nil {
		return nil, err
	}

	out := make([]*core.Record, len(records))
	for i, r := range records {
		out[i] = r.Clone()
		s.attachImageLocked(out[i])
	}
	storage.SortByUpdatedDesc(out)
	return out, nil
}

// DeleteRecord removes the record and its image. Idempotent.
func (s *Store) DeleteRecord(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStorageClosed
	}

	records, err := s.loadEntriesLocked()
	if err != nil {
		return err
	}

	kept := records[:0]
	for _, r := range records {
		if r.ID != id {
			kept = append(kept, r)
		}
	}

	data, err := storage.MarshalRecordList(kept)
	if err != nil {
		return err
	}
	if err := s.setValueLocked(keyEntries, codec.Compress(string(data))); err != nil {
		return err
	}
	s.removeImageLocked(id)
	s.persistLocked()
	return nil
}

// SaveConfig stores an opaque config value compressed under its key.
func (s *Store) SaveConfig(ctx context.Context, key string, value json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStorageClosed
	}

	if err := s.setValueLocked(key, codec.Compress(string(value))); err != nil {
		return err
	}
	s.persistLocked()
	return nil
}

// GetConfig returns a config value, or (nil, nil) if absent. Legacy
// uncompressed values parse via the codec's plain fallback.
func (s *Store) GetConfig(ctx context.Context, key string) (json.RawMessage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	value, ok := s.kv[key]
	if !ok {
		return nil, nil
	}

	plain, err := codec.Decompress(value)
	if err != nil {
		return nil, storage.ErrSerializationFailed
	}
	return json.RawMessage(plain), nil
}

// Stats reports usage against the capacity ceiling. The compression
// ratio is measured from actual stored versus decompressed sizes rather
// than assumed.
func (s *Store) Stats(ctx context.Context) (*storage.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.loadEntriesLocked()
	if err != nil {
		return nil, err
	}

	usage := s.usageLocked()

	var storedBytes, plainBytes int64
	for key, value := range s.kv {
		if key == keyLedger {
			continue
		}
		plain, derr := codec.Decompress(value)
		if derr != nil {
			continue
		}
		storedBytes += int64(len(value))
		plainBytes += int64(len(plain))
	}

	stats := &storage.Stats{
		EntryCount:    len(records),
		ImageCount:    len(s.ledger),
		TotalBytes:    usage,
		CapacityRatio: float64(usage) / float64(s.capacity),
	}
	if plainBytes > 0 {
		stats.CompressionRatio = float64(storedBytes) / float64(plainBytes)
	}
	return stats, nil
}

// ClearAll wipes every key.
func (s *Store) ClearAll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrStorageClosed
	}

	s.kv = make(map[string]string)
	s.ledger = nil
	s.persistLocked()
	return nil
}

// Close flushes and marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.persistLocked()
	s.closed = true
	return nil
}

func (s *Store) loadEntriesLocked() ([]*core.Record, error) {
	value, ok := s.kv[keyEntries]
	if !ok {
		return nil, nil
	}

	plain, err := codec.Decompress(value)
	if err != nil {
		return nil, storage.ErrSerializationFailed
	}
	return storage.UnmarshalRecordList([]byte(plain))
}

func (s *Store) attachImageLocked(record *core.Record) {
	token, ok := s.kv[imageKeyPrefix+record.ID]
	if !ok {
		return
	}
	plain, err := codec.Decompress(token)
	if err != nil {
		s.logger.Warn("stored image unreadable", "record", record.ID, "err", err)
		return
	}
	record.Image = plain
}

// setValueLocked applies a non-image write, evicting images first when
// past the high-water mark. Text writes that still cannot fit fail with
// a quota error; they are never silently dropped.
func (s *Store) setValueLocked(key, value string) error {
	if s.projectedUsageLocked(key, value) > int64(s.highWater*float64(s.capacity)) {
		s.evictImagesLocked()
	}
	if s.projectedUsageLocked(key, value) > s.capacity {
		return storage.ErrQuotaExceeded
	}
	s.kv[key] = value
	return nil
}

func (s *Store) removeImageLocked(id string) {
	delete(s.kv, imageKeyPrefix+id)
	s.ledger = withoutID(s.ledger, id)
	s.storeLedgerLocked()
}

// evictImagesLocked drops the oldest images until at most the target
// count remain.
func (s *Store) evictImagesLocked() {
	for len(s.ledger) > s.targetImageCount {
		oldest := s.ledger[0]
		s.ledger = s.ledger[1:]
		delete(s.kv, imageKeyPrefix+oldest.RecordID)
		s.logger.Info("evicted oldest image to reclaim space", "record", oldest.RecordID)
	}
	s.storeLedgerLocked()
}

func (s *Store) storeLedgerLocked() {
	if len(s.ledger) == 0 {
		delete(s.kv, keyLedger)
		return
	}
	s.kv[keyLedger] = base64.StdEncoding.EncodeToString(marshalLedger(s.ledger))
}

func (s *Store) usageLocked() int64 {
	var total int64
	for k, v := range s.kv {
		total += int64(len(k) + len(v))
	}
	return total
}

func (s *Store) projectedUsageLocked(key, value string) int64 {
	usage := s.usageLocked()
	if existing, ok := s.kv[key]; ok {
		usage -= int64(len(key) + len(existing))
	}
	return usage + int64(len(key)+len(value))
}

// persistLocked writes the whole map atomically. Persistence failures
// downgrade to memory-only rather than failing the operation; the data
// stays live for the session.
func (s *Store) persistLocked() {
	if s.memOnly {
		return
	}

	data, err := json.MarshalIndent(s.kv, "", "  ")
	if err != nil {
		s.logger.Error("flat store marshal failed", "err", err)
		return
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		s.logger.Warn("flat store write failed, running memory-only", "err", err)
		s.memOnly = true
		return
	}
	if err := os.Rename(tmp, s.path); err != nil {
		s.logger.Warn("flat store rename failed, running memory-only", "err", err)
		s.memOnly = true
	}
}
