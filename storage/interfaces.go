package storage

import (
	"context"
	"encoding/json"

	"github.com/poiesic/geoset/core"
)

// Mode identifies a backend implementation. Exactly one mode is active
// per process lifetime once the Adapter has finished probing.
type Mode string

const (
	ModeRemote    Mode = "remote"
	ModeDirectory Mode = "directory"
	ModeFlat      Mode = "flat"
	ModeDatabase  Mode = "database"
)

// Well-known config keys shared by every backend.
const (
	ConfigKeyTagDefinitions = "tagConfigs"
	ConfigKeyExportConfig   = "exportConfig"
)

// Stats describes a backend's usage at a point in time.
type Stats struct {
	EntryCount int   `json:"entryCount"`
	ImageCount int   `json:"imageCount"`
	TotalBytes int64 `json:"totalBytes"`

	// CapacityRatio is used/total where the medium has a known ceiling,
	// 0 where capacity is unknowable.
	CapacityRatio float64 `json:"capacityRatio,omitempty"`

	// CompressionRatio is the measured compressed/plain size ratio for
	// backends that compress values, 0 elsewhere.
	CompressionRatio float64 `json:"compressionRatio,omitempty"`

	// Mode is filled in by the Adapter so callers can display the
	// active storage mode without a separate query.
	Mode Mode `json:"mode,omitempty"`
}

// Backend is the uniform contract every storage medium implements.
//
// Image handling: SaveRecord accepts the canonical data-URI form and
// each backend chooses its own physical representation. A failure to
// persist image bytes must never roll back already-persisted text
// fields. GetRecord and the export accessor rehydrate images back to
// data URIs; the list accessor may substitute thumbnails.
type Backend interface {
	// Initialize performs one-time setup and probes availability.
	// Routine unavailability is a normal outcome reported as false,
	// never as an error.
	Initialize(ctx context.Context) bool

	// SaveRecord upserts a record by ID.
	SaveRecord(ctx context.Context, record *core.Record) error

	// GetRecord returns the record with its image rehydrated, or
	// (nil, nil) if absent.
	GetRecord(ctx context.Context, id string) (*core.Record, error)

	// GetAllRecords returns every record ordered by UpdatedAt
	// descending. Images may be thumbnails.
	GetAllRecords(ctx context.Context) ([]*core.Record, error)

	// GetAllRecordsForExport is GetAllRecords at full image fidelity.
	GetAllRecordsForExport(ctx context.Context) ([]*core.Record, error)

	// DeleteRecord removes a record and its image bytes. Deleting a
	// nonexistent ID is not an error.
	DeleteRecord(ctx context.Context, id string) error

	// SaveConfig persists an opaque named config value.
	SaveConfig(ctx context.Context, key string, value json.RawMessage) error

	// GetConfig returns a named config value, or (nil, nil) if absent.
	GetConfig(ctx context.Context, key string) (json.RawMessage, error)

	// Stats reports entry/image counts and approximate usage.
	Stats(ctx context.Context) (*Stats, error)

	// ClearAll destroys every record and config. Explicit user action
	// only.
	ClearAll(ctx context.Context) error

	// Mode identifies the backend implementation.
	Mode() Mode

	// Close releases resources held by the backend.
	Close() error
}

// ImageWriteResult reports the outcome of a background image write.
type ImageWriteResult struct {
	RecordID string
	Err      error
}

// ImageWriteObserver is implemented by backends that persist image
// bytes off the critical save path. SaveRecord may return success while
// the image is still being written; observers can watch the channel for
// completions and failures. Failures are additionally logged, never
// raised.
type ImageWriteObserver interface {
	ImageWrites() <-chan ImageWriteResult
}
