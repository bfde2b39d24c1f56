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


// Package export renders the record store into its two external
// formats: a plain JSON array with image fields rewritten to relative
// paths, and a conversation-style JSON where each record becomes one
// system/user/assistant exchange. Output is a set of named files,
// optionally packaged into a single zip archive.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/poiesic/geoset/core"
	"github.com/poiesic/geoset/media"
	"github.com/poiesic/geoset/storage"
)

// ErrUnknownFormat indicates an export config with a format this build
// does not render.
var ErrUnknownFormat = errors.New("unknown export format")

// File is one named output of an export run.
type File struct {
	Name string
	Data []byte
}

// Output is the full result of an export run.
type Output struct {
	Files []File
}

// Exporter renders exports through the storage adapter at full image
// fidelity.
type Exporter struct {
	adapter *storage.Adapter
	logger  *slog.Logger
}

// Option configures an Exporter.
type Option func(*Exporter)

// WithLogger sets a custom logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Exporter) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// NewExporter creates an exporter over the adapter.
func NewExporter(adapter *storage.Adapter, opts ...Option) *Exporter {
	e := &Exporter{
		adapter: adapter,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Export renders the whole store according to cfg.
func (e *Exporter) Export(ctx context.Context, cfg *core.ExportConfig) (*Output, error) {
	if cfg == nil {
		cfg = core.DefaultExportConfig()
	}

	records, err := e.adapter.GetAllRecordsForExport(ctx)
	if err != nil {
		return nil, err
	}

	var files []File
	switch cfg.Format {
	case core.ExportFormatJSON:
		files, err = e.renderJSON(records, cfg)
	case core.ExportFormatConversation:
		files, err = e.renderConversations(records, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFormat, cfg.Format)
	}
	if err != nil {
		return nil, err
	}

	if cfg.MaterializeImages {
		imageFiles, err := e.materializeImages(records, cfg)
		if err != nil {
			return nil, err
		}
		files = append(files, imageFiles...)
	}

	if cfg.Packaging == core.PackagingArchive {
		archive, err := packageArchive(files)
		if err != nil {
			return nil, err
		}
		files = []File{archive}
	}
	return &Output{Files: files}, nil
}

func (e *Exporter) renderJSON(records []*core.Record, cfg *core.ExportConfig) ([]File, error) {
	out := make([]*core.Record, len(records))
	for i, record := range records {
		clone := record.Clone()
		clone.Image = imageRef(record, cfg)
		if !cfg.IncludeHistory {
			clone.History = nil
		}
		out[i] = clone
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", storage.ErrSerializationFailed, err)
	}
	return []File{{Name: "records.json", Data: data}}, nil
}

// materializeImages decodes each record's data URI into an actual image
// file under the configured path prefix. Records whose image cannot be
// decoded are skipped with a warning; export is a read-only operation
// and should deliver everything it can.
func (e *Exporter) materializeImages(records []*core.Record, cfg *core.ExportConfig) ([]File, error) {
	var files []File
	for _, record := range records {
		if record.Image == "" {
			continue
		}
		mediaType, data, err := media.DecodeDataURI(record.Image)
		if err != nil {
			e.logger.Warn("image not materialized", "record", record.ID, "err", err)
			continue
		}
		files = append(files, File{
			Name: cfg.ImagePathPrefix + record.ID + media.ExtForMediaType(mediaType),
			Data: data,
		})
	}
	return files, nil
}

// imageRef rewrites a record's embedded image to the relative path it
// will occupy in the export, empty when the record has none.
func imageRef(record *core.Record, cfg *core.ExportConfig) string {
	if record.Image == "" {
		return ""
	}
	mediaType, _, err := media.DecodeDataURI(record.Image)
	if err != nil {
		return ""
	}
	return cfg.ImagePathPrefix + record.ID + media.ExtForMediaType(mediaType)
}
