package core

import (
	"time"

	"github.com/google/uuid"
)

// TagType identifies the value shape of a tag definition.
type TagType string

const (
	TagTypeSingleSelect TagType = "select"
	TagTypeMultiSelect  TagType = "multiselect"
	TagTypeText         TagType = "text"
	TagTypeMultiline    TagType = "textarea"
	TagTypeBoolean      TagType = "boolean"
	TagTypeRating       TagType = "rating"
	TagTypeDate         TagType = "date"
	TagTypeNumber       TagType = "number"
	TagTypeSlider       TagType = "slider"
)

// IsSelect reports whether the type carries a fixed option list.
func (t TagType) IsSelect() bool {
	return t == TagTypeSingleSelect || t == TagTypeMultiSelect
}

// Action tags a history entry with the operation that produced it.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// RecordData holds the mutable fields of a Record. It is the unit that
// gets snapshotted into history on every edit.
type RecordData struct {
	Image             string         `json:"image,omitempty"` // data URI while in memory
	Query             string         `json:"query"`
	GroundTruthAnswer string         `json:"groundTruthAnswer"`
	Solution          string         `json:"solution,omitempty"`
	Tags              map[string]any `json:"tags,omitempty"` // tag-definition id -> value
}

// Clone returns a deep copy of the data. Tag values are copied one level
// deep, which covers every shape a tag definition permits (scalars and
// string slices).
func (d RecordData) Clone() RecordData {
	out := d
	if d.Tags != nil {
		out.Tags = make(map[string]any, len(d.Tags))
		for k, v := range d.Tags {
			switch vv := v.(type) {
			case []string:
				out.Tags[k] = append([]string(nil), vv...)
			case []any:
				out.Tags[k] = append([]any(nil), vv...)
			default:
				out.Tags[k] = v
			}
		}
	}
	return out
}

// HistoryEntry captures one prior version of a record.
type HistoryEntry struct {
	Version   int        `json:"version"`
	Timestamp time.Time  `json:"timestamp"`
	Action    Action     `json:"action"`
	Data      RecordData `json:"data"`
}

// Record is the unit of persistence: one geographic-reasoning
// question/answer pair with tags and an optional embedded image.
//
// Version starts at 1 and is incremented on every update. History holds
// full snapshots of prior versions, append-only, with strictly
// increasing version numbers all below the current Version.
type Record struct {
	ID string `json:"id"`
	RecordData
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	Version   int            `json:"version"`
	History   []HistoryEntry `json:"history,omitempty"`
}

// Clone returns a deep copy of the record, history included.
func (r *Record) Clone() *Record {
	out := *r
	out.RecordData = r.RecordData.Clone()
	if r.History != nil {
		out.History = make([]HistoryEntry, len(r.History))
		for i, h := range r.History {
			out.History[i] = h
			out.History[i].Data = h.Data.Clone()
		}
	}
	return &out
}

// TagDefinition is a reusable field schema referenced by id from a
// record's Tags map. Definitions are configuration, not per-record data.
type TagDefinition struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Label       string   `json:"label"`
	Type        TagType  `json:"type"`
	Required    bool     `json:"required,omitempty"`
	Description string   `json:"description,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Options     []string `json:"options,omitempty"` // select types only
}

// ExportFormat selects the export output shape.
type ExportFormat string

const (
	ExportFormatJSON         ExportFormat = "json"
	ExportFormatConversation ExportFormat = "conversation"
)

// Packaging selects how multiple export files are delivered.
type Packaging string

const (
	PackagingArchive  Packaging = "archive"
	PackagingSeparate Packaging = "separate"
)

// ExportConfig controls the export engine.
type ExportConfig struct {
	Format            ExportFormat `json:"format"`
	ImagePathPrefix   string       `json:"imagePathPrefix"`
	IncludeHistory    bool         `json:"includeHistory"`
	MaterializeImages bool         `json:"materializeImages"`
	Packaging         Packaging    `json:"packaging"`
}

// DefaultExportConfig returns the configuration used when none has been
// saved yet.
func DefaultExportConfig() *ExportConfig {
	return &ExportConfig{
		Format:          ExportFormatJSON,
		ImagePathPrefix: "images/",
		Packaging:       PackagingSeparate,
	}
}

// NewID returns a globally unique record identifier.
func NewID() string {
	return uuid.NewString()
}
