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


package core

import (
	"fmt"
	"slices"
	"time"
)

// ValidateRecord validates a Record according to domain rules.
//
// Validation rules:
//   - ID must not be empty
//   - Query and GroundTruthAnswer must not be empty
//   - Version must be positive
//   - History version numbers must be strictly increasing and all below
//     the current Version
//
// NOT validated:
//   - Image (any data URI or empty string is acceptable here; backends
//     own the physical representation)
//   - Tags (use ValidateTags with the definition catalog)
func ValidateRecord(record *Record) error {
	if record == nil {
		return fmt.Errorf("%w: record is nil", ErrInvalidRecord)
	}

	if record.ID == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyID)
	}

	if record.Query == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyQuery)
	}

	if record.GroundTruthAnswer == "" {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrEmptyAnswer)
	}

	if record.Version < 1 {
		return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrInvalidVersion)
	}

	prev := 0
	for _, h := range record.History {
		if h.Version <= prev || h.Version >= record.Version {
			return fmt.Errorf("%w: %w", ErrInvalidRecord, ErrHistoryOrder)
		}
		prev = h.Version
	}

	return nil
}

// ValidateTagDefinition validates a TagDefinition according to domain rules.
//
// Validation rules:
//   - ID and Name must not be empty
//   - Select types must declare at least one option
//   - Non-select types must not declare options
func ValidateTagDefinition(def *TagDefinition) error {
	if def == nil {
		return fmt.Errorf("%w: definition is nil", ErrInvalidTagDefinition)
	}

	if def.ID == "" || def.Name == "" {
		return fmt.Errorf("%w: id and name are required", ErrInvalidTagDefinition)
	}

	switch def.Type {
	case TagTypeSingleSelect, TagTypeMultiSelect:
		if len(def.Options) == 0 {
			return fmt.Errorf("%w: %w", ErrInvalidTagDefinition, ErrMissingOptions)
		}
	case TagTypeText, TagTypeMultiline, TagTypeBoolean, TagTypeRating,
		TagTypeDate, TagTypeNumber, TagTypeSlider:
		if len(def.Options) > 0 {
			return fmt.Errorf("%w: options only apply to select types", ErrInvalidTagDefinition)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTagDefinition, def.Type)
	}

	return nil
}

// ValidateTagValue checks a single tag value against its definition.
// Numeric values are accepted as any numeric Go type since values that
// pass through JSON arrive as float64.
func ValidateTagValue(def *TagDefinition, value any) error {
	switch def.Type {
	case TagTypeSingleSelect:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s expects a string", ErrInvalidTagValue, def.ID)
		}
		if !slices.Contains(def.Options, s) {
			return fmt.Errorf("%w: %q is not an option of %s", ErrInvalidTagValue, s, def.ID)
		}
	case TagTypeMultiSelect:
		items, err := stringSlice(value)
		if err != nil {
			return fmt.Errorf("%w: %s expects a string set", ErrInvalidTagValue, def.ID)
		}
		for _, s := range items {
			if !slices.Contains(def.Options, s) {
				return fmt.Errorf("%w: %q is not an option of %s", ErrInvalidTagValue, s, def.ID)
			}
		}
	case TagTypeText, TagTypeMultiline:
		if _, ok := value.(string); !ok {
			return fmt.Errorf("%w: %s expects text", ErrInvalidTagValue, def.ID)
		}
	case TagTypeBoolean:
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("%w: %s expects a boolean", ErrInvalidTagValue, def.ID)
		}
	case TagTypeRating, TagTypeNumber, TagTypeSlider:
		if !isNumeric(value) {
			return fmt.Errorf("%w: %s expects a number", ErrInvalidTagValue, def.ID)
		}
	case TagTypeDate:
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("%w: %s expects a date string", ErrInvalidTagValue, def.ID)
		}
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return fmt.Errorf("%w: %s expects YYYY-MM-DD", ErrInvalidTagValue, def.ID)
		}
	default:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidTagDefinition, def.Type)
	}

	return nil
}

// ValidateTags checks a record's full tag map against the definition
// catalog: every value must reference a known definition and match its
// type, and every required definition must have a value.
func ValidateTags(defs []*TagDefinition, tags map[string]any) error {
	byID := make(map[string]*TagDefinition, len(defs))
	for _, def := range defs {
		byID[def.ID] = def
	}

	for id, value := range tags {
		def, ok := byID[id]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownTag, id)
		}
		if err := ValidateTagValue(def, value); err != nil {
			return err
		}
	}

	for _, def := range defs {
		if !def.Required {
			continue
		}
		if _, ok := tags[def.ID]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingRequiredTag, def.ID)
		}
	}

	return nil
}

func stringSlice(value any) ([]string, error) {
	switch vv := value.(type) {
	case []string:
		return vv, nil
	case []any:
		out := make([]string, len(vv))
		for i, item := range vv {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("element %d is not a string", i)
			}
			out[i] = s
		}
		return out, nil
	default:
		return nil, fmt.Errorf("not a slice")
	}
}

func isNumeric(value any) bool {
	switch value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32,
		uint64, float32, float64:
		return true
	}
	return false
}
