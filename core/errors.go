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

import "errors"

// Domain validation errors
var (
	// ErrInvalidRecord indicates a Record failed validation.
	ErrInvalidRecord = errors.New("invalid record")

	// ErrEmptyID indicates the ID field is empty.
	ErrEmptyID = errors.New("id cannot be empty")

	// ErrEmptyQuery indicates the Query field is empty.
	ErrEmptyQuery = errors.New("query cannot be empty")

	// ErrEmptyAnswer indicates the GroundTruthAnswer field is empty.
	ErrEmptyAnswer = errors.New("ground truth answer cannot be empty")

	// ErrInvalidVersion indicates a non-positive record version.
	ErrInvalidVersion = errors.New("version must be positive")

	// ErrHistoryOrder indicates history version numbers are not strictly
	// increasing below the record's current version.
	ErrHistoryOrder = errors.New("history versions out of order")

	// ErrInvalidTagDefinition indicates a TagDefinition failed validation.
	ErrInvalidTagDefinition = errors.New("invalid tag definition")

	// ErrMissingOptions indicates a select-type definition without options.
	ErrMissingOptions = errors.New("select tag requires at least one option")

	// ErrInvalidTagValue indicates a tag value that does not match its
	// definition's type.
	ErrInvalidTagValue = errors.New("invalid tag value")

	// ErrUnknownTag indicates a tag value referencing no known definition.
	ErrUnknownTag = errors.New("unknown tag definition")

	// ErrMissingRequiredTag indicates a required tag with no value.
	ErrMissingRequiredTag = errors.New("missing required tag")
)
