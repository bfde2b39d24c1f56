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


// Package storage provides the storage abstraction layer for geoset.
//
// This package defines the Backend interface that decouples record
// persistence from any particular medium, plus the Adapter that elects
// exactly one backend at startup and routes every operation to it.
//
// # Backends
//
// Four implementations exist, in the Adapter's probe priority order:
//
//   - remote: HTTP client for the loopback file-server process
//   - dirstore: a user-visible directory tree (entries, images, thumbs)
//   - flatstore: a single compressed key-value file with a hard
//     capacity ceiling (the legacy format)
//   - badgerstore: an embedded BadgerDB database, the last-resort
//     structured fallback
//
// # Constructor Return Type Pattern
//
// Concrete backends return their own types from constructors; the
// Adapter and all consumers depend only on storage.Backend. Probing is
// part of the contract: Initialize reports plain unavailability as
// false, never as an error, because falling through to the next backend
// is the expected path.
//
// # Error Policy
//
// Not-found is a nil result, never an error. Write failures surface as
// kind-tagged sentinel errors (ErrQuotaExceeded, ErrPermissionDenied,
// ...) so callers can present an actionable message. Backends translate
// medium-specific failures into these kinds before returning.
//
// # Concurrency
//
// Backends must tolerate concurrent calls for different record IDs.
// Overlapping writes to the same ID are not serialized anywhere in this
// layer; the single-user caller is responsible for not issuing them.
package storage
