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


package storage

import "errors"

var (
	// ErrBackendUnavailable indicates that no backend could be elected.
	ErrBackendUnavailable = errors.New("no storage backend available")

	// ErrQuotaExceeded indicates a write rejected for lack of capacity,
	// after eviction and recompression retries were exhausted.
	ErrQuotaExceeded = errors.New("storage quota exceeded")

	// ErrPermissionDenied indicates the storage medium refused access.
	ErrPermissionDenied = errors.New("storage permission denied")

	// ErrSerializationFailed indicates a record could not be encoded or
	// decoded.
	ErrSerializationFailed = errors.New("serialization failed")

	// ErrTransient indicates a transient I/O failure (network hiccup,
	// timeout) that was not retried or whose retry also failed.
	ErrTransient = errors.New("transient storage failure")

	// ErrStorageClosed indicates an operation on a closed backend.
	ErrStorageClosed = errors.New("storage is closed")
)
