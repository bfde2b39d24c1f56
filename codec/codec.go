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


// Package codec provides the reversible string compression used by
// capacity-limited key-value backends. Tokens are plain strings safe to
// store anywhere a string is.
//
// Two on-disk formats coexist: tokens produced by Compress carry a
// format prefix, anything else is treated as a legacy uncompressed
// value and returned as-is by Decompress. The codec is a pure
// transform; it knows nothing about record shapes and performs no I/O.
package codec

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/flate"
)

// tokenPrefix marks values written by the current format. Version bumps
// get a new prefix so old tokens stay identifiable.
const tokenPrefix = "gsz1:"

// ErrMalformedToken indicates a value that claims the compressed format
// but cannot be decoded.
var ErrMalformedToken = errors.New("malformed compressed token")

// Compress deterministically encodes text into a compact token.
// It is total: the empty string compresses and round-trips like any
// other input.
func Compress(text string) string {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		// Only reachable with an invalid level constant.
		panic(err)
	}
	if _, err := w.Write([]byte(text)); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	return tokenPrefix + base64.RawURLEncoding.EncodeToString(buf.Bytes())
}

// Decompress inverts Compress. Values without the format prefix are
// assumed to be legacy uncompressed data and returned unchanged.
func Decompress(token string) (string, error) {
	raw, ok := strings.CutPrefix(token, tokenPrefix)
	if !ok {
		return token, nil
	}

	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}

	r := flate.NewReader(bytes.NewReader(data))
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrMalformedToken, err)
	}
	return string(out), nil
}

// IsCompressed reports whether a stored value was written by Compress,
// as opposed to the legacy plain format.
func IsCompressed(value string) bool {
	return strings.HasPrefix(value, tokenPrefix)
}
