// Package media handles the canonical in-memory image representation
// (self-describing data URIs) and the image transforms backends need:
// thumbnail generation for cheap list rendering and lossy recompression
// for capacity-constrained stores.
//
// Every transform runs under a fixed time ceiling; a timeout is a
// normal failure path, never fatal.
package media

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/go-crypt/x/blake2b"
)

// ErrNotDataURI indicates a string that is not a data URI.
var ErrNotDataURI = errors.New("not a data URI")

// IsDataURI reports whether s looks like a base64 data URI.
func IsDataURI(s string) bool {
	return strings.HasPrefix(s, "data:")
}

// EncodeDataURI wraps raw bytes into the canonical data-URI form.
func EncodeDataURI(mediaType string, data []byte) string {
	return "data:" + mediaType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURI splits a data URI into its declared media type and raw
// bytes.
func DecodeDataURI(uri string) (mediaType string, data []byte, err error) {
	rest, ok := strings.CutPrefix(uri, "data:")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing data: scheme", ErrNotDataURI)
	}

	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return "", nil, fmt.Errorf("%w: missing payload separator", ErrNotDataURI)
	}

	mediaType = strings.TrimSuffix(meta, ";base64")
	if mediaType == meta {
		// Not base64-encoded; nothing we produce, but accept it.
		return mediaType, []byte(payload), nil
	}
	if mediaType == "" {
		mediaType = "text/plain"
	}

	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrNotDataURI, err)
	}
	return mediaType, data, nil
}

// ExtForMediaType maps an image media type to a file extension.
// Unknown types map to ".bin".
func ExtForMediaType(mediaType string) string {
	switch mediaType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	default:
		return ".bin"
	}
}

// MediaTypeForExt is the inverse of ExtForMediaType. Unknown extensions
// map to application/octet-stream.
func MediaTypeForExt(ext string) string {
	switch strings.ToLower(ext) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	default:
		return "application/octet-stream"
	}
}

// ContentHash returns a short hex digest of image bytes, used for
// change detection and deduplication in file-backed stores.
func ContentHash(data []byte) string {
	h, _ := blake2b.New(16, nil)
	h.Write(data)
	return fmt.Sprintf("%x", h.Sum(nil))
}
