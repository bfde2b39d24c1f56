package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disintegration/imaging"
)

const (
	// DefaultTimeout bounds every image-processing step.
	DefaultTimeout = 5 * time.Second

	// DefaultThumbnailSize is the bounding box for list-view thumbnails.
	DefaultThumbnailSize = 256

	// DefaultThumbnailQuality is the JPEG quality for thumbnails.
	DefaultThumbnailQuality = 80
)

// ErrImageTimeout indicates an image transform hit its time ceiling.
var ErrImageTimeout = errors.New("image processing timed out")

// Thumbnail decodes a data URI, scales it to fit within size x size
// pixels and re-encodes it as a JPEG data URI. The whole step is bounded
// by DefaultTimeout (or the context deadline, whichever is sooner).
func Thumbnail(ctx context.Context, dataURI string, size int) (string, error) {
	if size <= 0 {
		size = DefaultThumbnailSize
	}
	return boundedTransform(ctx, func() (string, error) {
		_, raw, err := DecodeDataURI(dataURI)
		if err != nil {
			return "", err
		}

		img, err := imaging.Decode(bytes.NewReader(raw))
		if err != nil {
			return "", fmt.Errorf("decode image: %w", err)
		}

		thumb := imaging.Fit(img, size, size, imaging.Lanczos)

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, thumb, imaging.JPEG,
			imaging.JPEGQuality(DefaultThumbnailQuality)); err != nil {
			return "", fmt.Errorf("encode thumbnail: %w", err)
		}
		return EncodeDataURI("image/jpeg", buf.Bytes()), nil
	})
}

// Recompress re-encodes a data URI as a JPEG at the given quality.
// Used as the last-ditch size reduction before a quota failure.
func Recompress(ctx context.Context, dataURI string, quality int) (string, error) {
	return boundedTransform(ctx, func() (string, error) {
		_, raw, err := DecodeDataURI(dataURI)
		if err != nil {
			return "", err
		}

		img, err := imaging.Decode(bytes.NewReader(raw))
		if err != nil {
			return "", fmt.Errorf("decode image: %w", err)
		}

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, img, imaging.JPEG,
			imaging.JPEGQuality(quality)); err != nil {
			return "", fmt.Errorf("encode image: %w", err)
		}
		return EncodeDataURI("image/jpeg", buf.Bytes()), nil
	})
}

// Dimensions probes the pixel dimensions of a data URI image.
func Dimensions(ctx context.Context, dataURI string) (width, height int, err error) {
	type dims struct{ w, h int }
	var out dims
	_, err = boundedTransform(ctx, func() (string, error) {
		_, raw, derr := DecodeDataURI(dataURI)
		if derr != nil {
			return "", derr
		}
		img, derr := imaging.Decode(bytes.NewReader(raw))
		if derr != nil {
			return "", fmt.Errorf("decode image: %w", derr)
		}
		b := img.Bounds()
		out = dims{b.Dx(), b.Dy()}
		return "", nil
	})
	if err != nil {
		return 0, 0, err
	}
	return out.w, out.h, nil
}

// boundedTransform runs fn under DefaultTimeout. The transform itself
// cannot be interrupted mid-decode, so on timeout the goroutine is left
// to finish and its result is discarded.
func boundedTransform(ctx context.Context, fn func() (string, error)) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, DefaultTimeout)
	defer cancel()

	type result struct {
		value string
		err   error
	}
	done := make(chan result, 1)
	go func() {
		v, err := fn()
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrImageTimeout
		}
		return "", ctx.Err()
	case r := <-done:
		return r.value, r.err
	}
}
