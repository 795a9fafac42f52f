package app

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
)

var allowedImageTypes = []string{"image/png", "image/jpeg", "image/gif", "image/webp", "image/avif", "image/bmp"}

// ImageEncoder turns an uploaded file into the value stored in image_url:
// an inline data URL, or the URL returned by an optional ImageStore.
type ImageEncoder struct {
	maxBytes int
	sink     domain.ImageStore
}

// NewImageEncoder accepts a nil sink, which keeps images inline.
func NewImageEncoder(maxBytes int, sink domain.ImageStore) *ImageEncoder {
	return &ImageEncoder{maxBytes: maxBytes, sink: sink}
}

func (e *ImageEncoder) Encode(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	if e.maxBytes > 0 && len(data) > e.maxBytes {
		return "", fmt.Errorf("%w: image exceeds %d bytes", domain.ErrInvalid, e.maxBytes)
	}
	mt := mimetype.Detect(data)
	if !mimetype.EqualsAny(mt.String(), allowedImageTypes...) {
		return "", fmt.Errorf("%w: unsupported image type %s", domain.ErrInvalid, mt.String())
	}
	dataURL := "data:" + mt.String() + ";base64," + base64.StdEncoding.EncodeToString(data)
	if e.sink == nil {
		return dataURL, nil
	}
	u, err := e.sink.Put(ctx, dataURL)
	if err != nil {
		return "", storeErr("upload image", err)
	}
	return u, nil
}

// DecodeDataURL extracts the bytes of a base64 data URL sent by JSON clients.
func DecodeDataURL(s string) ([]byte, error) {
	head, payload, ok := strings.Cut(s, ",")
	if !ok || !strings.HasPrefix(head, "data:") || !strings.HasSuffix(head, ";base64") {
		return nil, fmt.Errorf("%w: image must be a base64 data URL", domain.ErrInvalid)
	}
	b, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: image is not valid base64", domain.ErrInvalid)
	}
	return b, nil
}
