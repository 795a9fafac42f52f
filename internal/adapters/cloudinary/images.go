// Package cloudinary offloads review images so rows carry a URL instead of
// an inline data URL.
package cloudinary

import (
	"context"
	"time"

	"github.com/cloudinary/cloudinary-go/v2"
	"github.com/cloudinary/cloudinary-go/v2/api/uploader"
	"github.com/pkg/errors"

	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/adapters/observability"
	"github.com/santosh7063/Metawatchlist-Reviews-5325/internal/domain"
)

const folder = "metawatch/reviews"

type Images struct {
	cld *cloudinary.Cloudinary
}

func New(cloudName, apiKey, apiSecret string) (*Images, error) {
	cld, err := cloudinary.NewFromParams(cloudName, apiKey, apiSecret)
	if err != nil {
		return nil, errors.Wrap(err, "cloudinary init")
	}
	return &Images{cld: cld}, nil
}

// WithUploadPrefix points uploads at another API host.
func (i *Images) WithUploadPrefix(prefix string) *Images {
	i.cld.Config.API.UploadPrefix = prefix
	return i
}

// Put uploads a base64 data URL and returns the secure URL.
func (i *Images) Put(ctx context.Context, dataURL string) (string, error) {
	start := time.Now()
	resp, err := i.cld.Upload.Upload(ctx, dataURL, uploader.UploadParams{Folder: folder})
	if err != nil {
		observability.ObserveBackend("cloudinary", "upload", "error", time.Since(start))
		return "", errors.Wrapf(domain.ErrBackend, "cloudinary upload: %v", err)
	}
	if resp.Error.Message != "" {
		observability.ObserveBackend("cloudinary", "upload", "rejected", time.Since(start))
		return "", errors.Wrapf(domain.ErrBackend, "cloudinary upload: %s", resp.Error.Message)
	}
	observability.ObserveBackend("cloudinary", "upload", "ok", time.Since(start))
	return resp.SecureURL, nil
}

var _ domain.ImageStore = (*Images)(nil)
