package s3

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/minio/minio-go/v7"
)

// Presigner generates download links for exported objects.
type Presigner struct {
	Client *minio.Client
	Bucket string
	// MaxTTL limits the lifetime of generated URLs.
	MaxTTL time.Duration
}

// PresignGet creates a short-lived URL for downloading an object. A non-empty
// filename forces a Content-Disposition attachment.
func (p Presigner) PresignGet(ctx context.Context, objectKey, filename string, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > p.MaxTTL {
		return "", fmt.Errorf("invalid ttl %s", ttl)
	}
	vals := url.Values{}
	if filename != "" {
		vals.Set("response-content-disposition", "attachment; filename=\""+filename+"\"")
	}
	u, err := p.Client.PresignedGetObject(ctx, p.Bucket, objectKey, ttl, vals)
	if err != nil {
		return "", err
	}
	return u.String(), nil
}
