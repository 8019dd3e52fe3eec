package helpers

import (
	"context"

	"github.com/mattjoyce/xyrun/internal/xyapi"
)

//go:generate mockgen -destination=mocks/mock_remote.go -package=mocks github.com/mattjoyce/xyrun/internal/helpers Remote

// Remote defines the host REST operations used by the helper library.
type Remote interface {
	GetBucketData(ctx context.Context, id string) (map[string]any, error)
	PutBucketData(ctx context.Context, id string, data map[string]any) error
	DownloadBucketFile(ctx context.Context, id, filename, dest string) (int64, error)
	UploadBucketFile(ctx context.Context, id, path string) ([]xyapi.BucketFile, error)
	DeleteBucketFile(ctx context.Context, id, filename string) error
	GetTags(ctx context.Context) ([]xyapi.Tag, error)
	SendEmail(ctx context.Context, msg xyapi.Email) error
}

// RemoteFactory builds a Remote for one host and API key.
type RemoteFactory func(baseURL, apiKey string) (Remote, error)

var _ Remote = (*xyapi.Client)(nil)
