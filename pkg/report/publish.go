package report

import (
	"context"
	"errors"
	"path"
	"path/filepath"
	"strings"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	scanerr "github.com/northcutted/chart-scan/pkg/errors"
)

// PublisherOptions configures an S3-compatible upload target.
type PublisherOptions struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Region    string
	Bucket    string
	Prefix    string
}

// Publisher uploads written reports to object storage.
type Publisher struct {
	mc     *minio.Client
	bucket string
	prefix string
}

// NewPublisher builds a client for opts. It does not contact the endpoint.
func NewPublisher(opts PublisherOptions) (*Publisher, error) {
	if opts.Endpoint == "" || opts.Bucket == "" {
		return nil, errors.New("publisher requires an endpoint and a bucket")
	}
	mc, err := minio.New(opts.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(opts.AccessKey, opts.SecretKey, ""),
		Secure: opts.UseSSL,
		Region: opts.Region,
	})
	if err != nil {
		return nil, err
	}
	return &Publisher{mc: mc, bucket: opts.Bucket, prefix: opts.Prefix}, nil
}

// ObjectKey returns the key a local report file is stored under.
func (p *Publisher) ObjectKey(filePath string) string {
	return path.Join(strings.Trim(p.prefix, "/"), filepath.Base(filePath))
}

// Upload stores the report at filePath and returns its object key.
func (p *Publisher) Upload(ctx context.Context, filePath string, format Format) (string, error) {
	key := p.ObjectKey(filePath)
	_, err := p.mc.FPutObject(ctx, p.bucket, key, filePath, minio.PutObjectOptions{
		ContentType: format.ContentType(),
	})
	if err != nil {
		return "", scanerr.NewReportWriteError("upload report", err)
	}
	return key, nil
}
