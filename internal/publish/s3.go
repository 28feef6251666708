package publish

import (
	"bytes"
	"context"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/keithlinneman/linnemanlabs-folio/internal/cryptoutil"
	"github.com/keithlinneman/linnemanlabs-folio/internal/xerrors"
)

// Mirror receives a copy of every published file.
type Mirror interface {
	Put(ctx context.Context, name string, body []byte) error
}

// S3API is the subset of the S3 client the mirror needs.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Mirror uploads published files under bucket/prefix for CDN-hosted sites.
type S3Mirror struct {
	client       S3API
	bucket       string
	prefix       string
	cacheControl string
}

func NewS3Mirror(client S3API, bucket, prefix string) *S3Mirror {
	return &S3Mirror{
		client:       client,
		bucket:       bucket,
		prefix:       prefix,
		cacheControl: "public, max-age=60",
	}
}

func (m *S3Mirror) Put(ctx context.Context, name string, body []byte) error {
	key := path.Join(m.prefix, name)
	_, err := m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(m.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		ContentType:   aws.String(contentType(name)),
		CacheControl:  aws.String(m.cacheControl),
		Metadata: map[string]string{
			"sha256": cryptoutil.SHA256Hex(body),
		},
	})
	if err != nil {
		return xerrors.Wrapf(err, "s3 put s3://%s/%s", m.bucket, key)
	}
	return nil
}

func contentType(name string) string {
	switch path.Ext(name) {
	case ".json":
		return "application/json; charset=utf-8"
	default:
		return "text/plain; charset=utf-8"
	}
}
