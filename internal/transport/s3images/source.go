// Package s3images reads catalog product images from an S3-compatible bucket.
package s3images

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// DefaultMaxObjectBytes caps a single image download.
const DefaultMaxObjectBytes = 10 << 20

// objects are probed in order for <prefix><id>.<ext>.
var objects = []struct {
	ext         string
	contentType string
}{
	{".jpg", "image/jpeg"},
	{".jpeg", "image/jpeg"},
	{".png", "image/png"},
}

// Config locates the bucket. Endpoint is set for MinIO and other S3-compatible servers.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	// UsePathStyle addresses the bucket as <endpoint>/<bucket>, required by MinIO.
	UsePathStyle   bool
	MaxObjectBytes int64
}

// objectGetter is the part of *s3.Client the source needs.
type objectGetter interface {
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Source implements ingest.ImageSource on top of S3 GetObject.
type Source struct {
	client   objectGetter
	bucket   string
	prefix   string
	maxBytes int64
}

// New connects to the bucket with static credentials.
func New(cfg Config) (*Source, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	client := s3.NewFromConfig(aws.Config{Region: region}, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.AccessKey != "" {
			o.Credentials = credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")
		}
		o.UsePathStyle = cfg.UsePathStyle
	})
	return newSource(client, cfg), nil
}

func newSource(client objectGetter, cfg Config) *Source {
	maxBytes := cfg.MaxObjectBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxObjectBytes
	}
	return &Source{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix, maxBytes: maxBytes}
}

// Image fetches the first existing object among <prefix><id>.{jpg,jpeg,png}.
// The object's Content-Type wins over the extension when it names an image.
func (s *Source) Image(ctx context.Context, id string) ([]byte, string, error) {
	for _, o := range objects {
		key := s.prefix + id + o.ext
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			if isNotFound(err) {
				continue
			}
			return nil, "", fmt.Errorf("get s3://%s/%s: %w", s.bucket, key, err)
		}

		data, err := s.read(out.Body)
		if err != nil {
			return nil, "", fmt.Errorf("read s3://%s/%s: %w", s.bucket, key, err)
		}
		contentType := o.contentType
		if ct := aws.ToString(out.ContentType); strings.HasPrefix(ct, "image/") {
			contentType = ct
		}
		return data, contentType, nil
	}
	return nil, "", fmt.Errorf("no image for %s in s3://%s/%s: %w", id, s.bucket, s.prefix, os.ErrNotExist)
}

func (s *Source) read(body io.ReadCloser) ([]byte, error) {
	defer func() { _ = body.Close() }()
	data, err := io.ReadAll(io.LimitReader(body, s.maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > s.maxBytes {
		return nil, fmt.Errorf("object exceeds %d bytes", s.maxBytes)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty object")
	}
	return data, nil
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	// HEAD-style 404s surface as NotFound.
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}
