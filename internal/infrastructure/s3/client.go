package s3infra

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/go-events-sync/internal/config"
	"github.com/go-events-sync/internal/domain"
)

// Store serves the static app shell from one bucket prefix.
type Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// Object is one asset read from the bucket.
type Object struct {
	Body          io.ReadCloser
	ContentType   string
	ContentLength int64
	ETag          string
}

// NewClient creates an S3 client. When cfg.AWSEndpointURL is set (LocalStack),
// it overrides the endpoint and enables path-style addressing.
func NewClient(awsCfg aws.Config, cfg *config.Config) *s3.Client {
	clientOpts := []func(*s3.Options){}
	if cfg.AWSEndpointURL != "" {
		clientOpts = append(clientOpts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointURL)
			o.UsePathStyle = true
		})
	}
	return s3.NewFromConfig(awsCfg, clientOpts...)
}

// NewStore creates a Store reading keys under prefix in bucket.
func NewStore(client *s3.Client, bucket, prefix string) *Store {
	return &Store{client: client, bucket: bucket, prefix: prefix}
}

// Get opens the asset stored under name. Missing objects map to ErrNotFound.
func (s *Store) Get(ctx context.Context, name string) (*Object, error) {
	key := ObjectKey(s.prefix, name)
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fmt.Errorf("asset %s: %w", key, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("s3 get object: %w", err)
	}
	obj := &Object{Body: out.Body, ContentType: aws.ToString(out.ContentType), ETag: aws.ToString(out.ETag)}
	if out.ContentLength != nil {
		obj.ContentLength = *out.ContentLength
	}
	if obj.ContentType == "" {
		obj.ContentType = detectContentType(key)
	}
	return obj, nil
}

// ObjectKey maps a request path to its key under prefix. Directory paths
// resolve to their index.html.
func ObjectKey(prefix, name string) string {
	clean := strings.TrimPrefix(path.Clean("/"+name), "/")
	if clean == "" || strings.HasSuffix(name, "/") {
		clean = path.Join(clean, "index.html")
	} else if path.Ext(clean) == "" {
		clean += ".html"
	}
	return prefix + clean
}

func detectContentType(filename string) string {
	lower := strings.ToLower(filename)
	switch {
	case strings.HasSuffix(lower, ".html"):
		return "text/html; charset=utf-8"
	case strings.HasSuffix(lower, ".js"):
		return "text/javascript; charset=utf-8"
	case strings.HasSuffix(lower, ".css"):
		return "text/css; charset=utf-8"
	case strings.HasSuffix(lower, ".json"):
		return "application/json"
	case strings.HasSuffix(lower, ".ico"):
		return "image/x-icon"
	case strings.HasSuffix(lower, ".svg"):
		return "image/svg+xml"
	case strings.HasSuffix(lower, ".jpg") || strings.HasSuffix(lower, ".jpeg"):
		return "image/jpeg"
	case strings.HasSuffix(lower, ".png"):
		return "image/png"
	default:
		return "application/octet-stream"
	}
}
