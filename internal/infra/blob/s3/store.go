// Package s3 implements blob.Store on an S3-compatible bucket (AWS S3 or
// MinIO).
package s3

import (
	"assetflow/internal/blob"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var _ blob.Store = (*Store)(nil)

const (
	defaultRegion = "us-east-1"
	defaultExpiry = 15 * time.Minute
)

// Config selects the bucket and, optionally, endpoint and static credentials.
// Without an access key the default AWS credential chain applies.
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	PathStyle       bool
}

// Store is a single-bucket blob store.
type Store struct {
	client  *s3.Client
	presign *s3.PresignClient
	bucket  string
}

// New builds a store from cfg. optFns adjust the S3 client, e.g. its HTTP
// transport.
func New(ctx context.Context, cfg Config, optFns ...func(*s3.Options)) (*Store, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 bucket required")
	}
	region := cfg.Region
	if region == "" {
		region = defaultRegion
	}
	loadOpts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, cfg.SessionToken)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	clientOpts := []func(*s3.Options){func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
	}}
	client := s3.NewFromConfig(awsCfg, append(clientOpts, optFns...)...)
	return &Store{client: client, presign: s3.NewPresignClient(client), bucket: cfg.Bucket}, nil
}

// Driver returns blob.DriverS3.
func (s *Store) Driver() blob.Driver { return blob.DriverS3 }

// Bucket returns the configured bucket name.
func (s *Store) Bucket() string { return s.bucket }

func isNotFound(err error) bool {
	var (
		noKey    *types.NoSuchKey
		notFound *types.NotFound
		status   interface{ HTTPStatusCode() int }
	)
	switch {
	case errors.As(err, &noKey), errors.As(err, &notFound):
		return true
	case errors.As(err, &status):
		return status.HTTPStatusCode() == http.StatusNotFound
	}
	return false
}

// Put uploads r unless key already exists. The body is buffered so the SDK
// can sign a seekable payload.
func (s *Store) Put(ctx context.Context, key string, r io.Reader, opts blob.PutOptions) (blob.Info, error) {
	key, err := blob.CleanKey(key)
	if err != nil {
		return blob.Info{}, err
	}
	if _, err := s.Head(ctx, key); err == nil {
		return blob.Info{}, fmt.Errorf("%s: %w", key, blob.ErrExists)
	} else if !errors.Is(err, blob.ErrNotFound) {
		return blob.Info{}, err
	}
	body, err := io.ReadAll(r)
	if err != nil {
		return blob.Info{}, fmt.Errorf("read %s: %w", key, err)
	}
	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(body),
		ContentLength: aws.Int64(int64(len(body))),
		Metadata:      blob.CloneMetadata(opts.Metadata),
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}
	out, err := s.client.PutObject(ctx, input)
	if err != nil {
		return blob.Info{}, fmt.Errorf("put %s: %w", key, err)
	}
	return blob.Info{
		Key:          key,
		Size:         int64(len(body)),
		ContentType:  opts.ContentType,
		ETag:         strings.Trim(aws.ToString(out.ETag), `"`),
		Metadata:     blob.CloneMetadata(opts.Metadata),
		LastModified: time.Now().UTC(),
	}, nil
}

// Get streams the object body.
func (s *Store) Get(ctx context.Context, key string) (blob.Info, io.ReadCloser, error) {
	key, err := blob.CleanKey(key)
	if err != nil {
		return blob.Info{}, nil, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return blob.Info{}, nil, fmt.Errorf("%s: %w", key, blob.ErrNotFound)
		}
		return blob.Info{}, nil, fmt.Errorf("get %s: %w", key, err)
	}
	return objectInfo(key, out.ContentLength, out.ContentType, out.ETag, out.Metadata, out.LastModified), out.Body, nil
}

// Head fetches object attributes.
func (s *Store) Head(ctx context.Context, key string) (blob.Info, error) {
	key, err := blob.CleanKey(key)
	if err != nil {
		return blob.Info{}, err
	}
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)})
	if err != nil {
		if isNotFound(err) {
			return blob.Info{}, fmt.Errorf("%s: %w", key, blob.ErrNotFound)
		}
		return blob.Info{}, fmt.Errorf("head %s: %w", key, err)
	}
	return objectInfo(key, out.ContentLength, out.ContentType, out.ETag, out.Metadata, out.LastModified), nil
}

// Delete removes key. S3 deletes are idempotent so existence is checked first.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	if _, err := s.Head(ctx, key); err != nil {
		if errors.Is(err, blob.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)}); err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return true, nil
}

// List pages through ListObjectsV2.
func (s *Store) List(ctx context.Context, prefix string) ([]blob.Info, error) {
	var out []blob.Info
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, blob.Info{
				Key:          aws.ToString(obj.Key),
				Size:         aws.ToInt64(obj.Size),
				ETag:         strings.Trim(aws.ToString(obj.ETag), `"`),
				LastModified: aws.ToTime(obj.LastModified),
			})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// PresignURL signs a GET for key.
func (s *Store) PresignURL(ctx context.Context, key string, opts blob.SignedURLOptions) (string, error) {
	key, err := blob.CleanKey(key)
	if err != nil {
		return "", err
	}
	expiry := opts.Expiry
	if expiry <= 0 {
		expiry = defaultExpiry
	}
	req, err := s.presign.PresignGetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(s.bucket), Key: aws.String(key)},
		s3.WithPresignExpires(expiry))
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return req.URL, nil
}

func objectInfo(key string, size *int64, contentType, etag *string, metadata map[string]string, modified *time.Time) blob.Info {
	return blob.Info{
		Key:          key,
		Size:         aws.ToInt64(size),
		ContentType:  aws.ToString(contentType),
		ETag:         strings.Trim(aws.ToString(etag), `"`),
		Metadata:     blob.CloneMetadata(metadata),
		LastModified: aws.ToTime(modified),
	}
}
