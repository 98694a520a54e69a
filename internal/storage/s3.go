package storage

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"bronze-ingest/internal/domain"
)

var _ domain.ObjectStore = (*S3Store)(nil)

// S3Store is an ObjectStore over an S3 or S3-compatible bucket.
type S3Store struct {
	client *s3.Client
	loc    Location
}

// NewS3Store creates an S3Store for loc. Static credentials are used when
// configured; otherwise requests are anonymous. A custom endpoint switches to
// path-style addressing unless URL style "vhost" is requested.
func NewS3Store(loc Location, opts Options) (*S3Store, error) {
	if loc.Scheme != SchemeS3 {
		return nil, fmt.Errorf("expected s3 location, got %q", loc.Scheme)
	}

	region := opts.S3Region
	if region == "" {
		region = "us-east-1"
	}

	s3Opts := s3.Options{Region: region}
	if opts.S3KeyID != "" {
		s3Opts.Credentials = credentials.NewStaticCredentialsProvider(opts.S3KeyID, opts.S3Secret, "")
	} else {
		s3Opts.Credentials = aws.AnonymousCredentials{}
	}
	if opts.S3Endpoint != "" {
		endpoint := opts.S3Endpoint
		if !strings.Contains(endpoint, "://") {
			endpoint = "https://" + endpoint
		}
		s3Opts.BaseEndpoint = aws.String(endpoint)
		s3Opts.UsePathStyle = opts.S3URLStyle != "vhost"
	} else {
		s3Opts.UsePathStyle = opts.S3URLStyle == "path"
	}

	return &S3Store{client: s3.New(s3Opts), loc: loc}, nil
}

// List returns up to limit objects under prefix (limit <= 0 lists all).
func (s *S3Store) List(ctx context.Context, prefix string, limit int) ([]domain.ObjectInfo, error) {
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.loc.Bucket),
		Prefix: aws.String(s.loc.Prefix + prefix),
	}
	if limit > 0 && limit < 1000 {
		input.MaxKeys = aws.Int32(int32(limit))
	}

	var out []domain.ObjectInfo
	pager := s3.NewListObjectsV2Paginator(s.client, input)
	for pager.HasMorePages() {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.loc.Bucket, s.loc.Prefix+prefix, err)
		}
		for _, obj := range page.Contents {
			out = append(out, domain.ObjectInfo{
				Key:          strings.TrimPrefix(aws.ToString(obj.Key), s.loc.Prefix),
				Size:         aws.ToInt64(obj.Size),
				LastModified: aws.ToTime(obj.LastModified),
			})
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// Put uploads body under key.
func (s *S3Store) Put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.loc.Bucket),
		Key:         aws.String(s.loc.Prefix + key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("put s3://%s/%s: %w", s.loc.Bucket, s.loc.Prefix+key, err)
	}
	return nil
}

// URI returns s3://bucket/prefix/key.
func (s *S3Store) URI(key string) string { return s.loc.URI(key) }
