package ml

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Source opens artifact bytes by location. Locations are local paths or
// s3://bucket/key URLs.
type Source interface {
	Open(ctx context.Context, location string) (io.ReadCloser, error)
}

// ObjectGetter is the subset of the S3 client used to fetch artifacts.
type ObjectGetter interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ArtifactSource opens local files and, with a client, S3 objects.
type ArtifactSource struct {
	s3 ObjectGetter
}

// NewArtifactSource returns a Source for local files. When client is non-nil
// s3:// locations are fetched through it.
func NewArtifactSource(client ObjectGetter) *ArtifactSource {
	return &ArtifactSource{s3: client}
}

// NewS3Client builds an S3 client from the default AWS credential chain.
func NewS3Client(ctx context.Context, region string) (*s3.Client, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return s3.NewFromConfig(cfg), nil
}

// SourceFor returns a Source able to open every location, building an S3
// client only when one of them is remote.
func SourceFor(ctx context.Context, region string, locations ...string) (*ArtifactSource, error) {
	for _, location := range locations {
		if IsRemote(location) {
			client, err := NewS3Client(ctx, region)
			if err != nil {
				return nil, err
			}
			return NewArtifactSource(client), nil
		}
	}
	return NewArtifactSource(nil), nil
}

func (s *ArtifactSource) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	if location == "" {
		return nil, errors.New("artifact location is empty")
	}
	if !IsRemote(location) {
		f, err := os.Open(location)
		if err != nil {
			return nil, fmt.Errorf("open artifact: %w", err)
		}
		return f, nil
	}

	bucket, key, err := ParseS3Location(location)
	if err != nil {
		return nil, err
	}
	if s.s3 == nil {
		return nil, fmt.Errorf("artifact %s: s3 source not configured", location)
	}
	out, err := s.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("fetch artifact %s: %w", location, err)
	}
	return out.Body, nil
}

// IsRemote reports whether location is an s3:// URL.
func IsRemote(location string) bool {
	return strings.HasPrefix(location, "s3://")
}

// ParseS3Location splits s3://bucket/key into its parts.
func ParseS3Location(location string) (bucket, key string, err error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", fmt.Errorf("parse artifact location: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("invalid s3 location %q", location)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("s3 location %q has no key", location)
	}
	return u.Host, key, nil
}
