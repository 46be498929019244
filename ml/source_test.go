package ml

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
)

type fakeS3 struct {
	bucket string
	key    string
	body   string
	err    error
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.bucket = *params.Bucket
	f.key = *params.Key
	return &s3.GetObjectOutput{Body: io.NopCloser(strings.NewReader(f.body))}, nil
}

func TestParseS3Location(t *testing.T) {
	bucket, key, err := ParseS3Location("s3://models/food/scaler.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if bucket != "models" || key != "food/scaler.json" {
		t.Fatalf("unexpected bucket/key: %s %s", bucket, key)
	}

	for _, bad := range []string{"s3://models", "s3:///key", "http://models/key"} {
		if _, _, err := ParseS3Location(bad); err == nil {
			t.Fatalf("expected error for %s", bad)
		}
	}
}

func TestArtifactSourceS3(t *testing.T) {
	client := &fakeS3{body: `{"kind":"standard","mean":[0],"scale":[1]}`}
	transform, err := LoadTransform(context.Background(), NewArtifactSource(client), "s3://models/scaler.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if transform.InputWidth() != 1 {
		t.Fatalf("expected width 1, got %d", transform.InputWidth())
	}
	if client.bucket != "models" || client.key != "scaler.json" {
		t.Fatalf("unexpected request: %s/%s", client.bucket, client.key)
	}
}

func TestArtifactSourceS3Errors(t *testing.T) {
	if _, err := NewArtifactSource(nil).Open(context.Background(), "s3://models/scaler.json"); err == nil {
		t.Fatal("expected error without s3 client")
	}

	fetchErr := errors.New("access denied")
	_, err := NewArtifactSource(&fakeS3{err: fetchErr}).Open(context.Background(), "s3://models/scaler.json")
	if !errors.Is(err, fetchErr) {
		t.Fatalf("expected wrapped fetch error, got %v", err)
	}
}

func TestSourceForLocalLocations(t *testing.T) {
	src, err := SourceFor(context.Background(), "", "artifacts/scaler.json", "artifacts/model.json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if src.s3 != nil {
		t.Fatal("local locations should not build an s3 client")
	}
}
