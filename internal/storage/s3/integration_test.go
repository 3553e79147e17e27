//go:build integration

package s3

import (
	"bytes"
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/duckgrid/duckgrid/internal/storage"
)

func TestStageAgainstMinIO(t *testing.T) {
	endpoint := envOr("DUCKGRID_TEST_S3_ENDPOINT", "")
	if endpoint == "" {
		t.Skip("DUCKGRID_TEST_S3_ENDPOINT is not set")
	}

	cfg := Config{
		Endpoint:        endpoint,
		Region:          envOr("DUCKGRID_TEST_S3_REGION", "us-east-1"),
		Bucket:          envOr("DUCKGRID_TEST_S3_BUCKET", "duckgrid-it"),
		AccessKeyID:     envOr("DUCKGRID_TEST_S3_ACCESS_KEY", "minio"),
		SecretAccessKey: envOr("DUCKGRID_TEST_S3_SECRET_KEY", "miniostorage"),
		Prefix:          "integration-tests",
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	seeder, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Region: cfg.Region,
	})
	if err != nil {
		t.Fatalf("minio.New() error = %v", err)
	}
	if exists, err := seeder.BucketExists(ctx, cfg.Bucket); err != nil {
		t.Fatalf("BucketExists() error = %v", err)
	} else if !exists {
		if err := seeder.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			t.Fatalf("MakeBucket() error = %v", err)
		}
	}

	payload := []byte("id,name\n1,ada\n")
	objectKey := "integration-tests/exports/people.csv"
	if _, err := seeder.PutObject(ctx, cfg.Bucket, objectKey, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{ContentType: "text/csv"}); err != nil {
		t.Fatalf("PutObject() error = %v", err)
	}
	t.Cleanup(func() {
		_ = seeder.RemoveObject(context.Background(), cfg.Bucket, objectKey, minio.RemoveObjectOptions{})
	})

	store, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := store.CheckBucket(ctx); err != nil {
		t.Fatalf("CheckBucket() error = %v", err)
	}

	stat, err := store.Stat(ctx, "exports/people.csv")
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if stat.Size != int64(len(payload)) {
		t.Fatalf("Stat().Size = %d, want %d", stat.Size, len(payload))
	}

	staged, err := storage.Stage(ctx, store, "exports/people.csv", t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	defer func() { _ = staged.Remove() }()
	body, err := os.ReadFile(staged.Path)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	if !bytes.Equal(body, payload) {
		t.Fatalf("staged payload = %q, want %q", body, payload)
	}

	if _, err := store.Stat(ctx, "exports/missing.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("Stat(missing) error = %v, want ErrObjectNotFound", err)
	}
}

func envOr(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}
