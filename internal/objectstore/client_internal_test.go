package objectstore

import (
	"errors"
	"testing"

	"github.com/minio/minio-go/v7"
)

func TestClassifyMapsMissingObjects(t *testing.T) {
	t.Parallel()
	for _, code := range []string{"NoSuchKey", "NoSuchBucket"} {
		err := classify("k", minio.ErrorResponse{Code: code, StatusCode: 404})
		if !errors.Is(err, ErrNotFound) {
			t.Fatalf("%s: expected ErrNotFound, got %v", code, err)
		}
	}
	err := classify("k", minio.ErrorResponse{Code: "AccessDenied", StatusCode: 403})
	if errors.Is(err, ErrNotFound) {
		t.Fatalf("access denied must not read as missing: %v", err)
	}
}
