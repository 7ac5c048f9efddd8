package services

import (
	"testing"

	"github.com/quatton/qpaper/pkg/qapi/config"
	"github.com/quatton/qpaper/pkg/qart"
	"github.com/quatton/qpaper/pkg/qspec"
)

func TestNewResultStore(t *testing.T) {
	store, err := NewResultStore(&config.EnvConfig{ResultStore: config.StoreNone})
	if err != nil || store != nil {
		t.Errorf("Expected no store, got %v, %v", store, err)
	}

	dir := t.TempDir()
	store, err = NewResultStore(&config.EnvConfig{ResultStore: config.StoreFile, ResultLocalRoot: dir})
	if err != nil {
		t.Fatalf("Failed to create file store: %v", err)
	}
	fs, ok := store.(*qart.FileStore)
	if !ok {
		t.Fatalf("Expected *qart.FileStore, got %T", store)
	}
	if fs.PodRoot != qspec.HomeDir || fs.LocalRoot != dir {
		t.Errorf("Unexpected roots %+v", fs)
	}

	store, err = NewResultStore(&config.EnvConfig{
		ResultStore: config.StoreS3,
		S3Endpoint:  "localhost:9000",
		S3Bucket:    "results",
		S3Prefix:    "users/alice",
	})
	if err != nil {
		t.Fatalf("Failed to create s3 store: %v", err)
	}
	s3, ok := store.(*qart.S3Store)
	if !ok {
		t.Fatalf("Expected *qart.S3Store, got %T", store)
	}
	key, err := s3.Key(qspec.S3MountPath + "/out/a.ipynb")
	if err != nil || key != "users/alice/out/a.ipynb" {
		t.Errorf("Expected key below the prefix, got %q, %v", key, err)
	}

	if _, err := NewResultStore(&config.EnvConfig{ResultStore: "ftp"}); err == nil {
		t.Error("Expected an error for an unknown store")
	}
}
