// Package qart locates the notebooks written by finished jobs.
package qart

import (
	"context"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// Artifact is a result file as seen by a store.
type Artifact struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
	URL          string    `json:"url,omitempty"` // presigned download URL, when the store has one
}

// Store tells whether a result written inside a job pod is visible and
// reads it back.
type Store interface {
	// Stat returns ErrNotFound when the file is missing or still empty.
	Stat(ctx context.Context, podPath string) (*Artifact, error)
	// Open returns ErrNotFound when the file is missing.
	Open(ctx context.Context, podPath string) (io.ReadCloser, error)
}

// relativeTo maps an absolute pod path below root to a slash separated key.
func relativeTo(root, podPath string) (string, error) {
	root = strings.TrimSuffix(path.Clean(root), "/")
	clean := path.Clean(podPath)
	if !strings.HasPrefix(clean, root+"/") {
		return "", ErrOutsideStore
	}
	return strings.TrimPrefix(clean, root+"/"), nil
}

// FileStore reads results from a volume the service shares with the jobs,
// e.g. the home claim mounted read-only into the server pod.
type FileStore struct {
	// PodRoot is where the volume is mounted inside job pods.
	PodRoot string
	// LocalRoot is where the same volume is mounted locally.
	LocalRoot string
}

// NewFileStore creates a store for a volume mounted at podRoot in jobs and
// localRoot here.
func NewFileStore(podRoot, localRoot string) *FileStore {
	return &FileStore{PodRoot: podRoot, LocalRoot: localRoot}
}

func (s *FileStore) Stat(_ context.Context, podPath string) (*Artifact, error) {
	rel, err := relativeTo(s.PodRoot, podPath)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(filepath.Join(s.LocalRoot, filepath.FromSlash(rel)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if info.IsDir() || info.Size() == 0 {
		return nil, ErrNotFound
	}
	return &Artifact{Key: rel, Size: info.Size(), LastModified: info.ModTime()}, nil
}

func (s *FileStore) Open(_ context.Context, podPath string) (io.ReadCloser, error) {
	rel, err := relativeTo(s.PodRoot, podPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.LocalRoot, filepath.FromSlash(rel)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return f, nil
}

var _ Store = (*FileStore)(nil)
