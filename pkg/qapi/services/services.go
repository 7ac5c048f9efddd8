package services

import (
	"fmt"

	"github.com/quatton/qpaper/pkg/qapi/config"
	"github.com/quatton/qpaper/pkg/qart"
	"github.com/quatton/qpaper/pkg/qrunner"
	"github.com/quatton/qpaper/pkg/qspec"
)

type Services struct {
	Auth      *AuthService
	JobRunner qrunner.Runner
}

func NewServices(cfg *config.EnvConfig, runner qrunner.Runner) *Services {
	return &Services{
		Auth:      NewAuthService(cfg.AuthSecret),
		JobRunner: runner,
	}
}

// EmptyServices is enough to describe the API, e.g. for OpenAPI generation.
func EmptyServices() *Services {
	return &Services{Auth: NewAuthService("")}
}

// NewResultStore creates the store results are checked against. A nil store
// with a nil error means results are returned unverified.
func NewResultStore(cfg *config.EnvConfig) (qart.Store, error) {
	switch cfg.ResultStore {
	case config.StoreFile:
		root := cfg.ResultPodRoot
		if root == "" {
			root = qspec.HomeDir
		}
		return qart.NewFileStore(root, cfg.ResultLocalRoot), nil
	case config.StoreS3:
		root := cfg.ResultPodRoot
		if root == "" {
			root = qspec.S3MountPath
		}
		store, err := qart.NewS3Store(qart.S3Config{
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			UseSSL:    cfg.S3UseSSL,
			PodRoot:   root,
			Prefix:    cfg.S3Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("creating s3 result store: %w", err)
		}
		return store, nil
	case config.StoreNone, "":
		return nil, nil
	}
	return nil, fmt.Errorf("unknown result store %q", cfg.ResultStore)
}
