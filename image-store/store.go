package image_store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/d0rc/geo-locator/settings"
)

// Store keeps dataset images addressed by their manifest-relative path.
type Store interface {
	Put(ctx context.Context, name string, data []byte) error
	Get(ctx context.Context, name string) ([]byte, error)
	// Location is what ends up in a sample's AbsoluteImagePath.
	Location(name string) string
}

type Local struct {
	root string
}

func NewLocal(root string) *Local {
	return &Local{root: root}
}

func (l *Local) path(name string) string {
	if filepath.IsAbs(name) {
		return filepath.Clean(name)
	}
	return filepath.Join(l.root, filepath.FromSlash(name))
}

func (l *Local) Put(_ context.Context, name string, data []byte) error {
	p := l.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("error creating %s: %w", filepath.Dir(p), err)
	}
	return os.WriteFile(p, data, 0o644)
}

func (l *Local) Get(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(l.path(name))
}

func (l *Local) Location(name string) string {
	return l.path(name)
}

// NewFromConfig returns the configured store, local stores are rooted at root.
func NewFromConfig(config *settings.ObjectStoreConfigurationSection, root string) (Store, error) {
	switch config.Type {
	case "", "local":
		return NewLocal(root), nil
	case "minio", "s3":
		return NewMinio(config)
	default:
		return nil, fmt.Errorf("unknown object store type %q", config.Type)
	}
}
