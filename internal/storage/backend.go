// Package storage holds the pluggable durability backends. Backends
// are registered once at startup; an unregistered name is a
// configuration error, never a runtime fallback.
package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/rs/zerolog"

	"github.com/dbferry/dbferry/pkg/config"
)

// LocalName is the always-present filesystem backend.
const LocalName = "local"

// ErrUnknownBackend is returned when a backend name was never
// registered, either because it was not configured or because its
// client failed to initialize at startup.
var ErrUnknownBackend = errors.New("unknown storage backend")

// Object is one stored backup artifact as seen by List.
type Object struct {
	ID      string `json:"id"`
	Size    int64  `json:"size"`
	Backend string `json:"backend"`
}

// Backend is the four-operation capability every storage variant
// implements. List and Delete are safe to call on an empty bucket.
type Backend interface {
	Name() string
	Label() string
	Upload(ctx context.Context, localPath, key string) (string, error)
	Download(ctx context.Context, key, destPath string) (string, error)
	List(ctx context.Context) ([]Object, error)
	Delete(ctx context.Context, id string) error
}

// Registry is the static set of backends built at startup. Backends
// whose clients fail to initialize are logged and left out; they are
// absent, not present-but-broken.
type Registry struct {
	backends map[string]Backend
}

// NewRegistry builds the registry from configuration. The local
// filesystem backend is always present; remote backends are added only
// when their config section is filled in.
func NewRegistry(cfg *config.Config, logger zerolog.Logger) *Registry {
	logger = logger.With().Str("component", "storage").Logger()
	r := &Registry{backends: map[string]Backend{}}

	r.backends[LocalName] = NewLocal(cfg.BackupDir)

	if cfg.Storage.S3.Bucket != "" {
		backend, err := NewS3(cfg.Storage.S3)
		if err != nil {
			logger.Warn().Err(err).Msg("s3 backend unavailable")
		} else {
			r.backends[backend.Name()] = backend
		}
	}

	if cfg.Storage.GCS.Bucket != "" {
		backend, err := NewGCS(context.Background(), cfg.Storage.GCS)
		if err != nil {
			logger.Warn().Err(err).Msg("gcs backend unavailable")
		} else {
			r.backends[backend.Name()] = backend
		}
	}

	if cfg.Storage.Azure.Container != "" {
		backend, err := NewAzure(cfg.Storage.Azure)
		if err != nil {
			logger.Warn().Err(err).Msg("azure backend unavailable")
		} else {
			r.backends[backend.Name()] = backend
		}
	}

	logger.Info().Strs("backends", r.Names()).Msg("storage backends registered")
	return r
}

// Get returns a registered backend by name.
func (r *Registry) Get(name string) (Backend, error) {
	backend, ok := r.backends[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownBackend, name)
	}
	return backend, nil
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register adds a backend, replacing any existing one with the same
// name. Used by tests to install fakes.
func (r *Registry) Register(backend Backend) {
	r.backends[backend.Name()] = backend
}
