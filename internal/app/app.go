// Package app wires configuration, schema, stores and chunk storage into
// the export and import commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/micurley/chunkdata/internal/codec"
	"github.com/micurley/chunkdata/internal/config"
	cerrors "github.com/micurley/chunkdata/internal/errors"
	"github.com/micurley/chunkdata/internal/export"
	"github.com/micurley/chunkdata/internal/fixture"
	"github.com/micurley/chunkdata/internal/load"
	"github.com/micurley/chunkdata/internal/registry"
	"github.com/micurley/chunkdata/internal/storage"
	"github.com/micurley/chunkdata/internal/store"
)

// App holds the shared resources of one command invocation.
type App struct {
	cfg       *config.Config
	traceback bool

	registry *registry.Registry
	codecs   *codec.Registry
	stores   *store.Manager
	sink     storage.ObjectStorage

	mu     sync.Mutex
	closed bool
}

// Option configures an App.
type Option func(*App)

// WithTraceback makes commands return errors unchanged, with all their
// details, instead of user-facing command errors.
func WithTraceback(enabled bool) Option {
	return func(a *App) { a.traceback = enabled }
}

// WithSink replaces the configured chunk storage.
func WithSink(sink storage.ObjectStorage) Option {
	return func(a *App) { a.sink = sink }
}

// New resolves and validates cfg, loads the entity schema and prepares
// stores and chunk storage.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	reg, err := registry.Load(cfg.SchemaPath)
	if err != nil {
		return nil, err
	}

	a := &App{
		cfg:      cfg,
		registry: reg,
		codecs:   codec.Default(),
		stores:   store.NewManager(cfg.DatabasePaths(), reg),
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.sink == nil {
		if a.sink, err = newSink(ctx, cfg.Storage); err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		log.Printf("app: storage initialized: type=%s", cfg.Storage.Type)
	}
	return a, nil
}

func newSink(ctx context.Context, cfg config.StorageConfig) (storage.ObjectStorage, error) {
	switch cfg.Type {
	case "local":
		return storage.NewLocalStorage(cfg.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if cfg.S3.Region != "" {
			s3Cfg.Region = cfg.S3.Region
		}
		s3Cfg.Endpoint = cfg.S3.Endpoint
		s3Cfg.Prefix = cfg.S3.Prefix
		s3Cfg.UsePathStyle = cfg.S3.UsePathStyle
		s3Cfg.ContentType = "application/octet-stream"
		log.Printf("app: s3 bucket=%s region=%s endpoint=%s", cfg.S3.Bucket, s3Cfg.Region, cfg.S3.Endpoint)
		return storage.NewS3Storage(ctx, cfg.S3.Bucket, s3Cfg)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

// Registry returns the loaded entity schema.
func (a *App) Registry() *registry.Registry {
	return a.registry
}

// ExportOptions holds the parameters of one export run.
type ExportOptions struct {
	export.Options

	// ChunkSet and IndentSet mark Chunk and Indent as given explicitly,
	// so a zero value overrides the configured default
	ChunkSet  bool
	IndentSet bool
}

// Export runs an export. Unset format, indent, chunk and prune fall back
// to the configured export defaults.
func (a *App) Export(ctx context.Context, eo ExportOptions) (*export.Result, error) {
	opts := eo.Options
	if opts.Format == "" {
		opts.Format = a.cfg.Export.Format
	}
	if !eo.IndentSet && opts.Indent == 0 {
		opts.Indent = a.cfg.Export.Indent
	}
	if !eo.ChunkSet && opts.Chunk == 0 {
		opts.Chunk = a.cfg.Export.Chunk
	}
	opts.Prune = opts.Prune || a.cfg.Export.Prune

	st, err := a.stores.Get(ctx, opts.Database)
	if err != nil {
		return nil, a.surface(err)
	}

	x := export.New(a.registry, a.codecs, st, a.sink, export.Defaults{
		OutputDir: a.cfg.Export.OutputDir,
		BaseName:  a.cfg.Export.DefaultBaseName,
	})
	res, err := x.Run(ctx, opts)
	return res, a.surface(err)
}

// ImportOptions holds the parameters of one import run.
type ImportOptions struct {
	// Labels are fixture names or absolute file paths
	Labels []string

	// Database is the connection alias records are written to
	Database string

	// CreateTables creates missing entity tables before loading
	CreateTables bool
}

// Import loads fixtures into the selected database.
func (a *App) Import(ctx context.Context, opts ImportOptions) (*load.Result, error) {
	alias := opts.Database
	if alias == "" {
		alias = store.DefaultAlias
	}
	st, err := a.stores.Get(ctx, alias)
	if err != nil {
		return nil, a.surface(err)
	}
	if opts.CreateTables {
		if err := st.EnsureSchema(ctx, a.registry); err != nil {
			return nil, a.surface(err)
		}
	}

	dirs := fixture.SearchDirs(a.registry, a.cfg.FixtureDirs)
	res, err := load.New(a.codecs, a.registry, st, dirs, alias).Run(ctx, opts.Labels)
	return res, a.surface(err)
}

// Close releases every open store.
func (a *App) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true
	return a.stores.Close()
}

// CommandError is a failure reported to the user as a single message.
type CommandError struct {
	Message string
	Err     error
}

func (e *CommandError) Error() string { return e.Message }

func (e *CommandError) Unwrap() error { return e.Err }

// surface applies the traceback policy: fixture ambiguity and encoding
// failures become command errors unless traceback is on.
func (a *App) surface(err error) error {
	if err == nil || a.traceback {
		return err
	}

	switch {
	case errors.Is(err, cerrors.ErrMultipleFixturesFound):
		details := cerrors.GetDetails(err)
		dirs, _ := details["dirs"].([]string)
		return &CommandError{
			Message: fmt.Sprintf("Multiple fixtures named '%v' in %s. Aborting.", details["fixture"], strings.Join(dirs, ", ")),
			Err:     err,
		}
	case errors.Is(err, cerrors.ErrEncodingFailed):
		cause := err
		if u := errors.Unwrap(err); u != nil {
			cause = u
		}
		return &CommandError{
			Message: fmt.Sprintf("Unable to serialize database: %v", cause),
			Err:     err,
		}
	}
	return err
}
