// Package export writes the records of selected entities as ordered,
// size-bounded chunk files.
package export

import (
	"context"
	"fmt"
	"log"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/spaolacci/murmur3"

	"github.com/micurley/chunkdata/internal/codec"
	cerrors "github.com/micurley/chunkdata/internal/errors"
	"github.com/micurley/chunkdata/internal/partition"
	"github.com/micurley/chunkdata/internal/registry"
	"github.com/micurley/chunkdata/internal/resolver"
	"github.com/micurley/chunkdata/internal/storage"
	"github.com/micurley/chunkdata/internal/store"
	"github.com/micurley/chunkdata/pkg/types"
)

// Options holds the parameters of one export run.
type Options struct {
	// Labels are "namespace" or "namespace.Entity" selectors; empty means all
	Labels []string

	// Excludes are labels left out of the export
	Excludes []string

	// Format names the codec; defaults to codec.DefaultFormat
	Format string

	// Indent is the pretty-print width; 0 means compact
	Indent int

	// Database is the connection alias the export reads from
	Database string

	// UseNaturalKeys renders references by natural key where available
	UseNaturalKeys bool

	// UseBaseManager ignores entity default filters
	UseBaseManager bool

	// Chunk is the maximum number of records per file; 0 disables chunking
	Chunk int

	// Filespec is the base file name; setting it writes files even
	// without a chunk threshold
	Filespec string

	// OutputDir overrides where chunk files are written
	OutputDir string

	// Prune deletes stale numbered chunks of the same base name
	Prune bool
}

// FileReport describes one written chunk file.
type FileReport struct {
	Path     string
	Location string
	Objects  int
	Bytes    int
	Checksum uint32

	// Segments has one entry per entity run in the file
	Segments []partition.SegmentStats
}

// Result is the outcome of an export run.
type Result struct {
	RunID string

	// Payload holds the encoded records when no files were written
	Payload []byte

	// Files lists written chunks in order. On failure it holds the chunks
	// completed before the error.
	Files []FileReport

	// Pruned lists stale chunk files that were deleted
	Pruned []string

	Dir     string
	Base    string
	Summary string
}

// Objects returns the total number of exported records.
func (r *Result) Objects() int {
	n := 0
	for _, f := range r.Files {
		n += f.Objects
	}
	return n
}

// Defaults supplies values used when Options leave them unset.
type Defaults struct {
	OutputDir string
	BaseName  string
}

// Exporter runs exports against one store.
type Exporter struct {
	registry *registry.Registry
	codecs   *codec.Registry
	store    store.Store
	sink     storage.ObjectStorage
	defaults Defaults
}

// New creates an exporter.
func New(reg *registry.Registry, codecs *codec.Registry, st store.Store, sink storage.ObjectStorage, defaults Defaults) *Exporter {
	if defaults.BaseName == "" {
		defaults.BaseName = "dump"
	}
	return &Exporter{
		registry: reg,
		codecs:   codecs,
		store:    st,
		sink:     sink,
		defaults: defaults,
	}
}

// Run validates opts, orders the selected entities, and either returns the
// encoded payload or writes chunk files.
func (x *Exporter) Run(ctx context.Context, opts Options) (*Result, error) {
	res := &Result{RunID: uuid.NewString()}

	entities, c, err := x.prepare(opts)
	if err != nil {
		return res, err
	}

	qopts := store.QueryOptions{UseBaseManager: opts.UseBaseManager, UseNaturalKeys: opts.UseNaturalKeys}

	counts := make([]types.EntityCount, 0, len(entities))
	for _, e := range entities {
		log.Printf("export[%s]: attempting to export entity %s", short(res.RunID), e.Label())
		n, err := x.store.Count(ctx, e, qopts)
		if err != nil {
			return res, err
		}
		counts = append(counts, types.EntityCount{Entity: e, Count: n})
	}

	src := store.RecordSource{Store: x.store, Options: qopts}
	encOpts := codec.Options{Indent: opts.Indent}

	writeFiles := opts.Chunk > 0 || opts.Filespec != ""
	if !writeFiles {
		batches := partition.Plan(counts, 0)
		records, err := partition.Materialize(ctx, src, batches[0])
		if err != nil {
			return res, err
		}
		data, err := c.Encode(records, encOpts)
		if err != nil {
			return res, cerrors.NewEncodingError("unable to serialize database", err)
		}
		res.Payload = data
		return res, nil
	}

	res.Base = x.baseName(opts)
	res.Dir = x.outputDir(opts, res.Base)

	batches := partition.Plan(counts, opts.Chunk)
	if len(batches) == 0 {
		batches = []partition.Batch{{Index: 1}}
	}
	names := partition.Names(res.Base, c.Name(), len(batches))

	for i, b := range batches {
		records, err := partition.Materialize(ctx, src, b)
		if err != nil {
			return res, err
		}
		data, err := c.Encode(records, encOpts)
		if err != nil {
			return res, cerrors.NewEncodingError("unable to serialize database", err)
		}

		objectPath := filepath.Join(res.Dir, names[i].Name())
		log.Printf("export[%s]: writing %d objects to %s", short(res.RunID), len(records), x.sink.Location(objectPath))
		if err := x.sink.Put(ctx, objectPath, data); err != nil {
			return res, cerrors.NewStorageError(cerrors.CodeWriteFailed, "failed to write "+objectPath, err)
		}
		report := FileReport{
			Path:     objectPath,
			Location: x.sink.Location(objectPath),
			Objects:  len(records),
			Bytes:    len(data),
			Checksum: murmur3.Sum32(data),
			Segments: partition.Summarize(records),
		}
		for _, seg := range report.Segments {
			log.Printf("export[%s]:   %s: %d objects, pk %v..%v", short(res.RunID), seg.Model, seg.Count, seg.FirstPK, seg.LastPK)
		}
		res.Files = append(res.Files, report)
	}

	if opts.Prune {
		pruned, err := x.prune(ctx, res.Dir, names)
		res.Pruned = pruned
		if err != nil {
			return res, err
		}
	}

	total := 0
	for _, f := range res.Files {
		total += f.Bytes
	}
	log.Printf("export[%s]: wrote %d objects in %d files (%s)",
		short(res.RunID), res.Objects(), len(res.Files), humanize.Bytes(uint64(total)))

	res.Summary = fmt.Sprintf("Wrote serialized database to %s",
		x.sink.Location(filepath.Join(res.Dir, partition.Pattern(res.Base, c.Name()))))
	return res, nil
}

// prepare performs every check that can fail before the store is queried
// and returns the entities to export in dependency order.
func (x *Exporter) prepare(opts Options) ([]*types.Entity, codec.Codec, error) {
	excl, err := x.registry.ParseExclusions(opts.Excludes)
	if err != nil {
		return nil, nil, err
	}
	selections, err := x.registry.Select(opts.Labels, excl)
	if err != nil {
		return nil, nil, err
	}

	format := opts.Format
	if format == "" {
		format = codec.DefaultFormat
	}
	c, err := x.codecs.Lookup(format)
	if err != nil {
		return nil, nil, err
	}

	if opts.Chunk < 0 {
		return nil, nil, cerrors.NewValidationError(fmt.Sprintf("chunk must be >= 0, got %d", opts.Chunk))
	}
	if opts.Indent < 0 {
		return nil, nil, cerrors.NewValidationError(fmt.Sprintf("indent must be >= 0, got %d", opts.Indent))
	}

	ordered, err := resolver.Sort(selections, x.registry)
	if err != nil {
		return nil, nil, err
	}

	alias := opts.Database
	if alias == "" {
		alias = store.DefaultAlias
	}
	entities := make([]*types.Entity, 0, len(ordered))
	for _, e := range ordered {
		if excl.HasEntity(e) || e.Proxy || !e.AllowsDatabase(alias) {
			continue
		}
		entities = append(entities, e)
	}
	return entities, c, nil
}

func (x *Exporter) baseName(opts Options) string {
	if opts.Filespec != "" {
		return opts.Filespec
	}
	if len(opts.Labels) == 1 {
		return strings.ReplaceAll(opts.Labels[0], ".", "_")
	}
	return x.defaults.BaseName
}

func (x *Exporter) outputDir(opts Options, base string) string {
	if opts.OutputDir != "" {
		return opts.OutputDir
	}
	if len(opts.Labels) == 1 {
		nsName, _, _ := strings.Cut(opts.Labels[0], ".")
		if ns, err := x.registry.Namespace(nsName); err == nil && len(ns.FixtureDirs) > 0 {
			return filepath.Join(ns.FixtureDirs[0], base)
		}
	}
	return x.defaults.OutputDir
}

// prune deletes chunk files in dir that share the base name and extension
// of this run but were not written by it.
func (x *Exporter) prune(ctx context.Context, dir string, written []partition.ChunkFile) ([]string, error) {
	if len(written) == 0 {
		return nil, nil
	}
	keep := make(map[string]bool, len(written))
	for _, f := range written {
		keep[f.Name()] = true
	}

	objects, err := x.sink.ListObjects(ctx, dir)
	if err != nil {
		return nil, cerrors.NewStorageError(cerrors.CodeWriteFailed, "failed to list "+dir, err)
	}

	wantDir := strings.Trim(filepath.ToSlash(filepath.Clean(dir)), "/")
	var pruned []string
	for _, obj := range objects {
		slashed := filepath.ToSlash(obj)
		if strings.Trim(path.Dir(slashed), "/") != wantDir {
			continue
		}
		name := path.Base(slashed)
		cf, ok := partition.ParseChunkName(name)
		if !ok || keep[name] || cf.Base != written[0].Base || cf.Ext != written[0].Ext {
			continue
		}
		if err := x.sink.Delete(ctx, obj); err != nil {
			return pruned, cerrors.NewStorageError(cerrors.CodeWriteFailed, "failed to prune "+obj, err)
		}
		log.Printf("export: pruned stale chunk %s", x.sink.Location(obj))
		pruned = append(pruned, obj)
	}
	return pruned, nil
}

func short(runID string) string {
	if len(runID) > 8 {
		return runID[:8]
	}
	return runID
}
