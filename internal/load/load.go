// Package load imports fixture files into a record store.
package load

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/google/uuid"

	"github.com/micurley/chunkdata/internal/codec"
	cerrors "github.com/micurley/chunkdata/internal/errors"
	"github.com/micurley/chunkdata/internal/fixture"
	"github.com/micurley/chunkdata/internal/store"
)

// Result is the outcome of an import run.
type Result struct {
	RunID string

	// Files lists every file loaded, in load order
	Files []string

	// Objects is the total number of records written
	Objects int

	// Missing lists labels no loader could find
	Missing []string
}

// FallbackLoader loads a label the chunk locator could not find. It
// returns the files it loaded and the number of records written.
type FallbackLoader interface {
	Load(ctx context.Context, tx store.LoadTx, label string) ([]string, int, error)
}

// Importer loads fixtures into one store.
type Importer struct {
	codecs    *codec.Registry
	validator *RecordValidator
	store     store.Store
	dirs      []string
	fallback  FallbackLoader
}

// New creates an importer searching dirs. Records are checked against
// schema before they are written. Labels it cannot locate go to a
// DirLoader over the same directories for database alias.
func New(codecs *codec.Registry, schema store.Schema, st store.Store, dirs []string, alias string) *Importer {
	v := NewRecordValidator(schema)
	return &Importer{
		codecs:    codecs,
		validator: v,
		store:     st,
		dirs:      dirs,
		fallback:  &DirLoader{Codecs: codecs, Validator: v, Dirs: dirs, Alias: alias},
	}
}

// WithFallback replaces the loader used for labels that are not found.
func (im *Importer) WithFallback(f FallbackLoader) *Importer {
	im.fallback = f
	return im
}

// Run loads every label inside a single transaction. Either all records
// are written or, on error, none are.
func (im *Importer) Run(ctx context.Context, labels []string) (res *Result, err error) {
	res = &Result{RunID: uuid.NewString()}
	runID := res.RunID[:8]

	tx, err := im.store.BeginLoad(ctx)
	if err != nil {
		return res, err
	}
	committing := false
	defer func() {
		if err != nil && !committing {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.Printf("import[%s]: rollback failed: %v", runID, rbErr)
			}
			res.Objects = 0
		}
	}()

	for _, label := range labels {
		found, err := fixture.Locate(label, im.dirs, im.codecs.Extensions())
		if err != nil {
			return res, err
		}

		if !found.Found {
			files, n, err := im.fallback.Load(ctx, tx, label)
			if err != nil {
				return res, err
			}
			if len(files) == 0 {
				res.Missing = append(res.Missing, label)
			}
			res.Files = append(res.Files, files...)
			res.Objects += n
			continue
		}

		for _, path := range found.Files {
			n, err := loadFile(ctx, tx, im.codecs, im.validator, path)
			if err != nil {
				return res, err
			}
			log.Printf("import[%s]: loaded %d objects from %s", runID, n, path)
			res.Files = append(res.Files, path)
			res.Objects += n
		}
	}

	// A failed commit has already released the transaction.
	committing = true
	if err := tx.Commit(); err != nil {
		res.Objects = 0
		return res, cerrors.NewStorageError(cerrors.CodeLoadFailed, "failed to commit fixtures", err)
	}

	if len(res.Files) == 0 {
		log.Printf("import[%s]: no fixtures found", runID)
	} else {
		log.Printf("import[%s]: installed %d object(s) from %d fixture(s)", runID, res.Objects, len(res.Files))
	}
	return res, nil
}

// loadFile decodes one fixture file and writes its records through tx. A
// nil validator skips validation.
func loadFile(ctx context.Context, tx store.LoadTx, codecs *codec.Registry, v *RecordValidator, path string) (int, error) {
	c, err := codecs.ForFile(path)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, cerrors.NewStorageError(cerrors.CodeLoadFailed, fmt.Sprintf("failed to read %s", path), err)
	}
	records, err := c.Decode(data)
	if err != nil {
		return 0, cerrors.NewDecodingError(fmt.Sprintf("failed to decode %s", path), err)
	}
	if v != nil {
		if err := v.Validate(records); err != nil {
			if _, ok := err.(ValidationErrors); ok {
				return 0, cerrors.NewInvalidRecordError(path, err)
			}
			return 0, err
		}
	}
	return tx.Write(ctx, records)
}
