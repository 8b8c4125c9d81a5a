package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/micurley/chunkdata/internal/codec"
	"github.com/micurley/chunkdata/internal/config"
	cerrors "github.com/micurley/chunkdata/internal/errors"
	"github.com/micurley/chunkdata/internal/export"
	"github.com/micurley/chunkdata/internal/testutil"
)

const schemaTemplate = `
namespaces:
  - name: testapp
    fixture_dirs: [%q]
    entities:
      - name: TestPerson
        fields:
          - {name: first_name}
          - {name: last_name}
      - name: TestLocation
        fields:
          - {name: name}
          - {name: address}
          - {name: city}
          - {name: state}
          - {name: postal_code}
`

// newTestApp writes a schema whose testapp fixture dir is <data>/fixtures
// and configures a default and an archive database.
func newTestApp(t *testing.T, opts ...Option) (*App, string) {
	t.Helper()
	dataDir := t.TempDir()
	fixtureDir := filepath.Join(dataDir, "fixtures")

	schemaPath := filepath.Join(dataDir, "schema.yaml")
	require.NoError(t, os.WriteFile(schemaPath, []byte(fmt.Sprintf(schemaTemplate, fixtureDir)), 0644))

	cfg := config.DefaultConfig()
	cfg.DataDir = dataDir
	cfg.Databases = map[string]config.DatabaseConfig{
		"default": {Path: filepath.Join(dataDir, "default.sqlite3")},
		"archive": {Path: filepath.Join(dataDir, "archive.sqlite3")},
	}

	a, err := New(context.Background(), cfg, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })
	return a, dataDir
}

func writeFixture(t *testing.T, path string, n int) {
	t.Helper()
	data, err := codec.JSON{}.Encode(testutil.PersonRecords(n), codec.Options{})
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, data, 0644))
}

func TestApp_ExportImportAcrossDatabases(t *testing.T) {
	ctx := context.Background()
	a, dataDir := newTestApp(t)

	seed := filepath.Join(dataDir, "seed.json")
	writeFixture(t, seed, 20)
	res, err := a.Import(ctx, ImportOptions{Labels: []string{seed}, CreateTables: true})
	require.NoError(t, err)
	require.Equal(t, 20, res.Objects)

	exported, err := a.Export(ctx, ExportOptions{Options: export.Options{Labels: []string{"testapp"}, Chunk: 7}})
	require.NoError(t, err)
	require.Len(t, exported.Files, 3)
	require.Equal(t, filepath.Join(dataDir, "fixtures", "testapp"), exported.Dir)
	require.Equal(t, "Wrote serialized database to "+filepath.Join(dataDir, "fixtures", "testapp", "testapp.#.json"), exported.Summary)

	res, err = a.Import(ctx, ImportOptions{Labels: []string{"testapp"}, Database: "archive", CreateTables: true})
	require.NoError(t, err)
	require.Equal(t, 20, res.Objects)
	require.Len(t, res.Files, 3)

	archived, err := a.Export(ctx, ExportOptions{Options: export.Options{Database: "archive"}})
	require.NoError(t, err)
	records, err := codec.JSON{}.Decode(archived.Payload)
	require.NoError(t, err)
	require.Len(t, records, 20)
}

func TestApp_ConfigDefaults(t *testing.T) {
	ctx := context.Background()
	a, dataDir := newTestApp(t)
	a.cfg.Export.Format = "yaml"
	a.cfg.Export.Chunk = 15

	writeFixture(t, filepath.Join(dataDir, "seed.json"), 20)
	_, err := a.Import(ctx, ImportOptions{Labels: []string{filepath.Join(dataDir, "seed.json")}, CreateTables: true})
	require.NoError(t, err)

	res, err := a.Export(ctx, ExportOptions{Options: export.Options{Labels: []string{"testapp.TestPerson"}}})
	require.NoError(t, err)
	require.Len(t, res.Files, 2)
	require.Equal(t, "testapp_TestPerson.1.yaml", filepath.Base(res.Files[0].Path))
}

func TestApp_ExplicitZeroChunkOverridesConfig(t *testing.T) {
	ctx := context.Background()
	a, dataDir := newTestApp(t)
	a.cfg.Export.Chunk = 15
	a.cfg.Export.Indent = 4

	seed := filepath.Join(dataDir, "seed.json")
	writeFixture(t, seed, 20)
	_, err := a.Import(ctx, ImportOptions{Labels: []string{seed}, CreateTables: true})
	require.NoError(t, err)

	res, err := a.Export(ctx, ExportOptions{
		Options:   export.Options{Labels: []string{"testapp.TestPerson"}},
		ChunkSet:  true,
		IndentSet: true,
	})
	require.NoError(t, err)
	require.Empty(t, res.Files)
	require.Empty(t, res.Summary)
	require.NotContains(t, string(res.Payload), "\n    ")

	records, err := codec.JSON{}.Decode(res.Payload)
	require.NoError(t, err)
	require.Len(t, records, 20)
}

// TestApp_RelativeDataDirRoundTrip runs from a working directory with a
// relative data dir; chunk paths must be where the files land and where
// import looks.
func TestApp_RelativeDataDirRoundTrip(t *testing.T) {
	ctx := context.Background()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	require.NoError(t, os.MkdirAll("data", 0755))
	schema := fmt.Sprintf(schemaTemplate, "data/fixtures")
	require.NoError(t, os.WriteFile(filepath.Join("data", "schema.yaml"), []byte(schema), 0644))

	cfg := config.DefaultConfig()
	cfg.DataDir = "data"
	cfg.Databases = map[string]config.DatabaseConfig{
		"default": {Path: filepath.Join("data", "default.sqlite3")},
		"archive": {Path: filepath.Join("data", "archive.sqlite3")},
	}
	a, err := New(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	seed, err := filepath.Abs("seed.json")
	require.NoError(t, err)
	writeFixture(t, seed, 20)
	_, err = a.Import(ctx, ImportOptions{Labels: []string{seed}, CreateTables: true})
	require.NoError(t, err)

	exported, err := a.Export(ctx, ExportOptions{Options: export.Options{Labels: []string{"testapp"}, Chunk: 7}})
	require.NoError(t, err)
	require.Len(t, exported.Files, 3)
	require.Equal(t, filepath.Join("data", "fixtures", "testapp", "testapp.1.json"), exported.Files[0].Path)
	for _, f := range exported.Files {
		_, err := os.Stat(f.Path)
		require.NoError(t, err, f.Path)
		require.Equal(t, f.Path, f.Location)
	}
	_, err = os.Stat(filepath.Join("data", "data"))
	require.True(t, os.IsNotExist(err))

	res, err := a.Import(ctx, ImportOptions{Labels: []string{"testapp"}, Database: "archive", CreateTables: true})
	require.NoError(t, err)
	require.Equal(t, 20, res.Objects)
	require.Empty(t, res.Missing)
	for i, f := range exported.Files {
		require.Equal(t, f.Path, res.Files[i])
	}
}

func TestApp_TracebackPolicy(t *testing.T) {
	ctx := context.Background()

	for _, traceback := range []bool{false, true} {
		t.Run(fmt.Sprintf("traceback=%v", traceback), func(t *testing.T) {
			a, dataDir := newTestApp(t, WithTraceback(traceback))
			other := filepath.Join(dataDir, "other")
			a.cfg.FixtureDirs = []string{other}
			writeFixture(t, filepath.Join(dataDir, "fixtures", "dup.json"), 1)
			writeFixture(t, filepath.Join(other, "dup.json"), 1)

			_, err := a.Import(ctx, ImportOptions{Labels: []string{"dup"}, CreateTables: true})
			require.ErrorIs(t, err, cerrors.ErrMultipleFixturesFound)

			var cmdErr *CommandError
			if traceback {
				require.False(t, errors.As(err, &cmdErr))
				require.Equal(t, "dup", cerrors.GetDetails(err)["fixture"])
				return
			}
			require.ErrorAs(t, err, &cmdErr)
			require.Contains(t, cmdErr.Message, "Multiple fixtures named 'dup' in ")
			require.Contains(t, cmdErr.Message, other)
		})
	}
}

func TestApp_SurfaceEncodingError(t *testing.T) {
	cause := errors.New("unsupported value")
	err := cerrors.NewEncodingError("unable to serialize database", cause)

	a := &App{}
	var cmdErr *CommandError
	require.ErrorAs(t, a.surface(err), &cmdErr)
	require.Equal(t, "Unable to serialize database: unsupported value", cmdErr.Message)

	a.traceback = true
	require.Same(t, err, a.surface(err))

	other := cerrors.NewValidationError("chunk must be >= 0, got -1")
	require.Same(t, other, (&App{}).surface(other))
	require.NoError(t, (&App{}).surface(nil))
}

func TestApp_UnknownDatabase(t *testing.T) {
	a, _ := newTestApp(t)
	_, err := a.Export(context.Background(), ExportOptions{Options: export.Options{Database: "replica"}})
	require.ErrorIs(t, err, cerrors.ErrInvalidOption)
}

func TestNew_Errors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	_, err := New(context.Background(), cfg)
	require.Error(t, err, "missing schema file")

	cfg = config.DefaultConfig()
	cfg.Storage.Type = "ftp"
	_, err = New(context.Background(), cfg)
	require.ErrorContains(t, err, "invalid configuration")
}
