package export_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/spaolacci/murmur3"
	"github.com/stretchr/testify/require"

	"github.com/micurley/chunkdata/internal/codec"
	cerrors "github.com/micurley/chunkdata/internal/errors"
	"github.com/micurley/chunkdata/internal/export"
	"github.com/micurley/chunkdata/internal/partition"
	"github.com/micurley/chunkdata/internal/registry"
	"github.com/micurley/chunkdata/internal/storage"
	"github.com/micurley/chunkdata/internal/store"
	"github.com/micurley/chunkdata/internal/testutil"
	"github.com/micurley/chunkdata/pkg/types"
)

// fakeStore serves synthetic records and counts queries.
type fakeStore struct {
	counts     map[string]int
	countCalls int
	fetchCalls int
}

func (f *fakeStore) Count(_ context.Context, e *types.Entity, _ store.QueryOptions) (int, error) {
	f.countCalls++
	return f.counts[e.Key()], nil
}

func (f *fakeStore) Fetch(_ context.Context, e *types.Entity, _ store.QueryOptions, offset, limit int) ([]types.Record, error) {
	f.fetchCalls++
	n := f.counts[e.Key()]
	var out []types.Record
	for i := offset; i < n && (limit < 0 || len(out) < limit); i++ {
		out = append(out, types.Record{Model: e.Key(), PK: int64(i + 1), Fields: map[string]interface{}{}})
	}
	return out, nil
}

func (f *fakeStore) BeginLoad(context.Context) (store.LoadTx, error) {
	return nil, errors.New("read-only")
}

func (f *fakeStore) Close() error { return nil }

// failingSink fails every Put after the first okPuts.
type failingSink struct {
	storage.ObjectStorage
	okPuts int
	puts   int
}

func (s *failingSink) Put(ctx context.Context, p string, data []byte) error {
	s.puts++
	if s.puts > s.okPuts {
		return storage.ErrUploadFailed
	}
	return s.ObjectStorage.Put(ctx, p, data)
}

type brokenCodec struct{}

func (brokenCodec) Name() string { return "broken" }
func (brokenCodec) Encode([]types.Record, codec.Options) ([]byte, error) {
	return nil, errors.New("cannot encode")
}
func (brokenCodec) Decode([]byte) ([]types.Record, error) { return nil, nil }

func newSink(t *testing.T) storage.ObjectStorage {
	t.Helper()
	sink, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return sink
}

func decodeFile(t *testing.T, path string) []types.Record {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	records, err := codec.JSON{}.Decode(data)
	require.NoError(t, err)
	return records
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, len(entries))
	for i, e := range entries {
		names[i] = e.Name()
	}
	sort.Strings(names)
	return names
}

func TestExport_ChunksRespectEntityBoundaries(t *testing.T) {
	fixtures := filepath.Join(t.TempDir(), "fixtures")
	reg, s := testutil.Seeded(t, fixtures)
	x := export.New(reg, codec.Default(), s, newSink(t), export.Defaults{})

	res, err := x.Run(context.Background(), export.Options{Labels: []string{"testapp"}, Chunk: 300})
	require.NoError(t, err)

	chunkDir := filepath.Join(fixtures, "testapp")
	require.Equal(t, chunkDir, res.Dir)
	require.Equal(t, "testapp", res.Base)
	require.Equal(t, []string{
		"testapp.1.json", "testapp.2.json", "testapp.3.json", "testapp.4.json",
		"testapp.5.json", "testapp.6.json", "testapp.7.json", "testapp.8.json",
	}, listDir(t, chunkDir))

	people := decodeFile(t, filepath.Join(chunkDir, "testapp.4.json"))
	require.Len(t, people, 100)
	require.Equal(t, int64(1000), people[len(people)-1].PK)
	require.Equal(t, "testapp.testperson", people[0].Model)

	locations := decodeFile(t, filepath.Join(chunkDir, "testapp.8.json"))
	require.Len(t, locations, 113)
	require.Equal(t, int64(testutil.Locations), locations[len(locations)-1].PK)

	require.Len(t, res.Files, 8)
	require.Equal(t, testutil.People+testutil.Locations, res.Objects())
	require.Equal(t, []partition.SegmentStats{
		{Model: "testapp.testperson", Count: 100, FirstPK: int64(901), LastPK: int64(1000)},
	}, res.Files[3].Segments)
	for _, f := range res.Files {
		data, err := os.ReadFile(f.Path)
		require.NoError(t, err)
		require.Equal(t, len(data), f.Bytes)
		require.Equal(t, murmur3.Sum32(data), f.Checksum)
	}
	require.Equal(t, "Wrote serialized database to "+filepath.Join(chunkDir, "testapp.#.json"), res.Summary)
	require.NotEmpty(t, res.RunID)
}

func TestExport_NoChunkReturnsPayload(t *testing.T) {
	reg, s := testutil.Seeded(t, "")
	x := export.New(reg, codec.Default(), s, newSink(t), export.Defaults{})

	res, err := x.Run(context.Background(), export.Options{Labels: []string{"testapp"}})
	require.NoError(t, err)
	require.Empty(t, res.Files)

	records, err := codec.JSON{}.Decode(res.Payload)
	require.NoError(t, err)
	require.Len(t, records, testutil.People+testutil.Locations)
	require.Equal(t, "testapp.testperson", records[0].Model)
	require.Equal(t, "testapp.testlocation", records[len(records)-1].Model)
}

func TestExport_Excludes(t *testing.T) {
	reg, s := testutil.Seeded(t, "")
	x := export.New(reg, codec.Default(), s, newSink(t), export.Defaults{})

	res, err := x.Run(context.Background(), export.Options{Excludes: []string{"testapp.TestLocation"}})
	require.NoError(t, err)
	records, err := codec.JSON{}.Decode(res.Payload)
	require.NoError(t, err)
	require.Len(t, records, testutil.People)

	res, err = x.Run(context.Background(), export.Options{Excludes: []string{"testapp"}})
	require.NoError(t, err)
	require.Equal(t, "[]", string(res.Payload))
}

func TestExport_ValidationFailsBeforeQuerying(t *testing.T) {
	reg := testutil.TestApp(t, "")
	codecs := codec.NewRegistry(codec.JSON{})

	cases := []struct {
		name string
		opts export.Options
		want error
	}{
		{"unknown entity", export.Options{Labels: []string{"testapp.Nope"}, Chunk: 10}, cerrors.ErrUnknownEntity},
		{"unknown namespace", export.Options{Labels: []string{"nope"}}, cerrors.ErrUnknownNamespace},
		{"unknown exclude", export.Options{Excludes: []string{"testapp.Nope"}}, cerrors.ErrUnknownEntity},
		{"unknown format", export.Options{Format: "xml", Chunk: 10}, cerrors.ErrUnsupportedCodec},
		{"negative chunk", export.Options{Chunk: -1}, cerrors.ErrInvalidOption},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fs := &fakeStore{counts: map[string]int{"testapp.testperson": 5}}
			sink := newSink(t)
			x := export.New(reg, codecs, fs, sink, export.Defaults{OutputDir: "out"})

			res, err := x.Run(context.Background(), tc.opts)
			require.True(t, errors.Is(err, tc.want), "got %v", err)
			require.Zero(t, fs.countCalls)
			require.Zero(t, fs.fetchCalls)
			require.Empty(t, res.Files)
		})
	}
}

func TestExport_CycleDetectedBeforeWrite(t *testing.T) {
	reg, err := registry.Parse([]byte(`
namespaces:
  - name: app
    entities:
      - name: A
        natural_key: [name]
        natural_key_dependencies: [app.B]
        fields: [{name: name}]
      - name: B
        natural_key: [name]
        fields: [{name: name}, {name: a, ref: app.A}]
`))
	require.NoError(t, err)
	fs := &fakeStore{counts: map[string]int{"app.a": 1, "app.b": 1}}
	dir := filepath.Join(t.TempDir(), "out")
	x := export.New(reg, codec.Default(), fs, newSink(t), export.Defaults{OutputDir: dir})

	_, err = x.Run(context.Background(), export.Options{Chunk: 1})
	require.True(t, errors.Is(err, cerrors.ErrCircularDependency))
	require.Equal(t, []string{"app.A", "app.B"}, cerrors.GetDetails(err)["entities"])
	require.Zero(t, fs.countCalls)
	_, statErr := os.Stat(dir)
	require.True(t, os.IsNotExist(statErr))
}

func TestExport_SkipsProxyAndOtherDatabases(t *testing.T) {
	reg, err := registry.Parse([]byte(`
namespaces:
  - name: zoo
    entities:
      - name: Animal
      - name: Pet
        proxy: true
        table: zoo_animal
      - name: Ledger
        databases: [accounting]
`))
	require.NoError(t, err)
	fs := &fakeStore{counts: map[string]int{"zoo.animal": 2, "zoo.pet": 2, "zoo.ledger": 3}}
	x := export.New(reg, codec.Default(), fs, newSink(t), export.Defaults{})

	res, err := x.Run(context.Background(), export.Options{Labels: []string{"zoo"}})
	require.NoError(t, err)
	records, err := codec.JSON{}.Decode(res.Payload)
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, 1, fs.countCalls)

	res, err = x.Run(context.Background(), export.Options{Labels: []string{"zoo"}, Database: "accounting"})
	require.NoError(t, err)
	records, err = codec.JSON{}.Decode(res.Payload)
	require.NoError(t, err)
	require.Len(t, records, 5)
}

func TestExport_WriteFailureKeepsPrefix(t *testing.T) {
	reg := testutil.TestApp(t, "")
	fs := &fakeStore{counts: map[string]int{"testapp.testperson": 10}}
	dir := t.TempDir()
	sink := &failingSink{ObjectStorage: newSink(t), okPuts: 2}
	x := export.New(reg, codec.Default(), fs, sink, export.Defaults{OutputDir: dir})

	res, err := x.Run(context.Background(), export.Options{Labels: []string{"testapp.TestPerson"}, Chunk: 3, OutputDir: dir})
	require.Error(t, err)
	require.True(t, errors.Is(err, cerrors.ErrWriteFailed))
	require.True(t, cerrors.IsRetryable(err))
	require.Len(t, res.Files, 2)
	require.Equal(t, []string{"testapp_TestPerson.1.json", "testapp_TestPerson.2.json"}, listDir(t, dir))
	require.Empty(t, res.Summary)
}

func TestExport_EncodingFailure(t *testing.T) {
	reg := testutil.TestApp(t, "")
	fs := &fakeStore{counts: map[string]int{"testapp.testperson": 4}}
	dir := t.TempDir()
	x := export.New(reg, codec.NewRegistry(brokenCodec{}), fs, newSink(t), export.Defaults{OutputDir: dir})

	res, err := x.Run(context.Background(), export.Options{Format: "broken", Chunk: 2})
	require.True(t, errors.Is(err, cerrors.ErrEncodingFailed))
	require.Empty(t, res.Files)
	require.Empty(t, listDir(t, dir))
}

func TestExport_EmptyWithThreshold(t *testing.T) {
	reg := testutil.TestApp(t, "")
	fs := &fakeStore{counts: map[string]int{}}
	dir := t.TempDir()
	x := export.New(reg, codec.Default(), fs, newSink(t), export.Defaults{OutputDir: dir, BaseName: "empty"})

	res, err := x.Run(context.Background(), export.Options{Chunk: 100})
	require.NoError(t, err)
	require.Equal(t, []string{"empty.json"}, listDir(t, dir))
	require.Len(t, res.Files, 1)
	require.Zero(t, res.Files[0].Objects)

	data, err := os.ReadFile(filepath.Join(dir, "empty.json"))
	require.NoError(t, err)
	require.Equal(t, "[]", string(data))
}

func TestExport_FilespecWithoutChunk(t *testing.T) {
	reg := testutil.TestApp(t, "")
	fs := &fakeStore{counts: map[string]int{"testapp.testperson": 3, "testapp.testlocation": 4}}
	dir := t.TempDir()
	x := export.New(reg, codec.Default(), fs, newSink(t), export.Defaults{OutputDir: dir})

	res, err := x.Run(context.Background(), export.Options{Filespec: "snapshot", Format: "yaml", Indent: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"snapshot.yaml"}, listDir(t, dir))
	require.Equal(t, 7, res.Objects())
	require.Equal(t, "Wrote serialized database to "+filepath.Join(dir, "snapshot.#.yaml"), res.Summary)
}

func TestExport_Prune(t *testing.T) {
	reg := testutil.TestApp(t, "")
	fs := &fakeStore{counts: map[string]int{"testapp.testperson": 1000}}
	dir := t.TempDir()
	x := export.New(reg, codec.Default(), fs, newSink(t), export.Defaults{OutputDir: dir})
	ctx := context.Background()

	_, err := x.Run(ctx, export.Options{Labels: []string{"testapp.TestPerson"}, Chunk: 100})
	require.NoError(t, err)
	require.Len(t, listDir(t, dir), 10)

	// Unrelated files survive pruning
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.3.json"), []byte("[]"), 0644))

	res, err := x.Run(ctx, export.Options{Labels: []string{"testapp.TestPerson"}, Chunk: 500, Prune: true})
	require.NoError(t, err)
	require.Len(t, res.Pruned, 8)
	require.Equal(t, []string{"other.3.json", "testapp_TestPerson.1.json", "testapp_TestPerson.2.json"}, listDir(t, dir))

	// A single batch drops the numbered chunks entirely
	res, err = x.Run(ctx, export.Options{Labels: []string{"testapp.TestPerson"}, Chunk: 5000, Prune: true})
	require.NoError(t, err)
	require.Len(t, res.Pruned, 2)
	require.Equal(t, []string{"other.3.json", "testapp_TestPerson.json"}, listDir(t, dir))
}

func TestExport_NumberingAcrossThresholds(t *testing.T) {
	reg := testutil.TestApp(t, "")
	for _, tc := range []struct {
		people, chunk, files int
	}{
		{1000, 100, 10},
		{1000, 1000, 1},
		{1000, 999, 2},
		{1, 1, 1},
	} {
		t.Run(fmt.Sprintf("%d_by_%d", tc.people, tc.chunk), func(t *testing.T) {
			fs := &fakeStore{counts: map[string]int{"testapp.testperson": tc.people}}
			dir := t.TempDir()
			x := export.New(reg, codec.Default(), fs, newSink(t), export.Defaults{OutputDir: dir})
			res, err := x.Run(context.Background(), export.Options{Chunk: tc.chunk})
			require.NoError(t, err)
			require.Len(t, res.Files, tc.files)
			require.Equal(t, tc.people, res.Objects())
			if tc.files == 1 {
				require.Equal(t, []string{"dump.json"}, listDir(t, dir))
			}
		})
	}
}
