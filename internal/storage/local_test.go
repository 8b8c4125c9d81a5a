package storage

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func TestLocalStorage_PutDelete(t *testing.T) {
	baseDir := t.TempDir()
	storage, err := NewLocalStorage(baseDir)
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	ctx := context.Background()
	objectPath := "fixtures/testapp.1.json"
	content := []byte(`[{"model":"testapp.testperson","pk":1,"fields":{}}]`)

	if err := storage.Put(ctx, objectPath, content); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(baseDir, objectPath))
	if err != nil {
		t.Fatalf("failed to read written file: %v", err)
	}
	if string(got) != string(content) {
		t.Errorf("content mismatch: got %q, want %q", got, content)
	}

	// Overwrite replaces the whole file
	if err := storage.Put(ctx, objectPath, []byte("[]")); err != nil {
		t.Fatalf("second Put failed: %v", err)
	}
	got, _ = os.ReadFile(filepath.Join(baseDir, objectPath))
	if string(got) != "[]" {
		t.Errorf("expected overwrite, got %q", got)
	}

	if err := storage.Delete(ctx, objectPath); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := os.Stat(filepath.Join(baseDir, objectPath)); !os.IsNotExist(err) {
		t.Errorf("expected file to be gone, stat err = %v", err)
	}

	// Deleting again is a no-op
	if err := storage.Delete(ctx, objectPath); err != nil {
		t.Errorf("Delete of missing object failed: %v", err)
	}
}

func TestLocalStorage_PutLeavesNoTempFiles(t *testing.T) {
	baseDir := t.TempDir()
	storage, err := NewLocalStorage(baseDir)
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	ctx := context.Background()
	for _, name := range []string{"dump.1.json", "dump.2.json"} {
		if err := storage.Put(ctx, name, []byte("[]")); err != nil {
			t.Fatalf("Put %s failed: %v", name, err)
		}
	}

	entries, err := os.ReadDir(baseDir)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 2 {
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		t.Errorf("expected only the two chunk files, got %v", names)
	}
}

func TestLocalStorage_AbsolutePath(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	other := t.TempDir()
	target := filepath.Join(other, "out", "dump.json")
	if err := storage.Put(context.Background(), target, []byte("[]")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("expected file at absolute path: %v", err)
	}
	if storage.Location(target) != target {
		t.Errorf("Location = %q, want %q", storage.Location(target), target)
	}
}

func TestLocalStorage_ListObjects(t *testing.T) {
	baseDir := t.TempDir()
	storage, err := NewLocalStorage(baseDir)
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}

	ctx := context.Background()
	for _, name := range []string{"out/a.1.json", "out/a.2.json", "other/b.json"} {
		if err := storage.Put(ctx, name, []byte("[]")); err != nil {
			t.Fatalf("Put %s failed: %v", name, err)
		}
	}

	objects, err := storage.ListObjects(ctx, "out")
	if err != nil {
		t.Fatalf("ListObjects failed: %v", err)
	}
	sort.Strings(objects)
	want := []string{filepath.Join("out", "a.1.json"), filepath.Join("out", "a.2.json")}
	if len(objects) != len(want) || objects[0] != want[0] || objects[1] != want[1] {
		t.Errorf("ListObjects = %v, want %v", objects, want)
	}

	missing, err := storage.ListObjects(ctx, "nope")
	if err != nil {
		t.Fatalf("ListObjects on missing prefix failed: %v", err)
	}
	if len(missing) != 0 {
		t.Errorf("expected no objects, got %v", missing)
	}
}

func TestLocalStorage_CanceledContext(t *testing.T) {
	storage, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create local storage: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := storage.Put(ctx, "x.json", []byte("[]")); err == nil {
		t.Error("expected error on canceled context")
	}
}

func TestS3Storage_KeysAndLocation(t *testing.T) {
	s := NewS3StorageWithClient(nil, "fixtures", S3Config{Prefix: "/exports/"})
	if got := s.key("testapp/testapp.1.json"); got != "exports/testapp/testapp.1.json" {
		t.Errorf("key = %q", got)
	}
	if got := s.Location("/testapp.json"); got != "s3://fixtures/exports/testapp.json" {
		t.Errorf("Location = %q", got)
	}
	if got := s.relative("exports/testapp.json"); got != "testapp.json" {
		t.Errorf("relative = %q", got)
	}

	bare := NewS3StorageWithClient(nil, "fixtures", DefaultS3Config())
	if got := bare.key("a/../b.json"); got != "b.json" {
		t.Errorf("key = %q", got)
	}
}
