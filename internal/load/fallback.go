package load

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"github.com/micurley/chunkdata/internal/codec"
	"github.com/micurley/chunkdata/internal/store"
)

// DirLoader is the plain single-file loader. It looks in each directory
// for label, label.<ext> and label.<alias>.<ext>, the last being a fixture
// meant only for one database, and loads every match. A bare label only
// counts when it already ends in a known extension.
type DirLoader struct {
	Codecs    *codec.Registry
	Validator *RecordValidator
	Dirs      []string
	Alias     string
}

// Load implements FallbackLoader.
func (d *DirLoader) Load(ctx context.Context, tx store.LoadTx, label string) ([]string, int, error) {
	var (
		files   []string
		objects int
	)
	seen := make(map[string]bool)
	for _, path := range d.candidates(label) {
		if seen[path] {
			continue
		}
		seen[path] = true
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		n, err := loadFile(ctx, tx, d.Codecs, d.Validator, path)
		if err != nil {
			return files, objects, err
		}
		log.Printf("import: loaded %d objects from %s", n, path)
		files = append(files, path)
		objects += n
	}

	if len(files) == 0 {
		log.Printf("import: No fixture named '%s' found.", label)
	}
	return files, objects, nil
}

func (d *DirLoader) candidates(label string) []string {
	if filepath.IsAbs(label) {
		return []string{label}
	}
	var out []string
	for _, dir := range d.Dirs {
		base := filepath.Join(dir, label)
		if _, err := d.Codecs.ForFile(base); err == nil {
			out = append(out, base)
		}
		for _, ext := range d.Codecs.Extensions() {
			if d.Alias != "" {
				out = append(out, base+"."+d.Alias+"."+ext)
			}
			out = append(out, base+"."+ext)
		}
	}
	return out
}
