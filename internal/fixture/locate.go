// Package fixture finds the files that make up a named fixture.
package fixture

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	cerrors "github.com/micurley/chunkdata/internal/errors"
	"github.com/micurley/chunkdata/internal/partition"
	"github.com/micurley/chunkdata/pkg/types"
)

// Result is the outcome of a lookup. Found is false when no directory
// holds a match; that is a normal outcome, not an error.
type Result struct {
	Files []string
	Dir   string
	Found bool
}

// Locate resolves name to an ordered list of files.
//
// An absolute name is returned as-is. Otherwise each search directory is
// checked for a file called name or name.<ext>, and for a directory called
// name whose immediate children named after the last segment of name (or
// starting with it followed by a dot) are the candidates. Only files with
// a known codec extension qualify. Matches in more
// than one directory fail with a multiple fixtures found error.
func Locate(name string, dirs []string, exts []string) (Result, error) {
	if filepath.IsAbs(name) {
		return Result{Files: []string{name}, Dir: filepath.Dir(name), Found: true}, nil
	}

	known := make(map[string]bool, len(exts))
	for _, ext := range exts {
		known[strings.ToLower(ext)] = true
	}

	var (
		foundIn []string
		files   []string
	)
	seen := make(map[string]bool)
	for _, dir := range dirs {
		clean := filepath.Clean(dir)
		if seen[clean] {
			continue
		}
		seen[clean] = true

		candidates := candidatesIn(clean, name, exts, known)
		if len(candidates) == 0 {
			continue
		}
		foundIn = append(foundIn, clean)
		files = candidates
	}

	switch len(foundIn) {
	case 0:
		return Result{}, nil
	case 1:
		sortChunks(files)
		return Result{Files: files, Dir: foundIn[0], Found: true}, nil
	default:
		return Result{}, cerrors.NewMultipleFixturesFoundError(name, foundIn)
	}
}

func candidatesIn(dir, name string, exts []string, known map[string]bool) []string {
	var out []string
	p := filepath.Join(dir, name)

	if info, err := os.Stat(p); err == nil {
		if info.IsDir() {
			out = append(out, children(p, lastSegment(name), known)...)
		} else if hasKnownExt(p, known) {
			out = append(out, p)
		}
	}
	for _, ext := range exts {
		withExt := p + "." + ext
		if info, err := os.Stat(withExt); err == nil && !info.IsDir() {
			out = append(out, withExt)
		}
	}
	return out
}

// children returns the files of dir with a known codec extension whose
// name is stem or whose first dot-separated segment is stem.
func children(dir, stem string, known map[string]bool) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		item := e.Name()
		if !hasKnownExt(item, known) {
			continue
		}
		if first, _, _ := strings.Cut(item, "."); item == stem || first == stem {
			out = append(out, filepath.Join(dir, item))
		}
	}
	return out
}

func hasKnownExt(name string, known map[string]bool) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	return ext != "" && known[strings.ToLower(ext)]
}

func lastSegment(name string) string {
	name = strings.TrimRight(filepath.ToSlash(name), "/")
	if i := strings.LastIndex(name, "/"); i >= 0 {
		return name[i+1:]
	}
	return name
}

// sortChunks orders files by name with numeric chunk indices, so x.2.json
// loads before x.10.json.
func sortChunks(files []string) {
	sort.SliceStable(files, func(i, j int) bool {
		a, b := filepath.Base(files[i]), filepath.Base(files[j])
		if c := partition.CompareChunkNames(a, b); c != 0 {
			return c < 0
		}
		return files[i] < files[j]
	})
}

// NamespaceDirs lists namespaces for SearchDirs.
type NamespaceDirs interface {
	Namespaces() []*types.Namespace
}

// SearchDirs returns the fixture search path: every namespace fixture
// directory, the extra directories, and the current directory, sorted and
// de-duplicated.
func SearchDirs(reg NamespaceDirs, extra []string) []string {
	var dirs []string
	if reg != nil {
		for _, ns := range reg.Namespaces() {
			dirs = append(dirs, ns.FixtureDirs...)
		}
	}
	dirs = append(dirs, extra...)
	dirs = append(dirs, ".")

	seen := make(map[string]bool, len(dirs))
	out := make([]string, 0, len(dirs))
	for _, d := range dirs {
		d = filepath.Clean(d)
		if !seen[d] {
			seen[d] = true
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}
