package partition

import (
	"fmt"
	"strconv"
	"strings"
)

// ChunkFile identifies one chunk file of a fixture.
type ChunkFile struct {
	Base  string
	Index int
	Ext   string
}

// Name returns the file name: "base.ext" for index 0, "base.index.ext"
// otherwise.
func (c ChunkFile) Name() string {
	if c.Index == 0 {
		return fmt.Sprintf("%s.%s", c.Base, c.Ext)
	}
	return fmt.Sprintf("%s.%d.%s", c.Base, c.Index, c.Ext)
}

// Names returns the chunk files for an export of n batches. A lone batch
// uses the bare name; two or more are numbered from 1.
func Names(base, ext string, n int) []ChunkFile {
	if n == 1 {
		return []ChunkFile{{Base: base, Ext: ext}}
	}
	files := make([]ChunkFile, n)
	for i := range files {
		files[i] = ChunkFile{Base: base, Index: i + 1, Ext: ext}
	}
	return files
}

// Pattern returns the "base.#.ext" form used in export summaries.
func Pattern(base, ext string) string {
	return fmt.Sprintf("%s.#.%s", base, ext)
}

// ParseChunkName splits a file name into its chunk parts. Names without a
// numeric infix parse with index 0. ok is false when the name has no
// extension at all.
func ParseChunkName(name string) (c ChunkFile, ok bool) {
	dot := strings.LastIndex(name, ".")
	if dot <= 0 || dot == len(name)-1 {
		return ChunkFile{}, false
	}
	c.Ext = name[dot+1:]
	stem := name[:dot]

	if mid := strings.LastIndex(stem, "."); mid > 0 {
		if n, err := strconv.Atoi(stem[mid+1:]); err == nil && n > 0 {
			c.Base = stem[:mid]
			c.Index = n
			return c, true
		}
	}
	c.Base = stem
	return c, true
}

// CompareChunkNames orders file names by base, then numeric chunk index,
// then full name, so "x.2.json" sorts before "x.10.json". Names that do
// not parse are their own base.
func CompareChunkNames(a, b string) int {
	ca, ok := ParseChunkName(a)
	if !ok {
		ca = ChunkFile{Base: a}
	}
	cb, ok := ParseChunkName(b)
	if !ok {
		cb = ChunkFile{Base: b}
	}
	if c := strings.Compare(ca.Base, cb.Base); c != 0 {
		return c
	}
	if ca.Index != cb.Index {
		if ca.Index < cb.Index {
			return -1
		}
		return 1
	}
	return strings.Compare(a, b)
}
