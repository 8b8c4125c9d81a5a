// Package codec converts records to and from serialized fixture bytes.
// Codecs are registered by name; the name doubles as the file extension.
package codec

import (
	"path/filepath"
	"strings"

	cerrors "github.com/micurley/chunkdata/internal/errors"
	"github.com/micurley/chunkdata/pkg/types"
)

// DefaultFormat is the codec used when none is requested.
const DefaultFormat = "json"

// Options controls encoding.
type Options struct {
	// Indent is the pretty-print width; 0 means compact output
	Indent int
}

// Codec encodes and decodes a list of records.
type Codec interface {
	// Name is the format identifier and file extension
	Name() string
	Encode(records []types.Record, opts Options) ([]byte, error)
	Decode(data []byte) ([]types.Record, error)
}

// Registry is an ordered set of codecs keyed by name.
type Registry struct {
	codecs []Codec
	byName map[string]Codec
}

// NewRegistry registers codecs in the given order. A later codec with the
// same name replaces an earlier one.
func NewRegistry(codecs ...Codec) *Registry {
	r := &Registry{byName: make(map[string]Codec)}
	for _, c := range codecs {
		r.Register(c)
	}
	return r
}

// Default returns a registry holding every built-in codec.
func Default() *Registry {
	return NewRegistry(JSON{}, YAML{}, XML{}, Protobuf{}, Snappy{})
}

// Register adds or replaces a codec.
func (r *Registry) Register(c Codec) {
	name := strings.ToLower(c.Name())
	if _, exists := r.byName[name]; !exists {
		r.codecs = append(r.codecs, c)
	} else {
		for i, old := range r.codecs {
			if strings.ToLower(old.Name()) == name {
				r.codecs[i] = c
			}
		}
	}
	r.byName[name] = c
}

// Lookup returns the codec registered under name.
func (r *Registry) Lookup(name string) (Codec, error) {
	c, ok := r.byName[strings.ToLower(name)]
	if !ok {
		return nil, cerrors.NewUnsupportedCodecError(name)
	}
	return c, nil
}

// ForFile picks the codec matching a file's extension.
func (r *Registry) ForFile(path string) (Codec, error) {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return nil, cerrors.NewUnsupportedCodecError(filepath.Base(path))
	}
	return r.Lookup(ext)
}

// Extensions returns the registered names in registration order.
func (r *Registry) Extensions() []string {
	out := make([]string, len(r.codecs))
	for i, c := range r.codecs {
		out[i] = c.Name()
	}
	return out
}
