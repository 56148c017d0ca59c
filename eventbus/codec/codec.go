// Package codec encodes event bus message bodies.
package codec

import (
	"fmt"
	"strings"
	"sync"
)

// Content types of the built-in codecs.
const (
	ContentTypeJSON  = "application/json"
	ContentTypeCBOR  = "application/cbor"
	ContentTypeProto = "application/x-protobuf"
)

// Codec marshals message bodies. Implementations are deterministic so
// equal values encode to equal bytes.
type Codec interface {
	ContentType() string
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
}

// Registry maps content types and short aliases to codecs.
type Registry struct {
	byType map[string]Codec
	mu     sync.RWMutex
}

// NewRegistry constructs a registry preloaded with JSON, CBOR and Proto.
func NewRegistry() *Registry {
	r := &Registry{byType: make(map[string]Codec)}
	r.Register(JSON())
	r.Register(MustCBOR())
	r.Register(Proto())
	return r
}

// Register adds a codec under its content type.
func (r *Registry) Register(c Codec) {
	r.mu.Lock()
	r.byType[c.ContentType()] = c
	r.mu.Unlock()
}

// Get returns a codec by content type or alias ("json", "cbor", "proto"),
// or nil.
func (r *Registry) Get(contentType string) Codec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if c, ok := r.byType[contentType]; ok {
		return c
	}
	return r.byType[alias(contentType)]
}

// Lookup is Get with an error for unknown content types.
func (r *Registry) Lookup(contentType string) (Codec, error) {
	if c := r.Get(contentType); c != nil {
		return c, nil
	}
	return nil, fmt.Errorf("codec: no codec for content type %q", contentType)
}

// ContentTypes lists the registered content types.
func (r *Registry) ContentTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.byType))
	for ct := range r.byType {
		out = append(out, ct)
	}
	return out
}

func alias(name string) string {
	switch strings.ToLower(name) {
	case "json", "":
		return ContentTypeJSON
	case "cbor":
		return ContentTypeCBOR
	case "proto", "protobuf":
		return ContentTypeProto
	}
	if i := strings.IndexByte(name, ';'); i > 0 {
		return strings.TrimSpace(name[:i])
	}
	return name
}
