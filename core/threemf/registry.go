package threemf

import (
	"io"
	"sort"

	"github.com/FocuswithJustin/threemf/core/opc"
	"github.com/FocuswithJustin/threemf/core/vlog"
)

// Relationship types dispatched by the default registry. Matching is exact.
const (
	RelTypeModel     = "http://schemas.microsoft.com/3dmanufacturing/2013/01/3dmodel"
	RelTypeThumbnail = "http://schemas.openxmlformats.org/package/2006/relationships/metadata/thumbnail"
	RelTypeTexture   = "http://schemas.microsoft.com/3dmanufacturing/2013/01/3dtexture"
)

// Collection selects which Document collection a resolved part lands in.
type Collection int

const (
	Models Collection = iota
	Thumbnails
	Textures
)

func (c Collection) String() string {
	switch c {
	case Models:
		return "models"
	case Thumbnails:
		return "thumbnails"
	case Textures:
		return "textures"
	default:
		return "unknown"
	}
}

// Part is the typed object a part parser produces.
type Part interface {
	Kind() string
}

// PartRequest describes the part being parsed.
type PartRequest struct {
	// Document is the document assembled so far.
	Document *Document
	// Relationship is the relationship that referenced the part.
	Relationship opc.Relationship
	// Path is the archive member the relationship resolved to.
	Path string
	// ContentType is the media type declared for Path, or "".
	ContentType string
	// Relationships is every relationship of the package, in discovery order.
	Relationships []opc.Relationship
	// Log is the shared validation log, positioned in the part's context.
	Log *vlog.Log
}

// PartParser turns the bytes of one part into a typed object. Problems are
// reported through req.Log; a fatal event is returned as the error. A parser
// may return a partial object together with recoverable log events. Any
// other returned error, such as a failure reading part, is recorded once by
// the reader and is not logged by the parser itself; read failures caused by
// a corrupt archive end the read.
type PartParser interface {
	ParsePart(req *PartRequest, part io.Reader) (Part, error)
}

// PartParserFunc adapts a function to PartParser.
type PartParserFunc func(req *PartRequest, part io.Reader) (Part, error)

// ParsePart calls f.
func (f PartParserFunc) ParsePart(req *PartRequest, part io.Reader) (Part, error) {
	return f(req, part)
}

// Binding is one registry entry.
type Binding struct {
	Parser     PartParser
	Collection Collection
}

// Registry maps relationship type URIs to part parsers.
type Registry struct {
	bindings map[string]Binding
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{bindings: make(map[string]Binding)}
}

// DefaultRegistry returns a registry with the model, thumbnail and texture
// parsers bound to their relationship types.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(RelTypeModel, ModelParser{}, Models)
	r.Register(RelTypeThumbnail, ThumbnailParser{}, Thumbnails)
	r.Register(RelTypeTexture, TextureParser{}, Textures)
	return r
}

// Register binds relType to p, replacing any previous binding.
func (r *Registry) Register(relType string, p PartParser, c Collection) {
	r.bindings[relType] = Binding{Parser: p, Collection: c}
}

// Lookup returns the binding for relType.
func (r *Registry) Lookup(relType string) (Binding, bool) {
	b, ok := r.bindings[relType]
	return b, ok
}

// Types returns the registered relationship types in sorted order.
func (r *Registry) Types() []string {
	out := make([]string, 0, len(r.bindings))
	for t := range r.bindings {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}
