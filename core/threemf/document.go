// Package threemf assembles a typed document from a 3MF package and writes
// packages back with copy-on-write semantics.
package threemf

import (
	"sort"

	"github.com/FocuswithJustin/threemf/core/errors"
	"github.com/FocuswithJustin/threemf/core/opc"
	"github.com/FocuswithJustin/threemf/internal/validation"
)

// Sentinel kinds attached to validation events.
var (
	ErrCorruptArchive           = opc.ErrCorruptArchive
	ErrMissingRootRelationships = errors.New("missing root relationships")
	ErrMissingContentTypes      = errors.New("missing content types")
	ErrInvalidManifest          = errors.New("invalid manifest")
	ErrTargetNotFound           = errors.New("relationship target not found")
	ErrInvalidModel             = errors.New("invalid model")
	ErrInvalidThumbnail         = errors.New("invalid thumbnail")
	ErrInvalidThumbnailType     = errors.New("invalid thumbnail file type")
	ErrInvalidColorspace        = errors.New("invalid thumbnail colorspace")
	ErrInvalidTexture           = errors.New("invalid texture")
)

// ResolvedPart is a parsed part together with the relationship that
// referenced it.
type ResolvedPart struct {
	RelationshipID string
	Target         string // as declared by the relationship
	Path           string // archive member it resolved to
	ContentType    string
	Object         Part
}

// Document is the object graph read from a package. Its collections are
// fixed once Read returns; only the write-back overlay can change.
type Document struct {
	path          string
	readID        string
	contentTypes  *opc.ContentTypes
	relationships []opc.Relationship
	parts         map[Collection][]ResolvedPart
	overlay       map[string][]byte
}

func newDocument(path, readID string) *Document {
	return &Document{
		path:         path,
		readID:       readID,
		contentTypes: opc.NewContentTypes(),
		parts:        make(map[Collection][]ResolvedPart),
		overlay:      make(map[string][]byte),
	}
}

func (d *Document) add(c Collection, p ResolvedPart) {
	d.parts[c] = append(d.parts[c], p)
}

// Path returns the archive the document was read from.
func (d *Document) Path() string { return d.path }

// ReadID returns the identifier of the read that produced the document.
func (d *Document) ReadID() string { return d.readID }

// ContentTypes returns the parsed content types table.
func (d *Document) ContentTypes() *opc.ContentTypes { return d.contentTypes }

// Relationships returns every relationship in discovery order.
func (d *Document) Relationships() []opc.Relationship {
	return append([]opc.Relationship(nil), d.relationships...)
}

// Parts returns the resolved parts of collection c.
func (d *Document) Parts(c Collection) []ResolvedPart {
	return append([]ResolvedPart(nil), d.parts[c]...)
}

// Models returns the resolved model parts.
func (d *Document) Models() []ResolvedPart { return d.Parts(Models) }

// Thumbnails returns the resolved thumbnail parts.
func (d *Document) Thumbnails() []ResolvedPart { return d.Parts(Thumbnails) }

// Textures returns the resolved texture parts.
func (d *Document) Textures() []ResolvedPart { return d.Parts(Textures) }

// Stage records replacement bytes for an archive member. The bytes are
// used by the next Write; the parsed collections are not affected.
func (d *Document) Stage(member string, data []byte) error {
	name, err := validation.ValidateMemberName(member)
	if err != nil {
		return &errors.ValidationError{Field: "member", Value: member, Message: err.Error(), Err: err}
	}
	d.overlay[name] = append([]byte(nil), data...)
	return nil
}

// Unstage drops staged bytes for member.
func (d *Document) Unstage(member string) {
	delete(d.overlay, opc.NormalizeTarget(member))
}

// Staged returns the staged member names in sorted order.
func (d *Document) Staged() []string {
	out := make([]string, 0, len(d.overlay))
	for name := range d.overlay {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// StagedBytes returns a copy of the bytes staged for member.
func (d *Document) StagedBytes(member string) ([]byte, bool) {
	data, ok := d.overlay[opc.NormalizeTarget(member)]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), data...), true
}

// Write re-reads the original archive and writes it to output with staged
// members replaced. An empty output overwrites the original archive.
func (d *Document) Write(output string) error {
	if output == "" {
		output = d.path
	}
	return opc.Rewrite(d.path, d.overlay, output)
}

// ContentsFor returns the raw bytes of the first archive member matching
// pattern, read straight from the original archive.
func (d *Document) ContentsFor(pattern string) ([]byte, error) {
	return opc.ReadFile(d.path, pattern)
}
