package opc

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/FocuswithJustin/threemf/core/errors"
	"github.com/FocuswithJustin/threemf/core/xml"
)

// ContentTypesPath is the fixed name of the content types manifest.
const ContentTypesPath = "[Content_Types].xml"

// ContentType is one Default or Override declaration.
type ContentType struct {
	Key       string // lower-case extension without dot, or part name with leading slash
	MediaType string
	Override  bool
}

// ContentTypes maps part names to media types.
type ContentTypes struct {
	defaults  map[string]ContentType
	overrides map[string]ContentType
}

// NewContentTypes returns an empty table.
func NewContentTypes() *ContentTypes {
	return &ContentTypes{
		defaults:  make(map[string]ContentType),
		overrides: make(map[string]ContentType),
	}
}

// ParseContentTypes parses a [Content_Types].xml document. A document that
// cannot be parsed at all yields an error and no table. Individual
// declarations that are missing attributes are skipped and reported in
// problems.
func ParseContentTypes(data []byte, source string) (*ContentTypes, []error, error) {
	doc, err := xml.Parse(data)
	if err != nil {
		return nil, nil, errors.NewParseWrap("content types", source, err)
	}
	root := doc.Root()
	if root == nil || root.Name() != "Types" {
		return nil, nil, errors.NewParse("content types", source, fmt.Sprintf("root element is %q, want Types", root.Name()))
	}

	t := NewContentTypes()
	var problems []error

	for _, n := range root.Children() {
		switch n.Name() {
		case "Default":
			ext, mt := n.Attr("Extension"), n.Attr("ContentType")
			if ext == "" || mt == "" {
				problems = append(problems, errors.NewParse("content types", source, "Default requires Extension and ContentType"))
				continue
			}
			key := strings.ToLower(strings.TrimPrefix(ext, "."))
			t.defaults[key] = ContentType{Key: key, MediaType: mt}
		case "Override":
			name, mt := n.Attr("PartName"), n.Attr("ContentType")
			if name == "" || mt == "" {
				problems = append(problems, errors.NewParse("content types", source, "Override requires PartName and ContentType"))
				continue
			}
			key := partName(name)
			t.overrides[key] = ContentType{Key: key, MediaType: mt, Override: true}
		default:
			problems = append(problems, errors.NewParse("content types", source, fmt.Sprintf("unexpected element %q", n.Name())))
		}
	}
	return t, problems, nil
}

// Lookup returns the media type for the part at p. An Override for exactly
// p wins over the Default for p's extension, which is matched
// case-insensitively.
func (t *ContentTypes) Lookup(p string) (string, bool) {
	if t == nil {
		return "", false
	}
	if ct, ok := t.overrides[partName(p)]; ok {
		return ct.MediaType, true
	}
	ext := strings.ToLower(strings.TrimPrefix(path.Ext(p), "."))
	if ext == "" {
		return "", false
	}
	if ct, ok := t.defaults[ext]; ok {
		return ct.MediaType, true
	}
	return "", false
}

// Entries returns every declaration, defaults first, each group sorted by key.
func (t *ContentTypes) Entries() []ContentType {
	if t == nil {
		return nil
	}
	out := make([]ContentType, 0, t.Len())
	for _, ct := range t.defaults {
		out = append(out, ct)
	}
	for _, ct := range t.overrides {
		out = append(out, ct)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Override != out[j].Override {
			return !out[i].Override
		}
		return out[i].Key < out[j].Key
	})
	return out
}

// Len returns the number of declarations.
func (t *ContentTypes) Len() int {
	if t == nil {
		return 0
	}
	return len(t.defaults) + len(t.overrides)
}

// partName returns p with exactly one leading slash.
func partName(p string) string {
	return "/" + strings.TrimPrefix(p, "/")
}
