package opc

import (
	"fmt"
	"path"
	"strings"

	"github.com/FocuswithJustin/threemf/core/errors"
	"github.com/FocuswithJustin/threemf/core/xml"
)

const (
	// RootRelationshipsPath is the package-level relationships manifest.
	RootRelationshipsPath = "_rels/.rels"
	// RelationshipsGlob matches every relationships manifest in a package.
	RelationshipsGlob = "**/*.rels"

	TargetModeExternal = "External"
)

// Relationship is one <Relationship> element of a .rels manifest.
type Relationship struct {
	ID         string
	Type       string
	Target     string
	TargetMode string
	Source     string // archive path of the manifest that declared it
}

// IsExternal reports whether the target lies outside the package.
func (r Relationship) IsExternal() bool {
	return r.TargetMode == TargetModeExternal
}

// SourcePart returns the archive path of the part the manifest describes,
// or "" for the package-level manifest.
func (r Relationship) SourcePart() string {
	dir, file := path.Split(r.Source)
	dir = strings.TrimSuffix(dir, "/")
	if path.Base(dir) != "_rels" {
		return ""
	}
	parent := path.Dir(dir)
	name := strings.TrimSuffix(file, ".rels")
	if name == "" {
		return ""
	}
	if parent == "." {
		return name
	}
	return parent + "/" + name
}

// NormalizeTarget strips a single leading slash from target.
func NormalizeTarget(target string) string {
	return strings.TrimPrefix(target, "/")
}

// Candidates returns the archive paths the target may refer to, most
// specific first: the normalized target, then, for relative targets
// declared by a part-level manifest, the target resolved against the
// directory of the source part.
func (r Relationship) Candidates() []string {
	norm := NormalizeTarget(r.Target)
	out := []string{norm}
	if strings.HasPrefix(r.Target, "/") {
		return out
	}
	src := r.SourcePart()
	if src == "" {
		return out
	}
	rel := path.Join(path.Dir(src), r.Target)
	if rel != norm && !strings.HasPrefix(rel, "../") {
		out = append(out, rel)
	}
	return out
}

// ParseRelationships parses one .rels manifest. Elements missing a required
// attribute, or repeating an Id already used in the same manifest, are
// skipped and reported in problems.
func ParseRelationships(data []byte, source string) ([]Relationship, []error, error) {
	doc, err := xml.Parse(data)
	if err != nil {
		return nil, nil, errors.NewParseWrap("relationships", source, err)
	}
	root := doc.Root()
	if root == nil || root.Name() != "Relationships" {
		return nil, nil, errors.NewParse("relationships", source, fmt.Sprintf("root element is %q, want Relationships", root.Name()))
	}

	var (
		rels     []Relationship
		problems []error
		seen     = make(map[string]bool)
	)
	for _, n := range root.Children() {
		if n.Name() != "Relationship" {
			problems = append(problems, errors.NewParse("relationships", source, fmt.Sprintf("unexpected element %q", n.Name())))
			continue
		}
		rel := Relationship{
			ID:         n.Attr("Id"),
			Type:       n.Attr("Type"),
			Target:     n.Attr("Target"),
			TargetMode: n.Attr("TargetMode"),
			Source:     source,
		}
		if rel.ID == "" || rel.Type == "" || rel.Target == "" {
			problems = append(problems, errors.NewParse("relationships", source,
				fmt.Sprintf("relationship %q requires Id, Type and Target", rel.ID)))
			continue
		}
		if seen[rel.ID] {
			problems = append(problems, errors.NewParse("relationships", source,
				fmt.Sprintf("duplicate relationship Id %q", rel.ID)))
			continue
		}
		seen[rel.ID] = true
		rels = append(rels, rel)
	}
	return rels, problems, nil
}
