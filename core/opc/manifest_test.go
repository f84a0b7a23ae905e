package opc

import (
	"errors"
	"reflect"
	"testing"

	cerrors "github.com/FocuswithJustin/threemf/core/errors"
)

const contentTypesXML = `<?xml version="1.0" encoding="UTF-8"?>
<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">
  <Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>
  <Default Extension="model" ContentType="application/vnd.ms-package.3dmanufacturing-3dmodel+xml"/>
  <Default Extension="PNG" ContentType="image/png"/>
  <Override PartName="/Metadata/thumbnail.png" ContentType="image/x-custom"/>
  <Default Extension="jpg"/>
</Types>`

func TestParseContentTypes(t *testing.T) {
	table, problems, err := ParseContentTypes([]byte(contentTypesXML), ContentTypesPath)
	if err != nil {
		t.Fatalf("ParseContentTypes: %v", err)
	}
	if len(problems) != 1 {
		t.Errorf("problems = %v, want 1 for the incomplete Default", problems)
	}
	if table.Len() != 4 {
		t.Errorf("Len() = %d, want 4", table.Len())
	}

	tests := []struct {
		path string
		want string
		ok   bool
	}{
		{"3D/3dmodel.model", "application/vnd.ms-package.3dmanufacturing-3dmodel+xml", true},
		{"/3D/3dmodel.MODEL", "application/vnd.ms-package.3dmanufacturing-3dmodel+xml", true},
		{"Metadata/thumbnail.png", "image/x-custom", true},
		{"/Metadata/thumbnail.png", "image/x-custom", true},
		{"Metadata/other.png", "image/png", true},
		{"Metadata/Thumbnail.png", "image/png", true},
		{"Metadata/photo.jpg", "", false},
		{"README", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got, ok := table.Lookup(tt.path)
			if got != tt.want || ok != tt.ok {
				t.Errorf("Lookup(%q) = %q, %v; want %q, %v", tt.path, got, ok, tt.want, tt.ok)
			}
		})
	}

	entries := table.Entries()
	if len(entries) != 4 || entries[0].Key != "model" || !entries[3].Override {
		t.Errorf("Entries() = %+v", entries)
	}
}

func TestParseContentTypesInvalid(t *testing.T) {
	tests := []struct {
		name string
		xml  string
	}{
		{"malformed", `<Types><Default`},
		{"wrong root", `<Relationships/>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table, _, err := ParseContentTypes([]byte(tt.xml), ContentTypesPath)
			if err == nil || table != nil {
				t.Fatalf("ParseContentTypes = %v, %v; want error", table, err)
			}
			var pe *cerrors.ParseError
			if !errors.As(err, &pe) || pe.Path != ContentTypesPath {
				t.Errorf("error = %v, want ParseError at %s", err, ContentTypesPath)
			}
		})
	}
}

func TestNilContentTypes(t *testing.T) {
	var table *ContentTypes
	if _, ok := table.Lookup("a.model"); ok {
		t.Error("nil table should not resolve anything")
	}
	if table.Len() != 0 || table.Entries() != nil {
		t.Error("nil table should be empty")
	}
	if NewContentTypes().Len() != 0 {
		t.Error("new table should be empty")
	}
}

const relsXML = `<?xml version="1.0" encoding="UTF-8"?>
<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rel0" Type="http://schemas.microsoft.com/3dmanufacturing/2013/01/3dmodel" Target="/3D/3dmodel.model"/>
  <Relationship Id="rel1" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/thumbnail" Target="/Metadata/thumbnail.png"/>
  <Relationship Id="rel1" Type="urn:dup" Target="/dup"/>
  <Relationship Id="rel2" Type="urn:x"/>
  <Relationship Id="web" Type="urn:link" Target="https://example.com" TargetMode="External"/>
</Relationships>`

func TestParseRelationships(t *testing.T) {
	rels, problems, err := ParseRelationships([]byte(relsXML), RootRelationshipsPath)
	if err != nil {
		t.Fatalf("ParseRelationships: %v", err)
	}
	if len(problems) != 2 {
		t.Errorf("problems = %v, want duplicate id and missing target", problems)
	}

	want := []Relationship{
		{ID: "rel0", Type: "http://schemas.microsoft.com/3dmanufacturing/2013/01/3dmodel", Target: "/3D/3dmodel.model", Source: RootRelationshipsPath},
		{ID: "rel1", Type: "http://schemas.openxmlformats.org/package/2006/relationships/metadata/thumbnail", Target: "/Metadata/thumbnail.png", Source: RootRelationshipsPath},
		{ID: "web", Type: "urn:link", Target: "https://example.com", TargetMode: TargetModeExternal, Source: RootRelationshipsPath},
	}
	if !reflect.DeepEqual(rels, want) {
		t.Errorf("ParseRelationships =\n%+v\nwant\n%+v", rels, want)
	}
	if !rels[2].IsExternal() || rels[0].IsExternal() {
		t.Error("IsExternal mismatch")
	}
}

func TestParseRelationshipsInvalid(t *testing.T) {
	if _, _, err := ParseRelationships([]byte(`<Relationships>`), "_rels/.rels"); err == nil {
		t.Error("malformed manifest should fail")
	}
	if _, _, err := ParseRelationships([]byte(`<Types/>`), "_rels/.rels"); err == nil {
		t.Error("wrong root should fail")
	}
}

func TestSourcePart(t *testing.T) {
	tests := []struct {
		source string
		want   string
	}{
		{"_rels/.rels", ""},
		{"3D/_rels/3dmodel.model.rels", "3D/3dmodel.model"},
		{"_rels/doc.xml.rels", "doc.xml"},
		{"misc/x.rels", ""},
	}
	for _, tt := range tests {
		if got := (Relationship{Source: tt.source}).SourcePart(); got != tt.want {
			t.Errorf("SourcePart(%q) = %q, want %q", tt.source, got, tt.want)
		}
	}
}

func TestCandidates(t *testing.T) {
	tests := []struct {
		name string
		rel  Relationship
		want []string
	}{
		{"absolute", Relationship{Target: "/3D/3dmodel.model", Source: "_rels/.rels"}, []string{"3D/3dmodel.model"}},
		{"relative at root", Relationship{Target: "3D/3dmodel.model", Source: "_rels/.rels"}, []string{"3D/3dmodel.model"}},
		{"part relative", Relationship{Target: "tex.png", Source: "3D/_rels/3dmodel.model.rels"}, []string{"tex.png", "3D/tex.png"}},
		{"absolute from part", Relationship{Target: "/3D/tex.png", Source: "3D/_rels/3dmodel.model.rels"}, []string{"3D/tex.png"}},
		{"escaping", Relationship{Target: "../../x.png", Source: "3D/_rels/3dmodel.model.rels"}, []string{"../../x.png"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rel.Candidates(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Candidates() = %v, want %v", got, tt.want)
			}
		})
	}

	if NormalizeTarget("/3D/3dmodel.model") != NormalizeTarget("3D/3dmodel.model") {
		t.Error("leading slash normalization is not idempotent")
	}
	if NormalizeTarget("//x") != "/x" {
		t.Error("only a single leading slash is stripped")
	}
}
