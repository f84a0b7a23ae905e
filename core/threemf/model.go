package threemf

import (
	"fmt"
	"io"

	"github.com/FocuswithJustin/threemf/core/errors"
	"github.com/FocuswithJustin/threemf/core/opc"
	"github.com/FocuswithJustin/threemf/core/vlog"
	"github.com/FocuswithJustin/threemf/core/xml"
)

// DefaultUnit is the unit of a model that declares none.
const DefaultUnit = "millimeter"

var validUnits = map[string]bool{
	"micron":     true,
	"millimeter": true,
	"centimeter": true,
	"inch":       true,
	"foot":       true,
	"meter":      true,
}

// Model is a summary of a 3D model part.
type Model struct {
	Unit          string
	Language      string
	Metadata      map[string]string
	Objects       []Object
	Build         []BuildItem
	Relationships []opc.Relationship // declared by the model's own _rels manifest
}

// Object is one <object> resource.
type Object struct {
	ID         string
	Type       string
	Name       string
	Vertices   int
	Triangles  int
	Components int
}

// BuildItem is one <item> of the build.
type BuildItem struct {
	ObjectID  string
	Transform string
}

// Kind implements Part.
func (*Model) Kind() string { return "model" }

// Object returns the object with the given id.
func (m *Model) Object(id string) (Object, bool) {
	for _, o := range m.Objects {
		if o.ID == id {
			return o, true
		}
	}
	return Object{}, false
}

// ModelParser summarizes model parts. Geometry is counted, not validated.
type ModelParser struct{}

// ParsePart implements PartParser.
func (ModelParser) ParsePart(req *PartRequest, part io.Reader) (Part, error) {
	data, err := io.ReadAll(part)
	if err != nil {
		return nil, errors.NewIO("read part", req.Path, err)
	}

	m := &Model{Unit: DefaultUnit, Metadata: make(map[string]string)}
	for _, rel := range req.Relationships {
		if rel.SourcePart() == req.Path {
			m.Relationships = append(m.Relationships, rel)
		}
	}

	err = req.Log.Context("model", func(l *vlog.Log) error {
		if res := xml.Validate(data); !res.Valid {
			l.Error(ErrInvalidModel, "Model part is not well-formed XML", "error", res.Errors[0].Message)
			return nil
		}
		doc, err := xml.Parse(data)
		if err != nil {
			l.Error(ErrInvalidModel, "Model part could not be parsed", "error", err.Error())
			return nil
		}

		root := doc.Root()
		if root.Name() != "model" {
			l.Error(ErrInvalidModel, fmt.Sprintf("Model root element is %q, expected model", root.Name()))
			return nil
		}
		if root.HasAttr("unit") {
			unit := root.Attr("unit")
			if validUnits[unit] {
				m.Unit = unit
			} else {
				l.Error(ErrInvalidModel, "Model declares an unknown unit", "unit", unit)
			}
		}
		m.Language = root.Attributes()["lang"]

		for _, md := range root.Children() {
			if md.Name() != "metadata" {
				continue
			}
			m.Metadata[md.Attr("name")] = md.Text()
		}

		for _, o := range doc.Elements("object") {
			obj := Object{
				ID:         o.Attr("id"),
				Type:       o.Attr("type"),
				Name:       o.Attr("name"),
				Vertices:   len(o.Elements("vertex")),
				Triangles:  len(o.Elements("triangle")),
				Components: len(o.Elements("component")),
			}
			if obj.Type == "" {
				obj.Type = "model"
			}
			if _, dup := m.Object(obj.ID); dup {
				l.Error(ErrInvalidModel, "Duplicate object id", "id", obj.ID)
				continue
			}
			m.Objects = append(m.Objects, obj)
		}

		for _, it := range doc.Elements("item") {
			item := BuildItem{ObjectID: it.Attr("objectid"), Transform: it.Attr("transform")}
			if _, ok := m.Object(item.ObjectID); !ok {
				l.Error(ErrInvalidModel, "Build item references an unknown object", "objectid", item.ObjectID)
			}
			m.Build = append(m.Build, item)
		}

		l.Info("Model parsed", "objects", len(m.Objects), "items", len(m.Build), "unit", m.Unit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}
