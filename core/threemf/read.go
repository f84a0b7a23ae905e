package threemf

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/threemf/core/errors"
	"github.com/FocuswithJustin/threemf/core/opc"
	"github.com/FocuswithJustin/threemf/core/vlog"
)

// Option configures Read.
type Option func(*options)

type options struct {
	registry *Registry
	logger   *slog.Logger
	readID   string
}

// WithRegistry replaces the default part parser registry.
func WithRegistry(r *Registry) Option {
	return func(o *options) { o.registry = r }
}

// WithLogger mirrors validation events to logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithReadID sets the read identifier instead of generating one.
func WithReadID(id string) Option {
	return func(o *options) { o.readID = id }
}

// Read validates the package at path and assembles its Document.
//
// The returned log always holds every event recorded during the read. If a
// fatal event was raised the Document is nil and the error carries the fatal
// event; recoverable problems only appear in the log.
func Read(path string, opts ...Option) (*Document, *vlog.Log, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.registry == nil {
		o.registry = DefaultRegistry()
	}
	if o.readID == "" {
		o.readID = uuid.NewString()
	}

	var logOpts []vlog.Option
	if o.logger != nil {
		logOpts = append(logOpts, vlog.WithLogger(o.logger.With("read_id", o.readID, "package", path)))
	}
	log := vlog.New(logOpts...)

	r := &reader{
		doc:      newDocument(path, o.readID),
		registry: o.registry,
	}
	err := log.Context("zip", r.read)
	if err == nil {
		err = log.Err()
	}
	if err != nil {
		return nil, log, err
	}
	return r.doc, log, nil
}

// reader carries the state of a single read pass.
type reader struct {
	doc      *Document
	registry *Registry
	archive  *opc.Archive
}

func (r *reader) read(l *vlog.Log) error {
	a, err := opc.Open(r.doc.path)
	if err != nil {
		return l.Fatal(ErrCorruptArchive, "File provided is not a valid ZIP archive", vlog.Page(9), "error", err.Error())
	}
	defer func() {
		a.Close()
		r.archive = nil
	}()
	r.archive = a
	l.Info("Zip file is valid", "entries", len(a.Entries()))

	if err := l.Context("content types", r.readContentTypes); err != nil {
		return err
	}
	if err := l.Context("relationships", r.readRelationships); err != nil {
		return err
	}
	return l.Context("relationship elements", r.resolveRelationships)
}

func (r *reader) readContentTypes(l *vlog.Log) error {
	e, ok := r.archive.Find(opc.ContentTypesPath)
	if !ok {
		l.Error(ErrMissingContentTypes, "Missing required file: [Content_Types].xml", vlog.Page(4))
		return nil
	}

	data, err := r.archive.Read(e)
	if err != nil {
		return corruptMember(l, e.Name(), err)
	}

	table, problems, err := opc.ParseContentTypes(data, e.Name())
	if err != nil {
		l.Error(ErrInvalidManifest, "Could not parse [Content_Types].xml", vlog.Page(10), "error", err.Error())
		return nil
	}
	for _, p := range problems {
		l.Error(ErrInvalidManifest, p.Error(), vlog.Page(10))
	}
	r.doc.contentTypes = table
	l.Info("Content types parsed", "entries", table.Len())
	return nil
}

func (r *reader) readRelationships(l *vlog.Log) error {
	if _, ok := r.archive.Find(opc.RootRelationshipsPath); !ok {
		return l.Fatal(ErrMissingRootRelationships, "Missing required file _rels/.rels", vlog.Page(4))
	}

	manifests, err := r.archive.Glob(opc.RelationshipsGlob)
	if err != nil {
		return l.Fatal(ErrInvalidManifest, "Could not list relationship manifests", "error", err.Error())
	}
	for _, m := range manifests {
		data, err := r.archive.Read(m)
		if err != nil {
			return corruptMember(l, m.Name(), err)
		}
		rels, problems, err := opc.ParseRelationships(data, m.Name())
		if err != nil {
			l.Error(ErrInvalidManifest, "Could not parse relationships manifest", vlog.Page(10), "manifest", m.Name(), "error", err.Error())
			continue
		}
		for _, p := range problems {
			l.Error(ErrInvalidManifest, p.Error(), vlog.Page(10), "manifest", m.Name())
		}
		r.doc.relationships = append(r.doc.relationships, rels...)
	}
	l.Info("Relationships parsed", "manifests", len(manifests), "relationships", len(r.doc.relationships))
	return nil
}

func (r *reader) resolveRelationships(l *vlog.Log) error {
	for _, rel := range r.doc.relationships {
		err := l.Context(rel.Target, func(l *vlog.Log) error {
			return r.resolve(l, rel)
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *reader) resolve(l *vlog.Log, rel opc.Relationship) error {
	if rel.IsExternal() {
		l.Info("Relationship target is external to the package, not resolved", "id", rel.ID, "type", rel.Type)
		return nil
	}

	entry := r.findTarget(rel)
	if entry == nil {
		l.Error(ErrTargetNotFound, fmt.Sprintf("Relationship Target file %s not found", rel.Target), vlog.Page(11), "id", rel.ID)
		return nil
	}

	binding, ok := r.registry.Lookup(rel.Type)
	if !ok {
		l.Warning(fmt.Sprintf("Relationship file defines a type that is not used in a normal 3mf file: %s. Ignoring relationship.", rel.Type), "id", rel.ID)
		return nil
	}

	contentType, known := r.doc.contentTypes.Lookup(entry.Name())
	if !known {
		l.Info("Part has no declared content type", "part", entry.Name())
	}

	rc, err := entry.Open()
	if err != nil {
		return corruptMember(l, entry.Name(), err)
	}
	defer rc.Close()

	req := &PartRequest{
		Document:      r.doc,
		Relationship:  rel,
		Path:          entry.Name(),
		ContentType:   contentType,
		Relationships: r.doc.Relationships(),
		Log:           l,
	}
	obj, err := binding.Parser.ParsePart(req, rc)
	if vlog.IsFatal(err) {
		return err
	}
	if err == nil {
		// A checksum mismatch only surfaces once the stream is exhausted.
		_, err = io.Copy(io.Discard, rc)
	}
	if errors.Is(err, ErrCorruptArchive) {
		return corruptMember(l, entry.Name(), err)
	}
	if err != nil {
		l.Error(err, err.Error(), "id", rel.ID, "part", entry.Name())
	}

	r.doc.add(binding.Collection, ResolvedPart{
		RelationshipID: rel.ID,
		Target:         rel.Target,
		Path:           entry.Name(),
		ContentType:    contentType,
		Object:         obj,
	})
	return nil
}

// findTarget returns the first archive member matching the relationship's
// candidate paths.
func (r *reader) findTarget(rel opc.Relationship) *opc.Entry {
	for _, name := range rel.Candidates() {
		if e, ok := r.archive.Find(name); ok && !e.IsDir() {
			return e
		}
	}
	return nil
}

// corruptMember raises the fatal event for a member whose stored data
// cannot be read back.
func corruptMember(l *vlog.Log, member string, err error) error {
	return l.Fatal(ErrCorruptArchive, "File provided is not a valid ZIP archive", vlog.Page(9),
		"member", member, "error", err.Error())
}
