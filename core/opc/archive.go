// Package opc reads and rewrites Open Packaging Conventions containers: the
// zip archive itself, the [Content_Types].xml manifest and .rels
// relationship manifests.
package opc

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/FocuswithJustin/threemf/core/errors"
)

// ErrCorruptArchive is returned when a file cannot be read as a zip container.
var ErrCorruptArchive = errors.New("corrupt archive")

// Injectable for testing.
var (
	osCreateTemp = os.CreateTemp
	osRename     = os.Rename
)

// Entry is a handle to one member of an open archive.
type Entry struct {
	f *zip.File
}

// Name returns the member name as stored in the zip directory.
func (e *Entry) Name() string { return e.f.Name }

// IsDir reports whether the member is a directory entry.
func (e *Entry) IsDir() bool { return strings.HasSuffix(e.f.Name, "/") }

// Size returns the uncompressed size of the member.
func (e *Entry) Size() int64 { return int64(e.f.UncompressedSize64) }

// Open returns a stream of the member's uncompressed content. Failures to
// open or decompress the member, checksum mismatches included, wrap
// ErrCorruptArchive.
func (e *Entry) Open() (io.ReadCloser, error) {
	rc, err := e.f.Open()
	if err != nil {
		return nil, corrupt("open member", e.f.Name, err)
	}
	return &memberReader{rc: rc, name: e.f.Name}, nil
}

// memberReader marks every read failure of a member stream as corruption.
type memberReader struct {
	rc   io.ReadCloser
	name string
}

func (r *memberReader) Read(p []byte) (int, error) {
	n, err := r.rc.Read(p)
	if err != nil && err != io.EOF {
		err = corrupt("read member", r.name, err)
	}
	return n, err
}

func (r *memberReader) Close() error { return r.rc.Close() }

func corrupt(operation, name string, err error) error {
	return errors.NewIO(operation, name, fmt.Errorf("%w: %w", ErrCorruptArchive, err))
}

// Archive is an open zip container.
type Archive struct {
	path    string
	rc      *zip.ReadCloser
	entries []*Entry
	byName  map[string]*Entry
}

// Open opens path as a zip container. Any failure to read the zip structure
// is reported as ErrCorruptArchive.
func Open(path string) (*Archive, error) {
	rc, err := zip.OpenReader(path)
	if err != nil {
		return nil, corrupt("open archive", path, err)
	}

	a := &Archive{
		path:    path,
		rc:      rc,
		entries: make([]*Entry, 0, len(rc.File)),
		byName:  make(map[string]*Entry, len(rc.File)),
	}
	for _, f := range rc.File {
		e := &Entry{f: f}
		a.entries = append(a.entries, e)
		if _, dup := a.byName[f.Name]; !dup {
			a.byName[f.Name] = e
		}
	}
	return a, nil
}

// Close releases the underlying file.
func (a *Archive) Close() error {
	return a.rc.Close()
}

// Path returns the file the archive was opened from.
func (a *Archive) Path() string { return a.path }

// Comment returns the archive comment.
func (a *Archive) Comment() string { return a.rc.Comment }

// Entries returns every member in directory order.
func (a *Archive) Entries() []*Entry {
	return append([]*Entry(nil), a.entries...)
}

// Find returns the member whose name is exactly name.
func (a *Archive) Find(name string) (*Entry, bool) {
	e, ok := a.byName[name]
	return e, ok
}

// Glob returns the members whose names match pattern, in directory order.
// Patterns support ** and backslash escapes, so a literal such as
// `\[Content_Types\].xml` can be matched too.
func (a *Archive) Glob(pattern string) ([]*Entry, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, errors.NewValidation("pattern", fmt.Sprintf("invalid glob %q", pattern))
	}
	var matches []*Entry
	for _, e := range a.entries {
		if ok, _ := doublestar.Match(pattern, e.Name()); ok {
			matches = append(matches, e)
		}
	}
	return matches, nil
}

// Read returns the uncompressed content of e.
func (a *Archive) Read(e *Entry) ([]byte, error) {
	rc, err := e.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// ReadFile opens the archive at path and returns the first member matching
// pattern.
func ReadFile(path, pattern string) ([]byte, error) {
	a, err := Open(path)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	matches, err := a.Glob(pattern)
	if err != nil {
		return nil, err
	}
	if len(matches) == 0 {
		return nil, errors.NewNotFound("archive member", pattern)
	}
	return a.Read(matches[0])
}

// Rewrite copies the archive at src to dst. Members named in overlay are
// written with the overlay bytes as a fresh deflate stream under the same name;
// every other member, and every directory entry, is copied raw. Overlay
// paths that do not exist in src are appended as new members in name order.
// The result is assembled in memory and only then moved into place, so dst
// never holds a partial archive.
func Rewrite(src string, overlay map[string][]byte, dst string) error {
	data, err := rewriteToBuffer(src, overlay)
	if err != nil {
		return err
	}
	return writeFileAtomic(dst, data)
}

func rewriteToBuffer(src string, overlay map[string][]byte) ([]byte, error) {
	a, err := Open(src)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	written := make(map[string]bool, len(overlay))

	for _, e := range a.entries {
		data, staged := overlay[e.Name()]
		if e.IsDir() || !staged {
			if err := zw.Copy(e.f); err != nil {
				return nil, errors.NewIO("copy member", e.Name(), err)
			}
			continue
		}
		written[e.Name()] = true

		hdr := &zip.FileHeader{
			Name:          e.f.Name,
			Comment:       e.f.Comment,
			Method:        zip.Deflate,
			Modified:      e.f.Modified,
			ExternalAttrs: e.f.ExternalAttrs,
		}
		if err := writeMember(zw, hdr, data); err != nil {
			return nil, err
		}
	}

	var added []string
	for name := range overlay {
		if _, exists := a.byName[name]; !exists && !written[name] {
			added = append(added, name)
		}
	}
	sort.Strings(added)
	for _, name := range added {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		if err := writeMember(zw, hdr, overlay[name]); err != nil {
			return nil, err
		}
	}

	if err := zw.SetComment(a.Comment()); err != nil {
		return nil, errors.Wrap(err, "set archive comment")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "finish archive")
	}
	return buf.Bytes(), nil
}

func writeMember(zw *zip.Writer, hdr *zip.FileHeader, data []byte) error {
	w, err := zw.CreateHeader(hdr)
	if err != nil {
		return errors.NewIO("create member", hdr.Name, err)
	}
	if _, err := w.Write(data); err != nil {
		return errors.NewIO("write member", hdr.Name, err)
	}
	return nil
}

// writeFileAtomic writes data to a temp file beside path and renames it over path.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := osCreateTemp(dir, ".threemf-*")
	if err != nil {
		return errors.NewIO("create temp file", dir, err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewIO("write", tmpPath, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return errors.NewIO("sync", tmpPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return errors.NewIO("close", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return errors.NewIO("chmod", tmpPath, err)
	}
	if err := osRename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.NewIO("rename", path, err)
	}
	return nil
}
