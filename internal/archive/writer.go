package archive

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ulikunitz/xz"

	"github.com/FocuswithJustin/threemf/core/cas"
	"github.com/FocuswithJustin/threemf/core/errors"
	"github.com/FocuswithJustin/threemf/core/opc"
	"github.com/FocuswithJustin/threemf/internal/validation"
)

// ManifestName is the file written at the top of every export.
const ManifestName = "manifest.json"

// ManifestVersion is the version of the manifest layout.
const ManifestVersion = "1"

// Manifest describes an export.
type Manifest struct {
	Version   string       `json:"version"`
	Source    string       `json:"source"`
	Comment   string       `json:"comment,omitempty"`
	CreatedAt string       `json:"created_at"`
	Members   []MemberInfo `json:"members"`
}

// MemberInfo records one exported package member.
type MemberInfo struct {
	Name string `json:"name"`
	Size int64  `json:"size"`
	cas.HashResult
}

// osRename is a variable to allow testing of rename errors.
var osRename = os.Rename

type member struct {
	info MemberInfo
	data []byte
}

// Export writes every file member of the package at pkgPath into a
// compressed tar at dstPath. Entries are placed under a directory named
// after the package and preceded by a manifest. The archive appears at
// dstPath only once it is complete.
func Export(pkgPath, dstPath string) (*Manifest, error) {
	format := DetectFormat(dstPath)
	if format == FormatUnknown {
		return nil, errors.NewUnsupported("archive format", dstPath)
	}

	a, err := opc.Open(pkgPath)
	if err != nil {
		return nil, err
	}
	defer a.Close()

	manifest := &Manifest{
		Version:   ManifestVersion,
		Source:    filepath.Base(pkgPath),
		Comment:   a.Comment(),
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	var members []member
	for _, e := range a.Entries() {
		if e.IsDir() {
			continue
		}
		name, err := validation.ValidateMemberName(e.Name())
		if err != nil {
			return nil, errors.Wrapf(err, "member %q", e.Name())
		}
		data, err := a.Read(e)
		if err != nil {
			return nil, err
		}
		info := MemberInfo{Name: name, Size: int64(len(data)), HashResult: cas.Sum(data)}
		manifest.Members = append(manifest.Members, info)
		members = append(members, member{info: info, data: data})
	}

	manifestData, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}

	baseDir := PackageID(pkgPath)
	err = writeAtomic(dstPath, func(w io.Writer) error {
		return writeTar(w, format, baseDir, manifestData, members)
	})
	if err != nil {
		return nil, err
	}
	return manifest, nil
}

func writeTar(w io.Writer, format, baseDir string, manifest []byte, members []member) error {
	var cw io.WriteCloser
	switch format {
	case FormatTarXz:
		xw, err := xz.NewWriter(w)
		if err != nil {
			return fmt.Errorf("xz writer: %w", err)
		}
		cw = xw
	default:
		cw = gzip.NewWriter(w)
	}

	tw := tar.NewWriter(cw)
	now := time.Now()
	put := func(name string, data []byte) error {
		hdr := &tar.Header{
			Name:     baseDir + "/" + name,
			Mode:     0644,
			Size:     int64(len(data)),
			ModTime:  now,
			Typeflag: tar.TypeReg,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		_, err := tw.Write(data)
		return err
	}

	if err := put(ManifestName, manifest); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	for _, m := range members {
		if err := put(m.info.Name, m.data); err != nil {
			return fmt.Errorf("failed to write %s: %w", m.info.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("failed to close tar: %w", err)
	}
	if err := cw.Close(); err != nil {
		return fmt.Errorf("failed to close compressor: %w", err)
	}
	return nil
}

func writeAtomic(path string, fill func(io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create parent directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".export-*")
	if err != nil {
		return fmt.Errorf("failed to create archive file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := fill(tmp); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to create archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close archive file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod archive file: %w", err)
	}
	if err := osRename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename archive: %w", err)
	}
	return nil
}

// ReadManifest reads the manifest of an export.
func ReadManifest(path string) (*Manifest, error) {
	data, err := ReadFile(path, ManifestName)
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// Verify checks every member of an export against the digests recorded in
// its manifest.
func Verify(path string) (*Manifest, error) {
	m, err := ReadManifest(path)
	if err != nil {
		return nil, err
	}
	want := make(map[string]MemberInfo, len(m.Members))
	for _, info := range m.Members {
		want[info.Name] = info
	}

	seen := make(map[string]bool)
	err = IterateArchive(path, func(header *tar.Header, r io.Reader) (bool, error) {
		name := header.Name
		if _, rest, ok := strings.Cut(name, "/"); ok {
			name = rest
		}
		if name == ManifestName {
			return false, nil
		}
		info, ok := want[name]
		if !ok {
			return true, fmt.Errorf("member %s is not listed in the manifest", name)
		}
		sum, n, err := cas.SumReader(r)
		if err != nil {
			return true, err
		}
		if n != info.Size || !sum.Equal(info.HashResult) {
			return true, fmt.Errorf("member %s does not match its manifest digest", name)
		}
		seen[name] = true
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	for name := range want {
		if !seen[name] {
			return nil, fmt.Errorf("member %s is missing from the archive", name)
		}
	}
	return m, nil
}
