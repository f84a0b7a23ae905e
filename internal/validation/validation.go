// Package validation provides input validation for archive member names and
// content sniffing for the binary parts of a package.
package validation

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"unicode"
)

// Security limits to prevent DoS attacks (CWE-400).
const (
	// MaxPathLength is the maximum allowed path length.
	MaxPathLength = 4096
	// SniffLength is the number of leading bytes inspected by DetectMediaType.
	SniffLength = 512
)

// Common validation errors.
var (
	ErrPathTraversal    = errors.New("path traversal detected")
	ErrPathTooLong      = errors.New("path too long")
	ErrInvalidCharacter = errors.New("invalid character in path")
	ErrEmptyPath        = errors.New("path cannot be empty")
)

// ValidatePath performs path validation for user supplied file paths.
// It checks length limits and invalid characters.
func ValidatePath(p string) error {
	if p == "" {
		return ErrEmptyPath
	}

	if len(p) > MaxPathLength {
		return ErrPathTooLong
	}

	if strings.Contains(p, "\x00") {
		return fmt.Errorf("%w: null byte not allowed", ErrInvalidCharacter)
	}

	for _, r := range p {
		if unicode.IsControl(r) {
			return fmt.Errorf("%w: control character not allowed", ErrInvalidCharacter)
		}
	}

	return nil
}

// ValidateMemberName checks an archive member name before it is staged for
// write-back. Names use forward slashes, may carry one leading slash and
// must not climb out of the archive root.
func ValidateMemberName(name string) (string, error) {
	if err := ValidatePath(name); err != nil {
		return "", err
	}
	if strings.Contains(name, "\\") {
		return "", fmt.Errorf("%w: backslash not allowed", ErrInvalidCharacter)
	}

	clean := strings.TrimPrefix(name, "/")
	if clean == "" || strings.HasSuffix(clean, "/") {
		return "", fmt.Errorf("%w: member name must name a file", ErrEmptyPath)
	}
	if path.Clean(clean) != clean {
		return "", fmt.Errorf("%w: %q is not a clean member name", ErrPathTraversal, name)
	}
	for _, seg := range strings.Split(clean, "/") {
		if seg == ".." {
			return "", ErrPathTraversal
		}
	}
	return clean, nil
}

// Media types recognized by DetectMediaType.
const (
	MediaTypePNG  = "image/png"
	MediaTypeJPEG = "image/jpeg"
	MediaTypeGIF  = "image/gif"
	MediaTypeBMP  = "image/bmp"
	MediaTypeTIFF = "image/tiff"
	MediaTypeWebP = "image/webp"
)

// magicBytes defines magic byte signatures for media type detection.
var magicBytes = []struct {
	mediaType string
	magic     []byte
	offset    int
}{
	{MediaTypePNG, []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a}, 0},
	{MediaTypeJPEG, []byte{0xff, 0xd8, 0xff}, 0},
	{MediaTypeGIF, []byte("GIF87a"), 0},
	{MediaTypeGIF, []byte("GIF89a"), 0},
	{MediaTypeBMP, []byte("BM"), 0},
	{MediaTypeTIFF, []byte{'I', 'I', 0x2a, 0x00}, 0},
	{MediaTypeTIFF, []byte{'M', 'M', 0x00, 0x2a}, 0},
	{MediaTypeWebP, []byte("WEBP"), 8}, // RIFF container, checked below
}

// DetectMediaType identifies the media type of a stream from its leading
// bytes, ignoring any file name. It returns "" when nothing matches.
func DetectMediaType(r io.Reader) (string, error) {
	buf := make([]byte, SniffLength)
	n, err := io.ReadFull(r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", fmt.Errorf("failed to read header: %w", err)
	}
	return DetectMediaTypeBytes(buf[:n]), nil
}

// DetectMediaTypeBytes is DetectMediaType for data already in memory.
func DetectMediaTypeBytes(buf []byte) string {
	for _, sig := range magicBytes {
		if sig.offset+len(sig.magic) > len(buf) {
			continue
		}
		if !bytes.Equal(buf[sig.offset:sig.offset+len(sig.magic)], sig.magic) {
			continue
		}
		if sig.mediaType == MediaTypeWebP && !bytes.HasPrefix(buf, []byte("RIFF")) {
			continue
		}
		return sig.mediaType
	}
	return ""
}
