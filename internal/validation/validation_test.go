package validation

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestValidatePath(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		wantError error
	}{
		{"valid relative path", "models/box.3mf", nil},
		{"valid absolute path", "/tmp/box.3mf", nil},
		{"empty path", "", ErrEmptyPath},
		{"too long", strings.Repeat("a", MaxPathLength+1), ErrPathTooLong},
		{"null byte", "box\x00.3mf", ErrInvalidCharacter},
		{"control character", "box\n.3mf", ErrInvalidCharacter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidatePath(tt.path)
			if tt.wantError == nil {
				if err != nil {
					t.Errorf("ValidatePath() unexpected error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantError) {
				t.Errorf("ValidatePath() error = %v, want %v", err, tt.wantError)
			}
		})
	}
}

func TestValidateMemberName(t *testing.T) {
	tests := []struct {
		name      string
		member    string
		want      string
		wantError error
	}{
		{"plain", "3D/3dmodel.model", "3D/3dmodel.model", nil},
		{"leading slash", "/Metadata/thumbnail.png", "Metadata/thumbnail.png", nil},
		{"content types", "[Content_Types].xml", "[Content_Types].xml", nil},
		{"parent segment", "3D/../../etc/passwd", "", ErrPathTraversal},
		{"leading parent", "../x", "", ErrPathTraversal},
		{"dot segment", "3D/./x.model", "", ErrPathTraversal},
		{"double slash", "3D//x.model", "", ErrPathTraversal},
		{"backslash", `3D\x.model`, "", ErrInvalidCharacter},
		{"directory", "3D/", "", ErrEmptyPath},
		{"root only", "/", "", ErrEmptyPath},
		{"empty", "", "", ErrEmptyPath},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateMemberName(tt.member)
			if tt.wantError != nil {
				if !errors.Is(err, tt.wantError) {
					t.Errorf("ValidateMemberName(%q) error = %v, want %v", tt.member, err, tt.wantError)
				}
				return
			}
			if err != nil {
				t.Fatalf("ValidateMemberName(%q) unexpected error = %v", tt.member, err)
			}
			if got != tt.want {
				t.Errorf("ValidateMemberName(%q) = %q, want %q", tt.member, got, tt.want)
			}
		})
	}
}

func TestDetectMediaType(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"), MediaTypePNG},
		{"jpeg", []byte{0xff, 0xd8, 0xff, 0xe0, 0x00, 0x10}, MediaTypeJPEG},
		{"gif87", []byte("GIF87a......"), MediaTypeGIF},
		{"gif89", []byte("GIF89a......"), MediaTypeGIF},
		{"bmp", []byte("BM\x00\x00\x00\x00"), MediaTypeBMP},
		{"tiff little endian", []byte{'I', 'I', 0x2a, 0x00, 0x08}, MediaTypeTIFF},
		{"tiff big endian", []byte{'M', 'M', 0x00, 0x2a, 0x00}, MediaTypeTIFF},
		{"webp", []byte("RIFF\x00\x00\x00\x00WEBPVP8 "), MediaTypeWebP},
		{"riff but not webp", []byte("RIFF\x00\x00\x00\x00WAVEfmt "), ""},
		{"webp marker without riff", []byte("XXXX\x00\x00\x00\x00WEBP"), ""},
		{"xml", []byte(`<?xml version="1.0"?><model/>`), ""},
		{"empty", nil, ""},
		{"truncated png", []byte{0x89, 'P', 'N'}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DetectMediaType(bytes.NewReader(tt.data))
			if err != nil {
				t.Fatalf("DetectMediaType() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("DetectMediaType() = %q, want %q", got, tt.want)
			}
		})
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk on fire") }

func TestDetectMediaType_ReadError(t *testing.T) {
	if _, err := DetectMediaType(failingReader{}); err == nil {
		t.Error("DetectMediaType should report read errors")
	}
}
