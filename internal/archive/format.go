package archive

import (
	"path/filepath"
	"strings"
)

// Export formats.
const (
	FormatTarGz   = "tar.gz"
	FormatTarXz   = "tar.xz"
	FormatUnknown = "unknown"
)

// DetectFormat detects the archive format from the file extension.
func DetectFormat(path string) string {
	switch {
	case strings.HasSuffix(path, ".tar.xz"), strings.HasSuffix(path, ".txz"):
		return FormatTarXz
	case strings.HasSuffix(path, ".tar.gz"), strings.HasSuffix(path, ".tgz"):
		return FormatTarGz
	default:
		return FormatUnknown
	}
}

// IsSupportedFormat returns true if the file has a supported archive extension.
func IsSupportedFormat(path string) bool {
	return DetectFormat(path) != FormatUnknown
}

// PackageID derives the export directory name from a package file name by
// removing the .3mf extension.
func PackageID(pkgPath string) string {
	base := filepath.Base(pkgPath)
	if ext := filepath.Ext(base); strings.EqualFold(ext, ".3mf") {
		return strings.TrimSuffix(base, ext)
	}
	return base
}
