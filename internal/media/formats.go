package media

import (
	"path/filepath"
	"strings"
)

// supportedExtensions is the set of file extensions the player accepts.
// Decoder coverage is a backend property; the catalog and engine treat all of
// these identically.
var supportedExtensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".ogg":  true,
	".flac": true,
	".aiff": true,
	".wma":  true,
}

// SupportedExtensions returns the accepted extensions, dot-prefixed.
func SupportedExtensions() []string {
	exts := make([]string, 0, len(supportedExtensions))
	for ext := range supportedExtensions {
		exts = append(exts, ext)
	}
	return exts
}

// IsSupported reports whether a file's extension is in the supported set.
// The check is case-insensitive.
func IsSupported(path string) bool {
	return supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// DisplayName derives a human-readable name from a file path: the base name
// without its extension.
func DisplayName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
