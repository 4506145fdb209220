package utils

import (
	"mime"
	"os"
	"path/filepath"
	"strings"
)

// ListableImageExtensions are the extensions reported by the images list endpoint.
var ListableImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif", ".webp", ".svg"}

// FallbackImageExtensions are the extensions eligible as an image proxy fallback.
var FallbackImageExtensions = []string{".jpg", ".jpeg", ".png", ".gif"}

// DefaultImageContentType is served whenever the real type of an image is unknown.
const DefaultImageContentType = "image/jpeg"

// HasExtension reports whether name ends in one of exts, ignoring case.
func HasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// ListImages returns the regular files in dir whose extension is in exts,
// in directory-listing order.
func ListImages(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if HasExtension(entry.Name(), exts) {
			files = append(files, entry.Name())
		}
	}
	return files, nil
}

// ContentTypeForFile guesses an image content type from the file extension.
func ContentTypeForFile(name string) string {
	if ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(name))); strings.HasPrefix(ct, "image/") {
		return ct
	}
	return DefaultImageContentType
}

// EnsureDir creates dir (and parents) if it does not exist yet.
// It reports whether the directory had to be created.
func EnsureDir(dir string) (bool, error) {
	if info, err := os.Stat(dir); err == nil && info.IsDir() {
		return false, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return false, err
	}
	return true, nil
}

// EnsureParentDir creates the directory that will hold path.
func EnsureParentDir(path string) (bool, error) {
	return EnsureDir(filepath.Dir(path))
}
