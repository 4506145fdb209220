package utils

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestHasExtension(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		exts     []string
		expected bool
	}{
		{"jpg listable", "cover.jpg", ListableImageExtensions, true},
		{"uppercase PNG", "COVER.PNG", ListableImageExtensions, true},
		{"webp listable", "art.webp", ListableImageExtensions, true},
		{"webp not a fallback", "art.webp", FallbackImageExtensions, false},
		{"svg not a fallback", "logo.svg", FallbackImageExtensions, false},
		{"text file", "notes.txt", ListableImageExtensions, false},
		{"no extension", "README", ListableImageExtensions, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := HasExtension(tt.file, tt.exts); got != tt.expected {
				t.Errorf("HasExtension(%q) = %v, want %v", tt.file, got, tt.expected)
			}
		})
	}
}

func TestListImages(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"b.png", "a.jpg", "notes.txt", "c.svg"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatalf("Failed to write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "nested.jpg"), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}

	files, err := ListImages(dir, ListableImageExtensions)
	if err != nil {
		t.Fatalf("ListImages failed: %v", err)
	}
	expected := []string{"a.jpg", "b.png", "c.svg"}
	if !reflect.DeepEqual(files, expected) {
		t.Errorf("Expected %v, got %v", expected, files)
	}

	files, err = ListImages(dir, FallbackImageExtensions)
	if err != nil {
		t.Fatalf("ListImages failed: %v", err)
	}
	expected = []string{"a.jpg", "b.png"}
	if !reflect.DeepEqual(files, expected) {
		t.Errorf("Expected %v, got %v", expected, files)
	}
}

func TestListImages_MissingDir(t *testing.T) {
	_, err := ListImages(filepath.Join(t.TempDir(), "missing"), ListableImageExtensions)
	if err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestContentTypeForFile(t *testing.T) {
	tests := []struct {
		file     string
		expected string
	}{
		{"a.png", "image/png"},
		{"a.gif", "image/gif"},
		{"a.JPG", "image/jpeg"},
		{"a.bin", DefaultImageContentType},
	}

	for _, tt := range tests {
		t.Run(tt.file, func(t *testing.T) {
			if got := ContentTypeForFile(tt.file); got != tt.expected {
				t.Errorf("ContentTypeForFile(%q) = %q, want %q", tt.file, got, tt.expected)
			}
		})
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "public", "images")

	created, err := EnsureDir(dir)
	if err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	if !created {
		t.Error("Expected directory to be created")
	}

	created, err = EnsureDir(dir)
	if err != nil {
		t.Fatalf("EnsureDir failed: %v", err)
	}
	if created {
		t.Error("Expected existing directory to be left alone")
	}
}

func TestEnsureParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cache", "index.db")

	created, err := EnsureParentDir(path)
	if err != nil {
		t.Fatalf("EnsureParentDir failed: %v", err)
	}
	if !created {
		t.Error("Expected parent directory to be created")
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		t.Errorf("Expected parent directory to exist: %v", err)
	}
}
