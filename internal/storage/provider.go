// Package storage defines the vault file-system abstraction.
package storage

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/starford/raido/internal/models"
)

// Provider is the interface for vault file operations. All paths are
// relative to the vault root and use forward slashes.
type Provider interface {
	// List returns metadata for every .md file under dir.
	List(dir string) ([]models.NoteMetadata, error)
	// ListImages returns metadata for every image file under dir.
	ListImages(dir string) ([]models.ImageMetadata, error)
	// Read returns the raw bytes of the file at path.
	Read(path string) ([]byte, error)
	// Write atomically writes content to path.
	Write(path string, content []byte) error
	// Delete removes the file at path.
	Delete(path string) error
	// Trash moves the file at path into the vault recycle bin and
	// returns the path it now lives at.
	Trash(path string) (string, error)
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
	// Mtime returns the modification time of the file at path.
	Mtime(path string) (time.Time, error)
	// Exists reports whether a regular file exists at path.
	Exists(path string) bool
}

// IsImagePath reports whether path has a recognized image extension.
func IsImagePath(path string) bool {
	return imageExts[strings.ToLower(filepath.Ext(path))]
}

var imageExts = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".webp": true,
	".svg":  true,
	".bmp":  true,
}
