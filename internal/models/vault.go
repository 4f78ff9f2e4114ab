// Package models defines the domain types for Raido.
package models

import "time"

// NoteMetadata is a lightweight representation of a Markdown file
// returned by list operations.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ImageMetadata describes one image file in the vault.
// Hash is the hex MD5 of the file content; it is optional and an empty
// value never fails an operation.
type ImageMetadata struct {
	Path      string    `json:"path"`
	Hash      string    `json:"hash,omitempty"`
	Size      int64     `json:"size"`
	UpdatedAt time.Time `json:"updated_at"`
}
