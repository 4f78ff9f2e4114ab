// Package refs locates image references across vault notes and
// rewrites them in place, one line at a time. A reference is never
// cached: every operation starts from a fresh scan of the note text.
package refs

import (
	"log/slog"
	"strings"

	"github.com/starford/raido/internal/link"
	"github.com/starford/raido/internal/storage"
)

// Reference is one image link found in a note.
type Reference struct {
	NotePath string     `json:"note_path"`
	Line     int        `json:"line"` // 1-based
	RawLine  string     `json:"raw_line"`
	Match    link.Match `json:"-"`
}

// Engine coordinates reference scans and line rewrites over a vault.
type Engine struct {
	store  storage.Provider
	logger *slog.Logger
}

// NewEngine creates an engine over the given vault storage.
func NewEngine(store storage.Provider, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{store: store, logger: logger}
}

// TargetMatches reports whether a link target refers to the image at
// path (vault-relative) or named name. A target matches on exact path
// equality or, for links written with a bare file name, on terminal
// path-segment equality.
func TargetMatches(target, path, name string) bool {
	if target == "" {
		return false
	}
	if target == path {
		return true
	}
	return name != "" && baseName(target) == name
}

func baseName(p string) string {
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		return p[i+1:]
	}
	return p
}
