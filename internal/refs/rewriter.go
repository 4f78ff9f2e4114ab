package refs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/link"
)

// Request describes one single-line rewrite. Line is 1-based and
// ExpectedLine must hold the text the caller last saw there. Nil
// fields are left untouched.
type Request struct {
	NotePath     string
	Line         int
	ExpectedLine string
	// NewDisplay sets the caption or alt text; the empty string removes
	// the display segment.
	NewDisplay *string
	// NewWidth sets the rendered width; zero removes the whole size
	// decoration.
	NewWidth *int
	// NewHeight sets the rendered height; zero removes only the height.
	NewHeight *int
	// NewTarget repoints the link at another path.
	NewTarget *string
}

func (r Request) empty() bool {
	return r.NewDisplay == nil && r.NewWidth == nil && r.NewHeight == nil && r.NewTarget == nil
}

// Result reports a rewrite that wrote something.
type Result struct {
	Line string // new line content, CR included when the note uses CRLF
	// ConcurrentFallback is set when the live line no longer matched
	// ExpectedLine and the live version was rewritten instead.
	ConcurrentFallback bool
}

// Rewrite applies a request to exactly one line of one note. It returns
// (nil, nil) when the line already carries the requested values — a
// retry or a concurrent writer got there first. Bytes on the line
// outside the link span are preserved exactly, and the write replaces
// that line only, never other parts of the note.
func (e *Engine) Rewrite(ctx context.Context, req Request) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if req.empty() {
		return nil, nil
	}
	data, err := e.store.Read(req.NotePath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("refs: %s: %w", req.NotePath, apperr.ErrNotFound)
		}
		return nil, err
	}
	lines := strings.Split(string(data), "\n")
	if req.Line < 1 || req.Line > len(lines) {
		return nil, fmt.Errorf("refs: %s: line %d of %d: %w",
			req.NotePath, req.Line, len(lines), apperr.ErrLineOutOfRange)
	}
	idx := req.Line - 1

	live, hadCR := strings.CutSuffix(lines[idx], "\r")
	expected, _ := strings.CutSuffix(req.ExpectedLine, "\r")

	base := expected
	fallback := false
	if live != expected {
		// The line moved under the caller. When the live text already
		// carries every requested value the intent is satisfied and the
		// request is a duplicate. Otherwise rewrite the live line and
		// flag the fallback instead of silently dropping the edit.
		if m, ok := link.ParseLine(live); ok && alreadyApplied(m.Parts, req) {
			return nil, nil
		}
		base = live
		fallback = true
	}

	m, ok := link.ParseLine(base)
	if !ok {
		return nil, fmt.Errorf("refs: %s:%d: %w", req.NotePath, req.Line, apperr.ErrUnrecognizedLink)
	}
	parts, err := applyRequest(m.Parts, req)
	if err != nil {
		return nil, err
	}
	if link.SameValues(parts, m.Parts) {
		return nil, nil
	}
	m.Parts = parts
	rebuilt, err := m.Rebuild()
	if err != nil {
		return nil, err
	}
	if rebuilt == base {
		return nil, nil
	}

	if hadCR {
		rebuilt += "\r"
	}
	lines[idx] = rebuilt
	if err := e.store.Write(req.NotePath, []byte(strings.Join(lines, "\n"))); err != nil {
		return nil, err
	}
	if fallback {
		e.logger.Warn("rewrite: expected line was stale, rewrote live text",
			slog.String("path", req.NotePath), slog.Int("line", req.Line))
	}
	return &Result{Line: rebuilt, ConcurrentFallback: fallback}, nil
}

// applyRequest returns a copy of parts with the requested fields
// changed. Raw source forms are dropped for any field that changes so
// the serializer re-encodes it.
func applyRequest(p link.Parts, req Request) (link.Parts, error) {
	if req.NewTarget != nil && *req.NewTarget != p.Target {
		p.Target = *req.NewTarget
		p.RawTarget = ""
	}
	if req.NewDisplay != nil {
		switch d := *req.NewDisplay; {
		case d == "":
			p.Display = ""
			p.RawDisplay = ""
			p.HasDisplay = false
		case d != p.Display || !p.HasDisplay:
			p.Display = d
			p.RawDisplay = ""
			p.HasDisplay = true
		}
	}
	if req.NewWidth != nil {
		w := *req.NewWidth
		if w < 0 || w > link.MaxDimension {
			return p, fmt.Errorf("refs: width %d: %w", w, apperr.ErrInvalidSize)
		}
		p.Width = w
		// A bare width always drops a previous height.
		if w == 0 || req.NewHeight == nil {
			p.Height = 0
		}
	}
	if req.NewHeight != nil {
		h := *req.NewHeight
		if h < 0 || h > link.MaxDimension {
			return p, fmt.Errorf("refs: height %d: %w", h, apperr.ErrInvalidSize)
		}
		if h > 0 && p.Width == 0 && p.Dialect != link.DialectHTML {
			return p, fmt.Errorf("refs: height without width: %w", apperr.ErrInvalidSize)
		}
		p.Height = h
	}
	if req.NewWidth != nil || req.NewHeight != nil {
		// A non-numeric width/height the parser parked among the other
		// attributes would otherwise sit next to the new value.
		p.DropParkedSize()
	}
	return p, nil
}

// alreadyApplied reports whether parts already carry every value the
// request asks for.
func alreadyApplied(p link.Parts, req Request) bool {
	if req.NewTarget != nil && p.Target != *req.NewTarget {
		return false
	}
	if req.NewDisplay != nil {
		if p.Display != *req.NewDisplay {
			return false
		}
		// Clearing asks for the segment to go, not just for empty text:
		// an explicit empty caption like ![[x|]] still needs the write.
		if *req.NewDisplay == "" && p.HasDisplay {
			return false
		}
	}
	if req.NewWidth != nil {
		if p.Width != *req.NewWidth {
			return false
		}
		if *req.NewWidth > 0 && req.NewHeight == nil && p.Height != 0 {
			return false
		}
	}
	if req.NewHeight != nil && p.Height != *req.NewHeight {
		return false
	}
	if (req.NewWidth != nil || req.NewHeight != nil) && p.ParkedSize() {
		return false
	}
	return true
}
