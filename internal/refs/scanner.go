package refs

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/starford/raido/internal/link"
)

// FindReferences scans every note in the vault for links to the image
// at targetPath (or written with the bare name targetName) and returns
// them in file-then-line order. At most one reference per line is
// reported. Cancellation is honored between notes, never mid-note.
func (e *Engine) FindReferences(ctx context.Context, targetPath, targetName string) ([]Reference, error) {
	metas, err := e.store.List("")
	if err != nil {
		return nil, fmt.Errorf("refs: list notes: %w", err)
	}
	sort.Slice(metas, func(i, j int) bool { return metas[i].Path < metas[j].Path })

	var out []Reference
	for _, meta := range metas {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		data, err := e.store.Read(meta.Path)
		if err != nil {
			// The note vanished between listing and reading; a scan is
			// read-only, so skip it rather than fail the batch.
			e.logger.Warn("scan: read failed", slog.String("path", meta.Path), slog.String("error", err.Error()))
			continue
		}
		out = append(out, scanNote(meta.Path, string(data), targetPath, targetName)...)
	}
	return out, nil
}

// scanNote collects references line by line within a single note.
func scanNote(notePath, content, targetPath, targetName string) []Reference {
	var out []Reference
	lines := strings.Split(content, "\n")
	for i, raw := range lines {
		body := strings.TrimSuffix(raw, "\r")
		m, ok := link.ParseLine(body)
		if !ok {
			continue
		}
		if !TargetMatches(m.Parts.Target, targetPath, targetName) {
			continue
		}
		out = append(out, Reference{
			NotePath: notePath,
			Line:     i + 1,
			RawLine:  raw,
			Match:    m,
		})
	}
	return out
}
