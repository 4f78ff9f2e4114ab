package refs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// propagateWorkers bounds how many notes are rewritten concurrently
// during a rename.
const propagateWorkers = 8

// NoteResult is the outcome of rename propagation within one note.
type NoteResult struct {
	NotePath  string `json:"note_path"`
	Changed   int    `json:"changed"`
	Unchanged int    `json:"unchanged"`
	Failed    int    `json:"failed"`
	Err       error  `json:"-"`
}

// Summarize folds per-note results into batch counts.
func Summarize(results []NoteResult) (changed, unchanged, failed int) {
	for _, r := range results {
		changed += r.Changed
		unchanged += r.Unchanged
		failed += r.Failed
	}
	return changed, unchanged, failed
}

// PropagateRename rewrites every reference to oldPath so it points at
// newPath. Notes are processed independently and concurrently: a
// failure inside one note never aborts the others, and the returned
// slice holds one entry per note in scan order. Only the link target
// changes — display text, sizes, and surrounding bytes stay put.
func (e *Engine) PropagateRename(ctx context.Context, oldPath, newPath string) ([]NoteResult, error) {
	oldName := baseName(oldPath)
	references, err := e.FindReferences(ctx, oldPath, oldName)
	if err != nil {
		return nil, err
	}
	if len(references) == 0 {
		return nil, nil
	}

	var order []string
	grouped := make(map[string][]Reference)
	for _, r := range references {
		if _, ok := grouped[r.NotePath]; !ok {
			order = append(order, r.NotePath)
		}
		grouped[r.NotePath] = append(grouped[r.NotePath], r)
	}

	results := make([]NoteResult, len(order))
	g := &errgroup.Group{}
	g.SetLimit(propagateWorkers)
	for i, notePath := range order {
		g.Go(func() error {
			results[i] = e.renameInNote(ctx, notePath, grouped[notePath], oldPath, oldName, newPath)
			return nil
		})
	}
	_ = g.Wait() // workers never return errors; failures live in results

	e.logResults(oldPath, newPath, results)
	return results, nil
}

func (e *Engine) renameInNote(ctx context.Context, notePath string, noteRefs []Reference, oldPath, oldName, newPath string) NoteResult {
	res := NoteResult{NotePath: notePath}
	var errs []error
	for _, ref := range noteRefs {
		if err := ctx.Err(); err != nil {
			res.Failed++
			errs = append(errs, err)
			continue
		}
		target := retarget(ref.Match.Parts.Target, oldPath, oldName, newPath)
		out, err := e.Rewrite(ctx, Request{
			NotePath:     notePath,
			Line:         ref.Line,
			ExpectedLine: ref.RawLine,
			NewTarget:    &target,
		})
		switch {
		case err != nil:
			res.Failed++
			errs = append(errs, fmt.Errorf("line %d: %w", ref.Line, err))
		case out == nil:
			res.Unchanged++
		default:
			res.Changed++
		}
	}
	res.Err = errors.Join(errs...)
	return res
}

// retarget maps one link target onto the renamed path, preserving how
// the note spelled the link: full-path links get the full new path,
// bare-name links keep their own directory prefix and only swap the
// file name.
func retarget(target, oldPath, oldName, newPath string) string {
	if target == oldPath {
		return newPath
	}
	if baseName(target) == oldName {
		if i := len(target) - len(oldName); i > 0 {
			return target[:i] + baseName(newPath)
		}
		return baseName(newPath)
	}
	return newPath
}

func (e *Engine) logResults(oldPath, newPath string, results []NoteResult) {
	changed, unchanged, failed := Summarize(results)
	e.logger.Info("rename: propagated",
		slog.String("from", oldPath),
		slog.String("to", newPath),
		slog.Int("notes", len(results)),
		slog.Int("changed", changed),
		slog.Int("unchanged", unchanged),
		slog.Int("failed", failed))
}
