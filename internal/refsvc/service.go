// Package refsvc coordinates the reference engine with storage, the
// operation log, and the event broker. It is the layer API surfaces
// talk to; the engine itself stays free of logging-to-history concerns.
package refsvc

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/checksum"
	"github.com/starford/raido/internal/history"
	"github.com/starford/raido/internal/imagemeta"
	"github.com/starford/raido/internal/link"
	"github.com/starford/raido/internal/refs"
	"github.com/starford/raido/internal/sse"
	"github.com/starford/raido/internal/storage"
)

// Service wires the engine to its collaborators. The history recorder
// and broker are optional: one-shot CLI commands run without either.
type Service struct {
	store   storage.Provider
	engine  *refs.Engine
	history history.Recorder
	broker  *sse.Broker
	logger  *slog.Logger
}

// NewService creates a service over the given collaborators.
func NewService(store storage.Provider, engine *refs.Engine, rec history.Recorder, broker *sse.Broker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, engine: engine, history: rec, broker: broker, logger: logger}
}

// FindReferences scans the vault for references to the image. With
// latestFirst the result is re-sorted so the most recently touched note
// comes first; the underlying scan order (file then line) is kept
// otherwise, and within one note lines stay ascending either way.
func (s *Service) FindReferences(ctx context.Context, targetPath, targetName string, latestFirst bool) ([]refs.Reference, error) {
	references, err := s.engine.FindReferences(ctx, targetPath, targetName)
	if err != nil {
		return nil, err
	}
	if latestFirst && len(references) > 1 {
		mtimes := make(map[string]time.Time)
		for _, r := range references {
			if _, ok := mtimes[r.NotePath]; ok {
				continue
			}
			mt, mtErr := s.store.Mtime(r.NotePath)
			if mtErr != nil {
				mt = time.Time{}
			}
			mtimes[r.NotePath] = mt
		}
		sort.SliceStable(references, func(i, j int) bool {
			return mtimes[references[i].NotePath].After(mtimes[references[j].NotePath])
		})
	}
	return references, nil
}

// Rewrite applies one line rewrite. A nil result means the line already
// held the requested values; nothing is logged or published for no-ops,
// so retried saves never produce duplicate history entries.
func (s *Service) Rewrite(ctx context.Context, req refs.Request) (*refs.Result, error) {
	result, err := s.engine.Rewrite(ctx, req)
	if err != nil || result == nil {
		return result, err
	}

	imagePath := imagePathOf(result.Line, req)
	s.record(history.Operation{
		Kind:      classify(req),
		ImagePath: imagePath,
		ImageHash: s.ImageHash(imagePath),
		NotePath:  req.NotePath,
		Line:      req.Line,
		OldLine:   req.ExpectedLine,
		NewLine:   result.Line,
	})
	s.publish(sse.Event{Type: sse.EventReferenceRewritten, Data: map[string]any{
		"note": req.NotePath,
		"line": req.Line,
		"path": imagePath,
	}})
	return result, nil
}

// Rename moves the image file and propagates the path change into
// every referencing note. The per-note results carry partial failures;
// the move itself failing aborts before any note is touched.
func (s *Service) Rename(ctx context.Context, oldPath, newPath string) ([]refs.NoteResult, error) {
	hash := s.ImageHash(oldPath)
	if s.store.Exists(oldPath) {
		if err := s.store.Move(oldPath, newPath); err != nil {
			return nil, s.mapErr(err)
		}
	}

	results, err := s.engine.PropagateRename(ctx, oldPath, newPath)
	if err != nil {
		return results, err
	}

	changed, _, _ := refs.Summarize(results)
	if changed > 0 || s.store.Exists(newPath) {
		s.record(history.Operation{
			Kind:      history.KindRename,
			ImagePath: newPath,
			ImageHash: hash,
			OldLine:   oldPath,
			NewLine:   newPath,
		})
		s.publish(sse.Event{Type: sse.EventImageRenamed, Data: map[string]any{
			"from": oldPath,
			"to":   newPath,
		}})
	}
	return results, nil
}

// PropagateRename rewrites references for a move that already happened
// on disk (watcher-driven): only the notes change.
func (s *Service) PropagateRename(ctx context.Context, oldPath, newPath string) ([]refs.NoteResult, error) {
	results, err := s.engine.PropagateRename(ctx, oldPath, newPath)
	if err != nil {
		return results, err
	}
	if changed, _, _ := refs.Summarize(results); changed > 0 {
		s.record(history.Operation{
			Kind:      history.KindRename,
			ImagePath: newPath,
			ImageHash: s.ImageHash(newPath),
			OldLine:   oldPath,
			NewLine:   newPath,
		})
		s.publish(sse.Event{Type: sse.EventImageRenamed, Data: map[string]any{
			"from": oldPath,
			"to":   newPath,
		}})
	}
	return results, nil
}

// Resolve applies a multi-reference selection policy.
func (s *Service) Resolve(ctx context.Context, references []refs.Reference, policy refs.Policy) (refs.Outcome, error) {
	return s.engine.Resolve(ctx, references, policy)
}

// TrashImage moves the image into the vault recycle bin and returns
// where it went along with the references that now dangle. The
// references are reported, not rewritten: restoring from the bin must
// find them intact.
func (s *Service) TrashImage(ctx context.Context, path string) (string, []refs.Reference, error) {
	hash := s.ImageHash(path)
	trashed, err := s.store.Trash(path)
	if err != nil {
		return "", nil, s.mapErr(err)
	}
	dangling, err := s.engine.FindReferences(ctx, path, filepath.Base(path))
	if err != nil {
		s.logger.Warn("trash: dangling scan failed", slog.String("path", path), slog.String("error", err.Error()))
		dangling = nil
	}
	s.record(history.Operation{
		Kind:      history.KindTrash,
		ImagePath: path,
		ImageHash: hash,
		NewLine:   trashed,
	})
	s.publish(sse.Event{Type: sse.EventImageTrashed, Data: map[string]any{
		"path":    path,
		"trashed": trashed,
	}})
	return trashed, dangling, nil
}

// History returns the operation log for one image, matched by path and,
// when the file still exists, by content hash so renames stay linked.
func (s *Service) History(_ context.Context, imagePath string, limit int) ([]history.Operation, error) {
	if s.history == nil {
		return nil, nil
	}
	return s.history.ByImage(imagePath, s.ImageHash(imagePath), limit)
}

// NaturalSize reads the pixel dimensions of a vault image.
func (s *Service) NaturalSize(_ context.Context, path string) (int, int, error) {
	if !imagemeta.Decodable(filepath.Ext(path)) {
		return 0, 0, apperr.ErrUnsupportedFormat
	}
	data, err := s.store.Read(path)
	if err != nil {
		return 0, 0, s.mapErr(err)
	}
	return imagemeta.NaturalSize(data)
}

// ImageHash returns the hex MD5 of the image content, or empty when the
// file cannot be read. Identity is optional everywhere; a hash-less
// image never fails an operation.
func (s *Service) ImageHash(path string) string {
	data, err := s.store.Read(path)
	if err != nil {
		return ""
	}
	return checksum.MD5(data)
}

func (s *Service) record(op history.Operation) {
	if s.history == nil {
		return
	}
	if err := s.history.Append(op); err != nil {
		s.logger.Warn("history: append failed",
			slog.String("kind", op.Kind), slog.String("error", err.Error()))
	}
}

func (s *Service) publish(ev sse.Event) {
	if s.broker != nil {
		s.broker.PublishChange(ev)
	}
}

func (s *Service) mapErr(err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return apperr.ErrNotFound
	}
	return err
}

// classify names the operation kind a request represents. Retargeting
// wins over display edits when a request carries both.
func classify(req refs.Request) string {
	switch {
	case req.NewTarget != nil:
		return history.KindRetarget
	case req.NewWidth != nil || req.NewHeight != nil:
		return history.KindDisplaySize
	default:
		return history.KindDisplayText
	}
}

// imagePathOf recovers the image path a rewritten line points at.
func imagePathOf(newLine string, req refs.Request) string {
	if m, ok := link.ParseLine(newLine); ok {
		return m.Parts.Target
	}
	if req.NewTarget != nil {
		return *req.NewTarget
	}
	return ""
}
