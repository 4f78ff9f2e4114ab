package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/raido/internal/apperr"
	"github.com/starford/raido/internal/imagemeta"
	"github.com/starford/raido/internal/link"
	"github.com/starford/raido/internal/refs"
	"github.com/starford/raido/internal/refsvc"
)

// Handler holds API route handlers.
type Handler struct {
	svc *refsvc.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *refsvc.Service) *Handler {
	return &Handler{svc: svc}
}

// imagePath extracts the image path from the URL wildcard.
// Supports encoded slashes from OpenAPI clients (e.g. img%2Fcat.png).
func imagePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// errStatus maps engine errors onto HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, apperr.ErrNotFound), errors.Is(err, apperr.ErrLineOutOfRange):
		return http.StatusNotFound
	case errors.Is(err, apperr.ErrUnrecognizedLink):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperr.ErrConflict), errors.Is(err, apperr.ErrConcurrentEdit):
		return http.StatusConflict
	case errors.Is(err, apperr.ErrInvalidSize), errors.Is(err, apperr.ErrInvalidLink),
		errors.Is(err, apperr.ErrUnsupportedFormat):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// ListReferences handles GET /api/references?path=&name=&sort=.
// sort=latest orders by the referencing note's last-modified time,
// most recently touched first.
func (h *Handler) ListReferences(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	name := q.Get("name")
	if path == "" && name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path or name is required"))
		return
	}
	if name == "" {
		name = filepath.Base(path)
	}

	references, err := h.svc.FindReferences(r.Context(), path, name, q.Get("sort") == "latest")
	if err != nil {
		writeJSON(w, errStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ReferencesResponse{References: toReferenceDTOs(references)})
}

// Rewrite handles POST /api/rewrite.
func (h *Handler) Rewrite(w http.ResponseWriter, r *http.Request) {
	var body RewriteRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := body.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	req := refs.Request{
		NotePath:     body.NotePath,
		Line:         body.Line,
		ExpectedLine: body.ExpectedLine,
		NewDisplay:   body.Display,
		NewTarget:    body.Target,
	}
	if body.Size != nil {
		if err := h.applySize(r.Context(), &req, body); err != nil {
			writeJSON(w, errStatus(err), errorBody(err.Error()))
			return
		}
	}

	result, err := h.svc.Rewrite(r.Context(), req)
	if err != nil {
		writeJSON(w, errStatus(err), errorBody(err.Error()))
		return
	}
	if result == nil {
		writeJSON(w, http.StatusOK, RewriteResponse{Changed: false})
		return
	}
	writeJSON(w, http.StatusOK, RewriteResponse{
		Changed:            true,
		Line:               result.Line,
		ConcurrentFallback: result.ConcurrentFallback,
	})
}

// applySize translates the request's size string into width/height
// fields. An empty string clears the decoration. With lock_aspect on
// and a bare width, the height is recomputed from the image's natural
// aspect ratio.
func (h *Handler) applySize(ctx context.Context, req *refs.Request, body RewriteRequest) error {
	spec := *body.Size
	if spec == "" {
		zero := 0
		req.NewWidth = &zero
		return nil
	}
	w, hgt, err := link.ParseSizeSpec(spec)
	if err != nil {
		return err
	}
	req.NewWidth = &w
	if hgt > 0 {
		req.NewHeight = &hgt
		return nil
	}
	if body.LockAspect {
		target := ""
		if m, ok := link.ParseLine(body.ExpectedLine); ok {
			target = m.Parts.Target
		}
		if natW, natH, sizeErr := h.svc.NaturalSize(ctx, target); sizeErr == nil {
			if fit := imagemeta.FitHeight(w, natW, natH); fit > 0 {
				req.NewHeight = &fit
			}
		}
	}
	return nil
}

// Rename handles POST /api/rename.
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	var body RenameRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := body.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	results, err := h.svc.Rename(r.Context(), body.From, body.To)
	if err != nil {
		writeJSON(w, errStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, toRenameResponse(results))
}

// Resolve handles POST /api/resolve. When the policy defers to the
// caller, the candidate list is returned with 300 Multiple Choices.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var body ResolveRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if err := body.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	name := body.Name
	if name == "" {
		name = filepath.Base(body.Path)
	}

	references, err := h.svc.FindReferences(r.Context(), body.Path, name, false)
	if err != nil {
		writeJSON(w, errStatus(err), errorBody(err.Error()))
		return
	}
	outcome, err := h.svc.Resolve(r.Context(), references, refs.Policy(body.Policy))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	resp := ResolveResponse{}
	status := http.StatusOK
	switch {
	case outcome.Selected != nil:
		dto := toReferenceDTO(*outcome.Selected)
		resp.Selected = &dto
	case outcome.NeedsChoice != nil:
		resp.NeedsChoice = toReferenceDTOs(outcome.NeedsChoice)
		status = http.StatusMultipleChoices
	default:
		resp.All = toReferenceDTOs(outcome.All)
	}
	writeJSON(w, status, resp)
}

// TrashImage handles DELETE /api/images/*.
func (h *Handler) TrashImage(w http.ResponseWriter, r *http.Request) {
	path := imagePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("image path is required"))
		return
	}
	trashed, dangling, err := h.svc.TrashImage(r.Context(), path)
	if err != nil {
		writeJSON(w, errStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, TrashResponse{
		Trashed:  trashed,
		Dangling: toReferenceDTOs(dangling),
	})
}

// ImageMeta handles GET /api/images/*: content identity plus the
// natural pixel size where a decoder exists.
func (h *Handler) ImageMeta(w http.ResponseWriter, r *http.Request) {
	path := imagePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("image path is required"))
		return
	}
	width, height, err := h.svc.NaturalSize(r.Context(), path)
	if err != nil && !errors.Is(err, apperr.ErrUnsupportedFormat) {
		writeJSON(w, errStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, ImageMetaResponse{
		Path:   path,
		Width:  width,
		Height: height,
		Hash:   h.svc.ImageHash(path),
	})
}

// History handles GET /api/history?path=&limit=.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	path := q.Get("path")
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	limit, _ := strconv.Atoi(q.Get("limit"))

	ops, err := h.svc.History(r.Context(), path, limit)
	if err != nil {
		writeJSON(w, errStatus(err), errorBody(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Operations: ops})
}
