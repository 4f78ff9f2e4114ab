package api

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/raido/internal/history"
	"github.com/starford/raido/internal/refs"
)

// ReferenceDTO is one located image reference in API responses. The
// parsed fields are a convenience for UIs; RawLine is what the caller
// must echo back as expected_line when rewriting.
type ReferenceDTO struct {
	NotePath string `json:"note_path"`
	Line     int    `json:"line"`
	RawLine  string `json:"raw_line"`
	Dialect  string `json:"dialect"`
	Target   string `json:"target"`
	Display  string `json:"display,omitempty"`
	HasAlt   bool   `json:"has_display"`
	Width    int    `json:"width,omitempty"`
	Height   int    `json:"height,omitempty"`
}

func toReferenceDTO(r refs.Reference) ReferenceDTO {
	p := r.Match.Parts
	return ReferenceDTO{
		NotePath: r.NotePath,
		Line:     r.Line,
		RawLine:  r.RawLine,
		Dialect:  p.Dialect.String(),
		Target:   p.Target,
		Display:  p.Display,
		HasAlt:   p.HasDisplay,
		Width:    p.Width,
		Height:   p.Height,
	}
}

func toReferenceDTOs(in []refs.Reference) []ReferenceDTO {
	out := make([]ReferenceDTO, len(in))
	for i, r := range in {
		out[i] = toReferenceDTO(r)
	}
	return out
}

// ReferencesResponse wraps a reference listing.
type ReferencesResponse struct {
	References []ReferenceDTO `json:"references"`
}

// RewriteRequest is the request body for POST /api/rewrite. Absent
// fields are left untouched; Display "" clears the caption, Size ""
// clears the size decoration. Size uses the "W" or "WxH" grammar.
type RewriteRequest struct {
	NotePath     string  `json:"note_path"`
	Line         int     `json:"line"`
	ExpectedLine string  `json:"expected_line"`
	Display      *string `json:"display,omitempty"`
	Size         *string `json:"size,omitempty"`
	LockAspect   bool    `json:"lock_aspect,omitempty"`
	Target       *string `json:"target,omitempty"`
}

// Validate validates the rewrite request.
func (r RewriteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.NotePath, validation.Required),
		validation.Field(&r.Line, validation.Required, validation.Min(1)),
		validation.Field(&r.ExpectedLine, validation.Required),
	)
}

// RewriteResponse reports a rewrite outcome. Changed false means the
// line already held the requested values and nothing was written.
type RewriteResponse struct {
	Changed            bool   `json:"changed"`
	Line               string `json:"line,omitempty"`
	ConcurrentFallback bool   `json:"concurrent_fallback,omitempty"`
}

// RenameRequest is the request body for POST /api/rename.
type RenameRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Validate validates the rename request.
func (r RenameRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.From, validation.Required),
		validation.Field(&r.To, validation.Required),
	)
}

// NoteResultDTO is the per-note outcome of a rename propagation.
type NoteResultDTO struct {
	NotePath  string `json:"note_path"`
	Changed   int    `json:"changed"`
	Unchanged int    `json:"unchanged"`
	Failed    int    `json:"failed"`
	Error     string `json:"error,omitempty"`
}

// RenameResponse wraps rename propagation results with batch counts.
type RenameResponse struct {
	Results   []NoteResultDTO `json:"results"`
	Changed   int             `json:"changed"`
	Unchanged int             `json:"unchanged"`
	Failed    int             `json:"failed"`
}

func toRenameResponse(results []refs.NoteResult) RenameResponse {
	resp := RenameResponse{Results: make([]NoteResultDTO, len(results))}
	for i, r := range results {
		dto := NoteResultDTO{
			NotePath:  r.NotePath,
			Changed:   r.Changed,
			Unchanged: r.Unchanged,
			Failed:    r.Failed,
		}
		if r.Err != nil {
			dto.Error = r.Err.Error()
		}
		resp.Results[i] = dto
	}
	resp.Changed, resp.Unchanged, resp.Failed = refs.Summarize(results)
	return resp
}

// ResolveRequest is the request body for POST /api/resolve.
type ResolveRequest struct {
	Path   string `json:"path"`
	Name   string `json:"name,omitempty"`
	Policy string `json:"policy"`
}

// Validate validates the resolve request.
func (r ResolveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Policy, validation.Required,
			validation.In(string(refs.PolicyFirst), string(refs.PolicyLatest),
				string(refs.PolicyPrompt), string(refs.PolicyAll))),
	)
}

// ResolveResponse carries the policy outcome. Exactly one of the
// fields is set; NeedsChoice is delivered with HTTP 300.
type ResolveResponse struct {
	Selected    *ReferenceDTO  `json:"selected,omitempty"`
	NeedsChoice []ReferenceDTO `json:"needs_choice,omitempty"`
	All         []ReferenceDTO `json:"all,omitempty"`
}

// TrashResponse reports a trashed image and its now-dangling references.
type TrashResponse struct {
	Trashed  string         `json:"trashed"`
	Dangling []ReferenceDTO `json:"dangling"`
}

// ImageMetaResponse reports the decoded natural size of one image.
type ImageMetaResponse struct {
	Path   string `json:"path"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Hash   string `json:"hash,omitempty"`
}

// HistoryResponse wraps an operation-log listing.
type HistoryResponse struct {
	Operations []history.Operation `json:"operations"`
}

// UploadResponse is returned after a successful image upload.
type UploadResponse struct {
	Path string `json:"path"`
	Size int64  `json:"size"`
}
