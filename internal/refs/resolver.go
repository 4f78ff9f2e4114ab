package refs

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Policy decides which reference wins when an image is referenced from
// several places.
type Policy string

const (
	// PolicyFirst picks the first reference in scan order.
	PolicyFirst Policy = "first"
	// PolicyLatest picks the reference in the most recently modified note.
	PolicyLatest Policy = "latest"
	// PolicyPrompt defers the choice to the caller.
	PolicyPrompt Policy = "prompt"
	// PolicyAll selects every reference.
	PolicyAll Policy = "all"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	switch p {
	case PolicyFirst, PolicyLatest, PolicyPrompt, PolicyAll:
		return true
	}
	return false
}

// Outcome is the result of resolving a set of references. Exactly one
// of the fields is populated: Selected for a single winner, NeedsChoice
// when the caller must pick, All when every reference was selected. A
// resolve over zero references leaves all three empty.
type Outcome struct {
	Selected    *Reference  `json:"selected,omitempty"`
	NeedsChoice []Reference `json:"needs_choice,omitempty"`
	All         []Reference `json:"all,omitempty"`
}

// Resolve applies a selection policy to references, which must be in
// scan order. It never blocks waiting for input: PolicyPrompt reports
// the candidates back through NeedsChoice.
func (e *Engine) Resolve(_ context.Context, references []Reference, policy Policy) (Outcome, error) {
	if !policy.Valid() {
		return Outcome{}, fmt.Errorf("refs: unknown policy %q", policy)
	}
	if len(references) == 0 {
		return Outcome{}, nil
	}
	if len(references) == 1 {
		// A single reference needs no arbitration, whatever the policy.
		return Outcome{Selected: &references[0]}, nil
	}
	switch policy {
	case PolicyFirst:
		return Outcome{Selected: &references[0]}, nil
	case PolicyLatest:
		return Outcome{Selected: e.latest(references)}, nil
	case PolicyPrompt:
		return Outcome{NeedsChoice: references}, nil
	default: // PolicyAll
		return Outcome{All: references}, nil
	}
}

// latest picks the reference whose note was modified most recently,
// falling back to scan order on ties or stat failures.
func (e *Engine) latest(references []Reference) *Reference {
	mtimes := make(map[string]time.Time)
	for _, r := range references {
		if _, ok := mtimes[r.NotePath]; ok {
			continue
		}
		mt, err := e.store.Mtime(r.NotePath)
		if err != nil {
			e.logger.Warn("resolve: mtime failed", slog.String("path", r.NotePath), slog.String("error", err.Error()))
			mt = time.Time{}
		}
		mtimes[r.NotePath] = mt
	}
	best := 0
	for i := 1; i < len(references); i++ {
		if mtimes[references[i].NotePath].After(mtimes[references[best].NotePath]) {
			best = i
		}
	}
	return &references[best]
}
