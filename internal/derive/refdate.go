package derive

import (
	"sort"
	"time"

	"github.com/jwalitptl/trialdata-api/internal/model"
)

// Resolver answers the single per-subject reference anchor used for all
// relative-day computation. It is a pure lookup: no fallback inference, no
// defaulting. A subject that appears more than once in the reference table is
// a structural input error; the resolver reports it and treats the subject's
// anchor as absent rather than silently picking a row.
type Resolver struct {
	anchors    map[string]*time.Time
	duplicates map[string]bool
}

// NewResolver builds a Resolver from the subject-level reference table.
func NewResolver(refs []model.ReferenceDate) *Resolver {
	r := &Resolver{
		anchors:    make(map[string]*time.Time, len(refs)),
		duplicates: make(map[string]bool),
	}
	for i := range refs {
		ref := refs[i]
		if _, seen := r.anchors[ref.SubjectID]; seen {
			r.duplicates[ref.SubjectID] = true
			continue
		}
		r.anchors[ref.SubjectID] = ref.AnchorDate
	}
	for subjectID := range r.duplicates {
		delete(r.anchors, subjectID)
	}
	return r
}

// Resolve returns the subject's anchor date. The second return is false when
// the subject is unknown, the anchor field is empty, or the subject was
// rejected for duplicate rows. Callers propagate absence; they never
// substitute a default date.
func (r *Resolver) Resolve(subjectID string) (*time.Time, bool) {
	anchor, ok := r.anchors[subjectID]
	if !ok || anchor == nil {
		return nil, false
	}
	return anchor, true
}

// IsDuplicate reports whether the subject had more than one reference row.
func (r *Resolver) IsDuplicate(subjectID string) bool {
	return r.duplicates[subjectID]
}

// Duplicates returns the rejected subject IDs in stable order.
func (r *Resolver) Duplicates() []string {
	out := make([]string, 0, len(r.duplicates))
	for subjectID := range r.duplicates {
		out = append(out, subjectID)
	}
	sort.Strings(out)
	return out
}
