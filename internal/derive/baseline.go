package derive

import (
	"time"

	"github.com/jwalitptl/trialdata-api/internal/model"
)

// SelectBaseline picks the single authoritative baseline for one
// (subject, parameter) group and returns its position in the group. Eligible
// observations are dated on or before the anchor and carry a numeric value;
// among them the latest date wins, and same-day duplicates resolve to the
// largest input sequence (last recorded wins). The position identifies the
// baseline even if sequence numbers repeat within the group. Returns false
// when no eligible observation exists, including when the anchor itself is
// absent.
func SelectBaseline(group []model.Observation, anchor *time.Time) (int, bool) {
	if anchor == nil {
		return -1, false
	}

	chosen := -1
	for i := range group {
		obs := &group[i]
		if obs.ObsDate == nil || obs.Value == nil {
			continue
		}
		if !onOrBefore(*obs.ObsDate, *anchor) {
			continue
		}
		if chosen < 0 || laterBaseline(obs, &group[chosen]) {
			chosen = i
		}
	}

	return chosen, chosen >= 0
}

// laterBaseline reports whether a outranks b under the baseline tie-break:
// later calendar date first, then larger input sequence. Equal sequence
// numbers fall through to input order, a arriving after b.
func laterBaseline(a, b *model.Observation) bool {
	ad, bd := dateOnly(*a.ObsDate), dateOnly(*b.ObsDate)
	if !ad.Equal(bd) {
		return ad.After(bd)
	}
	return a.Seq >= b.Seq
}
