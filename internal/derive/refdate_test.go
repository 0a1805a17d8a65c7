package derive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/trialdata-api/internal/model"
)

func TestResolverLookup(t *testing.T) {
	refs := []model.ReferenceDate{
		{SubjectID: "S1", AnchorDate: datePtr(2024, time.January, 10)},
		{SubjectID: "S2", AnchorDate: nil},
	}

	r := NewResolver(refs)

	anchor, ok := r.Resolve("S1")
	require.True(t, ok)
	assert.Equal(t, date(2024, time.January, 10), *anchor)

	_, ok = r.Resolve("S2")
	assert.False(t, ok, "empty anchor field resolves to absent")

	_, ok = r.Resolve("S3")
	assert.False(t, ok, "unknown subject resolves to absent, never a default")
}

func TestResolverDuplicateAnchorIsStructural(t *testing.T) {
	refs := []model.ReferenceDate{
		{SubjectID: "S1", AnchorDate: datePtr(2024, time.January, 10)},
		{SubjectID: "S1", AnchorDate: datePtr(2024, time.February, 1)},
		{SubjectID: "S2", AnchorDate: datePtr(2024, time.March, 1)},
	}

	r := NewResolver(refs)

	_, ok := r.Resolve("S1")
	assert.False(t, ok, "duplicate rows must not silently pick one")
	assert.True(t, r.IsDuplicate("S1"))
	assert.Equal(t, []string{"S1"}, r.Duplicates())

	anchor, ok := r.Resolve("S2")
	require.True(t, ok)
	assert.Equal(t, date(2024, time.March, 1), *anchor)
}
