package derive

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func datePtr(y int, m time.Month, d int) *time.Time {
	t := date(y, m, d)
	return &t
}

func TestStudyDay(t *testing.T) {
	anchor := datePtr(2024, time.January, 10)

	tests := []struct {
		name    string
		obsDate *time.Time
		anchor  *time.Time
		want    *int
	}{
		{"anchor day is day 1", anchor, anchor, intPtr(1)},
		{"day after anchor is day 2", datePtr(2024, time.January, 11), anchor, intPtr(2)},
		{"day before anchor is day -1", datePtr(2024, time.January, 9), anchor, intPtr(-1)},
		{"one week after", datePtr(2024, time.January, 17), anchor, intPtr(8)},
		{"crosses month boundary", datePtr(2024, time.February, 1), anchor, intPtr(23)},
		{"well before anchor", datePtr(2024, time.January, 1), anchor, intPtr(-9)},
		{"absent observation date", nil, anchor, nil},
		{"absent anchor", datePtr(2024, time.January, 11), nil, nil},
		{"both absent", nil, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StudyDay(tt.obsDate, tt.anchor)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tt.want, *got)
		})
	}
}

func TestStudyDayNeverZero(t *testing.T) {
	anchor := date(2024, time.March, 15)
	for offset := -30; offset <= 30; offset++ {
		obs := anchor.AddDate(0, 0, offset)
		got := StudyDay(&obs, &anchor)
		require.NotNil(t, got)
		assert.NotZero(t, *got, "offset %d produced day 0", offset)
	}
}

func TestStudyDayIgnoresClockTime(t *testing.T) {
	anchor := time.Date(2024, time.January, 10, 23, 59, 0, 0, time.UTC)
	obs := time.Date(2024, time.January, 11, 0, 1, 0, 0, time.UTC)

	got := StudyDay(&obs, &anchor)
	require.NotNil(t, got)
	assert.Equal(t, 2, *got)
}

func intPtr(v int) *int {
	return &v
}

func floatPtr(v float64) *float64 {
	return &v
}
