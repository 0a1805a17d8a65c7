package derive

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeriveChange(t *testing.T) {
	tests := []struct {
		name     string
		value    *float64
		baseline *float64
		wantChg  *float64
		wantPct  *float64
	}{
		{"simple decrease", floatPtr(12.5), floatPtr(13.2), floatPtr(12.5 - 13.2), floatPtr((12.5 - 13.2) / 13.2 * 100)},
		{"simple increase", floatPtr(15.0), floatPtr(10.0), floatPtr(5.0), floatPtr(50.0)},
		{"no change", floatPtr(10.0), floatPtr(10.0), floatPtr(0.0), floatPtr(0.0)},
		{"zero baseline guards percent", floatPtr(0.5), floatPtr(0.0), floatPtr(0.5), nil},
		{"absent value", nil, floatPtr(10.0), nil, nil},
		{"absent baseline", floatPtr(10.0), nil, nil, nil},
		{"both absent", nil, nil, nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chg, pct := DeriveChange(tt.value, tt.baseline)

			if tt.wantChg == nil {
				assert.Nil(t, chg)
			} else {
				require.NotNil(t, chg)
				assert.Equal(t, *tt.wantChg, *chg, "change must be exact, no rounding")
			}

			if tt.wantPct == nil {
				assert.Nil(t, pct)
			} else {
				require.NotNil(t, pct)
				assert.Equal(t, *tt.wantPct, *pct)
			}
		})
	}
}

func TestDeriveChangeExactArithmetic(t *testing.T) {
	// The component must not round: change is the raw float64 difference.
	chg, pct := DeriveChange(floatPtr(12.5), floatPtr(13.2))
	require.NotNil(t, chg)
	require.NotNil(t, pct)
	assert.Equal(t, 12.5-13.2, *chg)
	assert.InDelta(t, -5.30, *pct, 0.01)
}
