package derive

// DeriveChange computes change and percent change from baseline. Absence in
// either input propagates to both outputs. A zero baseline makes percent
// change absent rather than an error: division is guarded, not raised. No
// rounding happens here; formatting is a reporting concern.
func DeriveChange(value, baseline *float64) (change, percentChange *float64) {
	if value == nil || baseline == nil {
		return nil, nil
	}

	chg := *value - *baseline
	change = &chg

	if *baseline == 0 {
		return change, nil
	}

	pct := (chg / *baseline) * 100
	percentChange = &pct
	return change, percentChange
}
