// Package mapping implements the declarative field-mapping layer that turns
// raw per-domain rows into the normalized observation shape. One generic
// Apply function consumes per-domain rule tables instead of one hand-written
// transform per domain.
package mapping

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	apperrors "github.com/jwalitptl/trialdata-api/pkg/errors"
)

// Transform rewrites a single field value.
type Transform func(value string) (string, error)

// Rule maps one source field to one target field through a transform.
type Rule struct {
	Source    string
	Target    string
	Transform Transform
}

// Ruleset is the ordered rule table for one domain.
type Ruleset struct {
	Domain string
	Rules  []Rule
}

// Apply runs every rule against a raw row and returns the normalized row.
// Source fields absent from the row are skipped: missing data is a valid
// state, not an error. Transform failures carry the source field name.
func (rs Ruleset) Apply(row map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(rs.Rules))
	for _, rule := range rs.Rules {
		raw, ok := row[rule.Source]
		if !ok || raw == "" {
			continue
		}
		value := raw
		if rule.Transform != nil {
			var err error
			value, err = rule.Transform(raw)
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", rule.Source, err)
			}
		}
		out[rule.Target] = value
	}
	return out, nil
}

// Identity passes the value through unchanged.
func Identity() Transform {
	return func(value string) (string, error) {
		return value, nil
	}
}

// Uppercase normalizes the value to upper case.
func Uppercase() Transform {
	return func(value string) (string, error) {
		return strings.ToUpper(strings.TrimSpace(value)), nil
	}
}

// CT substitutes the value through a controlled-terminology vocabulary.
// Values without an entry pass through unchanged; CT maps are additive.
func CT(vocab map[string]string) Transform {
	return func(value string) (string, error) {
		if mapped, ok := vocab[strings.ToUpper(strings.TrimSpace(value))]; ok {
			return mapped, nil
		}
		return value, nil
	}
}

// ISODate validates and normalizes a date to ISO-8601 (YYYY-MM-DD). A value
// that parses as neither a plain date nor RFC 3339 is a structural input
// error.
func ISODate() Transform {
	return func(value string) (string, error) {
		t, err := ParseDate("date", value)
		if err != nil {
			return "", err
		}
		if t == nil {
			return "", nil
		}
		return t.Format(dateLayout), nil
	}
}

const dateLayout = "2006-01-02"

// ParseDate parses an ISO-8601 date or RFC 3339 timestamp. Empty input means
// absent and returns nil without error; anything else unparseable is a
// MalformedDate structural error.
func ParseDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperrors.MalformedDate(field, raw, err)
	}
	return &t, nil
}

// ParseNumeric coerces a collected result to a number. Non-numeric results
// ("<0.5", "TRACE") are not errors: the numeric value is absent and the
// character value is retained upstream.
func ParseNumeric(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}
