package mapping

import "fmt"

// Normalized field names produced by every domain ruleset.
const (
	FieldSubjectID = "subject_id"
	FieldParamCode = "param_code"
	FieldParam     = "param"
	FieldVisitName = "visit_name"
	FieldObsDate   = "obs_date"
	FieldResult    = "result"
)

// vitalSignsCT collapses legacy vital-sign test codes onto the standard
// terminology.
var vitalSignsCT = map[string]string{
	"SYSBP":  "SYSBP",
	"SBP":    "SYSBP",
	"DIABP":  "DIABP",
	"DBP":    "DIABP",
	"PULSE":  "PULSE",
	"HR":     "PULSE",
	"WEIGHT": "WT",
	"WT":     "WT",
	"HEIGHT": "HT",
	"TEMP":   "TEMP",
}

var domainRulesets = map[string]Ruleset{
	"VS": {
		Domain: "VS",
		Rules: []Rule{
			{Source: "USUBJID", Target: FieldSubjectID},
			{Source: "VSTESTCD", Target: FieldParamCode, Transform: CT(vitalSignsCT)},
			{Source: "VSTEST", Target: FieldParam},
			{Source: "VISIT", Target: FieldVisitName},
			{Source: "VSDTC", Target: FieldObsDate, Transform: ISODate()},
			{Source: "VSORRES", Target: FieldResult},
		},
	},
	"LB": {
		Domain: "LB",
		Rules: []Rule{
			{Source: "USUBJID", Target: FieldSubjectID},
			{Source: "LBTESTCD", Target: FieldParamCode, Transform: Uppercase()},
			{Source: "LBTEST", Target: FieldParam},
			{Source: "VISIT", Target: FieldVisitName},
			{Source: "LBDTC", Target: FieldObsDate, Transform: ISODate()},
			{Source: "LBORRES", Target: FieldResult},
		},
	},
	"EG": {
		Domain: "EG",
		Rules: []Rule{
			{Source: "USUBJID", Target: FieldSubjectID},
			{Source: "EGTESTCD", Target: FieldParamCode, Transform: Uppercase()},
			{Source: "EGTEST", Target: FieldParam},
			{Source: "VISIT", Target: FieldVisitName},
			{Source: "EGDTC", Target: FieldObsDate, Transform: ISODate()},
			{Source: "EGORRES", Target: FieldResult},
		},
	},
}

// ForDomain returns the rule table for a collection domain.
func ForDomain(domain string) (Ruleset, error) {
	rs, ok := domainRulesets[domain]
	if !ok {
		return Ruleset{}, fmt.Errorf("no mapping ruleset for domain %q", domain)
	}
	return rs, nil
}

// Domains lists the supported collection domains.
func Domains() []string {
	return []string{"EG", "LB", "VS"}
}
