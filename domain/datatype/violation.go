package datatype

// ViolationKind identifies why a value failed a rule.
type ViolationKind string

const (
	ViolationItemOfCollection            ViolationKind = "ItemOfCollection"
	ViolationRegex                       ViolationKind = "Regex"
	ViolationRegexTypeNotAccepted        ViolationKind = "RegexTypeNotAccepted"
	ViolationInvalidRegexPattern         ViolationKind = "InvalidRegexPattern"
	ViolationContainsKey                 ViolationKind = "ContainsKey"
	ViolationContainsKeyTypeNotAccepted  ViolationKind = "ContainsKeyTypeNotAccepted"
	ViolationContainsType                ViolationKind = "ContainsType"
	ViolationContainsTypeTypeNotAccepted ViolationKind = "ContainsTypeTypeNotAccepted"
	ViolationNumberRange                 ViolationKind = "NumberRange"
	ViolationNumberRangeTypeNotAccepted  ViolationKind = "NumberRangeTypeNotAccepted"
	ViolationInvalidFormat               ViolationKind = "InvalidFormat"
	ViolationMaxDepthExceeded            ViolationKind = "MaxDepthExceeded"
	ViolationUnknownDataType             ViolationKind = "UnknownDataType"
)

// Violation describes one failed rule.
type Violation struct {
	Kind           ViolationKind  `json:"type"`
	TypeIdentifier string         `json:"data_type"`
	Rule           RuleKind       `json:"rule,omitempty"`
	Path           string         `json:"path"`
	Explanation    string         `json:"explanation"`
	Details        map[string]any `json:"details,omitempty"`
}

// Outcome is the result of validating a value against a type.
type Outcome struct {
	Violations []Violation
}

// Valid reports whether no rule failed.
func (o Outcome) Valid() bool {
	return len(o.Violations) == 0
}

// Report is the serialized form of a failed validation handed to adapters.
type Report struct {
	Error          string        `json:"error"`
	ViolationCount int           `json:"violation_count"`
	Violations     []ReportEntry `json:"violations"`
}

// ReportEntry is one violation in a Report.
type ReportEntry struct {
	Type        ViolationKind  `json:"type"`
	Explanation string         `json:"explanation"`
	Details     map[string]any `json:"details"`
}

// NewReport renders violations into the adapter-facing report document.
func NewReport(violations []Violation) Report {
	entries := make([]ReportEntry, 0, len(violations))
	for _, v := range violations {
		details := make(map[string]any, len(v.Details)+3)
		for k, val := range v.Details {
			details[k] = val
		}
		details["path"] = v.Path
		details["data_type"] = v.TypeIdentifier
		if v.Rule != "" {
			details["rule"] = string(v.Rule)
		}
		entries = append(entries, ReportEntry{
			Type:        v.Kind,
			Explanation: v.Explanation,
			Details:     details,
		})
	}
	return Report{
		Error:          "DataTypeRuleError",
		ViolationCount: len(entries),
		Violations:     entries,
	}
}
