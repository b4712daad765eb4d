package types

import (
	"fmt"
	"sort"
	"strings"
)

// Severity is the ordered severity scale used for filtering findings.
type Severity int

const (
	Negligible Severity = iota
	Low
	Medium
	High
	Critical
)

var severityNames = [...]string{
	Negligible: "Negligible",
	Low:        "Low",
	Medium:     "Medium",
	High:       "High",
	Critical:   "Critical",
}

// Severities lists every level from lowest to highest.
var Severities = []Severity{Negligible, Low, Medium, High, Critical}

// String returns the title-case name of the level.
func (s Severity) String() string {
	if s < Negligible || s > Critical {
		return fmt.Sprintf("Severity(%d)", int(s))
	}
	return severityNames[s]
}

// AtLeast reports whether s is at or above threshold.
func (s Severity) AtLeast(threshold Severity) bool {
	return s >= threshold
}

func lookupSeverity(raw string) (Severity, bool) {
	name := strings.TrimSpace(raw)
	for i, n := range severityNames {
		if strings.EqualFold(n, name) {
			return Severity(i), true
		}
	}
	return Negligible, false
}

// ParseSeverity maps a scanner's raw severity string onto the scale.
// Unrecognised values (grype's "Unknown", empty strings, vendor-specific
// labels) become Negligible.
func ParseSeverity(raw string) Severity {
	s, _ := lookupSeverity(raw)
	return s
}

// ParseThreshold parses a user supplied severity name. Unlike ParseSeverity
// it rejects unknown names.
func ParseThreshold(raw string) (Severity, error) {
	s, ok := lookupSeverity(raw)
	if !ok {
		return Negligible, fmt.Errorf("unknown severity %q (valid: %s)", raw, strings.Join(severityNames[:], ", "))
	}
	return s, nil
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler using the strict parser.
func (s *Severity) UnmarshalText(text []byte) error {
	v, err := ParseThreshold(string(text))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// SortBySeverity orders findings highest severity first, then by
// vulnerability ID. Used for console summaries only; reports keep
// aggregation order.
func SortBySeverity(findings []Finding) {
	sort.SliceStable(findings, func(i, j int) bool {
		if findings[i].Severity != findings[j].Severity {
			return findings[i].Severity > findings[j].Severity
		}
		return findings[i].VulnerabilityID < findings[j].VulnerabilityID
	})
}
