package types

import "time"

// ImageReference identifies a container image, normally registry/name:tag
// or registry/name@digest. Equality is exact string equality.
type ImageReference string

// Match is one raw record returned by an external scanner, before
// normalisation.
type Match struct {
	Component       string
	Version         string
	VulnerabilityID string
	RawSeverity     string
}

// Finding is a normalised vulnerability record tied to one image.
type Finding struct {
	Image           ImageReference `json:"image"`
	Component       string         `json:"component"`
	Version         string         `json:"version,omitempty"`
	VulnerabilityID string         `json:"vulnerability"`
	Severity        Severity       `json:"severity"`
}

// ScanOutcome is the result of scanning one image. A non-nil Err marks a
// failure and always comes with no findings.
type ScanOutcome struct {
	Image    ImageReference
	Findings []Finding
	Err      error
}

// Succeeded builds the success variant of ScanOutcome.
func Succeeded(image ImageReference, findings []Finding) ScanOutcome {
	return ScanOutcome{Image: image, Findings: findings}
}

// Failed builds the failure variant of ScanOutcome.
func Failed(image ImageReference, err error) ScanOutcome {
	return ScanOutcome{Image: image, Err: err}
}

// Failed reports whether the outcome is the failure variant.
func (o ScanOutcome) Failed() bool { return o.Err != nil }

// Report is the ordered finding list handed to the report emitter.
type Report struct {
	GeneratedAt time.Time
	Findings    []Finding
}

// Status classifies a run for the console summary.
type Status string

const (
	StatusNoImages       Status = "no-images"
	StatusClean          Status = "clean"
	StatusFindings       Status = "findings"
	StatusAllFailed      Status = "all-failed"
	StatusPartialFailure Status = "partial-failure"
)

// Summary tallies a run.
type Summary struct {
	Images         int
	Scanned        int
	Failed         int
	Findings       int
	BelowThreshold int
	FailedImages   []ImageReference
}

// Status derives the run classification. A run where every image failed
// is never reported as clean.
func (s Summary) Status() Status {
	switch {
	case s.Images == 0:
		return StatusNoImages
	case s.Failed == s.Images:
		return StatusAllFailed
	case s.Failed > 0:
		return StatusPartialFailure
	case s.Findings > 0:
		return StatusFindings
	default:
		return StatusClean
	}
}
