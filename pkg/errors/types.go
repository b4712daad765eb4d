// Package errors classifies failures of a scan run into fatal and
// non-fatal kinds.
package errors

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

type Kind string

const (
	// RenderKind: the manifest renderer could not produce text. Fatal.
	RenderKind Kind = "render"
	// ScanKind: one image could not be scanned. Recorded per image, never fatal.
	ScanKind Kind = "scan"
	// ReportKind: the report artifact could not be written or uploaded. Fatal.
	ReportKind Kind = "report"
	// ConfigKind: invalid configuration or arguments. Fatal.
	ConfigKind Kind = "config"
)

type Error struct {
	Kind  Kind
	Op    string // Operation that failed
	Image string // Container image (when applicable)
	Cause error  // Underlying error
}

func (e *Error) Error() string {
	if e.Image != "" {
		return fmt.Sprintf("%s failed for image %s: %v", e.Op, e.Image, e.Cause)
	}
	return fmt.Sprintf("%s failed: %v", e.Op, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

func newError(kind Kind, op, image string, cause error) *Error {
	if cause == nil {
		cause = errors.New("unknown error")
	}
	return &Error{
		Kind:  kind,
		Op:    op,
		Image: image,
		Cause: errors.Wrap(cause, op),
	}
}

func NewRenderError(op string, cause error) *Error {
	return newError(RenderKind, op, "", cause)
}

func NewScanError(op, image string, cause error) *Error {
	return newError(ScanKind, op, image, cause)
}

func NewReportWriteError(op string, cause error) *Error {
	return newError(ReportKind, op, "", cause)
}

func NewConfigError(op string, cause error) *Error {
	return newError(ConfigKind, op, "", cause)
}

// KindOf returns the kind of the first *Error in err's chain, or "" if
// there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// IsFatal reports whether err must abort the run. Unclassified errors are
// treated as fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return KindOf(err) != ScanKind
}

// WithHint attaches an operator-facing hint, e.g. a missing tool.
func WithHint(err error, hint string) error {
	return errors.WithHint(err, hint)
}

// Hints returns all hints attached anywhere in err's chain.
func Hints(err error) []string {
	return errors.GetAllHints(err)
}
