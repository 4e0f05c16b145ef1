// Package clierr implements the error taxonomy of the control plane: a small
// set of sentinel errors callers can compare with errors.Is, plus a
// structured CLIError carrying an operator-facing hint for fatal paths.
//
// The shape (constructor-built error with title/detail/hint/cause, a
// FatalError helper that logs and exits) mirrors the call sites the teacher
// CLI uses (errors.NewInternalError(title, detail, hint, cause),
// errors.FatalError(err, jsonMode)) even though that internal/errors package
// itself was not present in the retrieved slice — see DESIGN.md.
package clierr

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// Sentinel errors matching the taxonomy of SPEC_FULL.md §7. Wrap these with
// fmt.Errorf("...: %w", ErrX) at call sites so errors.Is keeps working.
var (
	ErrConfig            = errors.New("config error")
	ErrNotFound          = errors.New("not found")
	ErrMissingCapability = errors.New("missing capability")
	ErrNoSpottingHost    = errors.New("no spotting host")
	ErrUpstreamFetch     = errors.New("upstream fetch error")
	ErrTransport         = errors.New("transport error")
	ErrDatabase          = errors.New("database error")
)

// CLIError is a structured, operator-facing error used on fatal paths (CLI
// startup, supervisor boot). It carries a short title, a longer detail, and
// a hint telling the operator what to try next.
type CLIError struct {
	Title   string
	Detail  string
	Hint    string
	Sentinel error
	Cause   error
}

func (e *CLIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Title, e.Detail, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Title, e.Detail)
}

// Unwrap exposes both the taxonomy sentinel (so errors.Is(err, ErrConfig)
// works) and the underlying cause (so errors.Is/As can still reach it).
func (e *CLIError) Unwrap() []error {
	errs := make([]error, 0, 2)
	if e.Sentinel != nil {
		errs = append(errs, e.Sentinel)
	}
	if e.Cause != nil {
		errs = append(errs, e.Cause)
	}
	return errs
}

// NewConfigError builds a fatal CLIError wrapping ErrConfig.
func NewConfigError(detail, hint string, cause error) *CLIError {
	return &CLIError{Title: "config error", Detail: detail, Hint: hint, Sentinel: ErrConfig, Cause: cause}
}

// FatalError writes the error to stderr (as JSON when jsonMode is set) and
// exits the process with status 1. It never returns.
func FatalError(err error, jsonMode bool) {
	if jsonMode {
		payload := map[string]any{"error": err.Error()}
		var cliErr *CLIError
		if errors.As(err, &cliErr) {
			payload["title"] = cliErr.Title
			payload["detail"] = cliErr.Detail
			if cliErr.Hint != "" {
				payload["hint"] = cliErr.Hint
			}
		}
		enc := json.NewEncoder(os.Stderr)
		_ = enc.Encode(payload)
	} else {
		var cliErr *CLIError
		if errors.As(err, &cliErr) {
			fmt.Fprintf(os.Stderr, "error: %s: %s\n", cliErr.Title, cliErr.Detail)
			if cliErr.Hint != "" {
				fmt.Fprintf(os.Stderr, "hint: %s\n", cliErr.Hint)
			}
		} else {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
	}
	os.Exit(1)
}
