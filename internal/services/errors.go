package services

import (
	"errors"
	"fmt"
	"strings"

	"adsplice/internal/queue"
)

// Sentinel markers for stage error classification. Wrap tags every stage
// error with one of these so the workflow can pick the right queue status.
var (
	ErrExternalTool  = errors.New("external tool error")
	ErrValidation    = errors.New("validation error")
	ErrConfiguration = errors.New("configuration error")
	ErrNotFound      = errors.New("not found")
	ErrTimeout       = errors.New("timeout")
	ErrTransient     = errors.New("transient failure")
)

var allMarkers = []error{ErrExternalTool, ErrValidation, ErrConfiguration, ErrNotFound, ErrTimeout, ErrTransient}

// terminalMarkers are errors no retry can fix; they need operator input.
var terminalMarkers = []error{ErrValidation, ErrConfiguration, ErrNotFound}

func isTerminal(err error) bool {
	for _, marker := range terminalMarkers {
		if errors.Is(err, marker) {
			return true
		}
	}
	return false
}

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker. A nil marker defaults to ErrTransient.
func Wrap(marker error, stage, operation, message string, err error) error {
	if marker == nil {
		marker = ErrTransient
	}
	detail := buildDetail(stage, operation, message)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// FailureStatus maps a stage error to the queue status the workflow manager
// should persist after the stage fails. Terminal failures route to review.
func FailureStatus(err error) queue.Status {
	if isTerminal(err) {
		return queue.StatusReview
	}
	return queue.StatusFailed
}

// Retryable reports whether an error is worth retrying at the call site.
func Retryable(err error) bool {
	return err != nil && !isTerminal(err)
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{stage, operation, message} {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}

// ErrorDetails carries the human-facing portion of a wrapped stage error.
type ErrorDetails struct {
	Message string
}

// Details strips the leading sentinel marker text from a wrapped error so the
// remainder can be shown to operators.
func Details(err error) ErrorDetails {
	if err == nil {
		return ErrorDetails{}
	}
	message := err.Error()
	for _, marker := range allMarkers {
		if prefix := marker.Error() + ": "; strings.HasPrefix(message, prefix) {
			message = strings.TrimPrefix(message, prefix)
			break
		}
	}
	return ErrorDetails{Message: message}
}
