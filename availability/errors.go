package availability

import (
	"errors"
	"fmt"
	"strings"
)

// ErrFormat is matched by every FormatError.
var ErrFormat = errors.New("availability: malformed input")

// FormatError reports a date or range string that does not match its pattern.
type FormatError struct {
	Input  string
	Reason string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("availability: cannot parse %q: %s", e.Input, e.Reason)
}

func (e *FormatError) Is(target error) bool {
	return target == ErrFormat
}

// ValidationError lists every problem found in caller-supplied search parameters.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid search: " + strings.Join(e.Problems, "; ")
}

// ErrorPayload is the JSON body returned instead of a Report on total failure.
type ErrorPayload struct {
	Error string `json:"error"`
}
