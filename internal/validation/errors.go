package validation

import (
	"fmt"
	"strings"

	"github.com/trevorspecht/github-collaborator-lifecycle-automation/internal/domain"
)

// ValidationError is a rejected field on a collaborator event. Field is the
// event's JSON name for it so API clients can match it to the payload.
type ValidationError struct {
	Field   string `json:"field"`
	Value   string `json:"value"`
	Message string `json:"message"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %q: %s", e.Field, e.Value, e.Message)
}

// ValidationErrors collects every rejected field of one event.
// It matches domain.ErrInvalidInput under errors.Is.
type ValidationErrors []*ValidationError

// Error lists every field problem, in the order found.
func (e ValidationErrors) Error() string {
	msgs := make([]string, len(e))
	for i, fe := range e {
		msgs[i] = fe.Error()
	}
	return strings.Join(msgs, "; ")
}

func (e ValidationErrors) Is(target error) bool {
	return target == domain.ErrInvalidInput && len(e) > 0
}

// Add records a problem with field.
func (e *ValidationErrors) Add(field, value, message string) {
	*e = append(*e, &ValidationError{Field: field, Value: value, Message: message})
}

// Fields returns the rejected field names.
func (e ValidationErrors) Fields() []string {
	fields := make([]string, len(e))
	for i, fe := range e {
		fields[i] = fe.Field
	}
	return fields
}

// HasErrors reports whether any field was rejected.
func (e ValidationErrors) HasErrors() bool {
	return len(e) > 0
}
