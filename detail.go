package mutation

import (
	"fmt"
	"strings"
)

// Detail is the structured payload attached to an outcome entry. The set of
// shapes is closed: ValidationErrors, AccessDetails, Fields and Text.
type Detail interface {
	isDetail()
}

// ValidationError describes a single rule violation.
type ValidationError struct {
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

func (e ValidationError) String() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors carries business validation failures.
type ValidationErrors []ValidationError

func (ValidationErrors) isDetail() {}

func (v ValidationErrors) String() string {
	parts := make([]string, 0, len(v))
	for _, e := range v {
		parts = append(parts, e.String())
	}
	return strings.Join(parts, "; ")
}

// AccessDetails carries the reasons an access check rejected an entity.
type AccessDetails []string

func (AccessDetails) isDetail() {}

// Fields is a free-form key/value payload.
type Fields map[string]any

func (Fields) isDetail() {}

// Text is a plain string payload.
type Text string

func (Text) isDetail() {}

func firstDetail(details []Detail) Detail {
	for _, d := range details {
		if d != nil {
			return d
		}
	}
	return nil
}
