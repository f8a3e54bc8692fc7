package mutation

import (
	stderrors "errors"
	"strings"

	apperrors "github.com/goliatone/go-errors"
)

const (
	CodeArgumentInvalid   = "ARGUMENT_INVALID"
	CodeOutcomeMissing    = "OUTCOME_MISSING"
	CodeNotFound          = "NOT_FOUND"
	CodeUnauthorized      = "UNAUTHORIZED"
	CodeValidationFailed  = "VALIDATION_FAILED"
	CodeMappingFailed     = "MAPPING_FAILED"
	CodePersistenceFailed = "PERSISTENCE_FAILED"
	CodeHookFailed        = "HOOK_FAILED"
)

var (
	// ErrArgumentInvalid marks a violated precondition of the context store
	// or outcome API. It is a wiring fault, never a business failure.
	ErrArgumentInvalid = apperrors.New("argument invalid", apperrors.CategoryBadInput).
				WithTextCode(CodeArgumentInvalid)
	// ErrOutcomeMissing is returned when an outcome entry is recorded for a
	// token whose outcome was never initialized.
	ErrOutcomeMissing = apperrors.New("operation outcome not initialized", apperrors.CategoryBadInput).
				WithTextCode(CodeOutcomeMissing)
	ErrNotFound = apperrors.New("entity not found", apperrors.CategoryNotFound).
			WithTextCode(CodeNotFound)
	ErrUnauthorized = apperrors.New("access denied", apperrors.CategoryAuthz).
			WithTextCode(CodeUnauthorized)
	ErrValidationFailed = apperrors.New("entity validation failed", apperrors.CategoryValidation).
				WithTextCode(CodeValidationFailed)
	ErrMappingFailed = apperrors.New("mapping produced no entity", apperrors.CategoryOperation).
				WithTextCode(CodeMappingFailed)
	ErrPersistenceFailed = apperrors.New("persistence failed", apperrors.CategoryExternal).
				WithTextCode(CodePersistenceFailed)
	ErrHookFailed = apperrors.New("pipeline hook failed", apperrors.CategoryHandler).
			WithTextCode(CodeHookFailed)
)

// NewError clones base with an occurrence specific message, source and metadata.
func NewError(base *apperrors.Error, message string, source error, metadata map[string]any) *apperrors.Error {
	if base == nil {
		base = ErrArgumentInvalid
	}
	err := base.Clone()
	if text := strings.TrimSpace(message); text != "" {
		err.Message = text
	}
	if source != nil {
		err.Source = source
	}
	if len(metadata) > 0 {
		err = err.WithMetadata(metadata)
	}
	return err
}

func argumentInvalid(message string, metadata map[string]any) error {
	return NewError(ErrArgumentInvalid, message, nil, metadata)
}

func outcomeMissing(token string) error {
	return NewError(ErrOutcomeMissing, "", nil, map[string]any{"token": token})
}

// ErrorCode returns the text code of a go-errors value, or "" for other errors.
func ErrorCode(err error) string {
	var ge *apperrors.Error
	if stderrors.As(err, &ge) {
		return ge.TextCode
	}
	return ""
}

// IsArgumentInvalid reports whether err belongs to the ArgumentInvalid class.
// Those errors surface to the caller instead of being recorded in an outcome.
func IsArgumentInvalid(err error) bool {
	switch ErrorCode(err) {
	case CodeArgumentInvalid, CodeOutcomeMissing:
		return true
	default:
		return false
	}
}
