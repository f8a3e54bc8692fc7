package pipeline

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/goliatone/go-mutation"
)

// Mapper converts a source value into a new destination value.
type Mapper[S, D any] interface {
	Map(ctx context.Context, src S) (D, error)
}

// MapperFunc adapts a function to Mapper.
type MapperFunc[S, D any] func(ctx context.Context, src S) (D, error)

func (f MapperFunc[S, D]) Map(ctx context.Context, src S) (D, error) { return f(ctx, src) }

// IntoMapper copies a source value onto an existing destination in place.
type IntoMapper[S, D any] interface {
	MapInto(ctx context.Context, src S, dst D) error
}

// IntoMapperFunc adapts a function to IntoMapper.
type IntoMapperFunc[S, D any] func(ctx context.Context, src S, dst D) error

func (f IntoMapperFunc[S, D]) MapInto(ctx context.Context, src S, dst D) error {
	return f(ctx, src, dst)
}

// OperationKind selects the rule set a validator applies.
type OperationKind string

const (
	OperationInsert OperationKind = "insert"
	OperationUpdate OperationKind = "update"
	OperationDelete OperationKind = "delete"
)

// ValidationResult carries the business rule violations found for an entity.
type ValidationResult struct {
	Errors mutation.ValidationErrors
}

func (r ValidationResult) IsValid() bool { return len(r.Errors) == 0 }

func (r ValidationResult) String() string {
	if r.IsValid() {
		return "valid"
	}
	return r.Errors.String()
}

// Validator runs business validation. IsNeedToStop reports a blocking
// condition collected by the validator itself, described by ValidationContext.
type Validator[E any] interface {
	IsNeedToStop() bool
	ValidationContext() ValidationResult
	ValidateByOperationType(ctx context.Context, kind OperationKind, entity E) ValidationResult
}

// NopValidator accepts every entity.
type NopValidator[E any] struct{}

func (NopValidator[E]) IsNeedToStop() bool                  { return false }
func (NopValidator[E]) ValidationContext() ValidationResult { return ValidationResult{} }
func (NopValidator[E]) ValidateByOperationType(context.Context, OperationKind, E) ValidationResult {
	return ValidationResult{}
}

// AccessResult is the answer of an access-rights check.
type AccessResult struct {
	IsOk    bool
	Details mutation.AccessDetails
}

// Allow grants access.
func Allow() AccessResult { return AccessResult{IsOk: true} }

// Deny refuses access with the given reasons.
func Deny(details ...string) AccessResult {
	return AccessResult{Details: mutation.AccessDetails(details)}
}

func (r AccessResult) String() string {
	if r.IsOk {
		return "access granted"
	}
	if len(r.Details) == 0 {
		return "access denied"
	}
	return "access denied: " + strings.Join(r.Details, "; ")
}

// AccessChecker is implemented by managers that restrict access per entity.
type AccessChecker[E any] interface {
	CheckAccess(ctx context.Context, entity E) AccessResult
}

// ViewModelFactory produces prefilled view models for create and edit forms.
type ViewModelFactory[C, U any] interface {
	GenerateForCreate(ctx context.Context) *mutation.Outcome[C]
	GenerateForUpdate(ctx context.Context, id uuid.UUID) *mutation.Outcome[U]
}

// EntityFinder overrides the update lookup, e.g. to load related data.
type EntityFinder[E, U any] interface {
	FindEntity(ctx context.Context, id uuid.UUID, model U) (E, bool, error)
}

// OutcomeFinalizer post-processes every outcome before it is returned.
type OutcomeFinalizer[V any] interface {
	BeforeReturn(ctx context.Context, outcome *mutation.Outcome[V]) *mutation.Outcome[V]
}
