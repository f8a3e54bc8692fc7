package pipeline

import (
	"context"

	"github.com/goliatone/go-mutation"
)

// Hook intercepts one stage of a flow. Returning an error stops the flow.
type Hook[V any] func(ctx context.Context, stage *mutation.Stage[V]) error

// CreateHooks are invoked by PostItem in stage order.
type CreateHooks[V any] interface {
	OnCreateBeforeMapping(ctx context.Context, stage *mutation.Stage[V]) error
	OnCreateBeforeAnyValidations(ctx context.Context, stage *mutation.Stage[V]) error
	OnCreateBeforeSaveChanges(ctx context.Context, stage *mutation.Stage[V]) error
	OnCreateAfterSaveChangesSuccess(ctx context.Context, stage *mutation.Stage[V]) error
	OnCreateAfterSaveChangesFailed(ctx context.Context, stage *mutation.Stage[V]) error
}

// UpdateHooks are invoked by PutItem in stage order.
type UpdateHooks[V any] interface {
	OnUpdateBeforeMapping(ctx context.Context, stage *mutation.Stage[V]) error
	OnUpdateBeforeAnyValidations(ctx context.Context, stage *mutation.Stage[V]) error
	OnUpdateBeforeSaveChanges(ctx context.Context, stage *mutation.Stage[V]) error
	OnUpdateAfterSaveChangesSuccess(ctx context.Context, stage *mutation.Stage[V]) error
	OnUpdateAfterSaveChangesFailed(ctx context.Context, stage *mutation.Stage[V]) error
}

// Manager bundles the collaborators and hooks for one
// (view model, entity, create model, update model) combination.
//
// Optional capabilities are discovered by type assertion:
// AccessChecker[E], EntityFinder[E, U] and OutcomeFinalizer[V].
type Manager[V any, E mutation.Entity, C any, U any] interface {
	Name() string
	CreateMapper() Mapper[C, E]
	UpdateMapper() IntoMapper[U, E]
	ViewMapper() Mapper[E, V]
	Validator() Validator[E]
	ViewModelFactory() ViewModelFactory[C, U]
	CreateHooks[V]
	UpdateHooks[V]
}

// BaseManager provides collaborator accessors and no-op hooks. Embed it and
// override the hooks a domain needs.
type BaseManager[V any, E mutation.Entity, C any, U any] struct {
	ManagerName string
	Create      Mapper[C, E]
	Update      IntoMapper[U, E]
	View        Mapper[E, V]
	EntityRules Validator[E]
	ViewModels  ViewModelFactory[C, U]
}

func (m BaseManager[V, E, C, U]) Name() string {
	if m.ManagerName == "" {
		return "manager"
	}
	return m.ManagerName
}

func (m BaseManager[V, E, C, U]) CreateMapper() Mapper[C, E]     { return m.Create }
func (m BaseManager[V, E, C, U]) UpdateMapper() IntoMapper[U, E] { return m.Update }
func (m BaseManager[V, E, C, U]) ViewMapper() Mapper[E, V]       { return m.View }

func (m BaseManager[V, E, C, U]) Validator() Validator[E] {
	if m.EntityRules == nil {
		return NopValidator[E]{}
	}
	return m.EntityRules
}

func (m BaseManager[V, E, C, U]) ViewModelFactory() ViewModelFactory[C, U] { return m.ViewModels }

func (BaseManager[V, E, C, U]) OnCreateBeforeMapping(context.Context, *mutation.Stage[V]) error {
	return nil
}

func (BaseManager[V, E, C, U]) OnCreateBeforeAnyValidations(context.Context, *mutation.Stage[V]) error {
	return nil
}

func (BaseManager[V, E, C, U]) OnCreateBeforeSaveChanges(context.Context, *mutation.Stage[V]) error {
	return nil
}

func (BaseManager[V, E, C, U]) OnCreateAfterSaveChangesSuccess(context.Context, *mutation.Stage[V]) error {
	return nil
}

func (BaseManager[V, E, C, U]) OnCreateAfterSaveChangesFailed(context.Context, *mutation.Stage[V]) error {
	return nil
}

func (BaseManager[V, E, C, U]) OnUpdateBeforeMapping(context.Context, *mutation.Stage[V]) error {
	return nil
}

func (BaseManager[V, E, C, U]) OnUpdateBeforeAnyValidations(context.Context, *mutation.Stage[V]) error {
	return nil
}

func (BaseManager[V, E, C, U]) OnUpdateBeforeSaveChanges(context.Context, *mutation.Stage[V]) error {
	return nil
}

func (BaseManager[V, E, C, U]) OnUpdateAfterSaveChangesSuccess(context.Context, *mutation.Stage[V]) error {
	return nil
}

func (BaseManager[V, E, C, U]) OnUpdateAfterSaveChangesFailed(context.Context, *mutation.Stage[V]) error {
	return nil
}
