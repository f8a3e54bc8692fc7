package pipeline

import (
	"context"
	"fmt"

	apperrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-mutation"
	"github.com/goliatone/go-mutation/store"
)

// Writable drives the create, update and delete flows of one manager.
// Every call gets its own Context, so a Writable may serve concurrent
// requests as long as its unit of work does.
type Writable[V any, E mutation.Entity, C any, U any] struct {
	uow     store.UnitOfWork[E]
	manager Manager[V, E, C, U]
	opts    options
}

// NewWritable wires a manager to a unit of work.
func NewWritable[V any, E mutation.Entity, C any, U any](uow store.UnitOfWork[E], manager Manager[V, E, C, U], opts ...Option) (*Writable[V, E, C, U], error) {
	if mutation.IsNil(uow) {
		return nil, mutation.NewError(mutation.ErrArgumentInvalid, "unit of work is required", nil, nil)
	}
	if mutation.IsNil(manager) {
		return nil, mutation.NewError(mutation.ErrArgumentInvalid, "manager is required", nil, nil)
	}
	required := []struct {
		name    string
		missing bool
	}{
		{"create mapper", mutation.IsNil(manager.CreateMapper())},
		{"update mapper", mutation.IsNil(manager.UpdateMapper())},
		{"view mapper", mutation.IsNil(manager.ViewMapper())},
	}
	for _, r := range required {
		if r.missing {
			return nil, mutation.NewError(mutation.ErrArgumentInvalid, r.name+" is required", nil, map[string]any{
				"manager": manager.Name(),
			})
		}
	}
	return &Writable[V, E, C, U]{uow: uow, manager: manager, opts: applyOptions(opts...)}, nil
}

// Manager returns the manager driving this orchestrator.
func (w *Writable[V, E, C, U]) Manager() Manager[V, E, C, U] {
	return w.manager
}

// GetViewModelForCreation returns a prefilled create view model.
func (w *Writable[V, E, C, U]) GetViewModelForCreation(ctx context.Context) (*mutation.Outcome[C], error) {
	factory := w.manager.ViewModelFactory()
	if mutation.IsNil(factory) {
		return nil, mutation.NewError(mutation.ErrArgumentInvalid, "view model factory is required", nil, map[string]any{
			"manager": w.manager.Name(),
		})
	}
	if out := factory.GenerateForCreate(ctx); out != nil {
		return out, nil
	}
	return mutation.NewOutcome[C](), nil
}

// GetViewModelForEditing returns an update view model prefilled from the
// entity identified by id.
func (w *Writable[V, E, C, U]) GetViewModelForEditing(ctx context.Context, id uuid.UUID) (*mutation.Outcome[U], error) {
	factory := w.manager.ViewModelFactory()
	if mutation.IsNil(factory) {
		return nil, mutation.NewError(mutation.ErrArgumentInvalid, "view model factory is required", nil, map[string]any{
			"manager": w.manager.Name(),
		})
	}
	if out := factory.GenerateForUpdate(ctx, id); out != nil {
		return out, nil
	}
	return mutation.NewOutcome[U](), nil
}

// PostItem runs the create flow. Business failures are recorded in the
// returned outcome; the error is reserved for ArgumentInvalid-class faults.
func (w *Writable[V, E, C, U]) PostItem(ctx context.Context, model C) (*mutation.Outcome[V], error) {
	ctx, span := w.startSpan(ctx, "mutation.create")
	defer span.End()

	r := w.newRun(ctx, "create")
	defer r.release(ctx)

	err := w.create(ctx, r, model)
	return w.finish(ctx, span, r, err)
}

// PutItem runs the update flow for the entity identified by id.
func (w *Writable[V, E, C, U]) PutItem(ctx context.Context, id uuid.UUID, model U) (*mutation.Outcome[V], error) {
	ctx, span := w.startSpan(ctx, "mutation.update", attribute.String("mutation.entity_id", id.String()))
	defer span.End()

	r := w.newRun(ctx, "update")
	defer r.release(ctx)

	err := w.update(ctx, r, id, model)
	return w.finish(ctx, span, r, err)
}

// DeleteItem removes the entity identified by id and returns its last view.
// The delete flow has no stages and no transaction.
func (w *Writable[V, E, C, U]) DeleteItem(ctx context.Context, id uuid.UUID) (*mutation.Outcome[V], error) {
	ctx, span := w.startSpan(ctx, "mutation.delete", attribute.String("mutation.entity_id", id.String()))
	defer span.End()

	r := w.newRun(ctx, "delete")
	err := w.delete(ctx, r, id)
	return w.finish(ctx, span, r, err)
}

func (w *Writable[V, E, C, U]) create(ctx context.Context, r *flowRun[V], model C) error {
	if !w.beginTx(ctx, r) {
		return nil
	}
	if err := r.c.SetCreateViewModel(model); err != nil {
		return r.rollback(ctx, err)
	}

	if proceed, err := w.runStep(ctx, r, mutation.StageBeforeMapping, w.manager.OnCreateBeforeMapping); !proceed {
		return r.rollback(ctx, err)
	}

	entity, err := w.manager.CreateMapper().Map(ctx, model)
	if err != nil || mutation.IsNil(entity) {
		r.logger.Warn("create mapping produced no entity: %v", err)
		r.fail(ctx, mutation.NewError(mutation.ErrMappingFailed, "", err, nil))
		return nil
	}
	w.stampCreated(ctx, entity)

	if err := r.c.SetEntity(entity); err != nil {
		return r.rollback(ctx, err)
	}
	r.withFields(map[string]any{"entity_id": entity.GetID().String()})

	if proceed, err := w.runStep(ctx, r, mutation.StageBeforeAnyValidations, w.manager.OnCreateBeforeAnyValidations); !proceed {
		return r.rollback(ctx, err)
	}

	if !w.authorize(ctx, r, entity, mutation.ErrUnauthorized) {
		return nil
	}
	if !w.validate(ctx, r, OperationInsert, entity) {
		return nil
	}

	if proceed, err := w.runStep(ctx, r, mutation.StageBeforeSaveChanges, w.manager.OnCreateBeforeSaveChanges); !proceed {
		return r.rollback(ctx, err)
	}

	res := w.save(ctx, w.uow.Insert, entity)
	return w.settle(ctx, r, entity, res, settlement[V]{
		success: w.manager.OnCreateAfterSaveChangesSuccess,
		failed:  w.manager.OnCreateAfterSaveChangesFailed,
	})
}

func (w *Writable[V, E, C, U]) update(ctx context.Context, r *flowRun[V], id uuid.UUID, model U) error {
	if !w.beginTx(ctx, r) {
		return nil
	}
	if err := r.c.SetUpdateViewModel(model); err != nil {
		return r.rollback(ctx, err)
	}
	r.withFields(map[string]any{"entity_id": id.String()})

	entity, found, err := w.find(ctx, id, model)
	if err != nil {
		r.logger.Error("update lookup failed: %v", err)
		r.fail(ctx, mutation.NewError(mutation.ErrPersistenceFailed, "entity lookup failed", err, nil))
		return nil
	}
	if !found {
		r.fail(ctx, notFound(id))
		return nil
	}

	if err := r.c.SetEntity(entity); err != nil {
		return r.rollback(ctx, err)
	}
	w.stampUpdated(ctx, entity)

	if proceed, err := w.runStep(ctx, r, mutation.StageBeforeMapping, w.manager.OnUpdateBeforeMapping); !proceed {
		return r.rollback(ctx, err)
	}

	if err := w.manager.UpdateMapper().MapInto(ctx, model, entity); err != nil {
		r.logger.Warn("update mapping failed: %v", err)
		r.fail(ctx, mutation.NewError(mutation.ErrMappingFailed, "update mapping failed", err, nil))
		return nil
	}

	if proceed, err := w.runStep(ctx, r, mutation.StageBeforeAnyValidations, w.manager.OnUpdateBeforeAnyValidations); !proceed {
		return r.rollback(ctx, err)
	}

	if !w.authorize(ctx, r, entity, mutation.ErrValidationFailed) {
		return nil
	}
	if !w.validate(ctx, r, OperationUpdate, entity) {
		return nil
	}

	if proceed, err := w.runStep(ctx, r, mutation.StageBeforeSaveChanges, w.manager.OnUpdateBeforeSaveChanges); !proceed {
		return r.rollback(ctx, err)
	}

	res := w.save(ctx, w.uow.Update, entity)
	return w.settle(ctx, r, entity, res, settlement[V]{
		success:               w.manager.OnUpdateAfterSaveChangesSuccess,
		failed:                w.manager.OnUpdateAfterSaveChangesFailed,
		rollbackOnlyIfStopped: true,
	})
}

func (w *Writable[V, E, C, U]) delete(ctx context.Context, r *flowRun[V], id uuid.UUID) error {
	r.withFields(map[string]any{"entity_id": id.String()})

	entity, found, err := w.uow.Find(ctx, id)
	if err != nil {
		r.logger.Error("delete lookup failed: %v", err)
		r.outcome.AddError(mutation.NewError(mutation.ErrPersistenceFailed, "entity lookup failed", err, nil))
		return nil
	}
	if !found {
		r.outcome.AddError(notFound(id))
		return nil
	}

	if checker, ok := w.manager.(AccessChecker[E]); ok {
		if access := checker.CheckAccess(ctx, entity); !access.IsOk {
			r.outcome.AddError(mutation.NewError(mutation.ErrUnauthorized, access.String(), nil, nil), accessDetails(access)...)
			return nil
		}
	}

	res := w.save(ctx, w.uow.Delete, entity)
	if !res.OK {
		r.logger.Warn("delete save failed: %v", res.Err)
		r.outcome.AddError(persistenceError(res))
		return nil
	}

	view, err := w.manager.ViewMapper().Map(ctx, entity)
	if err != nil {
		r.outcome.AddError(mutation.NewError(mutation.ErrMappingFailed, "view mapping failed", err, nil))
		return nil
	}
	r.outcome.SetResult(view)
	r.logger.Info("entity deleted")
	return nil
}

type settlement[V any] struct {
	success Hook[V]
	failed  Hook[V]
	// rollbackOnlyIfStopped leaves the transaction to the deferred release
	// when the failed stage is not stopped.
	rollbackOnlyIfStopped bool
}

// settle decides commit or rollback once SaveChanges has run.
func (w *Writable[V, E, C, U]) settle(ctx context.Context, r *flowRun[V], entity E, res store.SaveResult, s settlement[V]) error {
	if res.OK {
		view, err := w.manager.ViewMapper().Map(ctx, entity)
		if err != nil {
			r.outcome.AddError(mutation.NewError(mutation.ErrMappingFailed, "view mapping failed", err, nil))
		} else {
			if err := mutation.SetResult(r.c, view); err != nil {
				return r.rollback(ctx, err)
			}
			stage, err := w.runTerminal(ctx, r, mutation.StageAfterSaveChangesSuccess, s.success)
			if err != nil {
				return r.rollback(ctx, err)
			}
			if stage.IsStopped() && r.outcome.Exception() == nil {
				if err := r.commit(ctx); err != nil {
					r.outcome.AddError(mutation.NewError(mutation.ErrPersistenceFailed, "commit failed", err, nil))
				}
				return nil
			}
		}
	} else {
		r.logger.Warn("save changes failed: %v", res.Err)
	}

	stage, err := w.runTerminal(ctx, r, mutation.StageAfterSaveChangesFailed, s.failed)
	if err != nil {
		return r.rollback(ctx, err)
	}
	if s.rollbackOnlyIfStopped && !stage.IsStopped() {
		return nil
	}
	if r.outcome.Exception() == nil {
		r.outcome.AddError(persistenceError(res))
	}
	return r.rollback(ctx, nil)
}

func (w *Writable[V, E, C, U]) find(ctx context.Context, id uuid.UUID, model U) (E, bool, error) {
	if finder, ok := w.manager.(EntityFinder[E, U]); ok {
		return finder.FindEntity(ctx, id, model)
	}
	return w.uow.Find(ctx, id)
}

func (w *Writable[V, E, C, U]) save(ctx context.Context, queue func(context.Context, E) error, entity E) store.SaveResult {
	if err := queue(ctx, entity); err != nil {
		return store.SaveFailed(err)
	}
	return w.uow.SaveChanges(ctx, w.opts.autoHistory)
}

// authorize runs the access check then the validator stop signal. A
// validator stop is reported with stopErr.
func (w *Writable[V, E, C, U]) authorize(ctx context.Context, r *flowRun[V], entity E, stopErr *apperrors.Error) bool {
	if checker, ok := w.manager.(AccessChecker[E]); ok {
		if access := checker.CheckAccess(ctx, entity); !access.IsOk {
			r.logger.Warn("access denied: %s", access)
			r.fail(ctx, mutation.NewError(mutation.ErrUnauthorized, access.String(), nil, nil), accessDetails(access)...)
			return false
		}
	}
	validator := w.validator()
	if validator.IsNeedToStop() {
		vc := validator.ValidationContext()
		r.logger.Warn("validator requested stop: %s", vc)
		r.fail(ctx, mutation.NewError(stopErr, vc.String(), nil, nil), validationDetails(vc)...)
		return false
	}
	return true
}

func (w *Writable[V, E, C, U]) validate(ctx context.Context, r *flowRun[V], kind OperationKind, entity E) bool {
	result := w.validator().ValidateByOperationType(ctx, kind, entity)
	if result.IsValid() {
		return true
	}
	r.logger.Info("%s validation failed: %s", kind, result)
	r.fail(ctx, mutation.NewError(mutation.ErrValidationFailed, result.String(), nil, map[string]any{
		"operation": string(kind),
	}), validationDetails(result)...)
	return false
}

func (w *Writable[V, E, C, U]) validator() Validator[E] {
	if v := w.manager.Validator(); !mutation.IsNil(v) {
		return v
	}
	return NopValidator[E]{}
}

func (w *Writable[V, E, C, U]) author(ctx context.Context) string {
	p, _ := w.opts.principals.Principal(ctx)
	return p.DisplayName(w.opts.anonymousName)
}

func (w *Writable[V, E, C, U]) stampCreated(ctx context.Context, entity E) {
	if a, ok := any(entity).(mutation.Auditable); ok {
		a.StampCreated(w.opts.now(), w.author(ctx))
	}
}

func (w *Writable[V, E, C, U]) stampUpdated(ctx context.Context, entity E) {
	if a, ok := any(entity).(mutation.Auditable); ok {
		a.StampUpdated(w.opts.now(), w.author(ctx))
	}
}

func (w *Writable[V, E, C, U]) runStep(ctx context.Context, r *flowRun[V], name mutation.StageName, hook Hook[V]) (bool, error) {
	stage := mutation.NewStep[V](r.c, name)
	if err := w.invoke(ctx, r, stage, hook); err != nil {
		return false, err
	}
	if stage.IsStopped() {
		r.logger.Debug("flow stopped at stage %s (order %d)", name, stage.OrderIndex())
		return false, nil
	}
	return true, nil
}

func (w *Writable[V, E, C, U]) runTerminal(ctx context.Context, r *flowRun[V], name mutation.StageName, hook Hook[V]) (*mutation.Stage[V], error) {
	stage := mutation.NewTerminal[V](r.c, name)
	return stage, w.invoke(ctx, r, stage, hook)
}

// invoke calls hook. ArgumentInvalid-class errors are returned as faults,
// any other error is recorded and stops the stage.
func (w *Writable[V, E, C, U]) invoke(ctx context.Context, r *flowRun[V], stage *mutation.Stage[V], hook Hook[V]) error {
	if hook == nil {
		return nil
	}
	fields := map[string]any{
		"stage": string(stage.Name()),
		"order": stage.OrderIndex(),
	}
	logger := withLoggerFields(r.logger, fields)
	logger.Trace("invoking stage hook")

	report := w.opts.panics
	if report == nil {
		report = LoggerPanicReporter(logger)
	}
	err := callHook(string(stage.Name()), report, fields, func() error {
		return hook(ctx, stage)
	})
	if err == nil {
		return nil
	}
	if mutation.IsArgumentInvalid(err) {
		logger.Error("stage hook fault: %v", err)
		return err
	}
	logger.Warn("stage hook failed: %v", err)
	r.outcome.AddError(mutation.NewError(mutation.ErrHookFailed, fmt.Sprintf("%s hook failed", stage.Name()), err, map[string]any{
		"stage": string(stage.Name()),
		"order": stage.OrderIndex(),
	}))
	stage.Stop()
	return nil
}

func (w *Writable[V, E, C, U]) newRun(ctx context.Context, flow string) *flowRun[V] {
	c := mutation.NewContext()
	return &flowRun[V]{
		c:       c,
		outcome: mutation.InitOrUpdate[V](c),
		logger: withLoggerFields(w.opts.logger.WithContext(ctx), map[string]any{
			"flow":    flow,
			"manager": w.manager.Name(),
		}),
	}
}

func (w *Writable[V, E, C, U]) beginTx(ctx context.Context, r *flowRun[V]) bool {
	tx, err := w.uow.BeginTransaction(ctx)
	if err != nil {
		r.logger.Error("begin transaction failed: %v", err)
		r.outcome.AddError(mutation.NewError(mutation.ErrPersistenceFailed, "begin transaction failed", err, nil))
		return false
	}
	r.tx = tx
	r.logger.Debug("transaction started")
	return true
}

func (w *Writable[V, E, C, U]) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("mutation.manager", w.manager.Name()))
	return w.opts.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func (w *Writable[V, E, C, U]) finish(ctx context.Context, span trace.Span, r *flowRun[V], err error) (*mutation.Outcome[V], error) {
	if err != nil {
		r.logger.Error("flow faulted: %v", err)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out := r.outcome
	if finalizer, ok := w.manager.(OutcomeFinalizer[V]); ok {
		if finalized := finalizer.BeforeReturn(ctx, out); finalized != nil {
			out = finalized
		}
	}
	span.SetAttributes(
		attribute.Bool("mutation.ok", out.Ok()),
		attribute.Int("mutation.entries", len(out.Entries())),
	)
	if exc := out.Exception(); exc != nil {
		span.RecordError(exc)
		span.SetStatus(codes.Error, exc.Error())
	}
	return out, nil
}

// flowRun is the state of one request through a flow.
type flowRun[V any] struct {
	c       *mutation.Context
	outcome *mutation.Outcome[V]
	logger  Logger
	tx      store.Transaction
	settled bool
}

func (r *flowRun[V]) withFields(fields map[string]any) {
	r.logger = withLoggerFields(r.logger, fields)
}

// fail rolls back and records err on the outcome.
func (r *flowRun[V]) fail(ctx context.Context, err error, details ...mutation.Detail) {
	_ = r.rollback(ctx, nil)
	r.outcome.AddError(err, details...)
}

func (r *flowRun[V]) commit(ctx context.Context) error {
	if r.tx == nil || r.settled {
		return nil
	}
	r.settled = true
	if err := r.tx.Commit(ctx); err != nil {
		r.logger.Error("transaction commit failed: %v", err)
		return err
	}
	r.logger.Info("transaction committed")
	return nil
}

// rollback ends the transaction and passes cause through for the caller.
func (r *flowRun[V]) rollback(ctx context.Context, cause error) error {
	if r.tx == nil || r.settled {
		return cause
	}
	r.settled = true
	if err := r.tx.Rollback(ctx); err != nil {
		r.logger.Error("transaction rollback failed: %v", err)
	} else {
		r.logger.Info("transaction rolled back")
	}
	return cause
}

// release rolls back a transaction nothing decided on.
func (r *flowRun[V]) release(ctx context.Context) {
	if r.tx != nil && !r.settled {
		r.logger.Warn("transaction left open by flow, rolling back")
		_ = r.rollback(ctx, nil)
	}
}

func notFound(id uuid.UUID) error {
	return mutation.NewError(mutation.ErrNotFound, fmt.Sprintf("entity %s not found", id), nil, map[string]any{
		"id": id.String(),
	})
}

func persistenceError(res store.SaveResult) error {
	return mutation.NewError(mutation.ErrPersistenceFailed, "", res.Err, nil)
}

func accessDetails(r AccessResult) []mutation.Detail {
	if len(r.Details) == 0 {
		return nil
	}
	return []mutation.Detail{r.Details}
}

func validationDetails(r ValidationResult) []mutation.Detail {
	if len(r.Errors) == 0 {
		return nil
	}
	return []mutation.Detail{r.Errors}
}
