package pipeline

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-mutation"
	"github.com/goliatone/go-mutation/store"
)

// TotalCountPrefix tags the info entry carrying the unpaged item count.
const TotalCountPrefix = "$_TOTAL_COUNT_$"

// QueryParams selects a page of entities.
type QueryParams[E any] struct {
	PageIndex int
	PageSize  int
	Filter    func(E) bool
	Less      func(a, b E) bool
}

// ReadOnly serves single and paged reads through the same access and
// mapping collaborators the write side uses.
type ReadOnly[V any, E mutation.Entity] struct {
	reader    store.Reader[E]
	view      Mapper[E, V]
	access    AccessChecker[E]
	finalizer OutcomeFinalizer[V]
	opts      options
}

// NewReadOnly builds a read side over reader.
func NewReadOnly[V any, E mutation.Entity](reader store.Reader[E], view Mapper[E, V], opts ...Option) (*ReadOnly[V, E], error) {
	if mutation.IsNil(reader) {
		return nil, mutation.NewError(mutation.ErrArgumentInvalid, "reader is required", nil, nil)
	}
	if mutation.IsNil(view) {
		return nil, mutation.NewError(mutation.ErrArgumentInvalid, "view mapper is required", nil, nil)
	}
	return &ReadOnly[V, E]{reader: reader, view: view, opts: applyOptions(opts...)}, nil
}

// ReadOnlyFor builds the read side matching a writable orchestrator,
// picking up the manager access checker and outcome finalizer.
func ReadOnlyFor[V any, E mutation.Entity, C any, U any](w *Writable[V, E, C, U], opts ...Option) *ReadOnly[V, E] {
	ro := &ReadOnly[V, E]{
		reader: w.uow,
		view:   w.manager.ViewMapper(),
		opts:   w.opts,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&ro.opts)
		}
	}
	ro.opts.logger = normalizeLogger(ro.opts.logger)
	if checker, ok := w.manager.(AccessChecker[E]); ok {
		ro.access = checker
	}
	if finalizer, ok := w.manager.(OutcomeFinalizer[V]); ok {
		ro.finalizer = finalizer
	}
	return ro
}

// WithAccessChecker restricts reads to entities the checker allows.
func (ro *ReadOnly[V, E]) WithAccessChecker(checker AccessChecker[E]) *ReadOnly[V, E] {
	ro.access = checker
	return ro
}

// WithFinalizer post-processes every single-item outcome.
func (ro *ReadOnly[V, E]) WithFinalizer(finalizer OutcomeFinalizer[V]) *ReadOnly[V, E] {
	ro.finalizer = finalizer
	return ro
}

// GetByID returns the view of one entity.
func (ro *ReadOnly[V, E]) GetByID(ctx context.Context, id uuid.UUID) (*mutation.Outcome[V], error) {
	ctx, span := ro.opts.tracer.Start(ctx, "mutation.get", trace.WithAttributes(
		attribute.String("mutation.entity_id", id.String()),
	))
	defer span.End()

	logger := withLoggerFields(ro.opts.logger.WithContext(ctx), map[string]any{
		"flow":      "get",
		"entity_id": id.String(),
	})
	out := mutation.NewOutcome[V]()

	entity, found, err := ro.reader.Find(ctx, id)
	switch {
	case err != nil:
		logger.Error("lookup failed: %v", err)
		out.AddError(mutation.NewError(mutation.ErrPersistenceFailed, "entity lookup failed", err, nil))
	case !found:
		out.AddError(notFound(id))
	default:
		if access := ro.checkAccess(ctx, entity); !access.IsOk {
			logger.Warn("access denied: %s", access)
			out.AddError(mutation.NewError(mutation.ErrUnauthorized, access.String(), nil, nil), accessDetails(access)...)
			break
		}
		view, err := ro.view.Map(ctx, entity)
		if err != nil {
			out.AddError(mutation.NewError(mutation.ErrMappingFailed, "view mapping failed", err, nil))
			break
		}
		out.SetResult(view)
	}

	if ro.finalizer != nil {
		if finalized := ro.finalizer.BeforeReturn(ctx, out); finalized != nil {
			out = finalized
		}
	}
	recordOutcome(span, out.Exception())
	return out, nil
}

// GetPaged returns one page of views. A page index past the last page falls
// back to the first page; items the access checker refuses are dropped and
// reported as a warning. An info entry carries the total count.
func (ro *ReadOnly[V, E]) GetPaged(ctx context.Context, q QueryParams[E]) (*mutation.Outcome[store.Page[V]], error) {
	ctx, span := ro.opts.tracer.Start(ctx, "mutation.list", trace.WithAttributes(
		attribute.Int("mutation.page_index", q.PageIndex),
		attribute.Int("mutation.page_size", q.PageSize),
	))
	defer span.End()

	logger := withLoggerFields(ro.opts.logger.WithContext(ctx), map[string]any{"flow": "list"})
	out := mutation.NewOutcome[store.Page[V]]()

	if q.PageSize < 1 {
		errs := mutation.ValidationErrors{{Field: "PageSize", Message: "page size should be more than 0"}}
		out.AddError(mutation.NewError(mutation.ErrValidationFailed, errs.String(), nil, map[string]any{
			"page_size": q.PageSize,
		}), errs)
		recordOutcome(span, out.Exception())
		return out, nil
	}

	query := store.ListQuery[E]{
		Filter:    q.Filter,
		Less:      q.Less,
		PageIndex: q.PageIndex,
		PageSize:  q.PageSize,
	}
	page, err := ro.reader.List(ctx, query)
	if err == nil && page.PageIndex > 0 && page.PageIndex >= page.TotalPages {
		logger.Debug("page %d beyond last page %d, using first page", page.PageIndex, page.TotalPages)
		query.PageIndex = 0
		page, err = ro.reader.List(ctx, query)
	}
	if err != nil {
		logger.Error("list failed: %v", err)
		out.AddError(mutation.NewError(mutation.ErrPersistenceFailed, "list failed", err, nil))
		recordOutcome(span, out.Exception())
		return out, nil
	}

	views := make([]V, 0, len(page.Items))
	denied := 0
	for _, item := range page.Items {
		if access := ro.checkAccess(ctx, item); !access.IsOk {
			denied++
			continue
		}
		view, err := ro.view.Map(ctx, item)
		if err != nil {
			out.AddError(mutation.NewError(mutation.ErrMappingFailed, "view mapping failed", err, map[string]any{
				"id": item.GetID().String(),
			}))
			recordOutcome(span, out.Exception())
			return out, nil
		}
		views = append(views, view)
	}
	if denied > 0 {
		logger.Warn("%d item(s) hidden by access check", denied)
		out.AddWarning(fmt.Sprintf("%d item(s) hidden by access check", denied))
	}

	out.SetResult(store.Page[V]{
		Items:      views,
		PageIndex:  page.PageIndex,
		PageSize:   page.PageSize,
		TotalCount: page.TotalCount,
		TotalPages: page.TotalPages,
	})
	out.AddInfo(fmt.Sprintf("%s: %d", TotalCountPrefix, page.TotalCount))
	span.SetAttributes(attribute.Int("mutation.total_count", page.TotalCount))
	recordOutcome(span, nil)
	return out, nil
}

func (ro *ReadOnly[V, E]) checkAccess(ctx context.Context, entity E) AccessResult {
	if ro.access == nil {
		return Allow()
	}
	return ro.access.CheckAccess(ctx, entity)
}

func recordOutcome(span trace.Span, exc error) {
	if exc == nil {
		span.SetAttributes(attribute.Bool("mutation.ok", true))
		return
	}
	span.SetAttributes(attribute.Bool("mutation.ok", false))
	span.RecordError(exc)
	span.SetStatus(codes.Error, exc.Error())
}
