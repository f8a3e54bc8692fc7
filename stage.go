package mutation

// StageName identifies an interceptable point of a create or update flow.
type StageName string

const (
	StageBeforeMapping           StageName = "before_mapping"
	StageBeforeAnyValidations    StageName = "before_any_validations"
	StageBeforeSaveChanges       StageName = "before_save_changes"
	StageAfterSaveChangesSuccess StageName = "after_save_changes_success"
	StageAfterSaveChangesFailed  StageName = "after_save_changes_failed"
)

// Order indexes. Stages run strictly in increasing order within a flow.
const (
	OrderBeforeMapping        = 1
	OrderBeforeAnyValidations = 2
	OrderBeforeSaveChanges    = 3
	OrderAfterSaveChanges     = 4
)

// OrderOf returns the fixed order index of a stage name, 0 if unknown.
func OrderOf(name StageName) int {
	switch name {
	case StageBeforeMapping:
		return OrderBeforeMapping
	case StageBeforeAnyValidations:
		return OrderBeforeAnyValidations
	case StageBeforeSaveChanges:
		return OrderBeforeSaveChanges
	case StageAfterSaveChangesSuccess, StageAfterSaveChangesFailed:
		return OrderAfterSaveChanges
	default:
		return 0
	}
}

// StageKind distinguishes continuable stages from terminal ones.
type StageKind int

const (
	// StageIntermediate lets the pipeline continue unless a hook stops it.
	StageIntermediate StageKind = iota
	// StageTerminal is stopped on construction: the result is final.
	StageTerminal
)

func (k StageKind) String() string {
	if k == StageTerminal {
		return "terminal"
	}
	return "intermediate"
}

// Pipeline is the capability shared by both stage variants.
type Pipeline interface {
	Name() StageName
	OrderIndex() int
	Kind() StageKind
	IsStopped() bool
	Stop()
}

// Stage is one pipeline step bound to the request context and to the
// outcome token T the flow produces. Stopped only moves from false to true.
type Stage[T any] struct {
	name    StageName
	order   int
	kind    StageKind
	ctx     *Context
	stopped bool
}

var _ Pipeline = (*Stage[struct{}])(nil)

// NewStep creates an intermediate stage.
func NewStep[T any](c *Context, name StageName) *Stage[T] {
	return &Stage[T]{
		name:  name,
		order: OrderOf(name),
		kind:  StageIntermediate,
		ctx:   c,
	}
}

// NewTerminal creates a terminal stage, already stopped.
func NewTerminal[T any](c *Context, name StageName) *Stage[T] {
	s := &Stage[T]{
		name:  name,
		order: OrderOf(name),
		kind:  StageTerminal,
		ctx:   c,
	}
	s.Stop()
	return s
}

func (s *Stage[T]) Name() StageName   { return s.name }
func (s *Stage[T]) OrderIndex() int   { return s.order }
func (s *Stage[T]) Kind() StageKind   { return s.kind }
func (s *Stage[T]) IsStopped() bool   { return s.stopped }
func (s *Stage[T]) Context() *Context { return s.ctx }

// Stop ends the pipeline without recording anything.
func (s *Stage[T]) Stop() {
	s.stopped = true
}

// StopWithError records err on the flow outcome and stops the pipeline.
func (s *Stage[T]) StopWithError(err error, details ...Detail) error {
	return s.stopWith(func() error { return AddError[T](s.ctx, err, details...) })
}

// StopWithErrorMessage records an error message and stops the pipeline.
func (s *Stage[T]) StopWithErrorMessage(message string, details ...Detail) error {
	return s.stopWith(func() error { return AddErrorMessage[T](s.ctx, message, details...) })
}

func (s *Stage[T]) StopWithWarning(message string, details ...Detail) error {
	return s.stopWith(func() error { return AddWarning[T](s.ctx, message, details...) })
}

func (s *Stage[T]) StopWithSuccess(message string, details ...Detail) error {
	return s.stopWith(func() error { return AddSuccess[T](s.ctx, message, details...) })
}

func (s *Stage[T]) StopWithInfo(message string, details ...Detail) error {
	return s.stopWith(func() error { return AddInfo[T](s.ctx, message, details...) })
}

func (s *Stage[T]) stopWith(record func() error) error {
	if s.ctx == nil {
		return argumentInvalid("stage has no context", map[string]any{"stage": string(s.name)})
	}
	if err := record(); err != nil {
		return err
	}
	s.stopped = true
	return nil
}
