package pipeline

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/goliatone/go-mutation"
	"github.com/goliatone/go-mutation/store"
)

type note struct {
	mutation.Identity
	mutation.Audit
	Title string `json:"title"`
	Owner string `json:"owner"`
}

type noteView struct {
	ID        uuid.UUID
	Title     string
	CreatedBy string
	UpdatedBy string
}

type createNote struct {
	Title string
	Owner string
}

type updateNote struct {
	Title string
}

type fakeTx struct {
	commits   int
	rollbacks int
}

func (t *fakeTx) Commit(context.Context) error {
	t.commits++
	return nil
}

func (t *fakeTx) Rollback(context.Context) error {
	t.rollbacks++
	return nil
}

// fakeUoW records every collaborator call made by the orchestrator.
type fakeUoW struct {
	items        map[uuid.UUID]*note
	tx           *fakeTx
	beginErr     error
	saveErr      error
	findErr      error
	begins       int
	finds        int
	inserts      int
	updates      int
	deletes      int
	saves        int
	trackHistory []bool
	queued       []func()
}

func newFakeUoW(seed ...*note) *fakeUoW {
	u := &fakeUoW{items: map[uuid.UUID]*note{}, tx: &fakeTx{}}
	for _, n := range seed {
		u.items[n.ID] = n
	}
	return u
}

func (u *fakeUoW) BeginTransaction(context.Context) (store.Transaction, error) {
	u.begins++
	if u.beginErr != nil {
		return nil, u.beginErr
	}
	return u.tx, nil
}

func (u *fakeUoW) Find(_ context.Context, id uuid.UUID) (*note, bool, error) {
	u.finds++
	if u.findErr != nil {
		return nil, false, u.findErr
	}
	n, ok := u.items[id]
	if !ok {
		return nil, false, nil
	}
	cp := *n
	return &cp, true, nil
}

func (u *fakeUoW) List(_ context.Context, q store.ListQuery[*note]) (store.Page[*note], error) {
	items := make([]*note, 0, len(u.items))
	for _, n := range u.items {
		items = append(items, n)
	}
	return store.Paginate(items, q), nil
}

func (u *fakeUoW) Insert(_ context.Context, n *note) error {
	u.inserts++
	u.queued = append(u.queued, func() { u.items[n.ID] = n })
	return nil
}

func (u *fakeUoW) Update(_ context.Context, n *note) error {
	u.updates++
	u.queued = append(u.queued, func() { u.items[n.ID] = n })
	return nil
}

func (u *fakeUoW) Delete(_ context.Context, n *note) error {
	u.deletes++
	u.queued = append(u.queued, func() { delete(u.items, n.ID) })
	return nil
}

func (u *fakeUoW) SaveChanges(_ context.Context, trackHistory bool) store.SaveResult {
	u.saves++
	u.trackHistory = append(u.trackHistory, trackHistory)
	queued := u.queued
	u.queued = nil
	if u.saveErr != nil {
		return store.SaveFailed(u.saveErr)
	}
	for _, apply := range queued {
		apply()
	}
	return store.Saved()
}

type fakeValidator struct {
	needToStop bool
	stopErrors mutation.ValidationErrors
	errs       mutation.ValidationErrors
	calls      []OperationKind
}

func (v *fakeValidator) IsNeedToStop() bool { return v.needToStop }

func (v *fakeValidator) ValidationContext() ValidationResult {
	return ValidationResult{Errors: v.stopErrors}
}

func (v *fakeValidator) ValidateByOperationType(_ context.Context, kind OperationKind, _ *note) ValidationResult {
	v.calls = append(v.calls, kind)
	return ValidationResult{Errors: v.errs}
}

type fakeFactory struct{}

func (fakeFactory) GenerateForCreate(context.Context) *mutation.Outcome[createNote] {
	return mutation.Success(createNote{Title: "untitled"}, "")
}

func (fakeFactory) GenerateForUpdate(_ context.Context, id uuid.UUID) *mutation.Outcome[updateNote] {
	return mutation.Success(updateNote{Title: id.String()}, "")
}

type stageCall struct {
	flow  string
	stage mutation.StageName
	order int
}

// testManager records the stages it sees and lets a test intercept any of them.
type testManager struct {
	BaseManager[noteView, *note, createNote, updateNote]
	validator  *fakeValidator
	calls      []stageCall
	intercept  func(flow string, stage *mutation.Stage[noteView]) error
	createMaps int
	updateMaps int
	mapToNil   bool
	updateErr  error
}

func newTestManager() *testManager {
	m := &testManager{validator: &fakeValidator{}}
	m.ManagerName = "notes"
	m.Create = MapperFunc[createNote, *note](func(_ context.Context, src createNote) (*note, error) {
		m.createMaps++
		if m.mapToNil {
			return nil, nil
		}
		return &note{Identity: mutation.Identity{ID: uuid.New()}, Title: src.Title, Owner: src.Owner}, nil
	})
	m.Update = IntoMapperFunc[updateNote, *note](func(_ context.Context, src updateNote, dst *note) error {
		m.updateMaps++
		if m.updateErr != nil {
			return m.updateErr
		}
		dst.Title = src.Title
		return nil
	})
	m.View = MapperFunc[*note, noteView](func(_ context.Context, n *note) (noteView, error) {
		return noteView{ID: n.ID, Title: n.Title, CreatedBy: n.CreatedBy, UpdatedBy: n.UpdatedBy}, nil
	})
	m.EntityRules = m.validator
	m.ViewModels = fakeFactory{}
	return m
}

func (m *testManager) record(flow string, stage *mutation.Stage[noteView]) error {
	m.calls = append(m.calls, stageCall{flow: flow, stage: stage.Name(), order: stage.OrderIndex()})
	if m.intercept != nil {
		return m.intercept(flow, stage)
	}
	return nil
}

func (m *testManager) stages() []mutation.StageName {
	out := make([]mutation.StageName, 0, len(m.calls))
	for _, c := range m.calls {
		out = append(out, c.stage)
	}
	return out
}

func (m *testManager) OnCreateBeforeMapping(_ context.Context, s *mutation.Stage[noteView]) error {
	return m.record("create", s)
}

func (m *testManager) OnCreateBeforeAnyValidations(_ context.Context, s *mutation.Stage[noteView]) error {
	return m.record("create", s)
}

func (m *testManager) OnCreateBeforeSaveChanges(_ context.Context, s *mutation.Stage[noteView]) error {
	return m.record("create", s)
}

func (m *testManager) OnCreateAfterSaveChangesSuccess(_ context.Context, s *mutation.Stage[noteView]) error {
	return m.record("create", s)
}

func (m *testManager) OnCreateAfterSaveChangesFailed(_ context.Context, s *mutation.Stage[noteView]) error {
	return m.record("create", s)
}

func (m *testManager) OnUpdateBeforeMapping(_ context.Context, s *mutation.Stage[noteView]) error {
	return m.record("update", s)
}

func (m *testManager) OnUpdateBeforeAnyValidations(_ context.Context, s *mutation.Stage[noteView]) error {
	return m.record("update", s)
}

func (m *testManager) OnUpdateBeforeSaveChanges(_ context.Context, s *mutation.Stage[noteView]) error {
	return m.record("update", s)
}

func (m *testManager) OnUpdateAfterSaveChangesSuccess(_ context.Context, s *mutation.Stage[noteView]) error {
	return m.record("update", s)
}

func (m *testManager) OnUpdateAfterSaveChangesFailed(_ context.Context, s *mutation.Stage[noteView]) error {
	return m.record("update", s)
}

// ownerOnly denies access to notes owned by someone else than allowed.
type ownerOnly struct {
	*testManager
	allowed string
}

func (o ownerOnly) CheckAccess(_ context.Context, n *note) AccessResult {
	if n.Owner == o.allowed {
		return Allow()
	}
	return Deny("owner mismatch")
}

type finalizing struct {
	*testManager
}

func (finalizing) BeforeReturn(_ context.Context, out *mutation.Outcome[noteView]) *mutation.Outcome[noteView] {
	return out.AppendLog("finalized")
}

var errBoom = errors.New("boom")
