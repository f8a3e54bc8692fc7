package mutation

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutcomeBuilders(t *testing.T) {
	ok := Success(3, "saved")
	v, found := ok.Value()
	require.True(t, found)
	assert.Equal(t, 3, v)
	assert.True(t, ok.Ok())
	assert.Equal(t, "saved", ok.Message())

	silent := Success(1, "")
	assert.Empty(t, silent.Entries())

	info := Info("x", "note")
	assert.Len(t, info.EntriesOf(KindInfo), 1)

	warn := Warning("x", "careful")
	assert.True(t, warn.Ok(), "warnings do not fail an outcome")

	failed := Failure[int](ErrNotFound.Clone(), Fields{"id": 7})
	assert.False(t, failed.Ok())
	require.Len(t, failed.Errors(), 1)
	assert.Equal(t, CodeNotFound, failed.Errors()[0].Code)
	assert.Equal(t, Fields{"id": 7}, failed.Errors()[0].Detail)
}

func TestOutcomeExceptionHidesResult(t *testing.T) {
	o := NewOutcome[string]()
	o.SetResult("draft")
	o.AddError(errors.New("boom"))

	_, visible := o.Value()
	assert.False(t, visible)
	raw, kept := o.Result()
	assert.True(t, kept)
	assert.Equal(t, "draft", raw)

	o.ClearResult()
	_, kept = o.Result()
	assert.False(t, kept)
}

func TestOutcomeErrorMessageHasNoException(t *testing.T) {
	o := NewOutcome[string]()
	o.AddErrorMessage("not good", ValidationErrors{{Field: "name", Message: "is required"}})

	assert.Nil(t, o.Exception())
	assert.True(t, o.HasErrors())
	assert.False(t, o.Ok())
	assert.Equal(t, "not good", o.Message())

	o.AddError(nil)
	assert.Len(t, o.Entries(), 1, "nil errors are ignored")
}

func TestOutcomeMerge(t *testing.T) {
	base := NewOutcome[int]()
	base.AddInfo("first").AppendLog("a")

	other := Success(9, "second")
	other.AppendLog("b")
	other.AddError(ErrHookFailed.Clone())

	base.Merge(other)
	base.Merge(nil)
	base.Merge(base)

	assert.Len(t, base.Entries(), 3)
	assert.Equal(t, []string{"a", "b"}, base.Logs())
	assert.Equal(t, CodeHookFailed, ErrorCode(base.Exception()))
	raw, ok := base.Result()
	require.True(t, ok)
	assert.Equal(t, 9, raw)
}

func TestOutcomeEntriesAreCopies(t *testing.T) {
	o := NewOutcome[int]()
	o.AddInfo("kept")

	entries := o.Entries()
	entries[0].Message = "changed"
	assert.Equal(t, "kept", o.Message())

	logs := o.AppendLog("line").Logs()
	logs[0] = "changed"
	assert.Equal(t, []string{"line"}, o.Logs())
}

func TestOutcomeMarshalJSON(t *testing.T) {
	o := Success(map[string]int{"n": 1}, "done")

	raw, err := json.Marshal(o)
	require.NoError(t, err)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, true, payload["ok"])
	assert.Equal(t, "done", payload["message"])
	assert.Equal(t, map[string]any{"n": float64(1)}, payload["result"])
	assert.NotContains(t, payload, "exception")

	o.AddError(NewError(ErrPersistenceFailed, "disk full", nil, nil))
	raw, err = json.Marshal(o)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &payload))
	assert.Equal(t, false, payload["ok"])
	assert.Contains(t, payload["exception"], "disk full")
}

func TestNewErrorClonesBase(t *testing.T) {
	source := errors.New("io")
	err := NewError(ErrPersistenceFailed, "write failed", source, map[string]any{"table": "entities"})

	assert.Equal(t, CodePersistenceFailed, ErrorCode(err))
	assert.Equal(t, "write failed", err.Message)
	assert.ErrorIs(t, err, source)
	assert.Equal(t, "persistence failed", ErrPersistenceFailed.Message, "sentinels are never mutated")

	assert.Equal(t, CodeArgumentInvalid, ErrorCode(NewError(nil, "", nil, nil)))
	assert.Empty(t, ErrorCode(errors.New("plain")))
}
