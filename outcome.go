package mutation

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Kind classifies an outcome entry.
type Kind string

const (
	KindError   Kind = "error"
	KindWarning Kind = "warning"
	KindSuccess Kind = "success"
	KindInfo    Kind = "info"
)

// Entry is one message recorded in an outcome log.
type Entry struct {
	Kind      Kind      `json:"kind"`
	Message   string    `json:"message"`
	Code      string    `json:"code,omitempty"`
	Detail    Detail    `json:"detail,omitempty"`
	Err       error     `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// Outcome is the accumulated result of one operation: an ordered entry log,
// an optional result value and an optional captured error.
type Outcome[T any] struct {
	ID        uuid.UUID
	CreatedAt time.Time
	entries   []Entry
	logs      []string
	result    T
	hasResult bool
	exception error
}

// NewOutcome creates an empty outcome.
func NewOutcome[T any]() *Outcome[T] {
	return &Outcome[T]{
		ID:        uuid.New(),
		CreatedAt: time.Now().UTC(),
	}
}

// Success builds an outcome holding result and an optional success message.
func Success[T any](result T, message string) *Outcome[T] {
	o := NewOutcome[T]()
	if message != "" {
		o.AddSuccess(message)
	}
	o.SetResult(result)
	return o
}

// Info builds an outcome holding result and an info message.
func Info[T any](result T, message string) *Outcome[T] {
	o := NewOutcome[T]()
	o.AddInfo(message)
	o.SetResult(result)
	return o
}

// Warning builds an outcome holding result and a warning message.
func Warning[T any](result T, message string) *Outcome[T] {
	o := NewOutcome[T]()
	o.AddWarning(message)
	o.SetResult(result)
	return o
}

// Failure builds an outcome holding a single error entry.
func Failure[T any](err error, details ...Detail) *Outcome[T] {
	o := NewOutcome[T]()
	o.AddError(err, details...)
	return o
}

// AddError appends an error entry and captures err as the outcome exception.
func (o *Outcome[T]) AddError(err error, details ...Detail) *Outcome[T] {
	if err == nil {
		return o
	}
	o.exception = err
	return o.add(Entry{
		Kind:    KindError,
		Message: err.Error(),
		Code:    ErrorCode(err),
		Detail:  firstDetail(details),
		Err:     err,
	})
}

// AddErrorMessage appends an error entry without capturing an exception.
func (o *Outcome[T]) AddErrorMessage(message string, details ...Detail) *Outcome[T] {
	return o.add(Entry{Kind: KindError, Message: message, Detail: firstDetail(details)})
}

func (o *Outcome[T]) AddWarning(message string, details ...Detail) *Outcome[T] {
	return o.add(Entry{Kind: KindWarning, Message: message, Detail: firstDetail(details)})
}

func (o *Outcome[T]) AddSuccess(message string, details ...Detail) *Outcome[T] {
	return o.add(Entry{Kind: KindSuccess, Message: message, Detail: firstDetail(details)})
}

func (o *Outcome[T]) AddInfo(message string, details ...Detail) *Outcome[T] {
	return o.add(Entry{Kind: KindInfo, Message: message, Detail: firstDetail(details)})
}

func (o *Outcome[T]) add(e Entry) *Outcome[T] {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	o.entries = append(o.entries, e)
	return o
}

// AppendLog adds free-form log lines.
func (o *Outcome[T]) AppendLog(lines ...string) *Outcome[T] {
	o.logs = append(o.logs, lines...)
	return o
}

// SetResult stores the result value.
func (o *Outcome[T]) SetResult(v T) {
	o.result = v
	o.hasResult = true
}

// ClearResult drops any stored result.
func (o *Outcome[T]) ClearResult() {
	var zero T
	o.result = zero
	o.hasResult = false
}

// Result returns the raw stored result and whether one was set.
func (o *Outcome[T]) Result() (T, bool) {
	return o.result, o.hasResult
}

// Value returns the result as seen by a response: once an exception is
// attached the result is reported as unset.
func (o *Outcome[T]) Value() (T, bool) {
	if o.exception != nil {
		var zero T
		return zero, false
	}
	return o.result, o.hasResult
}

// Exception returns the captured error, if any.
func (o *Outcome[T]) Exception() error {
	return o.exception
}

// Entries returns a copy of the entry log.
func (o *Outcome[T]) Entries() []Entry {
	out := make([]Entry, len(o.entries))
	copy(out, o.entries)
	return out
}

// EntriesOf returns the entries of the given kind.
func (o *Outcome[T]) EntriesOf(kind Kind) []Entry {
	var out []Entry
	for _, e := range o.entries {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Errors returns the error entries.
func (o *Outcome[T]) Errors() []Entry {
	return o.EntriesOf(KindError)
}

// HasErrors reports whether any error entry was recorded.
func (o *Outcome[T]) HasErrors() bool {
	for _, e := range o.entries {
		if e.Kind == KindError {
			return true
		}
	}
	return false
}

// Ok reports an outcome without errors.
func (o *Outcome[T]) Ok() bool {
	return !o.HasErrors() && o.exception == nil
}

// Logs returns the appended log lines.
func (o *Outcome[T]) Logs() []string {
	out := make([]string, len(o.logs))
	copy(out, o.logs)
	return out
}

// Message returns the most recently recorded message.
func (o *Outcome[T]) Message() string {
	if len(o.entries) == 0 {
		return ""
	}
	return o.entries[len(o.entries)-1].Message
}

// Merge folds other into o. Entries and logs are appended, a result or
// exception on other overrides the one on o.
func (o *Outcome[T]) Merge(other *Outcome[T]) {
	if other == nil || other == o {
		return
	}
	o.entries = append(o.entries, other.entries...)
	o.logs = append(o.logs, other.logs...)
	if other.hasResult {
		o.result = other.result
		o.hasResult = true
	}
	if other.exception != nil {
		o.exception = other.exception
	}
}

type outcomeJSON[T any] struct {
	ID        uuid.UUID `json:"id"`
	Ok        bool      `json:"ok"`
	Message   string    `json:"message,omitempty"`
	Result    *T        `json:"result,omitempty"`
	Exception string    `json:"exception,omitempty"`
	Entries   []Entry   `json:"entries,omitempty"`
	Logs      []string  `json:"logs,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// MarshalJSON renders the response view of the outcome.
func (o *Outcome[T]) MarshalJSON() ([]byte, error) {
	payload := outcomeJSON[T]{
		ID:        o.ID,
		Ok:        o.Ok(),
		Message:   o.Message(),
		Entries:   o.entries,
		Logs:      o.logs,
		CreatedAt: o.CreatedAt,
	}
	if v, ok := o.Value(); ok {
		payload.Result = &v
	}
	if o.exception != nil {
		payload.Exception = o.exception.Error()
	}
	return json.Marshal(payload)
}
