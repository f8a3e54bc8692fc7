package mutation

import (
	"fmt"
	"reflect"
	"strings"
)

// Well-known parameter names.
const (
	KeyEntity          = "Entity"
	KeyCreateViewModel = "CreateViewModel"
	KeyUpdateViewModel = "UpdateViewModel"
	KeyViewModel       = "ViewModel"

	KeyDate       = "Date"
	KeyDateTime   = "DateTime"
	KeyDateFrom   = "DateFrom"
	KeyDateTo     = "DateTo"
	KeyTotal      = "Total"
	KeyCount      = "Count"
	KeyIdentifier = "Identifier"
	KeyMessage    = "Message"
	KeyItems      = "Items"
	KeyUserName   = "UserName"
)

// Parameter is one named value held by a Context.
type Parameter struct {
	Name  string
	Value any
	// Type is the declared Go type of Value at insertion time.
	Type string
}

type outcomeKey[T any] struct{}

// Context is the per-request store shared by every stage of one flow. It
// holds at most one parameter per name (case-insensitive) and at most one
// outcome per result type. It is not safe for concurrent use.
type Context struct {
	params   []Parameter
	outcomes map[any]any
}

// NewContext creates an empty context.
func NewContext() *Context {
	return &Context{outcomes: make(map[any]any)}
}

// AddOrUpdateParameter stores value under name, replacing any previous entry.
func (c *Context) AddOrUpdateParameter(name string, value any) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return argumentInvalid("parameter name cannot be empty", nil)
	}
	if isNil(value) {
		return argumentInvalid("parameter value cannot be nil", map[string]any{"name": name})
	}

	param := Parameter{Name: name, Value: value, Type: fmt.Sprintf("%T", value)}
	if idx := c.indexOf(name); idx >= 0 {
		c.params[idx] = param
		return nil
	}
	c.params = append(c.params, param)
	return nil
}

// Parameter returns the raw parameter stored under name.
func (c *Context) Parameter(name string) (Parameter, bool) {
	idx := c.indexOf(name)
	if idx < 0 {
		return Parameter{}, false
	}
	return c.params[idx], true
}

// Has reports whether a parameter exists for name.
func (c *Context) Has(name string) bool {
	return c.indexOf(name) >= 0
}

// Parameters returns a copy of the stored parameters in insertion order.
func (c *Context) Parameters() []Parameter {
	out := make([]Parameter, len(c.params))
	copy(out, c.params)
	return out
}

// SetEntity stores the current entity.
func (c *Context) SetEntity(entity any) error {
	return c.AddOrUpdateParameter(KeyEntity, entity)
}

// SetCreateViewModel stores the inbound create view-model.
func (c *Context) SetCreateViewModel(model any) error {
	return c.AddOrUpdateParameter(KeyCreateViewModel, model)
}

// SetUpdateViewModel stores the inbound update view-model.
func (c *Context) SetUpdateViewModel(model any) error {
	return c.AddOrUpdateParameter(KeyUpdateViewModel, model)
}

func (c *Context) indexOf(name string) int {
	name = strings.TrimSpace(name)
	for i, p := range c.params {
		if strings.EqualFold(p.Name, name) {
			return i
		}
	}
	return -1
}

// GetParamByName returns the parameter stored under name coerced to T. An
// absent name yields the zero value of T. A value that cannot be coerced
// yields an ArgumentInvalid error.
func GetParamByName[T any](c *Context, name string) (T, error) {
	var zero T
	p, ok := c.Parameter(name)
	if !ok {
		return zero, nil
	}
	out, err := coerce[T](p.Value)
	if err != nil {
		return zero, NewError(ErrArgumentInvalid, "parameter cannot be converted", err, map[string]any{
			"name":     p.Name,
			"stored":   p.Type,
			"expected": tokenName[T](),
		})
	}
	return out, nil
}

// GetEntity returns the current entity.
func GetEntity[T any](c *Context) (T, error) {
	return required[T](c, KeyEntity)
}

// GetCreateViewModel returns the inbound create view-model.
func GetCreateViewModel[T any](c *Context) (T, error) {
	return required[T](c, KeyCreateViewModel)
}

// GetUpdateViewModel returns the inbound update view-model.
func GetUpdateViewModel[T any](c *Context) (T, error) {
	return required[T](c, KeyUpdateViewModel)
}

func required[T any](c *Context, name string) (T, error) {
	if !c.Has(name) {
		var zero T
		return zero, argumentInvalid("required context parameter missing", map[string]any{"name": name})
	}
	return GetParamByName[T](c, name)
}

// InitOrUpdate stores outcome for token T. With no outcome a fresh one is
// created. When an outcome already exists for T the supplied one is merged
// into it, so the instance returned is stable for the whole request.
func InitOrUpdate[T any](c *Context, outcome ...*Outcome[T]) *Outcome[T] {
	var supplied *Outcome[T]
	if len(outcome) > 0 {
		supplied = outcome[0]
	}

	if existing, ok := c.outcomes[outcomeKey[T]{}].(*Outcome[T]); ok && existing != nil {
		existing.Merge(supplied)
		return existing
	}

	if supplied == nil {
		supplied = NewOutcome[T]()
	}
	c.outcomes[outcomeKey[T]{}] = supplied
	return supplied
}

// GetOutcome returns the outcome for token T.
func GetOutcome[T any](c *Context) (*Outcome[T], error) {
	if existing, ok := c.outcomes[outcomeKey[T]{}].(*Outcome[T]); ok && existing != nil {
		return existing, nil
	}
	return nil, outcomeMissing(tokenName[T]())
}

// AddError records err on the outcome for token T.
func AddError[T any](c *Context, err error, details ...Detail) error {
	if err == nil {
		return argumentInvalid("error cannot be nil", map[string]any{"token": tokenName[T]()})
	}
	o, oerr := GetOutcome[T](c)
	if oerr != nil {
		return oerr
	}
	o.AddError(err, details...)
	return nil
}

// AddErrorMessage records an error message on the outcome for token T.
func AddErrorMessage[T any](c *Context, message string, details ...Detail) error {
	o, err := GetOutcome[T](c)
	if err != nil {
		return err
	}
	o.AddErrorMessage(message, details...)
	return nil
}

func AddWarning[T any](c *Context, message string, details ...Detail) error {
	o, err := GetOutcome[T](c)
	if err != nil {
		return err
	}
	o.AddWarning(message, details...)
	return nil
}

func AddSuccess[T any](c *Context, message string, details ...Detail) error {
	o, err := GetOutcome[T](c)
	if err != nil {
		return err
	}
	o.AddSuccess(message, details...)
	return nil
}

func AddInfo[T any](c *Context, message string, details ...Detail) error {
	o, err := GetOutcome[T](c)
	if err != nil {
		return err
	}
	o.AddInfo(message, details...)
	return nil
}

// AppendLog adds log lines to the outcome for token T.
func AppendLog[T any](c *Context, lines ...string) error {
	o, err := GetOutcome[T](c)
	if err != nil {
		return err
	}
	o.AppendLog(lines...)
	return nil
}

// SetResult stores v as the result of the outcome for token T.
func SetResult[T any](c *Context, v T) error {
	o, err := GetOutcome[T](c)
	if err != nil {
		return err
	}
	o.SetResult(v)
	return nil
}

// GetResult returns the result stored on the outcome for token T.
func GetResult[T any](c *Context) (T, error) {
	var zero T
	o, err := GetOutcome[T](c)
	if err != nil {
		return zero, err
	}
	v, ok := o.Result()
	if !ok {
		return zero, argumentInvalid("operation result not set", map[string]any{
			"name":  KeyViewModel,
			"token": tokenName[T](),
		})
	}
	return v, nil
}

// GetMessage returns the last message recorded for token T.
func GetMessage[T any](c *Context) (string, error) {
	o, err := GetOutcome[T](c)
	if err != nil {
		return "", err
	}
	return o.Message(), nil
}

func tokenName[T any]() string {
	return strings.TrimPrefix(fmt.Sprintf("%T", (*T)(nil)), "*")
}

// IsNil reports whether v is nil or a typed nil reference.
func IsNil(v any) bool {
	return isNil(v)
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}
