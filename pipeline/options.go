package pipeline

import (
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/goliatone/go-mutation"
)

const tracerName = "github.com/goliatone/go-mutation/pipeline"

// Option configures Writable and ReadOnly.
type Option func(*options)

type options struct {
	logger        Logger
	tracer        trace.Tracer
	autoHistory   bool
	anonymousName string
	principals    mutation.PrincipalProvider
	now           func() time.Time
	panics        PanicLogger
}

func defaultOptions() options {
	return options{
		logger:        NewFmtLogger(nil),
		tracer:        otel.Tracer(tracerName),
		anonymousName: mutation.AnonymousName,
		principals:    mutation.ContextPrincipalProvider{},
		now:           func() time.Time { return time.Now().UTC() },
	}
}

func applyOptions(opts ...Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	o.logger = normalizeLogger(o.logger)
	return o
}

// WithLogger sets the logger. A nil logger falls back to FmtLogger.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithTracer overrides the tracer taken from the global otel provider.
func WithTracer(tracer trace.Tracer) Option {
	return func(o *options) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithAutoHistory toggles history tracking passed to SaveChanges.
func WithAutoHistory(enabled bool) Option {
	return func(o *options) {
		o.autoHistory = enabled
	}
}

// WithAnonymousName sets the audit author used when no principal is present.
func WithAnonymousName(name string) Option {
	return func(o *options) {
		if name != "" {
			o.anonymousName = name
		}
	}
}

// WithPrincipalProvider sets the source of the caller identity used for
// audit stamping.
func WithPrincipalProvider(p mutation.PrincipalProvider) Option {
	return func(o *options) {
		if p != nil {
			o.principals = p
		}
	}
}

// WithClock overrides the audit clock.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithPanicLogger sets the reporter for panics recovered from stage hooks.
// By default they are logged at error level.
func WithPanicLogger(report PanicLogger) Option {
	return func(o *options) {
		o.panics = report
	}
}
