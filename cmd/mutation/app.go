package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-mutation"
	"github.com/goliatone/go-mutation/config"
	"github.com/goliatone/go-mutation/examples/notes"
	"github.com/goliatone/go-mutation/pipeline"
	"github.com/goliatone/go-mutation/registry"
	"github.com/goliatone/go-mutation/store"
	"github.com/goliatone/go-mutation/store/memory"
	"github.com/goliatone/go-mutation/store/sqlite"
)

type app struct {
	ctx     context.Context
	cfg     config.Config
	logger  pipeline.Logger
	out     io.Writer
	uow     store.UnitOfWork[*notes.Note]
	history store.HistoryStore
	writer  *pipeline.Writable[notes.View, *notes.Note, notes.CreateNote, notes.UpdateNote]
	reader  *pipeline.ReadOnly[notes.View, *notes.Note]
	closers []func() error
}

func newApp(ctx context.Context, configPath, as string, stdout, stderr io.Writer) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	a := &app{
		ctx:    ctx,
		cfg:    cfg,
		logger: newLogger(cfg.Log, stderr),
		out:    stdout,
	}
	if as != "" {
		a.ctx = mutation.ContextWithPrincipal(ctx, mutation.Principal{Name: as, Authenticated: true})
	}

	if err := a.openStore(); err != nil {
		return nil, err
	}

	reg := registry.New()
	manager := notes.NewManager(notes.Rules{}, a.uow)
	manager.OwnerOnly = true
	if err := registry.Register[notes.View, *notes.Note, notes.CreateNote, notes.UpdateNote](reg, manager); err != nil {
		a.Close()
		return nil, err
	}
	if err := reg.Initialize(); err != nil {
		a.Close()
		return nil, err
	}

	a.writer, err = registry.Writable[notes.View, *notes.Note, notes.CreateNote, notes.UpdateNote](reg, a.uow, nil,
		pipeline.WithLogger(a.logger),
		pipeline.WithAutoHistory(cfg.AutoHistory),
		pipeline.WithAnonymousName(cfg.AnonymousName),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.reader = pipeline.ReadOnlyFor(a.writer)
	return a, nil
}

func (a *app) openStore() error {
	switch a.cfg.Store.Driver {
	case config.DriverSQLite:
		db, err := sqlite.Open(a.cfg.Store.DSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, db.Close)
		a.uow = sqlite.New[*notes.Note](db, notes.Kind)
		a.history = db
	default:
		db := memory.NewDB()
		a.uow = memory.New[*notes.Note](db, notes.Kind)
		a.history = db
	}
	a.logger.Debug("store opened: %s", a.cfg.Store.Driver)
	return nil
}

func (a *app) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// report prints an outcome and turns a failed one into an error so the
// process exits non-zero.
func report[T any](a *app, out *mutation.Outcome[T], err error) error {
	if err != nil {
		return err
	}
	if perr := a.print(out); perr != nil {
		return perr
	}
	if !out.Ok() {
		if exc := out.Exception(); exc != nil {
			return exc
		}
		return fmt.Errorf("%s", out.Message())
	}
	return nil
}

func newLogger(cfg config.LogConfig, w io.Writer) pipeline.Logger {
	if cfg.Format == "json" {
		return pipeline.NewGlogLogger(glog.NewLogger(
			glog.WithWriter(w),
			glog.WithLoggerTypeJSON(),
			glog.WithLevel(cfg.Level),
		))
	}
	return pipeline.NewGlogLogger(glog.NewLogger(
		glog.WithWriter(w),
		glog.WithLevel(cfg.Level),
	))
}
