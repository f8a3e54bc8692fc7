package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/goliatone/go-mutation/cron"
	"github.com/goliatone/go-mutation/examples/notes"
	"github.com/goliatone/go-mutation/pipeline"
)

type createCmd struct {
	Title string   `arg:"" help:"Note title."`
	Body  string   `help:"Note body." short:"b"`
	Tags  []string `help:"Comma separated tags." short:"t"`
	Owner string   `help:"Owner of the note. Defaults to --as."`
}

func (c *createCmd) Run(a *app) error {
	owner := c.Owner
	if owner == "" {
		if form, err := a.writer.GetViewModelForCreation(a.ctx); err == nil {
			if model, ok := form.Result(); ok {
				owner = model.Owner
			}
		}
	}
	out, err := a.writer.PostItem(a.ctx, notes.CreateNote{
		Title: c.Title,
		Body:  c.Body,
		Tags:  c.Tags,
		Owner: owner,
	})
	return report(a, out, err)
}

type updateCmd struct {
	ID        uuid.UUID `arg:"" help:"Note id."`
	Title     string    `help:"New title."`
	Body      string    `help:"New body." short:"b"`
	ClearBody bool      `help:"Remove the body." name:"clear-body"`
	Tags      []string  `help:"Replace tags." short:"t"`
}

// Run starts from the edit form so unspecified fields keep their value.
func (c *updateCmd) Run(a *app) error {
	form, err := a.writer.GetViewModelForEditing(a.ctx, c.ID)
	if err != nil {
		return err
	}
	model, ok := form.Result()
	if !ok {
		return report(a, form, nil)
	}
	if c.Title != "" {
		model.Title = c.Title
	}
	switch {
	case c.ClearBody:
		model.Body = ""
	case c.Body != "":
		model.Body = c.Body
	}
	if c.Tags != nil {
		model.Tags = c.Tags
	}
	out, err := a.writer.PutItem(a.ctx, c.ID, model)
	return report(a, out, err)
}

type deleteCmd struct {
	ID uuid.UUID `arg:"" help:"Note id."`
}

func (c *deleteCmd) Run(a *app) error {
	out, err := a.writer.DeleteItem(a.ctx, c.ID)
	return report(a, out, err)
}

type getCmd struct {
	ID uuid.UUID `arg:"" help:"Note id."`
}

func (c *getCmd) Run(a *app) error {
	out, err := a.reader.GetByID(a.ctx, c.ID)
	return report(a, out, err)
}

type listCmd struct {
	Page int    `help:"Zero based page index." default:"0"`
	Size int    `help:"Page size. Defaults to the configured page size."`
	Tag  string `help:"Only notes carrying this tag."`
}

func (c *listCmd) Run(a *app) error {
	size := c.Size
	if size == 0 {
		size = a.cfg.PageSize
	}
	q := pipeline.QueryParams[*notes.Note]{
		PageIndex: c.Page,
		PageSize:  size,
		Less:      notes.ByTitle,
	}
	if tag := strings.ToLower(strings.TrimSpace(c.Tag)); tag != "" {
		q.Filter = func(n *notes.Note) bool {
			for _, t := range n.Tags {
				if t == tag {
					return true
				}
			}
			return false
		}
	}
	out, err := a.reader.GetPaged(a.ctx, q)
	return report(a, out, err)
}

type historyCmd struct {
	ID uuid.UUID `arg:"" help:"Note id."`
}

func (c *historyCmd) Run(a *app) error {
	entries, err := a.history.History(a.ctx, notes.Kind, c.ID)
	if err != nil {
		return err
	}
	return a.print(entries)
}

type pruneHistoryCmd struct {
	OlderThan time.Duration `help:"Override the configured retention." name:"older-than"`
}

func (c *pruneHistoryCmd) Run(a *app) error {
	retention := c.OlderThan
	if retention == 0 {
		retention = a.cfg.History.Retention
	}
	if retention <= 0 {
		return fmt.Errorf("no retention configured, pass --older-than")
	}
	return cron.PruneJob(a.history, retention, nil, a.logger)(a.ctx)
}

type scheduleCmd struct{}

func (c *scheduleCmd) Run(a *app) error {
	if a.cfg.History.Retention <= 0 {
		return fmt.Errorf("history.retention is not configured")
	}
	loc, err := a.cfg.History.Location()
	if err != nil {
		return err
	}
	scheduler := cron.NewScheduler(
		cron.WithLocation(loc),
		cron.WithLogger(a.logger),
		cron.WithLogLevel(cron.LogLevelInfo),
		cron.WithErrorHandler(func(err error) {
			a.logger.Error("history cleanup failed: %v", err)
		}),
	)
	if _, err := scheduler.SchedulePrune(a.history, cron.PruneConfig{
		Schedule:  a.cfg.History.Schedule,
		Retention: a.cfg.History.Retention,
	}); err != nil {
		return err
	}
	if err := scheduler.Start(a.ctx); err != nil {
		return err
	}
	a.logger.Info("history cleanup scheduled: %s, retention %s", a.cfg.History.Schedule, a.cfg.History.Retention)

	<-a.ctx.Done()
	return scheduler.Stop(a.ctx)
}
