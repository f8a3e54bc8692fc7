package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

type CLI struct {
	Config string `help:"Path to a YAML config file." type:"path" env:"MUTATION_CONFIG" default:"mutation.yaml"`
	As     string `help:"Act as this authenticated user." placeholder:"NAME"`

	Create       createCmd       `cmd:"" help:"Create a note."`
	Update       updateCmd       `cmd:"" help:"Replace the content of a note."`
	Delete       deleteCmd       `cmd:"" help:"Delete a note."`
	Get          getCmd          `cmd:"" help:"Show one note."`
	List         listCmd         `cmd:"" help:"List notes page by page."`
	History      historyCmd      `cmd:"" help:"Show the change history of a note."`
	PruneHistory pruneHistoryCmd `cmd:"" name:"prune-history" help:"Drop history older than the configured retention."`
	Schedule     scheduleCmd     `cmd:"" help:"Run the history cleanup schedule until interrupted."`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "mutation: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cli CLI
	exited := false
	parser, err := kong.New(&cli,
		kong.Name("mutation"),
		kong.Description("Create, update, delete and read notes through the mutation pipeline."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Exit(func(int) { exited = true }),
	)
	if err != nil {
		return err
	}

	kctx, err := parser.Parse(args)
	if exited {
		return nil
	}
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cli.Config, cli.As, stdout, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	return kctx.Run(a)
}
