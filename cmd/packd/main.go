package main

import (
	"log/slog"
	"os"

	"github.com/alecthomas/kong"

	"git.home.luguber.info/inful/packd/cmd/packd/commands"
	"git.home.luguber.info/inful/packd/internal/foundation/errors"
	"git.home.luguber.info/inful/packd/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	cli := &commands.CLI{}
	parser, err := kong.New(cli,
		kong.Name("packd"),
		kong.Description("On-demand bundle server for npm packages"),
		kong.UsageOnError(),
		kong.Vars{"version": version.Version},
	)
	if err != nil {
		panic(err)
	}

	ctx, err := parser.Parse(args)
	if err != nil {
		parser.FatalIfErrorf(err)
	}

	global := &commands.Global{Logger: slog.Default()}
	if err := ctx.Run(global, cli); err != nil {
		return errors.NewCLIErrorAdapter(cli.Verbose, global.Logger).HandleError(err)
	}
	return 0
}
