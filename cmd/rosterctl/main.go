// Command rosterctl runs roster maintenance tasks against the configured
// database: seeding days from templates, carrying staffing columns
// forward, inspecting the grid and the deputy schema.
package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"go.uber.org/zap"

	"github.com/warp/court-roster/config"
	"github.com/warp/court-roster/logger"
)

type CLI struct {
	Config  string `help:"Config file path." type:"path"`
	Verbose bool   `short:"v" help:"Write service logs to stdout."`

	Materialize  MaterializeCmd  `cmd:"" help:"Create the template slots for one or more days."`
	CarryForward CarryForwardCmd `cmd:"" name:"carry-forward" help:"Copy a staffing column from the latest earlier date."`
	Staffing     StaffingCmd     `cmd:"" help:"Print the staffing grid as of a date."`
	Export       ExportCmd       `cmd:"" help:"Write the roster workbook for a day."`
	Resolve      ResolveCmd      `cmd:"" help:"Resolve a raw status value on a date."`
	Capabilities CapabilitiesCmd `cmd:"" help:"Show which optional deputy columns the schema has."`
}

func main() {
	var cli CLI
	kctx := kong.Parse(&cli,
		kong.Name("rosterctl"),
		kong.Description("Court roster maintenance"),
		kong.UsageOnError(),
	)

	if err := run(kctx, &cli); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(kctx *kong.Context, cli *CLI) error {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return err
	}

	log := zap.NewNop()
	if cli.Verbose {
		log, err = logger.New(cfg.Log)
		if err != nil {
			return err
		}
		defer log.Sync()
	}

	return kctx.Run(&Context{Config: cfg, Log: log, Out: os.Stdout})
}
