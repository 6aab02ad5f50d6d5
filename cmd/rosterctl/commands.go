package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/warp/court-roster/assignment"
	"github.com/warp/court-roster/config"
	"github.com/warp/court-roster/directory"
	"github.com/warp/court-roster/export"
	"github.com/warp/court-roster/roster"
	"github.com/warp/court-roster/staffing"
	"github.com/warp/court-roster/status"
	"github.com/warp/court-roster/store"
)

// Context is passed to every command's Run.
type Context struct {
	Config *config.Config
	Log    *zap.Logger
	Out    io.Writer
}

// open connects to the configured store. The caller closes it.
func (c *Context) open(ctx context.Context) (store.Store, error) {
	return store.Open(ctx, c.Config.Database, c.Log)
}

func (c *Context) print(v any) error {
	enc := json.NewEncoder(c.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// =============================================================================
// MATERIALIZE
// =============================================================================

type MaterializeCmd struct {
	Date string `arg:"" help:"First day to materialize (YYYY-MM-DD)."`
	Days int    `help:"Number of consecutive days." default:"1"`
}

func (cmd *MaterializeCmd) Run(c *Context) error {
	day, err := roster.ParseDate(cmd.Date)
	if err != nil {
		return err
	}
	if cmd.Days < 1 {
		return fmt.Errorf("--days must be at least 1")
	}

	ctx := context.Background()
	st, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	svc := assignment.NewService(st, c.Log, c.Config.Search.Limit)
	out := make(map[string]int64, cmd.Days)
	for i := 0; i < cmd.Days; i++ {
		d := day.AddDays(i)
		n, err := svc.EnsureDay(ctx, d)
		if err != nil {
			return err
		}
		out[d.String()] = n
	}
	return c.print(out)
}

// =============================================================================
// STAFFING
// =============================================================================

type CarryForwardCmd struct {
	Date   string `arg:"" help:"Target date (YYYY-MM-DD)."`
	Column string `arg:"" help:"Staffing column name."`
}

func (cmd *CarryForwardCmd) Run(c *Context) error {
	target, err := roster.ParseDate(cmd.Date)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	res, err := staffing.NewLog(st, c.Log).CarryForward(ctx, target, cmd.Column)
	if err != nil {
		return err
	}

	out := map[string]any{"status": res.Status, "copied": res.Copied}
	if !res.SourceDate.IsZero() {
		out["source_date"] = res.SourceDate
	}
	return c.print(out)
}

type StaffingCmd struct {
	AsOf string `arg:"" help:"Show the grid as of this date (YYYY-MM-DD)."`
}

func (cmd *StaffingCmd) Run(c *Context) error {
	asOf, err := roster.ParseDate(cmd.AsOf)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	cells, err := staffing.NewLog(st, c.Log).ReadEffective(ctx, asOf)
	if err != nil {
		return err
	}
	return c.print(cells)
}

type ExportCmd struct {
	Date string `arg:"" help:"Day to export (YYYY-MM-DD)."`
	Out  string `short:"o" help:"Output file. Defaults to roster_<date>.xlsx." type:"path"`
}

func (cmd *ExportCmd) Run(c *Context) error {
	day, err := roster.ParseDate(cmd.Date)
	if err != nil {
		return err
	}

	ctx := context.Background()
	st, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	log := staffing.NewLog(st, c.Log)
	svc := assignment.NewService(st, c.Log, c.Config.Search.Limit)
	buf, name, err := export.New(log, svc, c.Log).Workbook(ctx, day)
	if err != nil {
		return err
	}

	path := cmd.Out
	if path == "" {
		path = name
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return c.print(map[string]string{"file": path})
}

// =============================================================================
// STATUS / DIRECTORY
// =============================================================================

// ResolveCmd resolves a raw status value without touching storage.
type ResolveCmd struct {
	Payload string `arg:"" help:"Stored status value (legacy text or JSON payload)."`
	Date    string `help:"Resolve on this date (YYYY-MM-DD). Empty resolves the legacy value."`
}

func (cmd *ResolveCmd) Run(c *Context) error {
	on, err := roster.ParseOptionalDate(cmd.Date)
	if err != nil {
		return err
	}

	out := map[string]any{"status": nil}
	if s, ok := status.ResolveRaw(cmd.Payload, on); ok {
		out["status"] = s
	}
	return c.print(out)
}

type CapabilitiesCmd struct{}

func (cmd *CapabilitiesCmd) Run(c *Context) error {
	ctx := context.Background()
	st, err := c.open(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	dir, err := directory.New(ctx, st, c.Log)
	if err != nil {
		return err
	}
	return c.print(dir.Capabilities())
}
