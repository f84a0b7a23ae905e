package main

import (
	"context"
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/FocuswithJustin/threemf/internal/report"
)

// HistoryCmd lists stored validation runs, shows one run, or deletes one.
type HistoryCmd struct {
	ID     string `arg:"" optional:"" help:"Show this run and its events"`
	DB     string `required:"" help:"Report database written by validate --db" env:"THREEMF_DB" type:"existingfile"`
	Limit  int    `short:"n" default:"20" help:"Maximum runs to list (0 for all)"`
	Delete bool   `help:"Delete the run named by ID"`
	JSON   bool   `help:"Print as JSON"`
}

func (c *HistoryCmd) Run() error {
	ctx := context.Background()
	store, err := report.Open(ctx, c.DB)
	if err != nil {
		return err
	}
	defer store.Close()

	switch {
	case c.Delete:
		if c.ID == "" {
			return fmt.Errorf("--delete needs a run ID")
		}
		if err := store.Delete(ctx, c.ID); err != nil {
			return err
		}
		fmt.Fprintf(stdout, "deleted %s\n", c.ID)
		return nil
	case c.ID != "":
		return c.show(ctx, store)
	}

	runs, err := store.List(ctx, c.Limit)
	if err != nil {
		return err
	}
	if c.JSON {
		if runs == nil {
			runs = []report.Run{}
		}
		return encodeJSON(runs)
	}
	w := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tSTATUS\tWARNINGS\tERRORS\tPATH")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), runStatus(r), r.Warnings, r.Errors, r.Path)
	}
	return w.Flush()
}

func (c *HistoryCmd) show(ctx context.Context, store *report.Store) error {
	run, err := store.Get(ctx, c.ID)
	if err != nil {
		return err
	}
	events, err := store.Events(ctx, c.ID)
	if err != nil {
		return err
	}
	if events == nil {
		events = []report.Event{}
	}
	if c.JSON {
		return encodeJSON(validationResult{Run: run, Events: events})
	}

	fmt.Fprintf(stdout, "%s: %s (read %s, %s)\n", run.Path, runStatus(run), run.ID, run.Duration)
	if run.Fatal != "" {
		fmt.Fprintf(stdout, "  fatal: %s\n", run.Fatal)
	}
	for _, ev := range events {
		line := fmt.Sprintf("[%s] %s: %s", ev.Severity, ev.Context, ev.Message)
		if ev.Page != 0 {
			line += fmt.Sprintf(" (page %d)", ev.Page)
		}
		fmt.Fprintf(stdout, "  %s\n", line)
	}
	return nil
}

func runStatus(r report.Run) string {
	if r.OK {
		return "OK"
	}
	return "FAILED"
}

func encodeJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
