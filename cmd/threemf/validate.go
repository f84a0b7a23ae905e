package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/FocuswithJustin/threemf/core/threemf"
	"github.com/FocuswithJustin/threemf/core/vlog"
	"github.com/FocuswithJustin/threemf/internal/logging"
	"github.com/FocuswithJustin/threemf/internal/report"
	"github.com/FocuswithJustin/threemf/internal/validation"
)

// ValidateCmd reads each package and prints its validation log.
type ValidateCmd struct {
	Files    []string `arg:"" help:"Packages to validate" type:"existingfile"`
	JSON     bool     `help:"Print results as JSON"`
	DB       string   `help:"Store run reports in this SQLite database" env:"THREEMF_DB" type:"path"`
	Severity string   `help:"Only print events at or above this severity" default:"info" enum:"info,warning,error,fatal"`
}

// validationResult is the JSON form of one validated package.
type validationResult struct {
	report.Run
	Events []report.Event `json:"events"`
}

func (c *ValidateCmd) Run() error {
	ctx := context.Background()
	minSeverity, _ := vlog.ParseSeverity(c.Severity)

	var store *report.Store
	if c.DB != "" {
		s, err := report.Open(ctx, c.DB)
		if err != nil {
			return err
		}
		defer s.Close()
		store = s
	}

	failed := 0
	results := []validationResult{}
	for _, path := range c.Files {
		if err := validation.ValidatePath(path); err != nil {
			return fmt.Errorf("invalid path: %w", err)
		}

		readID := uuid.NewString()
		rctx := logging.WithReadID(ctx, readID)
		started := time.Now()
		doc, log, err := threemf.Read(path,
			threemf.WithReadID(readID),
			threemf.WithLogger(logging.LoggerFromContext(rctx)))

		run := report.NewRun(readID, path, started, doc, log, err)
		events := report.EventsFromLog(readID, log)
		logging.PackageRead(rctx, path, run.OK, run.Duration,
			"models", run.Models, "thumbnails", run.Thumbnails, "textures", run.Textures)
		if !run.OK {
			failed++
		}

		if store != nil {
			if err := store.Save(ctx, run, events); err != nil {
				return fmt.Errorf("save report for %s: %w", path, err)
			}
		}

		if c.JSON {
			results = append(results, validationResult{Run: run, Events: filterEvents(events, minSeverity)})
			continue
		}
		printRun(run, log, minSeverity)
	}

	if c.JSON {
		if err := encodeJSON(results); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d packages failed validation", failed, len(c.Files))
	}
	return nil
}

func filterEvents(events []report.Event, min vlog.Severity) []report.Event {
	out := []report.Event{}
	for _, ev := range events {
		if sev, _ := vlog.ParseSeverity(ev.Severity); sev >= min {
			out = append(out, ev)
		}
	}
	return out
}

func printRun(run report.Run, log *vlog.Log, min vlog.Severity) {
	fmt.Fprintf(stdout, "%s: %s (read %s)\n", run.Path, runStatus(run), run.ID)
	for _, ev := range log.Events() {
		if ev.Severity < min {
			continue
		}
		fmt.Fprintf(stdout, "  %s\n", ev)
	}
	fmt.Fprintf(stdout, "  models=%d thumbnails=%d textures=%d warnings=%d errors=%d\n",
		run.Models, run.Thumbnails, run.Textures, run.Warnings, run.Errors)
}
