package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/chaz8081/bodyscale/internal/config"
	"github.com/chaz8081/bodyscale/internal/journal"
)

func history(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("history", flag.ContinueOnError)
	last := fs.Int("n", 20, "show the last n entries (0 for all)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	entries, err := journal.ReadAll(cfg.Journal.Path)
	if err != nil && len(entries) == 0 {
		return err
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: journal ends with a damaged record: %v\n", err)
	}

	if *last > 0 && len(entries) > *last {
		entries = entries[len(entries)-*last:]
	}
	printHistory(os.Stdout, entries)
	return nil
}

func printHistory(w io.Writer, entries []journal.Entry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No weigh-ins recorded yet.")
		return
	}
	fmt.Fprintf(w, "%-20s %9s %10s %7s %7s %7s\n", "WHEN", "WEIGHT", "RESIST", "BMI", "FAT%", "WATER%")
	for _, e := range entries {
		when := e.RecordedAt
		if e.ScaleTime != nil {
			when = *e.ScaleTime
		}
		resistance := "-"
		if e.Resistance1 != nil {
			resistance = fmt.Sprintf("%.1f", *e.Resistance1)
		}
		bmi, fat, water := "-", "-", "-"
		if c := e.Composition; c != nil {
			bmi = fmt.Sprintf("%.1f", c.BMI)
			fat = fmt.Sprintf("%.1f", c.FatPercent)
			water = fmt.Sprintf("%.1f", c.WaterPercent)
		}
		fmt.Fprintf(w, "%-20s %6.2f kg %10s %7s %7s %7s\n",
			when.Local().Format(time.DateTime), e.WeightKg, resistance, bmi, fat, water)
	}
}
