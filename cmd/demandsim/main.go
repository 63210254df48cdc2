// Command demandsim runs a demand scenario end to end and stores the
// resulting per-step snapshots in SQLite.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/talgya/demandsim/internal/engine"
	"github.com/talgya/demandsim/internal/market"
	"github.com/talgya/demandsim/internal/persistence"
	"github.com/talgya/demandsim/internal/scenario"
)

func main() {
	scenarioPath := flag.String("scenario", "", "scenario YAML file to run")
	dbPath := flag.String("db", "data/demandsim.db", "SQLite database for run results")
	list := flag.Bool("list", false, "list stored runs and exit")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	if err := run(*scenarioPath, *dbPath, *list, logger); err != nil {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}
}

func run(scenarioPath, dbPath string, list bool, logger *slog.Logger) error {
	os.MkdirAll(filepath.Dir(dbPath), 0755)
	db, err := persistence.Open(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if list {
		return listRuns(db)
	}
	if scenarioPath == "" {
		return fmt.Errorf("no scenario given (use -scenario)")
	}

	bundle, name, err := scenario.Load(scenarioPath)
	if err != nil {
		return err
	}
	slog.Info("scenario loaded",
		"name", name,
		"sectors", len(bundle.Sectors),
		"products", len(bundle.Products),
		"mode", bundle.Mode.String(),
	)

	model, err := market.Build(bundle)
	if err != nil {
		return fmt.Errorf("build model: %w", err)
	}
	orch, err := engine.New(model, engine.WithLogger(logger))
	if err != nil {
		return err
	}
	res, err := orch.Run()
	if err != nil {
		return err
	}

	id, err := db.SaveRun(name, bundle.Mode.String(), bundle.Start, bundle.Stop, bundle.DT, res)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}

	final := res.Final()
	fmt.Printf("\n%s: %d steps over %.2f–%.2f\n", name, len(res.Snapshots), bundle.Start, bundle.Stop)
	fmt.Printf("  total revenue:   %s\n", humanize.Commaf(res.Total("revenue.total")))
	fmt.Printf("  total delivered: %s\n", humanize.Commaf(res.Total("delivered.total")))
	fmt.Printf("  active anchors:  %s\n", humanize.Commaf(final.Values["anchors.active.total"]))
	fmt.Printf("  run id: %s\n", id)
	return nil
}

func listRuns(db *persistence.DB) error {
	runs, err := db.ListRuns()
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Println("no stored runs")
		return nil
	}
	for _, r := range runs {
		fmt.Printf("%s  %-20s %-11s %.2f–%.2f dt=%.3g steps=%d  %s\n",
			r.ID, r.Scenario, r.Mode, r.Start, r.Stop, r.DT, r.Steps, r.CreatedAt)
	}
	return nil
}
