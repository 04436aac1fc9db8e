package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"customer-churn-analysis/internal/chart"
	"customer-churn-analysis/internal/churn"
	"customer-churn-analysis/internal/o11y"
	"customer-churn-analysis/internal/store"
)

type CLI struct {
	Input    string `name:"input" short:"i" env:"CHURN_INPUT" required:"" help:"Path to customer CSV."`
	Sep      string `name:"sep" env:"CHURN_SEP" default:"," help:"Field separator (single character, or 'tab')."`
	Encoding string `name:"encoding" env:"CHURN_ENCODING" default:"utf-8" help:"Input text encoding (IANA name)."`
	Preview  int    `name:"preview" default:"5" help:"Rows to show from the head of the input."`
	Strict   bool   `name:"strict" help:"Fail when duplicate CustomerIDs or incomplete rows are found."`

	ChartsDir   string `name:"charts-dir" env:"CHURN_CHARTS_DIR" default:"charts" help:"Directory for rendered charts."`
	ChartFormat string `name:"chart-format" env:"CHURN_CHART_FORMAT" default:"png" enum:"png,svg,pdf" help:"Chart image format."`
	NoCharts    bool   `name:"no-charts" help:"Skip chart rendering."`

	JSON        string `name:"json" help:"Optional JSON report output path."`
	GroupsCSV   string `name:"groups-csv" help:"Optional CSV output of every grouped churn rate."`
	MetricsFile string `name:"metrics-file" env:"CHURN_METRICS_FILE" help:"Optional Prometheus textfile output path."`

	DB       bool   `name:"db" help:"Store the run in a SQL database."`
	InitDB   bool   `name:"init-db" help:"Create tables and seed them with this run if empty."`
	History  int    `name:"history" default:"0" help:"Print the N most recent stored runs."`
	DBDriver string `name:"db-driver" env:"CHURN_DB_DRIVER" default:"pgx" enum:"pgx,postgres,sqlite3" help:"Database driver."`
	DBURL    string `name:"db-url" env:"CHURN_DB_URL,DATABASE_URL" help:"Database URL (sqlite3: file path)."`
	DBSchema string `name:"db-schema" env:"CHURN_DB_SCHEMA" default:"churn_analysis" help:"Schema for run tables."`
	DBTag    string `name:"db-tag" help:"Optional label for this run."`

	LogLevel     string `name:"log-level" env:"LOG_LEVEL" default:"info" help:"debug, info, warn or error."`
	OTLPEndpoint string `name:"otlp-endpoint" env:"OTEL_EXPORTER_OTLP_ENDPOINT" help:"host:port of an OTLP/HTTP trace collector."`
}

func newParser(cli *CLI) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("churn-analysis"),
		kong.Description("Clean a customer dataset and report churn statistics and charts."),
		kong.UsageOnError(),
	)
}

func main() {
	_ = godotenv.Load()

	var cli CLI
	parser, err := newParser(&cli)
	if err != nil {
		exitWithError(err)
	}
	if _, err := parser.Parse(os.Args[1:]); err != nil {
		parser.FatalIfErrorf(err)
	}

	if err := run(cli); err != nil {
		exitWithError(err)
	}
}

func run(cli CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	sep, err := parseSeparator(cli.Sep)
	if err != nil {
		return err
	}

	obs, cleanup, err := o11y.Setup(ctx, o11y.Config{
		LogLevel:     cli.LogLevel,
		LogOutput:    os.Stderr,
		OTLPEndpoint: cli.OTLPEndpoint,
	})
	defer cleanup()
	if err != nil {
		return err
	}

	report, err := buildReport(ctx, obs, analysisOptions{
		Input:    cli.Input,
		Load:     churn.Options{Separator: sep, Encoding: cli.Encoding},
		Preview:  cli.Preview,
		Strict:   cli.Strict,
		GroupBy:  churn.GroupKeys(),
		Describe: true,
	})
	if err != nil {
		return err
	}

	if !cli.NoCharts {
		err = obs.Stage(ctx, "visualize", func(ctx context.Context) error {
			paths, err := chart.RenderAll(cli.ChartsDir, cli.ChartFormat, report.chartInput())
			report.Charts = paths
			return err
		})
		if err != nil {
			return err
		}
	}

	printReport(os.Stdout, report)

	if cli.JSON != "" {
		if err := writeJSON(report, cli.JSON); err != nil {
			return err
		}
		fmt.Printf("\nJSON report saved to %s\n", cli.JSON)
	}

	if cli.GroupsCSV != "" {
		if err := writeGroupsCSV(report, cli.GroupsCSV); err != nil {
			return err
		}
		fmt.Printf("Group rates CSV saved to %s\n", cli.GroupsCSV)
	}

	if cli.DB || cli.InitDB || cli.History > 0 {
		if err := persist(ctx, obs, cli, report); err != nil {
			return err
		}
	}

	if cli.MetricsFile != "" {
		if err := obs.WriteTextfile(cli.MetricsFile); err != nil {
			return err
		}
		obs.Logger.Info("metrics written", "path", cli.MetricsFile)
	}
	return nil
}

func persist(ctx context.Context, obs *o11y.Observability, cli CLI, report Report) error {
	return obs.Stage(ctx, "store", func(ctx context.Context) error {
		s, err := store.Open(ctx, store.Config{
			Driver: cli.DBDriver,
			URL:    cli.DBURL,
			Schema: cli.DBSchema,
			Tag:    cli.DBTag,
		})
		if err != nil {
			return err
		}
		defer s.Close()

		run := report.storeRun()
		seeded := false
		if cli.InitDB {
			runID, err := s.Seed(ctx, run)
			if err != nil {
				return err
			}
			if runID != "" {
				seeded = true
				fmt.Printf("\nSeeded database with initial churn run (run_id=%s)\n", runID)
			} else {
				fmt.Println("\nChurn runs already present; skipping seed.")
			}
		}
		if cli.DB {
			if seeded {
				fmt.Println("Skipped duplicate insert; current report already used for seed.")
			} else {
				runID, err := s.Save(ctx, run)
				if err != nil {
					return err
				}
				fmt.Printf("\nStored churn run (run_id=%s)\n", runID)
				obs.Logger.InfoContext(ctx, "run stored", "run_id", runID, "driver", cli.DBDriver)
			}
		}
		if cli.History > 0 {
			runs, err := s.Recent(ctx, cli.History)
			if err != nil {
				return err
			}
			printHistory(os.Stdout, runs)
		}
		return nil
	})
}

func parseSeparator(value string) (rune, error) {
	switch strings.ToLower(value) {
	case "tab", `\t`:
		return '\t', nil
	case "":
		return ',', nil
	}
	if utf8.RuneCountInString(value) != 1 {
		return 0, fmt.Errorf("--sep must be a single character, got %q", value)
	}
	r, _ := utf8.DecodeRuneInString(value)
	if r == '"' || r == '\r' || r == '\n' || r == utf8.RuneError {
		return 0, fmt.Errorf("invalid --sep value %q", value)
	}
	return r, nil
}

func exitWithError(err error) {
	fmt.Fprintln(os.Stderr, "Error:", describeError(err))
	os.Exit(1)
}

func describeError(err error) string {
	var fileErr *churn.FileAccessError
	var parseErr *churn.ParseError
	var labelErr *churn.LabelMappingError
	switch {
	case errors.As(err, &fileErr):
		return fmt.Sprintf("cannot read input %s: %v", filepath.Base(fileErr.Path), fileErr.Err)
	case errors.As(err, &parseErr):
		return fmt.Sprintf("malformed input: %v", parseErr)
	case errors.As(err, &labelErr):
		return fmt.Sprintf("cannot encode churn: %v", labelErr)
	}
	return err.Error()
}
