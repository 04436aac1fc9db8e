package main

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"go.opentelemetry.io/otel/attribute"

	"customer-churn-analysis/internal/chart"
	"customer-churn-analysis/internal/churn"
	"customer-churn-analysis/internal/o11y"
	"customer-churn-analysis/internal/store"
)

var errIntegrity = errors.New("integrity check failed")

type analysisOptions struct {
	Input    string
	Load     churn.Options
	Preview  int
	Strict   bool
	GroupBy  []churn.GroupKey
	Describe bool
}

type ReportSummary struct {
	GeneratedAt  string  `json:"generated_at"`
	RowsLoaded   int     `json:"rows_loaded"`
	RowsAnalyzed int     `json:"rows_analyzed"`
	RowsDropped  int     `json:"rows_dropped"`
	TotalNulls   int     `json:"total_nulls"`
	DuplicateIDs int     `json:"duplicate_ids"`
	ChurnRate    float64 `json:"churn_rate_percent"`
}

type GroupSummary struct {
	Key   churn.GroupKey    `json:"key"`
	Rates []churn.GroupRate `json:"rates"`
}

type Report struct {
	Input         string                   `json:"input"`
	Summary       ReportSummary            `json:"summary"`
	Preview       []churn.Record           `json:"preview"`
	Schema        []churn.ColumnInfo       `json:"schema"`
	CleanedSchema []churn.ColumnInfo       `json:"cleaned_schema"`
	NullCounts    []churn.ColumnCount      `json:"null_counts"`
	DuplicateIDs  []int64                  `json:"duplicate_ids"`
	Warnings      []churn.IntegrityWarning `json:"warnings"`
	Groups        []GroupSummary           `json:"groups"`
	Describe      []churn.ColumnStats      `json:"describe,omitempty"`
	Correlations  []churn.CorrelationPair  `json:"correlations"`
	Charts        []string                 `json:"charts,omitempty"`

	correlation churn.Correlation
	charges     [2][]float64
}

func buildReport(ctx context.Context, obs *o11y.Observability, opts analysisOptions) (Report, error) {
	report := Report{Input: opts.Input}
	var table *churn.Table

	err := obs.Stage(ctx, "load", func(ctx context.Context) error {
		var err error
		table, err = churn.Load(opts.Input, opts.Load)
		if err != nil {
			return err
		}
		report.Summary.RowsLoaded = table.Len()
		report.Preview = append([]churn.Record(nil), table.Preview(opts.Preview)...)
		report.Schema = append([]churn.ColumnInfo(nil), table.Columns...)
		obs.Metrics.RowsLoaded.Set(float64(table.Len()))
		o11y.Annotate(ctx, attribute.String("input", filepath.Base(opts.Input)), attribute.Int("rows", table.Len()))
		obs.Logger.InfoContext(ctx, "input loaded", "path", opts.Input, "rows", table.Len())
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	err = obs.Stage(ctx, "clean", func(ctx context.Context) error {
		result, err := churn.Clean(table)
		if err != nil {
			return err
		}
		report.NullCounts = result.NullCounts
		report.DuplicateIDs = result.DuplicateIDs
		report.Warnings = result.Warnings
		report.CleanedSchema = append([]churn.ColumnInfo(nil), table.Columns...)
		report.Summary.TotalNulls = result.TotalNulls
		report.Summary.DuplicateIDs = len(result.DuplicateIDs)
		report.Summary.RowsDropped = result.DroppedRows
		report.Summary.RowsAnalyzed = table.Len()

		for _, entry := range result.NullCounts {
			obs.Metrics.NullValues.WithLabelValues(entry.Column).Set(float64(entry.Count))
		}
		obs.Metrics.DuplicateIDs.Set(float64(len(result.DuplicateIDs)))
		obs.Metrics.RowsDropped.Set(float64(result.DroppedRows))
		for _, warning := range result.Warnings {
			obs.Logger.WarnContext(ctx, "data integrity warning", "kind", warning.Kind, "detail", warning.Detail)
		}
		o11y.Annotate(ctx, attribute.Int("dropped", result.DroppedRows), attribute.Int("duplicates", len(result.DuplicateIDs)))

		if opts.Strict {
			if len(result.DuplicateIDs) > 0 {
				return fmt.Errorf("%w: %d duplicate CustomerID values", errIntegrity, len(result.DuplicateIDs))
			}
			if result.DroppedRows > 0 {
				return fmt.Errorf("%w: %d rows contained null values", errIntegrity, result.DroppedRows)
			}
		}
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	err = obs.Stage(ctx, "aggregate", func(ctx context.Context) error {
		rate, err := churn.OverallRate(table)
		if err != nil {
			return err
		}
		report.Summary.ChurnRate = rate
		obs.Metrics.ChurnRate.Set(rate)

		for _, key := range opts.GroupBy {
			rates, err := churn.GroupRates(table, key)
			if err != nil {
				return fmt.Errorf("group by %s: %w", key, err)
			}
			report.Groups = append(report.Groups, GroupSummary{Key: key, Rates: rates})
			for _, entry := range rates {
				obs.Metrics.GroupRate.WithLabelValues(string(key), entry.Key).Set(entry.Rate)
			}
		}

		report.correlation, err = churn.CorrelationMatrix(table)
		if err != nil {
			return err
		}
		report.Correlations = report.correlation.Pairs()
		report.charges = churn.ChargesByChurn(table)
		if opts.Describe {
			report.Describe = churn.Describe(table)
		}
		o11y.Annotate(ctx, attribute.Float64("churn_rate", rate))
		return nil
	})
	if err != nil {
		return Report{}, err
	}

	report.Summary.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	return report, nil
}

func (r Report) group(key churn.GroupKey) []churn.GroupRate {
	for _, entry := range r.Groups {
		if entry.Key == key {
			return entry.Rates
		}
	}
	return nil
}

func (r Report) chartInput() chart.Input {
	return chart.Input{
		Country:     r.group(churn.ByGeography),
		Tenure:      r.group(churn.ByTenure),
		Charges:     r.charges,
		Correlation: r.correlation,
	}
}

func (r Report) storeRun() store.Run {
	run := store.Run{
		InputFile:    filepath.Base(r.Input),
		RowsLoaded:   r.Summary.RowsLoaded,
		RowsAnalyzed: r.Summary.RowsAnalyzed,
		RowsDropped:  r.Summary.RowsDropped,
		TotalNulls:   r.Summary.TotalNulls,
		DuplicateIDs: r.Summary.DuplicateIDs,
		ChurnRate:    r.Summary.ChurnRate,
		Correlations: r.Correlations,
	}
	for _, entry := range r.Groups {
		run.Groups = append(run.Groups, store.GroupSet{Key: string(entry.Key), Rates: entry.Rates})
	}
	return run
}

func printReport(w io.Writer, report Report) {
	fmt.Fprintln(w, "Customer Churn Analysis")
	fmt.Fprintln(w, strings.Repeat("=", 38))
	fmt.Fprintf(w, "Input: %s\n", filepath.Base(report.Input))
	fmt.Fprintf(w, "Rows loaded: %d | analyzed: %d | dropped: %d\n",
		report.Summary.RowsLoaded,
		report.Summary.RowsAnalyzed,
		report.Summary.RowsDropped,
	)

	if len(report.Preview) > 0 {
		fmt.Fprintln(w, "\nPreview")
		fmt.Fprintln(w, strings.Repeat("-", 38))
		columns := churn.Columns()
		names := make([]string, len(columns))
		for i, col := range columns {
			names[i] = col.String()
		}
		fmt.Fprintln(w, strings.Join(names, " | "))
		for _, record := range report.Preview {
			values := make([]string, len(columns))
			for i, col := range columns {
				values[i] = record.Text(col)
			}
			fmt.Fprintln(w, strings.Join(values, " | "))
		}
	}

	fmt.Fprintln(w, "\nSchema")
	fmt.Fprintln(w, strings.Repeat("-", 38))
	for i, info := range report.Schema {
		cleanedType := info.Type
		if i < len(report.CleanedSchema) {
			cleanedType = report.CleanedSchema[i].Type
		}
		if cleanedType != info.Type {
			fmt.Fprintf(w, "%-15s %6d non-null  %s -> %s\n", info.Name, info.NonNull, info.Type, cleanedType)
		} else {
			fmt.Fprintf(w, "%-15s %6d non-null  %s\n", info.Name, info.NonNull, info.Type)
		}
	}

	fmt.Fprintln(w, "\nNull values")
	fmt.Fprintln(w, strings.Repeat("-", 38))
	for _, entry := range report.NullCounts {
		fmt.Fprintf(w, "%-15s %d\n", entry.Column, entry.Count)
	}

	fmt.Fprintln(w)
	if len(report.DuplicateIDs) > 0 {
		fmt.Fprintf(w, "There are duplicates in CustomerID (%d values)\n", len(report.DuplicateIDs))
	} else {
		fmt.Fprintln(w, "CustomerIDs are unique")
	}
	if report.Summary.RowsDropped > 0 {
		fmt.Fprintf(w, "Rows with null values dropped: %d\n", report.Summary.RowsDropped)
	}

	fmt.Fprintf(w, "\nChurn rate : %.2f%%\n", report.Summary.ChurnRate)

	for _, entry := range report.Groups {
		fmt.Fprintf(w, "\nChurn by %s\n", entry.Key)
		fmt.Fprintln(w, strings.Repeat("-", 38))
		if len(entry.Rates) == 0 {
			fmt.Fprintln(w, "No customers found.")
			continue
		}
		for _, rate := range entry.Rates {
			fmt.Fprintf(w, "%-16s %.6f (%d of %d)\n", rate.Key, rate.Rate, rate.Churned, rate.Count)
		}
	}

	if len(report.Describe) > 0 {
		fmt.Fprintln(w, "\nNumeric summary")
		fmt.Fprintln(w, strings.Repeat("-", 38))
		fmt.Fprintf(w, "%-15s %6s %12s %12s %12s %12s %12s %12s %12s\n", "column", "count", "mean", "std", "min", "25%", "50%", "75%", "max")
		for _, s := range report.Describe {
			fmt.Fprintf(w, "%-15s %6d %12.2f %12.2f %12.2f %12.2f %12.2f %12.2f %12.2f\n",
				s.Column, s.Count, s.Mean, s.Std, s.Min, s.Q1, s.Median, s.Q3, s.Max)
		}
	}

	if len(report.Charts) > 0 {
		fmt.Fprintln(w, "\nCharts")
		fmt.Fprintln(w, strings.Repeat("-", 38))
		for _, path := range report.Charts {
			fmt.Fprintln(w, path)
		}
	}
}

func printHistory(w io.Writer, runs []store.RunSummary) {
	fmt.Fprintln(w, "\nRecent runs")
	fmt.Fprintln(w, strings.Repeat("-", 38))
	if len(runs) == 0 {
		fmt.Fprintln(w, "No stored runs.")
		return
	}
	for _, run := range runs {
		tag := run.Tag.String
		if !run.Tag.Valid {
			tag = "-"
		}
		fmt.Fprintf(w, "%s | %s | %s | rows %d (dropped %d) | churn %.2f%% | tag %s\n",
			run.CreatedAt.Format("2006-01-02 15:04"),
			run.ID,
			run.InputFile,
			run.RowsAnalyzed,
			run.RowsDropped,
			run.ChurnRate,
			tag,
		)
	}
}

func writeJSON(report Report, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func writeGroupsCSV(report Report, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write([]string{
		"group_key",
		"key",
		"count",
		"churned",
		"rate",
	}); err != nil {
		return err
	}

	for _, entry := range report.Groups {
		for _, rate := range entry.Rates {
			record := []string{
				string(entry.Key),
				rate.Key,
				strconv.Itoa(rate.Count),
				strconv.Itoa(rate.Churned),
				strconv.FormatFloat(rate.Rate, 'f', 6, 64),
			}
			if err := writer.Write(record); err != nil {
				return err
			}
		}
	}
	writer.Flush()
	return writer.Error()
}
