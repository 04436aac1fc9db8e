package store

import (
	"context"
	"path/filepath"
	"testing"

	"customer-churn-analysis/internal/churn"
)

func openSQLite(t *testing.T, tag string) *Store {
	t.Helper()
	s, err := Open(context.Background(), Config{
		Driver: DriverSQLite,
		URL:    filepath.Join(t.TempDir(), "churn.db"),
		Schema: "churn_analysis",
		Tag:    tag,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleRun() Run {
	coefficient := 0.42
	return Run{
		InputFile:    "customers.csv",
		RowsLoaded:   1000,
		RowsAnalyzed: 998,
		RowsDropped:  2,
		TotalNulls:   2,
		ChurnRate:    50.2,
		Groups: []GroupSet{
			{Key: "Geography", Rates: []churn.GroupRate{
				{Key: "France", Count: 225, Churned: 120, Rate: 120.0 / 225},
				{Key: "Italy", Count: 214, Churned: 100, Rate: 100.0 / 214},
			}},
			{Key: "Contract", Rates: []churn.GroupRate{
				{Key: "One-year", Count: 338, Churned: 182, Rate: 182.0 / 338},
			}},
		},
		Correlations: []churn.CorrelationPair{
			{X: "Age", Y: "Tenure", Coefficient: &coefficient},
			{X: "Age", Y: "IsActiveMember"},
		},
	}
}

func TestSanitizeSchema(t *testing.T) {
	if _, err := sanitizeSchema("churn_analysis"); err != nil {
		t.Fatalf("expected valid schema: %v", err)
	}
	for _, bad := range []string{"", "  ", "1abc", "churn;drop", "a-b"} {
		if _, err := sanitizeSchema(bad); err == nil {
			t.Fatalf("expected %q to be rejected", bad)
		}
	}
}

func TestOpenRejectsDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle", URL: "x", Schema: "s"})
	if err == nil {
		t.Fatalf("expected unsupported driver error")
	}
	_, err = Open(context.Background(), Config{Driver: DriverSQLite, Schema: "s"})
	if err == nil {
		t.Fatalf("expected missing URL error")
	}
}

func TestSaveAndReadBack(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, "nightly")

	runID, err := s.Save(ctx, sampleRun())
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if runID == "" {
		t.Fatalf("expected run id")
	}

	runs, err := s.Recent(ctx, 5)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != 1 {
		t.Fatalf("expected 1 run, got %d", len(runs))
	}
	if runs[0].ID != runID || runs[0].RowsLoaded != 1000 || runs[0].ChurnRate != 50.2 {
		t.Fatalf("unexpected run: %+v", runs[0])
	}
	if !runs[0].Tag.Valid || runs[0].Tag.String != "nightly" {
		t.Fatalf("expected tag nightly, got %+v", runs[0].Tag)
	}

	rates, err := s.GroupRates(ctx, runID, "Geography")
	if err != nil {
		t.Fatalf("group rates: %v", err)
	}
	if len(rates) != 2 || rates[0].Key != "France" || rates[1].Key != "Italy" {
		t.Fatalf("expected France then Italy, got %+v", rates)
	}
	if rates[0].Count != 225 || rates[0].Churned != 120 {
		t.Fatalf("unexpected France row: %+v", rates[0])
	}

	var nulls int
	if err := s.db.GetContext(ctx, &nulls, `SELECT COUNT(*) FROM churn_correlations WHERE coefficient IS NULL`); err != nil {
		t.Fatalf("count null coefficients: %v", err)
	}
	if nulls != 1 {
		t.Fatalf("expected 1 null coefficient, got %d", nulls)
	}
}

func TestSeedOnlyWhenEmpty(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, "")

	first, err := s.Seed(ctx, sampleRun())
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if first == "" {
		t.Fatalf("expected first seed to insert")
	}
	second, err := s.Seed(ctx, sampleRun())
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if second != "" {
		t.Fatalf("expected second seed to skip, got %s", second)
	}
	count, err := s.CountRuns(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 run, got %d", count)
	}
}

func TestRecentNewestFirstWithinOneSecond(t *testing.T) {
	ctx := context.Background()
	s := openSQLite(t, "")

	saved := []string{}
	for i := 0; i < 6; i++ {
		runID, err := s.Save(ctx, sampleRun())
		if err != nil {
			t.Fatalf("save %d: %v", i, err)
		}
		saved = append(saved, runID)
	}

	runs, err := s.Recent(ctx, len(saved))
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(runs) != len(saved) {
		t.Fatalf("expected %d runs, got %d", len(saved), len(runs))
	}
	for i, run := range runs {
		want := saved[len(saved)-1-i]
		if run.ID != want {
			t.Fatalf("position %d: expected run %s, got %s", i, want, run.ID)
		}
	}
	if runs[0].CreatedAt.IsZero() {
		t.Fatalf("expected created_at to be read back")
	}
}
