package o11y

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupTest(t *testing.T, level string) (*Observability, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	obs, cleanup, err := Setup(context.Background(), Config{LogLevel: level, LogOutput: &buf})
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	t.Cleanup(cleanup)
	return obs, &buf
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"":      slog.LevelInfo,
		"debug": slog.LevelDebug,
		"WARN":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for input, want := range cases {
		got, err := ParseLevel(input)
		if err != nil {
			t.Fatalf("%q: %v", input, err)
		}
		if got != want {
			t.Fatalf("%q: expected %v, got %v", input, want, got)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Fatalf("expected error for unknown level")
	}
}

func TestStageLogsFailure(t *testing.T) {
	obs, buf := setupTest(t, "info")
	boom := errors.New("boom")
	err := obs.Stage(context.Background(), "load", func(ctx context.Context) error {
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected stage error returned, got %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, `"stage":"load"`) || !strings.Contains(out, `"level":"ERROR"`) {
		t.Fatalf("expected structured failure log, got %s", out)
	}
}

func TestStageDebugSilentAtInfo(t *testing.T) {
	obs, buf := setupTest(t, "info")
	if err := obs.Stage(context.Background(), "clean", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("stage: %v", err)
	}
	if buf.Len() != 0 {
		t.Fatalf("expected no output at info level, got %s", buf.String())
	}
}

func TestWriteTextfile(t *testing.T) {
	obs, _ := setupTest(t, "info")
	obs.Metrics.RowsLoaded.Set(1000)
	obs.Metrics.ChurnRate.Set(50.2)
	obs.Metrics.GroupRate.WithLabelValues("Geography", "France").Set(0.533333)
	if err := obs.Stage(context.Background(), "aggregate", func(ctx context.Context) error { return nil }); err != nil {
		t.Fatalf("stage: %v", err)
	}

	path := filepath.Join(t.TempDir(), "churn.prom")
	if err := obs.WriteTextfile(path); err != nil {
		t.Fatalf("write textfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		"churn_rows_loaded 1000",
		"churn_rate_percent 50.2",
		`churn_group_rate{group_key="Geography",key="France"} 0.533333`,
		`churn_stage_duration_seconds{stage="aggregate"}`,
		"churn_last_run_timestamp_seconds",
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("expected %q in textfile:\n%s", want, text)
		}
	}
}
