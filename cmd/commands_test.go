package cmd

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/ademuri/workout-music-tools/internal/pipeline"
	"github.com/ademuri/workout-music-tools/internal/quality"
	"github.com/ademuri/workout-music-tools/internal/store"
)

func TestCommands(t *testing.T) {
	tests := []struct {
		cmd *cobra.Command
		use string
	}{
		{collectCmd, "collect"},
		{enrichCmd, "enrich"},
		{statsCmd, "stats"},
		{qualityCmd, "quality"},
		{initDbCmd, "init-db"},
		{checkConnectionCmd, "check-connection"},
	}
	for _, tt := range tests {
		if tt.cmd == nil {
			t.Errorf("command %q is nil", tt.use)
			continue
		}
		if tt.cmd.Use != tt.use {
			t.Errorf("expected use %q, got %q", tt.use, tt.cmd.Use)
		}
		if tt.cmd.Parent() != rootCmd {
			t.Errorf("expected %q to be registered on the root command", tt.use)
		}
	}
}

func useTestDatabase(t *testing.T) string {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "workout.db")
	viper.Set("database", dbPath)
	viper.Set("driver", store.DriverSQLite)
	t.Cleanup(func() {
		viper.Set("database", "")
		viper.Set("driver", "")
	})
	return dbPath
}

func TestInitDbThenStats(t *testing.T) {
	useTestDatabase(t)
	ctx := context.Background()

	if err := initDb(ctx); err != nil {
		t.Fatalf("initDb: %v", err)
	}
	// Running it again must not fail.
	if err := initDb(ctx); err != nil {
		t.Fatalf("initDb (again): %v", err)
	}

	var out bytes.Buffer
	if err := runStats(ctx, &out, "", 10, "yaml"); err != nil {
		t.Fatalf("runStats: %v", err)
	}
	var report StatsReport
	if err := yaml.Unmarshal(out.Bytes(), &report); err != nil {
		t.Fatalf("Unmarshal stats: %v\n%s", err, out.String())
	}
	if report.Summary.Tracks != 0 || report.Summary.Runs != 0 {
		t.Errorf("Expected an empty database, got %+v", report.Summary)
	}

	out.Reset()
	if err := runStats(ctx, &out, "", 10, "table"); err != nil {
		t.Fatalf("runStats (table): %v", err)
	}
	if !strings.Contains(out.String(), "playlist tracks") {
		t.Errorf("Expected table output to list playlist tracks, got:\n%s", out.String())
	}

	if err := runStats(ctx, &out, "", 10, "xml"); err == nil {
		t.Error("Expected an error for an unknown format")
	}
}

func TestShowQuality(t *testing.T) {
	useTestDatabase(t)
	ctx := context.Background()

	st, err := openStore()
	if err != nil {
		t.Fatalf("openStore: %v", err)
	}
	ledger := quality.NewLedger(st, "run-1")
	ledger.Report(ctx, quality.RecordTrack, "t1", quality.MissingField, "track t1 has no ISRC", quality.SeverityMedium)
	if err := st.AppendRun(ctx, store.Run{
		ID:        "run-1",
		StartedAt: time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC),
		Status:    store.RunSucceeded,
		Issues:    1,
	}); err != nil {
		t.Fatalf("AppendRun: %v", err)
	}
	st.Close()

	var out bytes.Buffer
	if err := showQuality(ctx, &out, QualityConfig{Limit: 10}); err != nil {
		t.Fatalf("showQuality: %v", err)
	}
	for _, want := range []string{"run-1", "missing_field", "track t1 has no ISRC"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out.String())
		}
	}

	if err := showQuality(ctx, &out, QualityConfig{Severity: "urgent", Limit: 10}); err == nil {
		t.Error("Expected an error for an unknown severity")
	}
}

func testRunSummary() pipeline.RunSummary {
	start := time.Date(2024, 3, 1, 6, 0, 0, 0, time.UTC)
	return pipeline.RunSummary{
		RunID:      "run-1",
		StartedAt:  start,
		FinishedAt: start.Add(90 * time.Second),
		Discovered: 3,
		Playlists:  2,
		Entries:    150,
		Failed: []*pipeline.PageFailure{{
			Category:   "running_cardio",
			Query:      "5k",
			PlaylistID: "p3",
			Cursor:     "/v1/playlists/p3/tracks?offset=100",
			Err:        errors.New("<rate limited>"),
		}},
		Issues:     []quality.Count{{Key: quality.Key{Type: quality.MissingField, Severity: quality.SeverityLow}, N: 4}},
		IssueTotal: 4,
	}
}

func TestPrintRunSummary(t *testing.T) {
	var out bytes.Buffer
	printRunSummary(&out, testRunSummary())

	for _, want := range []string{"run-1: partial", "Playlists loaded", "missing_field", "offset=100", "1m30s"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected summary to contain %q, got:\n%s", want, out.String())
		}
	}
}

func TestSummaryEmail(t *testing.T) {
	subject, body := summaryEmail(testRunSummary())

	if subject != "Workout playlist collection 2024-03-01: partial" {
		t.Errorf("Unexpected subject %q", subject)
	}
	if strings.Contains(body, "<rate limited>") {
		t.Error("Expected failure text to be escaped")
	}
	if !strings.Contains(body, "&lt;rate limited&gt;") {
		t.Errorf("Expected escaped failure in body, got:\n%s", body)
	}
}

func TestCategoriesFromConfig(t *testing.T) {
	viper.Set("categories", map[string][]string{})
	if got := categories(); len(got) != len(pipeline.DefaultCategories()) {
		t.Errorf("Expected default categories, got %d", len(got))
	}

	viper.Set("categories", map[string][]string{
		"yoga":    {"yoga", "stretching"},
		"cycling": {"spin"},
	})
	defer viper.Set("categories", map[string][]string{})

	got := categories()
	if len(got) != 2 {
		t.Fatalf("Expected 2 categories, got %d", len(got))
	}
	if got[0].Name != "cycling" || got[1].Name != "yoga" {
		t.Errorf("Expected categories sorted by name, got %q, %q", got[0].Name, got[1].Name)
	}
	if len(got[1].Queries) != 2 {
		t.Errorf("Expected 2 yoga queries, got %v", got[1].Queries)
	}
}

func TestSpotifyClientNeedsCredentials(t *testing.T) {
	viper.Set("client_id", "")
	viper.Set("client_secret", "")
	if _, err := newSpotifyClient(nil); err == nil {
		t.Error("Expected an error without credentials")
	}

	viper.Set("client_id", "id")
	viper.Set("client_secret", "secret")
	defer func() {
		viper.Set("client_id", "")
		viper.Set("client_secret", "")
	}()
	if _, err := newSpotifyClient(nil); err != nil {
		t.Errorf("Expected a client, got %v", err)
	}
}

func TestCollectNotifyNeedsSendgrid(t *testing.T) {
	viper.Set("sendgrid_api_key", "")
	err := collect(context.Background(), CollectConfig{Notify: "me@example.com"})
	if err == nil || !strings.Contains(err.Error(), "sendgrid_api_key") {
		t.Errorf("Expected a sendgrid configuration error, got %v", err)
	}
}
