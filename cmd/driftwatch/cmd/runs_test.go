package cmd

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/clearclaim/driftwatch/internal/models"
	"github.com/clearclaim/driftwatch/internal/storage"
)

func seedSignal(t *testing.T, dbPath string) *models.ComputationRun {
	t.Helper()
	store := storage.NewSQLiteStorage(dbPath)
	if err := store.Open(); err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := store.Migrate(); err != nil {
		t.Fatalf("migrate store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	run := models.NewComputationRun("tenant-a")
	if err := store.Runs().Create(ctx, run); err != nil {
		t.Fatalf("create run: %v", err)
	}
	key := models.GroupingKey{Payer: "acme-health", ProcedureGroup: "cardiology"}
	sig := models.NewDriftSignal("tenant-a", run.ID, key, models.SignalDenialRate)
	sig.Trend = models.TrendDegrading
	if _, _, err := store.Signals().Create(ctx, sig); err != nil {
		t.Fatalf("create signal: %v", err)
	}
	return run
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()
	old := os.Stdout
	r, w, err := os.Pipe()
	if err != nil {
		t.Fatalf("pipe: %v", err)
	}
	os.Stdout = w
	runErr := fn()
	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	io.Copy(&buf, r)
	return buf.String(), runErr
}

func TestRunsSignalsListsGroupingKey(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	t.Setenv("DRIFTWATCH_DB_PATH", dbPath)
	run := seedSignal(t, dbPath)

	runsTenant = "tenant-a"
	defer func() { runsTenant = "" }()

	runsSignalsCmd.SetContext(context.Background())
	out, err := captureStdout(t, func() error {
		return runsSignalsCmd.RunE(runsSignalsCmd, []string{run.ID})
	})
	if err != nil {
		t.Fatalf("runs signals: %v", err)
	}
	if !strings.Contains(out, "acme-health") || !strings.Contains(out, "cardiology") {
		t.Errorf("output missing grouping key columns:\n%s", out)
	}
	if !strings.Contains(out, string(models.SignalDenialRate)) {
		t.Errorf("output missing signal type:\n%s", out)
	}
}

func TestRunsSignalsRequiresTenant(t *testing.T) {
	runsTenant = ""
	if err := runsSignalsCmd.RunE(runsSignalsCmd, []string{"some-run"}); err == nil {
		t.Fatal("expected error without --tenant")
	}
}
