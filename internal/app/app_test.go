package app

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"tvwebhook/internal/config"
)

func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg := &config.Config{
		App:     config.AppConfig{Name: "test"},
		Webhook: config.WebhookConfig{Secret: "s3cret", SelfTestEnabled: true},
		Storage: config.StorageConfig{Dir: filepath.Join(t.TempDir(), "logs")},
	}
	return NewApp(cfg, zerolog.Nop())
}

func runSelfTest(t *testing.T, a *App, overrides map[string]string) map[string]any {
	t.Helper()
	var buf bytes.Buffer
	if err := a.selfTest(context.Background(), &buf, SelfTestOptions{Overrides: overrides}); err != nil {
		t.Fatalf("selftest: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(buf.Bytes(), &out); err != nil {
		t.Fatalf("selftest output: %v", err)
	}
	return out
}

func TestSelfTestWritesRecord(t *testing.T) {
	a := newTestApp(t)

	out := runSelfTest(t, a, map[string]string{"ticker": "ETHUSD", "close": "2,500"})
	if out["ok"] != true || out["mode"] != "selftest" {
		t.Fatalf("output = %v", out)
	}
	key := out["received_at"].(string)
	if _, err := os.Stat(filepath.Join(a.Config.Storage.Dir, "tv_"+key+".json")); err != nil {
		t.Fatalf("record missing: %v", err)
	}
}

func TestSelfTestDisabled(t *testing.T) {
	a := newTestApp(t)
	a.Config.Webhook.SelfTestEnabled = false

	var buf bytes.Buffer
	if err := a.selfTest(context.Background(), &buf, SelfTestOptions{}); err == nil {
		t.Fatal("expected an error when selftest is disabled")
	}
}

func TestShow(t *testing.T) {
	a := newTestApp(t)

	var buf bytes.Buffer
	if err := a.show(context.Background(), &buf, ShowOptions{Limit: 5}); err != nil {
		t.Fatalf("show: %v", err)
	}
	if !strings.Contains(buf.String(), "no records found") {
		t.Fatalf("empty output = %q", buf.String())
	}

	runSelfTest(t, a, map[string]string{"ticker": "BTCUSD"})
	runSelfTest(t, a, map[string]string{"ticker": "ETHUSD", "close": "abc"})

	buf.Reset()
	if err := a.show(context.Background(), &buf, ShowOptions{Limit: 1}); err != nil {
		t.Fatalf("show: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected header + 1 row, got %q", buf.String())
	}
	if !strings.Contains(lines[1], "ETHUSD") || !strings.Contains(lines[1], "None") {
		t.Fatalf("newest row = %q", lines[1])
	}
}

func TestExportCSVAndPNG(t *testing.T) {
	a := newTestApp(t)
	runSelfTest(t, a, map[string]string{"ticker": "BTCUSD", "close": "101.5"})
	runSelfTest(t, a, map[string]string{"ticker": "ETHUSD", "close": "2,500"})
	runSelfTest(t, a, map[string]string{"ticker": "BTCUSD", "close": "103"})

	out := t.TempDir()
	csvPath := filepath.Join(out, "nested", "alerts.csv")
	pngPath := filepath.Join(out, "alerts.png")

	err := a.Export(context.Background(), ExportOptions{Ticker: "BTCUSD", CSVPath: csvPath, PNGPath: pngPath})
	if err != nil {
		t.Fatalf("export: %v", err)
	}

	f, err := os.Open(csvPath)
	if err != nil {
		t.Fatalf("open csv: %v", err)
	}
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		t.Fatalf("read csv: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected header + 2 rows, got %d", len(rows))
	}
	closeCol := -1
	for i, h := range rows[0] {
		if h == "close" {
			closeCol = i
		}
	}
	if closeCol < 0 || rows[1][closeCol] != "101.5" || rows[2][closeCol] != "103" {
		t.Fatalf("close column = %v", rows)
	}

	info, err := os.Stat(pngPath)
	if err != nil || info.Size() == 0 {
		t.Fatalf("png not written: %v", err)
	}
}

func TestExportRequiresOutput(t *testing.T) {
	a := newTestApp(t)
	if err := a.Export(context.Background(), ExportOptions{}); err == nil {
		t.Fatal("expected error without --csv or --png")
	}
}

func TestDownsampleRecordsKeepsEnds(t *testing.T) {
	a := newTestApp(t)
	for i := 0; i < 5; i++ {
		runSelfTest(t, a, nil)
	}
	out := t.TempDir()
	csvPath := filepath.Join(out, "a.csv")
	if err := a.Export(context.Background(), ExportOptions{CSVPath: csvPath, MaxPoints: 2}); err != nil {
		t.Fatalf("export: %v", err)
	}
	data, err := os.ReadFile(csvPath)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if n := len(strings.Split(strings.TrimSpace(string(data)), "\n")); n != 3 {
		t.Fatalf("expected header + 2 rows, got %d", n)
	}
}
