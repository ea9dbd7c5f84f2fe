package main

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"scanvault/internal/config"
	"scanvault/internal/models"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.AppDir = t.TempDir()
	cfg.Images.CeilingBytes = 1000
	return &cfg
}

func runCLI(t *testing.T, cfg *config.Config, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	prev, prevErr, prevLogger := stdout, stderr, slog.Default()
	stdout, stderr = &buf, &buf
	t.Cleanup(func() {
		stdout, stderr = prev, prevErr
		slog.SetDefault(prevLogger)
	})
	t.Setenv(logLevelEnvKey, "")
	t.Setenv(logFormatEnvKey, "")

	cmd := newRootCmd(cfg)
	cmd.SetArgs(append([]string{"--log-level", "error"}, args...))
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	err := cmd.Execute()
	return buf.String(), err
}

func writeCapture(t *testing.T, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "capture.jpg")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xFF, 0xD8}, size/2), 0o644); err != nil {
		t.Fatalf("write capture: %v", err)
	}
	return path
}

func TestImageSaveRejectedOverCeiling(t *testing.T) {
	cfg := testConfig(t)

	out, err := runCLI(t, cfg, "image", "save", writeCapture(t, 900))
	if err != nil {
		t.Fatalf("first save: %v", err)
	}
	if !strings.Contains(out, "IMG_") {
		t.Fatalf("expected stored path, got %q", out)
	}

	_, err = runCLI(t, cfg, "image", "save", writeCapture(t, 200))
	if err == nil {
		t.Fatal("expected second save to be rejected")
	}
	if !containsLine(formatCLIError(err), "hint: check remaining space with: scanvault usage") {
		t.Fatalf("expected capacity hint for %v", err)
	}

	out, err = runCLI(t, cfg, "--format", "json", "image", "list")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	var blobs []models.StoredBlob
	if err := json.Unmarshal([]byte(out), &blobs); err != nil {
		t.Fatalf("decode list: %v\n%s", err, out)
	}
	if len(blobs) != 1 || blobs[0].SizeBytes != 900 {
		t.Fatalf("expected one 900-byte image, got %+v", blobs)
	}
}

func TestScanSaveShowDelete(t *testing.T) {
	cfg := testConfig(t)

	out, err := runCLI(t, cfg, "scan", "save", "--id", "s1", "--barcode", "4006381333931",
		"--text", "butter", "--price", "2.19", "--store-type", "discounter", "--capture", writeCapture(t, 64))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if strings.TrimSpace(out) != "s1" {
		t.Fatalf("expected id output, got %q", out)
	}

	out, err = runCLI(t, cfg, "--format", "yaml", "scan", "show", "s1")
	if err != nil {
		t.Fatalf("show: %v", err)
	}
	for _, want := range []string{"id: s1", "storeType: discounter", "price: 2.19", "imagePath: " + filepath.Join(cfg.AppDir, "captured_images")} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in:\n%s", want, out)
		}
	}

	if _, err := runCLI(t, cfg, "scan", "save", "--id", "s1"); err == nil {
		t.Fatal("expected duplicate id to fail")
	}

	if _, err := runCLI(t, cfg, "scan", "delete", "s1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := runCLI(t, cfg, "scan", "show", "s1"); err == nil {
		t.Fatal("expected show after delete to fail")
	}
}

func TestScanImportExportRoundTrip(t *testing.T) {
	cfg := testConfig(t)
	input := filepath.Join(t.TempDir(), "scans.json")
	data := `[{"id":"a","imagePath":"/x/a.jpg","barcodes":[],"ocrText":"","timestamp":"2026-01-01T00:00:00Z","notes":null},
{"id":"b","imagePath":"/x/b.jpg","barcodes":["1"],"ocrText":"bread","timestamp":"2026-01-02T00:00:00Z","notes":"fresh"},
{"id":"a","imagePath":"/x/dup.jpg","barcodes":[],"ocrText":"","timestamp":"2026-01-03T00:00:00Z","notes":null}]`
	if err := os.WriteFile(input, []byte(data), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	out, err := runCLI(t, cfg, "scan", "import", input)
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if strings.TrimSpace(out) != "imported 2, skipped 1" {
		t.Fatalf("unexpected import summary %q", out)
	}

	exportPath := filepath.Join(t.TempDir(), "export.json")
	if _, err := runCLI(t, cfg, "scan", "export", "-o", exportPath); err != nil {
		t.Fatalf("export: %v", err)
	}
	raw, err := os.ReadFile(exportPath)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	var exported []models.ScanRecord
	if err := json.Unmarshal(raw, &exported); err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if len(exported) != 2 || exported[0].ID != "a" || exported[1].Notes == nil || *exported[1].Notes != "fresh" {
		t.Fatalf("unexpected export %+v", exported)
	}
}

func TestUsageEventsAndStats(t *testing.T) {
	cfg := testConfig(t)
	if _, err := runCLI(t, cfg, "image", "save", writeCapture(t, 100)); err != nil {
		t.Fatalf("save: %v", err)
	}

	out, err := runCLI(t, cfg, "usage")
	if err != nil {
		t.Fatalf("usage: %v", err)
	}
	if !strings.Contains(out, "images 100 B / 1000 B (10.0%), 900 B free") {
		t.Fatalf("unexpected usage output:\n%s", out)
	}

	out, err = runCLI(t, cfg, "events", "--store", "images")
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if !strings.Contains(out, "images save") {
		t.Fatalf("expected save event, got:\n%s", out)
	}

	out, err = runCLI(t, cfg, "stats")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !strings.Contains(out, "scanvault_save_total{store=images} 1") || !strings.Contains(out, "scanvault_save_bytes_total{store=images} 100") {
		t.Fatalf("unexpected stats:\n%s", out)
	}

	if _, err := runCLI(t, cfg, "events", "--op", "explode"); err == nil {
		t.Fatal("expected invalid op to fail")
	}
}

func TestInvalidFormatFlag(t *testing.T) {
	if _, err := runCLI(t, testConfig(t), "--format", "xml", "usage"); err == nil {
		t.Fatal("expected invalid format error")
	}
}

func TestConfigGetAndSet(t *testing.T) {
	cfg := testConfig(t)
	dir := t.TempDir()
	t.Setenv("SCANVAULT_CONFIG_DIR", dir)

	out, err := runCLI(t, cfg, "config", "get", "images.ceiling_bytes")
	if err != nil || strings.TrimSpace(out) != "1000" {
		t.Fatalf("expected 1000, got %q (err %v)", out, err)
	}
	if _, err := runCLI(t, cfg, "config", "set", "scans.overflow", "reject"); err != nil {
		t.Fatalf("set: %v", err)
	}
	raw, err := os.ReadFile(filepath.Join(dir, ".scanvault.toml"))
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if !strings.Contains(string(raw), `overflow = "reject"`) {
		t.Fatalf("unexpected config file:\n%s", raw)
	}
}

func TestScanListNewestOrdersByTimestamp(t *testing.T) {
	cfg := testConfig(t)
	for _, s := range []struct{ id, ts string }{
		{"middle", "2026-02-01T09:00:00Z"},
		{"newest", "2026-03-01T09:00:00"},
		{"oldest", "2026-01-01T09:00:00.5"},
	} {
		if _, err := runCLI(t, cfg, "scan", "save", "--id", s.id, "--timestamp", s.ts); err != nil {
			t.Fatalf("save %s: %v", s.id, err)
		}
	}

	ids := func(args ...string) []string {
		out, err := runCLI(t, cfg, append([]string{"--format", "json", "scan", "list"}, args...)...)
		if err != nil {
			t.Fatalf("list %v: %v", args, err)
		}
		var records []models.ScanRecord
		if err := json.Unmarshal([]byte(out), &records); err != nil {
			t.Fatalf("decode list: %v\n%s", err, out)
		}
		got := make([]string, 0, len(records))
		for _, rec := range records {
			got = append(got, rec.ID)
		}
		return got
	}

	if got := strings.Join(ids(), ","); got != "middle,newest,oldest" {
		t.Fatalf("expected stored order, got %s", got)
	}
	if got := strings.Join(ids("--newest"), ","); got != "newest,middle,oldest" {
		t.Fatalf("expected newest first, got %s", got)
	}
	if got := strings.Join(ids("--newest", "--limit", "1"), ","); got != "newest" {
		t.Fatalf("expected only the newest, got %s", got)
	}
}
