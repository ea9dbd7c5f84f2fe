package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"scanvault/internal/format"
	"scanvault/internal/models"
)

var stdout io.Writer = os.Stdout

// writeOutput renders payload with the structured formatter for outFormat,
// or calls text when plain output was requested.
func writeOutput(outFormat string, payload any, text func() error) error {
	if f := format.For(outFormat); f != nil {
		return f.Write(stdout, payload)
	}
	return text()
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(stdout, format, args...)
	return err
}

func writeBlobList(blobs []models.StoredBlob) error {
	for _, blob := range blobs {
		if err := writePlain("%s\n", formatBlobLine(blob)); err != nil {
			return err
		}
	}
	return nil
}

func formatBlobLine(blob models.StoredBlob) string {
	media := blob.MediaType
	if media == "" {
		media = "-"
	}
	return fmt.Sprintf("%s  %8s  %s  %s", blob.Name, humanize.IBytes(uint64(max(blob.SizeBytes, 0))), formatTime(blob.ModTime), media)
}

func writeScanList(records []models.ScanRecord) error {
	for _, rec := range records {
		if err := writePlain("%s\n", formatScanLine(rec)); err != nil {
			return err
		}
	}
	return nil
}

func formatScanLine(rec models.ScanRecord) string {
	label := rec.OCRText
	if rec.ProductName != nil && *rec.ProductName != "" {
		label = *rec.ProductName
	}
	label = strings.Join(strings.Fields(label), " ")
	if len(label) > 48 {
		label = label[:45] + "..."
	}
	return fmt.Sprintf("%s  %s  [%s]  %s", rec.ID, formatTime(rec.Timestamp), strings.Join(rec.Barcodes, ","), label)
}

func writeScanDetail(rec models.ScanRecord) error {
	lines := []string{
		fmt.Sprintf("id: %s", rec.ID),
		fmt.Sprintf("timestamp: %s", formatTime(rec.Timestamp)),
		fmt.Sprintf("image_path: %s", rec.ImagePath),
	}
	if len(rec.Barcodes) > 0 {
		lines = append(lines, fmt.Sprintf("barcodes: %s", strings.Join(rec.Barcodes, ", ")))
	}
	if rec.OCRText != "" {
		lines = append(lines, fmt.Sprintf("ocr_text: %s", rec.OCRText))
	}
	if rec.Notes != nil {
		lines = append(lines, fmt.Sprintf("notes: %s", *rec.Notes))
	}
	if rec.StoreType != nil {
		lines = append(lines, fmt.Sprintf("store_type: %s", *rec.StoreType))
	}
	if rec.ProductName != nil {
		lines = append(lines, fmt.Sprintf("product_name: %s", *rec.ProductName))
	}
	if rec.Price != nil {
		lines = append(lines, fmt.Sprintf("price: %.2f", *rec.Price))
	}
	if rec.UnitPrice != nil {
		lines = append(lines, fmt.Sprintf("unit_price: %.2f", *rec.UnitPrice))
	}
	return writePlain("%s\n", strings.Join(lines, "\n"))
}

// usageReport is the structured form of a store's capacity state.
type usageReport struct {
	Store     string `json:"store" yaml:"store"`
	Root      string `json:"root" yaml:"root"`
	Usage     int64  `json:"usage_bytes" yaml:"usage_bytes"`
	Ceiling   int64  `json:"ceiling_bytes" yaml:"ceiling_bytes"`
	Remaining int64  `json:"remaining_bytes" yaml:"remaining_bytes"`
}

func formatUsageLine(r usageReport) string {
	pct := 0.0
	if r.Ceiling > 0 {
		pct = float64(r.Usage) / float64(r.Ceiling) * 100
	}
	return fmt.Sprintf("%-6s %s / %s (%.1f%%), %s free", r.Store,
		humanize.IBytes(uint64(max(r.Usage, 0))),
		humanize.IBytes(uint64(max(r.Ceiling, 0))),
		pct,
		formatSignedBytes(r.Remaining))
}

func formatSignedBytes(n int64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n))
	}
	return humanize.IBytes(uint64(n))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
