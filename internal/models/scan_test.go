package models

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestParseStoreType(t *testing.T) {
	got, err := ParseStoreType(" Pharmacy ")
	if err != nil {
		t.Fatalf("parse store type: %v", err)
	}
	if got != StoreTypePharmacy {
		t.Fatalf("expected %q, got %q", StoreTypePharmacy, got)
	}

	if _, err := ParseStoreType("kiosk"); err == nil {
		t.Fatal("expected invalid store type error")
	}
	if _, err := ParseStoreType("  "); err == nil {
		t.Fatal("expected missing store type error")
	}
}

func TestScanRecordNormalize(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	rec := ScanRecord{ID: " sc-1 "}
	rec.Normalize(now)

	if rec.ID != "sc-1" {
		t.Fatalf("expected trimmed id, got %q", rec.ID)
	}
	if rec.Barcodes == nil || len(rec.Barcodes) != 0 {
		t.Fatalf("expected empty barcodes slice, got %#v", rec.Barcodes)
	}
	if !rec.Timestamp.Equal(now) {
		t.Fatalf("expected timestamp %v, got %v", now, rec.Timestamp)
	}

	earlier := now.Add(-time.Hour)
	rec = ScanRecord{ID: "sc-2", Timestamp: earlier}
	rec.Normalize(now)
	if !rec.Timestamp.Equal(earlier) {
		t.Fatalf("existing timestamp must not change, got %v", rec.Timestamp)
	}
}

func TestScanRecordValidate(t *testing.T) {
	now := time.Now().UTC()
	tests := []struct {
		name    string
		rec     ScanRecord
		wantErr bool
	}{
		{name: "minimal", rec: ScanRecord{ID: "a", Timestamp: now}},
		{name: "missing id", rec: ScanRecord{Timestamp: now}, wantErr: true},
		{name: "missing timestamp", rec: ScanRecord{ID: "a"}, wantErr: true},
		{name: "bad store type", rec: ScanRecord{ID: "a", Timestamp: now, StoreType: StringPtr("kiosk")}, wantErr: true},
		{name: "negative price", rec: ScanRecord{ID: "a", Timestamp: now, Price: Float64Ptr(-1)}, wantErr: true},
		{name: "negative unit price", rec: ScanRecord{ID: "a", Timestamp: now, UnitPrice: Float64Ptr(-0.5)}, wantErr: true},
		{name: "full", rec: ScanRecord{ID: "a", Timestamp: now, StoreType: StringPtr("supermarket"), Price: Float64Ptr(2.49), UnitPrice: Float64Ptr(4.98)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.rec.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("validate: %v", err)
			}
		})
	}
}

func TestScanRecordJSONFieldNames(t *testing.T) {
	rec := ScanRecord{
		ID:        "sc-1",
		ImagePath: "/data/captured_images/IMG_1.jpg",
		Barcodes:  []string{"4006381333931"},
		OCRText:   "Milk 1L",
		Timestamp: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	encoded := string(data)
	for _, want := range []string{`"id":"sc-1"`, `"imagePath":`, `"barcodes":["4006381333931"]`, `"ocrText":"Milk 1L"`, `"timestamp":"2026-03-01T10:00:00Z"`, `"notes":null`} {
		if !strings.Contains(encoded, want) {
			t.Fatalf("expected %s in %s", want, encoded)
		}
	}
	for _, absent := range []string{"storeType", "price", "unitPrice", "productName"} {
		if strings.Contains(encoded, absent) {
			t.Fatalf("expected %s to be omitted from %s", absent, encoded)
		}
	}
}

func TestNewScanIDUnique(t *testing.T) {
	seen := map[string]struct{}{}
	for i := 0; i < 100; i++ {
		id := NewScanID()
		if _, ok := seen[id]; ok {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = struct{}{}
	}
}

func TestParseTimestampForms(t *testing.T) {
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"2024-05-01T10:20:30Z", time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC)},
		{"2024-05-01T10:20:30.123456789+02:00", time.Date(2024, 5, 1, 8, 20, 30, 123456789, time.UTC)},
		{"2024-05-01T10:20:30.123456", time.Date(2024, 5, 1, 10, 20, 30, 123456000, time.UTC)},
		{"2024-05-01T10:20:30", time.Date(2024, 5, 1, 10, 20, 30, 0, time.UTC)},
		{"2024-05-01T10:20:30+0100", time.Date(2024, 5, 1, 9, 20, 30, 0, time.UTC)},
		{"2024-05-01 10:20:30.5", time.Date(2024, 5, 1, 10, 20, 30, 500000000, time.UTC)},
		{"2024-05-01T10:20", time.Date(2024, 5, 1, 10, 20, 0, 0, time.UTC)},
		{"2024-05-01", time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range tests {
		got, err := ParseTimestamp(tc.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tc.raw, err)
		}
		if !got.Equal(tc.want) {
			t.Fatalf("parse %q: want %v, got %v", tc.raw, tc.want, got)
		}
	}

	for _, raw := range []string{"", "yesterday", "2024-13-01T00:00:00"} {
		if _, err := ParseTimestamp(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

func TestScanRecordDecodesOffsetlessTimestamp(t *testing.T) {
	data := []byte(`[{"id":"a","imagePath":"/img/a.jpg","barcodes":[],"ocrText":"","timestamp":"2024-05-01T10:20:30.123456","notes":null}]`)
	var records []ScanRecord
	if err := json.Unmarshal(data, &records); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(records) != 1 || records[0].ID != "a" || records[0].ImagePath != "/img/a.jpg" {
		t.Fatalf("unexpected records: %#v", records)
	}
	want := time.Date(2024, 5, 1, 10, 20, 30, 123456000, time.UTC)
	if !records[0].Timestamp.Equal(want) {
		t.Fatalf("want %v, got %v", want, records[0].Timestamp)
	}
	if records[0].Notes != nil {
		t.Fatalf("notes should stay absent, got %q", *records[0].Notes)
	}

	out, err := json.Marshal(records[0])
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !strings.Contains(string(out), `"timestamp":"2024-05-01T10:20:30.123456Z"`) {
		t.Fatalf("timestamp not written as RFC 3339: %s", out)
	}

	var again ScanRecord
	if err := json.Unmarshal(out, &again); err != nil {
		t.Fatalf("decode again: %v", err)
	}
	if !again.Timestamp.Equal(want) {
		t.Fatalf("round trip changed timestamp: %v", again.Timestamp)
	}
}

func TestScanRecordRejectsUnparseableTimestamp(t *testing.T) {
	var rec ScanRecord
	if err := json.Unmarshal([]byte(`{"id":"a","timestamp":"last tuesday"}`), &rec); err == nil {
		t.Fatal("expected decode error")
	}
}
