package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// StoreType classifies the shop a scanned receipt or label came from.
type StoreType string

const (
	StoreTypeSupermarket StoreType = "supermarket"
	StoreTypeDiscounter  StoreType = "discounter"
	StoreTypePharmacy    StoreType = "pharmacy"
	StoreTypeConvenience StoreType = "convenience"
	StoreTypeOther       StoreType = "other"
)

var validStoreTypes = map[StoreType]struct{}{
	StoreTypeSupermarket: {},
	StoreTypeDiscounter:  {},
	StoreTypePharmacy:    {},
	StoreTypeConvenience: {},
	StoreTypeOther:       {},
}

// ScanRecord is one recognition result: decoded barcodes, OCR text and
// optional fields derived from them.
//
// Optional fields are pointers so that an absent value survives a round trip
// as absent instead of collapsing to a zero value. Notes is always encoded
// (null when absent); the derived fields are omitted when absent.
type ScanRecord struct {
	ID          string    `json:"id" yaml:"id"`
	ImagePath   string    `json:"imagePath" yaml:"imagePath"`
	Barcodes    []string  `json:"barcodes" yaml:"barcodes"`
	OCRText     string    `json:"ocrText" yaml:"ocrText"`
	Timestamp   time.Time `json:"timestamp" yaml:"timestamp"`
	Notes       *string   `json:"notes" yaml:"notes"`
	StoreType   *string   `json:"storeType,omitempty" yaml:"storeType,omitempty"`
	Price       *float64  `json:"price,omitempty" yaml:"price,omitempty"`
	UnitPrice   *float64  `json:"unitPrice,omitempty" yaml:"unitPrice,omitempty"`
	ProductName *string   `json:"productName,omitempty" yaml:"productName,omitempty"`
}

// NewScanID returns a fresh record identifier.
func NewScanID() string {
	return uuid.NewString()
}

// ParseStoreType normalizes and validates a store classification.
func ParseStoreType(raw string) (StoreType, error) {
	value := StoreType(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return "", fmt.Errorf("store type is required")
	}
	if _, ok := validStoreTypes[value]; !ok {
		return "", fmt.Errorf("invalid store type: %s", value)
	}
	return value, nil
}

// Normalize fills the fields a record must always carry.
// Barcodes becomes an empty slice so it encodes as [] rather than null.
func (r *ScanRecord) Normalize(now time.Time) {
	r.ID = strings.TrimSpace(r.ID)
	if r.Barcodes == nil {
		r.Barcodes = []string{}
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = now.UTC()
	}
}

// Validate checks the invariants a record must satisfy before it is stored.
func (r ScanRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("scan id is required")
	}
	if r.Timestamp.IsZero() {
		return fmt.Errorf("scan timestamp is required")
	}
	if r.StoreType != nil {
		if _, err := ParseStoreType(*r.StoreType); err != nil {
			return err
		}
	}
	if r.Price != nil && *r.Price < 0 {
		return fmt.Errorf("price must not be negative")
	}
	if r.UnitPrice != nil && *r.UnitPrice < 0 {
		return fmt.Errorf("unit price must not be negative")
	}
	return nil
}

// timestampLayouts are the ISO 8601 forms accepted for a record timestamp.
// Fractional seconds are accepted after the seconds field by every layout.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTimestamp parses an ISO 8601 date-time. A value without an offset is
// taken as UTC.
func ParseTimestamp(raw string) (time.Time, error) {
	value := strings.TrimSpace(raw)
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, value); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid ISO 8601 timestamp: %q", raw)
}

// UnmarshalJSON accepts any timestamp form ParseTimestamp does. Encoding is
// left to time.Time, which always writes RFC 3339 with nanoseconds.
func (r *ScanRecord) UnmarshalJSON(data []byte) error {
	type plain ScanRecord
	aux := struct {
		*plain
		Timestamp *string `json:"timestamp"`
	}{plain: (*plain)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.Timestamp = time.Time{}
	if aux.Timestamp == nil || strings.TrimSpace(*aux.Timestamp) == "" {
		return nil
	}
	ts, err := ParseTimestamp(*aux.Timestamp)
	if err != nil {
		return fmt.Errorf("scan %s: %w", r.ID, err)
	}
	r.Timestamp = ts
	return nil
}

// StringPtr returns a pointer to a copy of s.
func StringPtr(s string) *string {
	return &s
}

// Float64Ptr returns a pointer to a copy of f.
func Float64Ptr(f float64) *float64 {
	return &f
}
