package models

import "time"

// StoredBlob is one captured image persisted by the image store.
type StoredBlob struct {
	Name      string    `json:"name" yaml:"name"`
	Path      string    `json:"path" yaml:"path"`
	SizeBytes int64     `json:"size_bytes" yaml:"size_bytes"`
	ModTime   time.Time `json:"mod_time" yaml:"mod_time"`
	MediaType string    `json:"media_type,omitempty" yaml:"media_type,omitempty"`
	Checksum  string    `json:"checksum,omitempty" yaml:"checksum,omitempty"`
}
