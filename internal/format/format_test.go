package format

import (
	"bytes"
	"strings"
	"testing"
)

type sample struct {
	Name  string `json:"name" yaml:"name"`
	Bytes int64  `json:"bytes" yaml:"bytes"`
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONFormatter{}).Write(&buf, sample{Name: "a", Bytes: 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(buf.String(), `"name": "a"`) {
		t.Fatalf("unexpected json: %s", buf.String())
	}
}

func TestYAMLFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (YAMLFormatter{}).Write(&buf, sample{Name: "a", Bytes: 3}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if buf.String() != "name: a\nbytes: 3\n" {
		t.Fatalf("unexpected yaml: %q", buf.String())
	}
}

func TestParse(t *testing.T) {
	cases := map[string]string{"": Text, "JSON": JSON, " yaml ": YAML, "text": Text}
	for in, want := range cases {
		got, err := Parse(in)
		if err != nil {
			t.Fatalf("parse %q: %v", in, err)
		}
		if got != want {
			t.Fatalf("parse %q: expected %q, got %q", in, want, got)
		}
	}
	if _, err := Parse("xml"); err == nil {
		t.Fatal("expected error for xml")
	}
	if For(Text) != nil {
		t.Fatal("expected nil formatter for text")
	}
}
