package main

import (
	"fmt"
	"testing"

	"github.com/BurntSushi/toml"
)

func containsLine(lines []string, want string) bool {
	for _, line := range lines {
		if line == want {
			return true
		}
	}
	return false
}

func TestFormatCLIError_ImageRejectedGuidance(t *testing.T) {
	lines := formatCLIError(fmt.Errorf("%w: /tmp/a.jpg", errImageNotSaved))
	if lines[0] != "image not saved: /tmp/a.jpg" {
		t.Fatalf("expected error first, got %v", lines)
	}
	if !containsLine(lines, "hint: check remaining space with: scanvault usage") {
		t.Fatalf("expected usage hint, got %v", lines)
	}
}

func TestFormatCLIError_ScanGuidance(t *testing.T) {
	lines := formatCLIError(fmt.Errorf("%w: abc", errScanNotFound))
	if !containsLine(lines, "hint: list stored ids with: scanvault scan list") {
		t.Fatalf("expected list hint, got %v", lines)
	}
}

func TestFormatCLIError_ConfigParseGuidance(t *testing.T) {
	var decoded map[string]any
	_, err := toml.Decode("app_dir = ", &decoded)
	if err == nil {
		t.Fatal("expected toml parse error")
	}
	lines := formatCLIError(fmt.Errorf("failed to parse config: %w", err))
	if !containsLine(lines, "hint: fix the config file or point SCANVAULT_CONFIG_DIR at another directory.") {
		t.Fatalf("expected config hint, got %v", lines)
	}
}

func TestFormatCLIError_Nil(t *testing.T) {
	if lines := formatCLIError(nil); lines != nil {
		t.Fatalf("expected nil, got %v", lines)
	}
}

func TestUniqueLines(t *testing.T) {
	got := uniqueLines([]string{"a", "", "b", "a"})
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected lines: %v", got)
	}
}
