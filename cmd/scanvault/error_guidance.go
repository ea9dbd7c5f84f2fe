package main

import (
	"errors"

	"github.com/BurntSushi/toml"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	switch {
	case errors.Is(err, errImageNotSaved):
		lines = append(lines,
			"hint: check remaining space with: scanvault usage",
			"hint: free space with: scanvault image reclaim <bytes>, or set images.overflow = evict_oldest",
		)
	case errors.Is(err, errScanNotSaved):
		lines = append(lines,
			"hint: ids must be unique; list existing ids with: scanvault scan list",
			"hint: check remaining space with: scanvault usage",
		)
	case errors.Is(err, errScanNotFound):
		lines = append(lines, "hint: list stored ids with: scanvault scan list")
	case errors.Is(err, errNotDeleted):
		lines = append(lines, "hint: pass an IMG_<ms>.jpg name or a path inside the image store")
	case errors.Is(err, errNoJournal):
		lines = append(lines, "hint: check journal_path with: scanvault config get journal_path")
	}

	var parseErr toml.ParseError
	if errors.As(err, &parseErr) {
		lines = append(lines, "hint: fix the config file or point SCANVAULT_CONFIG_DIR at another directory.")
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
