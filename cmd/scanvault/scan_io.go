package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"scanvault/internal/config"
	"scanvault/internal/format"
	"scanvault/internal/models"
	"scanvault/internal/vault"
)

type importReport struct {
	Imported int      `json:"imported" yaml:"imported"`
	Skipped  []string `json:"skipped" yaml:"skipped"`
}

func newScanImportCmd(cfg *config.Config, outFormat *string) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file>",
		Short: "Import scan records from a JSON or YAML array (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := readScanFile(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			return withVault(cfg, func(v *vault.Vault) error {
				report := importReport{Skipped: []string{}}
				for _, rec := range records {
					if v.SaveScan(cmd.Context(), rec) {
						report.Imported++
						continue
					}
					report.Skipped = append(report.Skipped, rec.ID)
				}
				return writeOutput(*outFormat, report, func() error {
					return writePlain("imported %d, skipped %d\n", report.Imported, len(report.Skipped))
				})
			})
		},
	}
}

func readScanFile(path string, stdin io.Reader) ([]models.ScanRecord, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, err
	}
	return decodeScans(data, filepath.Ext(path))
}

// decodeScans parses a JSON array, or a YAML sequence when the input does not
// look like JSON.
func decodeScans(data []byte, ext string) ([]models.ScanRecord, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return []models.ScanRecord{}, nil
	}

	var records []models.ScanRecord
	isJSON := strings.EqualFold(ext, ".json") || trimmed[0] == '['
	if isJSON {
		if err := json.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("parse json scans: %w", err)
		}
	} else {
		if err := yaml.Unmarshal(trimmed, &records); err != nil {
			return nil, fmt.Errorf("parse yaml scans: %w", err)
		}
	}
	if records == nil {
		records = []models.ScanRecord{}
	}
	return records, nil
}

func newScanExportCmd(cfg *config.Config) *cobra.Command {
	var (
		output string
		asYAML bool
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export all scan records as JSON (or YAML)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cfg, func(v *vault.Vault) error {
				records := v.ListScans(cmd.Context())
				var formatter format.Formatter = format.JSONFormatter{}
				if asYAML {
					formatter = format.YAMLFormatter{}
				}
				if output == "" || output == "-" {
					return formatter.Write(stdout, records)
				}
				return writeFileAtomic(output, func(w io.Writer) error {
					return formatter.Write(w, records)
				})
			})
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "write to file instead of stdout")
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "export as YAML")
	return cmd
}

func writeFileAtomic(path string, write func(io.Writer) error) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".export-*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := write(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
