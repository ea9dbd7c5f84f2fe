package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"scanvault/internal/config"
	"scanvault/internal/vault"
)

func newImageCmd(cfg *config.Config, outFormat *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "image",
		Short: "Manage captured images",
	}
	cmd.AddCommand(
		newImageSaveCmd(cfg, outFormat),
		newImageListCmd(cfg, outFormat),
		newImageDeleteCmd(cfg),
		newImageUsageCmd(cfg, outFormat),
		newImageReclaimCmd(cfg, outFormat),
	)
	return cmd
}

func newImageSaveCmd(cfg *config.Config, outFormat *string) *cobra.Command {
	var size int64

	cmd := &cobra.Command{
		Use:   "save <source>",
		Short: "Copy an image into the store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cfg, func(v *vault.Vault) error {
				blob := v.SaveImage(cmd.Context(), args[0], size)
				if blob == nil {
					return fmt.Errorf("%w: %s", errImageNotSaved, args[0])
				}
				return writeOutput(*outFormat, blob, func() error {
					return writePlain("%s\n", blob.Path)
				})
			})
		},
	}

	cmd.Flags().Int64Var(&size, "size", 0, "declared size in bytes (default: source file size)")
	return cmd
}

func newImageListCmd(cfg *config.Config, outFormat *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored images, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cfg, func(v *vault.Vault) error {
				blobs := v.ListImages(cmd.Context())
				return writeOutput(*outFormat, blobs, func() error {
					return writeBlobList(blobs)
				})
			})
		},
	}
}

func newImageDeleteCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <name-or-path>...",
		Short: "Delete stored images",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cfg, func(v *vault.Vault) error {
				removed := 0
				for _, ref := range args {
					if v.DeleteImage(cmd.Context(), ref) {
						removed++
						if err := writePlain("deleted %s\n", ref); err != nil {
							return err
						}
					}
				}
				if removed == 0 {
					return errNotDeleted
				}
				return nil
			})
		},
	}
}

func newImageUsageCmd(cfg *config.Config, outFormat *string) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show image store usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cfg, func(v *vault.Vault) error {
				report := usageReports(v, v.ImageUsage(cmd.Context()), 0)[0]
				return writeOutput(*outFormat, report, func() error {
					return writePlain("%s\n", formatUsageLine(report))
				})
			})
		},
	}
}

func newImageReclaimCmd(cfg *config.Config, outFormat *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim <bytes>",
		Short: "Delete the oldest images until enough bytes are freed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			required, err := parseByteArg(args[0])
			if err != nil {
				return err
			}
			return withVault(cfg, func(v *vault.Vault) error {
				freed := v.ReclaimImages(cmd.Context(), required)
				return writeReclaim(*outFormat, "images", required, freed)
			})
		},
	}
}

type reclaimReport struct {
	Store    string `json:"store" yaml:"store"`
	Required int64  `json:"required_bytes" yaml:"required_bytes"`
	Freed    int64  `json:"freed_bytes" yaml:"freed_bytes"`
}

func writeReclaim(outFormat, store string, required, freed int64) error {
	report := reclaimReport{Store: store, Required: required, Freed: freed}
	return writeOutput(outFormat, report, func() error {
		return writePlain("%s: freed %s of %s requested\n", store,
			humanize.IBytes(uint64(max(freed, 0))), humanize.IBytes(uint64(max(required, 0))))
	})
}

// parseByteArg accepts plain byte counts or humanized sizes such as 2MiB.
func parseByteArg(raw string) (int64, error) {
	n, err := humanize.ParseBytes(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid byte count %q: %w", raw, err)
	}
	if n > 1<<62 {
		return 0, fmt.Errorf("byte count %q is too large", raw)
	}
	return int64(n), nil
}
