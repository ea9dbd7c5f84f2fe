package main

import (
	"github.com/spf13/cobra"

	"scanvault/internal/config"
	"scanvault/internal/vault"
)

func newUsageCmd(cfg *config.Config, outFormat *string) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show usage of both stores",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cfg, func(v *vault.Vault) error {
				reports := usageReports(v, v.ImageUsage(cmd.Context()), v.ScanUsage(cmd.Context()))
				return writeOutput(*outFormat, reports, func() error {
					for _, r := range reports {
						if err := writePlain("%s\n", formatUsageLine(r)); err != nil {
							return err
						}
					}
					return nil
				})
			})
		},
	}
}
