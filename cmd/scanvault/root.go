package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"scanvault/internal/config"
	"scanvault/internal/format"
)

func newRootCmd(cfg *config.Config) *cobra.Command {
	var (
		outFormat string
		logLevel  string
		logFormat string
	)

	cmd := &cobra.Command{
		Use:           "scanvault",
		Short:         "Scanvault manages bounded local storage for captured images and scan records",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := format.Parse(outFormat)
			if err != nil {
				return err
			}
			outFormat = parsed

			warnings, err := configureLoggerForCLI(logLevel, logFormat, cfg)
			if err != nil {
				return err
			}
			for _, warning := range warnings {
				fmt.Fprintln(stderr, warning)
			}
			return nil
		},
	}

	cmd.Version = version
	cmd.PersistentFlags().StringVar(&outFormat, "format", format.Text, "output format: text, json, or yaml")
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	cmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: text or json")

	cmd.AddCommand(
		newImageCmd(cfg, &outFormat),
		newScanCmd(cfg, &outFormat),
		newUsageCmd(cfg, &outFormat),
		newEventsCmd(cfg, &outFormat),
		newStatsCmd(cfg, &outFormat),
		newWatchCmd(cfg),
		newConfigCmd(cfg),
	)

	return cmd
}
