package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"scanvault/internal/config"
	"scanvault/internal/models"
	"scanvault/internal/vault"
)

func newScanCmd(cfg *config.Config, outFormat *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Manage scan records",
	}
	cmd.AddCommand(
		newScanSaveCmd(cfg, outFormat),
		newScanImportCmd(cfg, outFormat),
		newScanListCmd(cfg, outFormat),
		newScanShowCmd(cfg, outFormat),
		newScanDeleteCmd(cfg),
		newScanUsageCmd(cfg, outFormat),
		newScanReclaimCmd(cfg, outFormat),
		newScanExportCmd(cfg),
	)
	return cmd
}

type scanSaveOptions struct {
	id          string
	imagePath   string
	capture     string
	barcodes    []string
	text        string
	notes       string
	storeType   string
	productName string
	price       float64
	unitPrice   float64
	timestamp   string

	hasNotes, hasStoreType, hasProductName, hasPrice, hasUnitPrice bool
}

func newScanSaveCmd(cfg *config.Config, outFormat *string) *cobra.Command {
	var opts scanSaveOptions

	cmd := &cobra.Command{
		Use:   "save",
		Short: "Store a scan record",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			opts.hasNotes = flags.Changed("notes")
			opts.hasStoreType = flags.Changed("store-type")
			opts.hasProductName = flags.Changed("product-name")
			opts.hasPrice = flags.Changed("price")
			opts.hasUnitPrice = flags.Changed("unit-price")

			rec, err := buildScanRecord(opts)
			if err != nil {
				return err
			}
			return withVault(cfg, func(v *vault.Vault) error {
				saved, err := saveScanWithCapture(cmd, v, rec, opts.capture)
				if err != nil {
					return err
				}
				return writeOutput(*outFormat, saved, func() error {
					return writePlain("%s\n", saved.ID)
				})
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.id, "id", "", "record id (default: generated)")
	flags.StringVar(&opts.imagePath, "image", "", "path of an already stored image")
	flags.StringVar(&opts.capture, "capture", "", "image file to copy into the image store and link")
	flags.StringArrayVar(&opts.barcodes, "barcode", nil, "decoded barcode (repeatable)")
	flags.StringVar(&opts.text, "text", "", "recognized text")
	flags.StringVar(&opts.notes, "notes", "", "free-form notes")
	flags.StringVar(&opts.storeType, "store-type", "", "store type: supermarket, discounter, pharmacy, convenience, other")
	flags.StringVar(&opts.productName, "product-name", "", "product name")
	flags.Float64Var(&opts.price, "price", 0, "price")
	flags.Float64Var(&opts.unitPrice, "unit-price", 0, "unit price")
	flags.StringVar(&opts.timestamp, "timestamp", "", "capture time in ISO 8601, UTC when no offset is given (default: now)")
	return cmd
}

func buildScanRecord(opts scanSaveOptions) (models.ScanRecord, error) {
	if opts.imagePath != "" && opts.capture != "" {
		return models.ScanRecord{}, fmt.Errorf("--image and --capture are mutually exclusive")
	}

	rec := models.ScanRecord{
		ID:        strings.TrimSpace(opts.id),
		ImagePath: opts.imagePath,
		Barcodes:  cleanBarcodes(opts.barcodes),
		OCRText:   opts.text,
	}
	if rec.ID == "" {
		rec.ID = models.NewScanID()
	}
	rec.Timestamp = time.Now().UTC()
	if opts.timestamp != "" {
		ts, err := models.ParseTimestamp(opts.timestamp)
		if err != nil {
			return models.ScanRecord{}, fmt.Errorf("invalid --timestamp %q: %w", opts.timestamp, err)
		}
		rec.Timestamp = ts.UTC()
	}
	if opts.hasNotes {
		rec.Notes = models.StringPtr(opts.notes)
	}
	if opts.hasStoreType {
		st, err := models.ParseStoreType(opts.storeType)
		if err != nil {
			return models.ScanRecord{}, err
		}
		rec.StoreType = models.StringPtr(string(st))
	}
	if opts.hasProductName {
		rec.ProductName = models.StringPtr(opts.productName)
	}
	if opts.hasPrice {
		rec.Price = models.Float64Ptr(opts.price)
	}
	if opts.hasUnitPrice {
		rec.UnitPrice = models.Float64Ptr(opts.unitPrice)
	}
	return rec, rec.Validate()
}

func cleanBarcodes(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		value = strings.TrimSpace(value)
		if value == "" {
			continue
		}
		out = append(out, value)
	}
	return out
}

// saveScanWithCapture stores the capture image first when one is given and
// removes it again if the record is refused.
func saveScanWithCapture(cmd *cobra.Command, v *vault.Vault, rec models.ScanRecord, capture string) (models.ScanRecord, error) {
	ctx := cmd.Context()
	if capture != "" {
		blob := v.SaveImage(ctx, capture, 0)
		if blob == nil {
			return models.ScanRecord{}, fmt.Errorf("%w: %s", errImageNotSaved, capture)
		}
		rec.ImagePath = blob.Path
	}
	if !v.SaveScan(ctx, rec) {
		if capture != "" {
			v.DeleteImage(ctx, rec.ImagePath)
		}
		return models.ScanRecord{}, fmt.Errorf("%w: %s", errScanNotSaved, rec.ID)
	}
	if saved := v.GetScan(ctx, rec.ID); saved != nil {
		return *saved, nil
	}
	return rec, nil
}

func newScanListCmd(cfg *config.Config, outFormat *string) *cobra.Command {
	var (
		newest bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List scan records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cfg, func(v *vault.Vault) error {
				var records []models.ScanRecord
				if newest {
					records = v.ListScansNewestFirst(cmd.Context())
				} else {
					records = v.ListScans(cmd.Context())
				}
				if limit > 0 && len(records) > limit {
					records = records[:limit]
				}
				return writeOutput(*outFormat, records, func() error {
					return writeScanList(records)
				})
			})
		},
	}

	cmd.Flags().BoolVar(&newest, "newest", false, "order by timestamp, newest first")
	cmd.Flags().IntVar(&limit, "limit", 0, "limit results")
	return cmd
}

func newScanShowCmd(cfg *config.Config, outFormat *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one scan record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cfg, func(v *vault.Vault) error {
				rec := v.GetScan(cmd.Context(), args[0])
				if rec == nil {
					return fmt.Errorf("%w: %s", errScanNotFound, args[0])
				}
				return writeOutput(*outFormat, rec, func() error {
					return writeScanDetail(*rec)
				})
			})
		},
	}
}

func newScanDeleteCmd(cfg *config.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <id>...",
		Short: "Delete scan records",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cfg, func(v *vault.Vault) error {
				for _, id := range args {
					if !v.DeleteScan(cmd.Context(), id) {
						return fmt.Errorf("delete scan %s failed", id)
					}
				}
				return nil
			})
		},
	}
}

func newScanUsageCmd(cfg *config.Config, outFormat *string) *cobra.Command {
	return &cobra.Command{
		Use:   "usage",
		Short: "Show scan store usage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withVault(cfg, func(v *vault.Vault) error {
				report := usageReports(v, 0, v.ScanUsage(cmd.Context()))[1]
				return writeOutput(*outFormat, report, func() error {
					return writePlain("%s\n", formatUsageLine(report))
				})
			})
		},
	}
}

func newScanReclaimCmd(cfg *config.Config, outFormat *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reclaim <bytes>",
		Short: "Evict the oldest scans until enough bytes are freed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			required, err := parseByteArg(args[0])
			if err != nil {
				return err
			}
			return withVault(cfg, func(v *vault.Vault) error {
				freed := v.ReclaimScans(cmd.Context(), required)
				return writeReclaim(*outFormat, "scans", required, freed)
			})
		},
	}
}
