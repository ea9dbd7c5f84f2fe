package main

import (
	"errors"
	"fmt"

	"scanvault/internal/config"
	"scanvault/internal/vault"
)

var (
	errImageNotSaved = errors.New("image not saved")
	errScanNotSaved  = errors.New("scan not saved")
	errScanNotFound  = errors.New("scan not found")
	errNotDeleted    = errors.New("nothing deleted")
	errNoJournal     = errors.New("activity journal unavailable")
)

func withVault(cfg *config.Config, fn func(*vault.Vault) error) error {
	if cfg == nil {
		return fmt.Errorf("config not initialized")
	}
	v, err := vault.Open(cfg, vaultLogger())
	if err != nil {
		return err
	}
	defer v.Close()
	return fn(v)
}

func usageReports(v *vault.Vault, images, scans int64) []usageReport {
	return []usageReport{
		{Store: "images", Root: v.ImagesRoot(), Usage: images, Ceiling: v.ImageCeiling(), Remaining: v.ImageCeiling() - images},
		{Store: "scans", Root: v.ScansRoot(), Usage: scans, Ceiling: v.ScanCeiling(), Remaining: v.ScanCeiling() - scans},
	}
}
