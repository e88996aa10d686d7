package writer

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	appconfig "feedsync/config"
	"feedsync/logger"
)

// VendorIDMap resolves external references (vendor codes, feed IDs) to the
// catalog's numeric product IDs. Built from the paginated list call, with a
// CSV export as fallback when the API cannot serve the listing.
type VendorIDMap struct {
	config *appconfig.Config
	client *CatalogClient
	log    *logger.Log
}

func NewVendorIDMap(cfg *appconfig.Config, client *CatalogClient) *VendorIDMap {
	return &VendorIDMap{config: cfg, client: client, log: logger.GetLogger()}
}

// Build walks the catalog listing page by page until a short page, the
// reported total, or the page cap is reached. When the listing fails and a
// CSV path is configured, the CSV is used instead.
func (m *VendorIDMap) Build(ctx context.Context) (map[string]int64, error) {
	entry := m.log.WithComponent("idmap")

	mapping, err := m.buildFromAPI(ctx)
	if err == nil {
		entry.WithFields(logger.Fields{"entries": len(mapping)}).Info("vendor id map built from catalog listing")
		return mapping, nil
	}

	if m.config.Catalog.IDMapCSV == "" {
		return nil, err
	}
	entry.WithError(err).Warn("catalog listing failed, falling back to csv export")

	mapping, csvErr := m.buildFromCSV(m.config.Catalog.IDMapCSV)
	if csvErr != nil {
		return nil, fmt.Errorf("listing failed (%v) and csv fallback failed: %w", err, csvErr)
	}
	entry.WithFields(logger.Fields{"entries": len(mapping)}).Info("vendor id map built from csv export")
	return mapping, nil
}

func (m *VendorIDMap) buildFromAPI(ctx context.Context) (map[string]int64, error) {
	mapping := make(map[string]int64)
	total := -1

	for page := 0; page < m.config.Catalog.MaxPages; page++ {
		resp, err := m.client.ListProducts(ctx, page)
		if err != nil {
			return nil, err
		}
		if resp.TotalCount > 0 {
			total = resp.TotalCount
		}
		for _, product := range resp.Products {
			if ref := product.ExternalRef(); ref != "" {
				mapping[ref] = product.ID
			}
		}
		if len(resp.Products) < m.config.Catalog.PageSize {
			break
		}
		if total >= 0 && len(mapping) >= total {
			break
		}
	}
	return mapping, nil
}

// buildFromCSV reads a two-column export: external reference, numeric ID.
// A header row is skipped when its ID column is not numeric.
func (m *VendorIDMap) buildFromCSV(path string) (map[string]int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open id map csv: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	mapping := make(map[string]int64)
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read id map csv: %w", err)
		}
		if len(record) < 2 {
			continue
		}
		ref := strings.TrimSpace(record[0])
		id, err := strconv.ParseInt(strings.TrimSpace(record[1]), 10, 64)
		if err != nil || ref == "" {
			continue
		}
		mapping[ref] = id
	}
	return mapping, nil
}
