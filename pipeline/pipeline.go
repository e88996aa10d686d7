package pipeline

import (
	"context"
	"fmt"
	"time"

	appconfig "feedsync/config"
	"feedsync/logger"
	"feedsync/models"
	"feedsync/processor"
	"feedsync/reader"
	"feedsync/state"
	"feedsync/writer"
)

// Summary aggregates the outcome of one synchronization run.
type Summary struct {
	FeedsFetched     int
	FeedsFailed      int
	OffersParsed     int
	Changes          int
	BatchesSucceeded int
	BatchesFailed    int
	ItemsSucceeded   int
	ItemsFailed      int
	Skipped          bool
}

// Run executes one full synchronization cycle: change detection, fetch,
// diff, dispatch, and state persistence. State files are only advanced for
// what the catalog actually acknowledged, so a failed item is naturally
// retried on the next run.
func Run(ctx context.Context, cfg *appconfig.Config, log *logger.Log) (Summary, error) {
	var summary Summary
	entry := log.WithComponent("pipeline")
	start := time.Now()

	urls, err := appconfig.LoadFeedList(cfg.Feeds.File)
	if err != nil {
		return summary, fmt.Errorf("failed to load feed list: %w", err)
	}
	if len(urls) == 0 {
		return summary, fmt.Errorf("feed list %s is empty", cfg.Feeds.File)
	}

	store := state.NewStore(cfg)
	fingerprints, err := store.LoadFingerprints()
	if err != nil {
		return summary, err
	}
	previous, err := store.LoadProducts()
	if err != nil {
		return summary, err
	}

	// Gate the run on feed fingerprints. Dry runs always proceed so that a
	// full cycle can be rehearsed against unchanged feeds.
	detector := reader.NewDetector(cfg)
	changed, nextFingerprints := detector.CheckAll(ctx, urls, fingerprints)
	if !changed && !cfg.Sync.DryRun {
		entry.WithFields(logger.Fields{"feeds": len(urls)}).Info("no feed changed, skipping run")
		summary.Skipped = true
		return summary, nil
	}

	results := reader.NewReader(cfg).FetchAll(ctx, urls)
	offers := make([]models.Offer, 0)
	for _, result := range results {
		if result.Err != nil {
			summary.FeedsFailed++
			if cfg.Sync.RequireAllFeeds {
				entry.WithError(result.Err).WithFields(logger.Fields{
					"feed": result.URL,
				}).Error("feed failed and all feeds are required, aborting run")
				return summary, fmt.Errorf("feed %s failed: %w", result.URL, result.Err)
			}
			continue
		}
		summary.FeedsFetched++
		offers = append(offers, result.Offers...)
	}
	summary.OffersParsed = len(offers)

	// A feed that could not be fetched keeps its previous fingerprint: its
	// fresh validator was captured before the fetch, and persisting it would
	// make the next run consider the feed unchanged with none of its offers
	// ever delivered.
	for _, result := range results {
		if result.Err == nil {
			continue
		}
		if prev, ok := fingerprints[result.URL]; ok {
			nextFingerprints[result.URL] = prev
		} else {
			delete(nextFingerprints, result.URL)
		}
	}

	current := make([]models.ProductSnapshot, 0, len(offers))
	for _, offer := range offers {
		current = append(current, offer.Snapshot())
	}

	changes := processor.NewDiffer().Diff(current, previous)

	client := writer.NewCatalogClient(cfg)

	// Optionally drop changes the catalog has never heard of; unmatched
	// items would only bounce back as per-item errors.
	if cfg.Catalog.ResolveIDs && len(changes) > 0 {
		known, err := writer.NewVendorIDMap(cfg, client).Build(ctx)
		if err != nil {
			return summary, fmt.Errorf("failed to build vendor id map: %w", err)
		}
		matched := changes[:0]
		for _, snapshot := range changes {
			if _, ok := known[snapshot.CanonicalID]; ok {
				matched = append(matched, snapshot)
			}
		}
		if dropped := len(changes) - len(matched); dropped > 0 {
			entry.WithFields(logger.Fields{"dropped": dropped}).Warn("changes without catalog match skipped")
		}
		changes = matched
	}
	summary.Changes = len(changes)

	if len(changes) == 0 {
		entry.Info("state already in sync, nothing to dispatch")
		if !cfg.Sync.DryRun {
			if err := store.SaveFingerprints(nextFingerprints); err != nil {
				return summary, err
			}
		}
		return summary, nil
	}

	batches := processor.SplitBatches(changes, cfg.Dispatcher.BatchSize)
	dispatcher := writer.NewDispatcher(cfg, client)
	dispatchResults := dispatcher.Dispatch(ctx, batches)

	succeeded := make(map[string]bool)
	for _, result := range dispatchResults {
		if len(result.FailedIDs) == 0 {
			summary.BatchesSucceeded++
		} else {
			summary.BatchesFailed++
		}
		summary.ItemsSucceeded += len(result.SucceededIDs)
		summary.ItemsFailed += len(result.FailedIDs)
		for _, id := range result.SucceededIDs {
			succeeded[id] = true
		}
	}

	if cfg.Sync.DryRun {
		entry.WithFields(logger.Fields{"changes": len(changes)}).Info("dry run, state not persisted")
		return summary, nil
	}

	// Advance only acknowledged snapshots; everything else keeps its prior
	// value and shows up as a change again next run.
	for _, snapshot := range changes {
		if succeeded[snapshot.CanonicalID] {
			previous[snapshot.CanonicalID] = snapshot
		}
	}
	if err := store.SaveProducts(previous); err != nil {
		return summary, err
	}

	// Fingerprints advance only when everything was delivered. Keeping the
	// old baseline forces the next run to re-process the feeds and retry
	// whatever failed.
	if summary.ItemsFailed == 0 {
		if err := store.SaveFingerprints(nextFingerprints); err != nil {
			return summary, err
		}
	}

	logger.LogPerformanceEntry(entry, "pipeline", "sync_run", time.Since(start), logger.Fields{
		"feeds":   summary.FeedsFetched,
		"offers":  summary.OffersParsed,
		"changes": summary.Changes,
		"batches": len(batches),
	})
	return summary, nil
}
