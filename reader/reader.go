package reader

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	appconfig "feedsync/config"
	"feedsync/logger"
	"feedsync/models"
)

// Reader fetches and parses all configured supplier feeds. Each feed is
// fetched by its own worker with its own timeout, so one stalled feed cannot
// block the rest; results are merged only after every worker finished.
type Reader struct {
	config *appconfig.Config
	client *http.Client
	parser *Parser
	log    *logger.Log
}

func NewReader(cfg *appconfig.Config) *Reader {
	return &Reader{
		config: cfg,
		client: &http.Client{Timeout: cfg.Feeds.Timeout},
		parser: NewParser(NewIdentityResolver()),
		log:    logger.GetLogger(),
	}
}

// FetchAll downloads and parses every feed concurrently, bounded by the
// configured worker limit. The returned slice is ordered by feed index;
// failed feeds carry their error and an empty offer list.
func (r *Reader) FetchAll(ctx context.Context, urls []string) []models.FeedResult {
	log := r.log.WithComponent("feed_reader").WithFields(logger.Fields{"feeds": len(urls)})
	log.Info("fetching feeds")

	results := make([]models.FeedResult, len(urls))
	sem := make(chan struct{}, r.config.Feeds.MaxConcurrent)
	var wg sync.WaitGroup

	for i, url := range urls {
		wg.Add(1)
		go func(idx int, feedURL string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			// Feed indexes are 1-based: they are part of every canonical ID
			// and must stay stable across runs.
			feedIndex := idx + 1
			offers, err := r.fetchFeed(ctx, feedURL, feedIndex)
			results[idx] = models.FeedResult{
				URL:       feedURL,
				FeedIndex: feedIndex,
				Offers:    offers,
				Err:       err,
			}
		}(i, url)
	}

	wg.Wait()

	fetched, failed, parsed := 0, 0, 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			continue
		}
		fetched++
		parsed += len(res.Offers)
	}
	log.WithFields(logger.Fields{
		"fetched": fetched,
		"failed":  failed,
		"offers":  parsed,
	}).Info("feed fetch completed")

	return results
}

func (r *Reader) fetchFeed(ctx context.Context, url string, feedIndex int) ([]models.Offer, error) {
	log := r.log.WithComponent("feed_reader").WithFields(logger.Fields{
		"url":        url,
		"feed_index": feedIndex,
	})

	fetchCtx, cancel := context.WithTimeout(ctx, r.config.Feeds.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	if r.config.Feeds.UserAgent != "" {
		req.Header.Set("User-Agent", r.config.Feeds.UserAgent)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		log.WithError(err).Warn("feed fetch failed")
		return nil, fmt.Errorf("fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.WithFields(logger.Fields{"status": resp.StatusCode}).Warn("feed returned non-2xx status")
		return nil, fmt.Errorf("feed returned HTTP %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Warn("failed to read feed body")
		return nil, fmt.Errorf("read feed body: %w", err)
	}

	logger.LogPerformanceEntry(log, "feed_reader", "feed_fetch", time.Since(start), logger.Fields{
		"bytes": len(body),
	})
	logger.IncrementFeedFetched(len(body))

	offers, err := r.parser.Parse(body, feedIndex)
	if err != nil {
		log.WithError(err).Warn("feed parse failed")
		return nil, fmt.Errorf("parse feed: %w", err)
	}

	logger.IncrementOffersParsed(len(offers))
	log.WithFields(logger.Fields{"offers": len(offers)}).Info("feed parsed")

	return offers, nil
}
