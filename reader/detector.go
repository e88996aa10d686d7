package reader

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"io"
	"net/http"

	appconfig "feedsync/config"
	"feedsync/logger"
)

// Detector decides whether any feed changed since the last successful run by
// comparing cheap validators against the persisted fingerprints. A validator
// is the feed's ETag or Last-Modified header; feeds that return neither fall
// back to a content hash of the full body.
type Detector struct {
	config *appconfig.Config
	client *http.Client
	log    *logger.Log
}

func NewDetector(cfg *appconfig.Config) *Detector {
	return &Detector{
		config: cfg,
		client: &http.Client{Timeout: cfg.Feeds.Timeout},
		log:    logger.GetLogger(),
	}
}

// ShouldProcess obtains the current fingerprint for one feed URL and compares
// it to the previously stored one. A missing stored fingerprint counts as
// changed.
func (d *Detector) ShouldProcess(ctx context.Context, url, previous string) (bool, string) {
	fingerprint := d.headValidator(ctx, url)
	if fingerprint == "" {
		fingerprint = d.hashBody(ctx, url)
	}
	if previous == "" {
		return true, fingerprint
	}
	return fingerprint != previous, fingerprint
}

// CheckAll evaluates every feed and reports whether at least one changed,
// along with the fresh fingerprint map. The map is persisted by the caller
// only after the whole run succeeds, so a failed run retries from the same
// baseline.
func (d *Detector) CheckAll(ctx context.Context, urls []string, previous map[string]string) (bool, map[string]string) {
	log := d.log.WithComponent("change_detector")

	changed := false
	next := make(map[string]string, len(urls))
	for _, url := range urls {
		feedChanged, fingerprint := d.ShouldProcess(ctx, url, previous[url])
		next[url] = fingerprint
		if feedChanged {
			changed = true
			log.WithFields(logger.Fields{"url": url}).Debug("feed fingerprint changed")
		}
	}

	log.WithFields(logger.Fields{"feeds": len(urls), "changed": changed}).Info("change detection completed")
	return changed, next
}

func (d *Detector) headValidator(ctx context.Context, url string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return ""
	}
	if d.config.Feeds.UserAgent != "" {
		req.Header.Set("User-Agent", d.config.Feeds.UserAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()

	if etag := resp.Header.Get("ETag"); etag != "" {
		return etag
	}
	return resp.Header.Get("Last-Modified")
}

func (d *Detector) hashBody(ctx context.Context, url string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return ""
	}
	if d.config.Feeds.UserAgent != "" {
		req.Header.Set("User-Agent", d.config.Feeds.UserAgent)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.log.WithComponent("change_detector").WithError(err).WithFields(logger.Fields{"url": url}).Warn("failed to hash feed body")
		return ""
	}
	defer resp.Body.Close()

	hash := md5.New()
	if _, err := io.Copy(hash, resp.Body); err != nil {
		return ""
	}
	return hex.EncodeToString(hash.Sum(nil))
}
