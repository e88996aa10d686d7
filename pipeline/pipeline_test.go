package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	appconfig "feedsync/config"
	"feedsync/logger"
	"feedsync/models"
	"feedsync/state"
)

func pipelineConfig(t *testing.T, feedURLs []string, catalogURL string) *appconfig.Config {
	t.Helper()
	dir := t.TempDir()

	feedsFile := filepath.Join(dir, "feeds.txt")
	content := ""
	for _, u := range feedURLs {
		content += u + "\n"
	}
	if err := os.WriteFile(feedsFile, []byte(content), 0644); err != nil {
		t.Fatalf("write feeds file: %v", err)
	}

	return &appconfig.Config{
		Feedsync: appconfig.FeedsyncConfig{Name: "feedsync-test", Version: "0.0.0"},
		Feeds: appconfig.FeedsConfig{
			File:          feedsFile,
			Timeout:       5 * time.Second,
			MaxConcurrent: 4,
		},
		Catalog: appconfig.CatalogConfig{
			BaseURL:        catalogURL,
			UpdateEndpoint: "/api/v1/products/edit_by_external_id",
			ListEndpoint:   "/api/v1/products/list",
			AuthHeader:     "Authorization",
			AuthScheme:     "Bearer",
			Timeout:        5 * time.Second,
			PageSize:       100,
			MaxPages:       10,
			RateLimit: appconfig.RateLimitConfig{
				RequestsPerSecond: 1000,
				BurstSize:         1000,
			},
		},
		Dispatcher: appconfig.DispatcherConfig{
			BatchSize:     100,
			MaxConcurrent: 2,
			Retry: appconfig.RetryConfig{
				MaxAttempts:       2,
				BaseDelay:         time.Millisecond,
				MaxDelay:          5 * time.Millisecond,
				BackoffMultiplier: 2,
			},
		},
		State: appconfig.StateConfig{
			Dir:          filepath.Join(dir, "state"),
			FeedsFile:    "feeds_state.json",
			ProductsFile: "products_state.json",
		},
	}
}

func feedServer(t *testing.T, body *atomic.Value) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(body.Load().(string)))
	}))
}

func catalogOK(t *testing.T, calls *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		json.NewEncoder(w).Encode(models.EditResponse{})
	}))
}

func TestRunFullCycle(t *testing.T) {
	var body atomic.Value
	body.Store(`<offers>
  <offer id="1" available="true"><vendorCode>A1</vendorCode><price>10.00</price><quantity>2</quantity></offer>
  <offer id="2" available="false"><vendorCode>B2</vendorCode><price>20.00</price></offer>
</offers>`)
	feed := feedServer(t, &body)
	defer feed.Close()

	var calls int32
	catalog := catalogOK(t, &calls)
	defer catalog.Close()

	cfg := pipelineConfig(t, []string{feed.URL}, catalog.URL)
	summary, err := Run(context.Background(), cfg, logger.GetLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Skipped {
		t.Fatalf("first run must not be skipped")
	}
	if summary.OffersParsed != 2 || summary.Changes != 2 {
		t.Errorf("unexpected summary: %+v", summary)
	}
	if summary.ItemsSucceeded != 2 || summary.ItemsFailed != 0 {
		t.Errorf("unexpected item counts: %+v", summary)
	}

	store := state.NewStore(cfg)
	products, err := store.LoadProducts()
	if err != nil {
		t.Fatalf("LoadProducts: %v", err)
	}
	if len(products) != 2 {
		t.Fatalf("expected 2 persisted products, got %d", len(products))
	}
	a := products["f1_A1"]
	if a.Price == nil || *a.Price != 10.00 {
		t.Errorf("unexpected persisted price: %v", a.Price)
	}

	fingerprints, err := store.LoadFingerprints()
	if err != nil {
		t.Fatalf("LoadFingerprints: %v", err)
	}
	if fingerprints[feed.URL] == "" {
		t.Errorf("fingerprint not persisted for feed")
	}
}

func TestRunSkipsWhenFeedsUnchanged(t *testing.T) {
	var body atomic.Value
	body.Store(`<offers><offer id="1"><vendorCode>A1</vendorCode><price>10</price></offer></offers>`)
	feed := feedServer(t, &body)
	defer feed.Close()

	var calls int32
	catalog := catalogOK(t, &calls)
	defer catalog.Close()

	cfg := pipelineConfig(t, []string{feed.URL}, catalog.URL)
	if _, err := Run(context.Background(), cfg, logger.GetLogger()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	summary, err := Run(context.Background(), cfg, logger.GetLogger())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if !summary.Skipped {
		t.Errorf("unchanged feed must be skipped: %+v", summary)
	}
	if calls != 1 {
		t.Errorf("catalog called %d times, want 1", calls)
	}
}

func TestRunDetectsPriceChange(t *testing.T) {
	var body atomic.Value
	body.Store(`<offers><offer id="1"><vendorCode>A1</vendorCode><price>10.00</price></offer></offers>`)
	feed := feedServer(t, &body)
	defer feed.Close()

	var calls int32
	catalog := catalogOK(t, &calls)
	defer catalog.Close()

	cfg := pipelineConfig(t, []string{feed.URL}, catalog.URL)
	if _, err := Run(context.Background(), cfg, logger.GetLogger()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	body.Store(`<offers><offer id="1"><vendorCode>A1</vendorCode><price>12.50</price></offer></offers>`)
	summary, err := Run(context.Background(), cfg, logger.GetLogger())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if summary.Skipped || summary.Changes != 1 {
		t.Errorf("price change not detected: %+v", summary)
	}
}

func TestRunFailedDeliveryKeepsBaseline(t *testing.T) {
	var body atomic.Value
	body.Store(`<offers><offer id="1"><vendorCode>A1</vendorCode><price>10</price></offer></offers>`)
	feed := feedServer(t, &body)
	defer feed.Close()

	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer catalog.Close()

	cfg := pipelineConfig(t, []string{feed.URL}, catalog.URL)
	summary, err := Run(context.Background(), cfg, logger.GetLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.ItemsFailed != 1 || summary.ItemsSucceeded != 0 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	store := state.NewStore(cfg)
	products, _ := store.LoadProducts()
	if len(products) != 0 {
		t.Errorf("failed items must not be persisted: %v", products)
	}
	fingerprints, _ := store.LoadFingerprints()
	if len(fingerprints) != 0 {
		t.Errorf("fingerprints must not advance after failed delivery: %v", fingerprints)
	}

	// The next run starts from the same baseline and retries the item.
	second, err := Run(context.Background(), cfg, logger.GetLogger())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Skipped || second.Changes != 1 {
		t.Errorf("failed item not retried: %+v", second)
	}
}

func TestRunDegradedFetchKeepsFailedFeedBaseline(t *testing.T) {
	var body atomic.Value
	body.Store(`<offers><offer id="1"><vendorCode>A1</vendorCode><price>10</price></offer></offers>`)
	healthy := feedServer(t, &body)
	defer healthy.Close()

	// HEAD always advertises the same validator, but the body is only
	// served once the feed recovers.
	var recovered atomic.Bool
	flaky := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v2"`)
		if r.Method != http.MethodGet {
			return
		}
		if !recovered.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`<offers><offer id="9"><vendorCode>B9</vendorCode><price>99</price></offer></offers>`))
	}))
	defer flaky.Close()

	var edited []models.ProductUpdate
	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Products []models.ProductUpdate `json:"products"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		edited = append(edited, req.Products...)
		json.NewEncoder(w).Encode(models.EditResponse{})
	}))
	defer catalog.Close()

	cfg := pipelineConfig(t, []string{healthy.URL, flaky.URL}, catalog.URL)
	summary, err := Run(context.Background(), cfg, logger.GetLogger())
	if err != nil {
		t.Fatalf("degraded run: %v", err)
	}
	if summary.FeedsFailed != 1 || summary.FeedsFetched != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.ItemsSucceeded != 1 {
		t.Errorf("healthy feed's offer not delivered: %+v", summary)
	}

	store := state.NewStore(cfg)
	fingerprints, err := store.LoadFingerprints()
	if err != nil {
		t.Fatalf("LoadFingerprints: %v", err)
	}
	if _, ok := fingerprints[flaky.URL]; ok {
		t.Errorf("failed feed's fingerprint must not advance: %v", fingerprints)
	}
	if fingerprints[healthy.URL] == "" {
		t.Errorf("healthy feed's fingerprint missing: %v", fingerprints)
	}

	// After recovery the validator is unchanged, yet the feed's offers must
	// still go out because its baseline never advanced.
	recovered.Store(true)
	second, err := Run(context.Background(), cfg, logger.GetLogger())
	if err != nil {
		t.Fatalf("recovery run: %v", err)
	}
	if second.Skipped {
		t.Fatalf("recovery run skipped, undelivered offers lost")
	}
	if second.Changes != 1 {
		t.Errorf("expected recovered feed's offer as the only change: %+v", second)
	}
	found := false
	for _, item := range edited {
		if item.ID == "f2_B9" {
			found = true
		}
	}
	if !found {
		t.Errorf("recovered feed's offer never dispatched: %v", edited)
	}

	fingerprints, _ = store.LoadFingerprints()
	if fingerprints[flaky.URL] != `"v2"` {
		t.Errorf("recovered feed's fingerprint not persisted: %v", fingerprints)
	}
}

func TestRunRequireAllFeedsAborts(t *testing.T) {
	var body atomic.Value
	body.Store(`<offers><offer id="1"><vendorCode>A1</vendorCode><price>10</price></offer></offers>`)
	healthy := feedServer(t, &body)
	defer healthy.Close()
	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer broken.Close()

	var calls int32
	catalog := catalogOK(t, &calls)
	defer catalog.Close()

	cfg := pipelineConfig(t, []string{healthy.URL, broken.URL}, catalog.URL)
	cfg.Sync.RequireAllFeeds = true

	if _, err := Run(context.Background(), cfg, logger.GetLogger()); err == nil {
		t.Fatalf("expected abort when a required feed fails")
	}
	if calls != 0 {
		t.Errorf("aborted run must not dispatch, got %d calls", calls)
	}

	store := state.NewStore(cfg)
	fingerprints, _ := store.LoadFingerprints()
	if len(fingerprints) != 0 {
		t.Errorf("aborted run must not persist fingerprints: %v", fingerprints)
	}
}

func TestRunResolveIDsFiltersUnknownProducts(t *testing.T) {
	var body atomic.Value
	body.Store(`<offers>
  <offer id="1"><vendorCode>KNOWN</vendorCode><price>10</price></offer>
  <offer id="2"><vendorCode>UNKNOWN</vendorCode><price>20</price></offer>
</offers>`)
	feed := feedServer(t, &body)
	defer feed.Close()

	var edited []models.ProductUpdate
	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/products/list":
			json.NewEncoder(w).Encode(models.ListResponse{
				Products:   []models.CatalogProduct{{ID: 7, ExternalID: "f1_KNOWN"}},
				TotalCount: 1,
			})
		case "/api/v1/products/edit_by_external_id":
			var req struct {
				Products []models.ProductUpdate `json:"products"`
			}
			json.NewDecoder(r.Body).Decode(&req)
			edited = append(edited, req.Products...)
			json.NewEncoder(w).Encode(models.EditResponse{})
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	}))
	defer catalog.Close()

	cfg := pipelineConfig(t, []string{feed.URL}, catalog.URL)
	cfg.Catalog.ResolveIDs = true

	summary, err := Run(context.Background(), cfg, logger.GetLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Changes != 1 {
		t.Errorf("expected only the matched product to remain: %+v", summary)
	}
	if len(edited) != 1 || edited[0].ID != "f1_KNOWN" {
		t.Errorf("unexpected dispatched items: %v", edited)
	}
}

func TestRunDryRunPersistsNothing(t *testing.T) {
	var body atomic.Value
	body.Store(`<offers><offer id="1"><vendorCode>A1</vendorCode><price>10</price></offer></offers>`)
	feed := feedServer(t, &body)
	defer feed.Close()

	catalog := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("dry run must not call the catalog")
	}))
	defer catalog.Close()

	cfg := pipelineConfig(t, []string{feed.URL}, catalog.URL)
	cfg.Sync.DryRun = true

	summary, err := Run(context.Background(), cfg, logger.GetLogger())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if summary.Changes != 1 || summary.ItemsSucceeded != 1 {
		t.Errorf("unexpected summary: %+v", summary)
	}

	store := state.NewStore(cfg)
	products, _ := store.LoadProducts()
	fingerprints, _ := store.LoadFingerprints()
	if len(products) != 0 || len(fingerprints) != 0 {
		t.Errorf("dry run persisted state: %v / %v", products, fingerprints)
	}
}
