package writer

import (
	"context"
	"sync"
	"time"

	appconfig "feedsync/config"
	"feedsync/logger"
	"feedsync/models"
)

// Dispatcher delivers change batches to the remote catalog through a bounded
// worker pool, retrying transient failures per batch.
type Dispatcher struct {
	config *appconfig.Config
	client *CatalogClient
	policy RetryPolicy
	log    *logger.Log
}

func NewDispatcher(cfg *appconfig.Config, client *CatalogClient) *Dispatcher {
	return &Dispatcher{
		config: cfg,
		client: client,
		policy: NewRetryPolicy(cfg.Dispatcher.Retry),
		log:    logger.GetLogger(),
	}
}

// Dispatch delivers every batch and returns per-batch results in batch order.
// One failing batch never blocks or aborts its siblings.
func (d *Dispatcher) Dispatch(ctx context.Context, batches []models.DispatchBatch) []models.DispatchResult {
	results := make([]models.DispatchResult, len(batches))
	jobs := make(chan models.DispatchBatch)

	workers := d.config.Dispatcher.MaxConcurrent
	if workers > len(batches) {
		workers = len(batches)
	}
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for batch := range jobs {
				results[batch.Index] = d.deliverBatch(ctx, batch)
			}
		}()
	}

	for _, batch := range batches {
		jobs <- batch
	}
	close(jobs)
	wg.Wait()

	return results
}

// deliverBatch attempts one batch with bounded retries. 429 and 5xx responses
// and transport faults are transient; any other 4xx is permanent and fails
// the whole batch immediately.
func (d *Dispatcher) deliverBatch(ctx context.Context, batch models.DispatchBatch) models.DispatchResult {
	entry := d.log.WithComponent("dispatcher").WithFields(logger.Fields{
		"batch_id": batch.BatchID,
		"batch":    batch.Index,
		"items":    len(batch.Items),
	})

	if d.config.Sync.DryRun {
		entry.Info("dry run, batch not sent")
		return successResult(batch, 0)
	}

	var lastStatus int
	var lastErr error
	start := time.Now()

	for attempt := 1; attempt <= d.policy.MaxAttempts; attempt++ {
		status, resp, err := d.client.EditProducts(ctx, batch.Items)
		lastStatus, lastErr = status, err

		if err == nil && status >= 200 && status < 300 {
			result := resolveResult(batch, status, resp)
			logger.IncrementBatchSent(len(batch.Items))
			logger.LogPerformanceEntry(entry, "dispatcher", "deliver_batch", time.Since(start), logger.Fields{
				"attempts":  attempt,
				"succeeded": len(result.SucceededIDs),
				"failed":    len(result.FailedIDs),
			})
			return result
		}

		if !d.policy.Retryable(status, err) {
			entry.WithFields(logger.Fields{"status": status}).Error("batch rejected permanently")
			return failureResult(batch, status, "rejected by catalog")
		}

		if attempt == d.policy.MaxAttempts {
			break
		}
		entry.WithError(err).WithFields(logger.Fields{
			"status":  status,
			"attempt": attempt,
		}).Warn("transient delivery failure, backing off")
		if err := d.policy.Sleep(ctx, attempt); err != nil {
			return failureResult(batch, lastStatus, "cancelled: "+err.Error())
		}
	}

	reason := "retries exhausted"
	if lastErr != nil {
		reason = "retries exhausted: " + lastErr.Error()
	}
	entry.WithFields(logger.Fields{"status": lastStatus}).Error("batch delivery failed")
	return failureResult(batch, lastStatus, reason)
}

// resolveResult maps the catalog's per-item reply onto the batch. An empty
// processed list with no errors means the API acknowledged everything.
func resolveResult(batch models.DispatchBatch, status int, resp *models.EditResponse) models.DispatchResult {
	if resp == nil || (len(resp.ProcessedIDs) == 0 && len(resp.Errors) == 0) {
		return successResult(batch, status)
	}

	result := models.DispatchResult{
		BatchIndex: batch.Index,
		HTTPStatus: status,
		FailedIDs:  make(map[string]string),
	}
	processed := make(map[string]bool, len(resp.ProcessedIDs))
	for _, id := range resp.ProcessedIDs {
		processed[id] = true
	}
	for _, item := range batch.Items {
		if msg, failed := resp.Errors[item.ID]; failed {
			result.FailedIDs[item.ID] = msg
			continue
		}
		if processed[item.ID] || len(resp.ProcessedIDs) == 0 {
			result.SucceededIDs = append(result.SucceededIDs, item.ID)
		} else {
			result.FailedIDs[item.ID] = "not acknowledged"
		}
	}
	return result
}

func successResult(batch models.DispatchBatch, status int) models.DispatchResult {
	ids := make([]string, 0, len(batch.Items))
	for _, item := range batch.Items {
		ids = append(ids, item.ID)
	}
	return models.DispatchResult{
		BatchIndex:   batch.Index,
		HTTPStatus:   status,
		SucceededIDs: ids,
		FailedIDs:    map[string]string{},
	}
}

func failureResult(batch models.DispatchBatch, status int, reason string) models.DispatchResult {
	failed := make(map[string]string, len(batch.Items))
	for _, item := range batch.Items {
		failed[item.ID] = reason
	}
	return models.DispatchResult{
		BatchIndex: batch.Index,
		HTTPStatus: status,
		FailedIDs:  failed,
	}
}
