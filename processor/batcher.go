package processor

import (
	"github.com/google/uuid"

	"feedsync/models"
)

// SplitBatches divides a change set into fixed-size dispatch batches. N
// changes with batch size B always yield ceil(N/B) batches whose sizes sum
// to N. Confidence gating is applied while building each item payload.
func SplitBatches(changes models.ChangeSet, batchSize int) []models.DispatchBatch {
	if batchSize <= 0 {
		batchSize = 1
	}

	var batches []models.DispatchBatch
	for start := 0; start < len(changes); start += batchSize {
		end := start + batchSize
		if end > len(changes) {
			end = len(changes)
		}

		chunk := changes[start:end]
		batch := models.DispatchBatch{
			BatchID:   uuid.New().String(),
			Index:     len(batches),
			Items:     make([]models.ProductUpdate, 0, len(chunk)),
			Snapshots: chunk,
		}
		for _, snapshot := range chunk {
			batch.Items = append(batch.Items, models.NewProductUpdate(snapshot))
		}
		batches = append(batches, batch)
	}

	return batches
}
