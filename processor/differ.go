package processor

import (
	"github.com/shopspring/decimal"

	"feedsync/logger"
	"feedsync/models"
)

// Differ reduces freshly parsed snapshots to the minimal set that actually
// changed against the persisted prior state.
type Differ struct {
	log *logger.Log
}

func NewDiffer() *Differ {
	return &Differ{log: logger.GetLogger()}
}

// Diff compares current snapshots against the previous state map and returns
// the snapshots that are new or differ. Items present in previous but absent
// from current are never treated as removed: a feed that dropped an item (or
// failed half-way) is not evidence the product is gone.
func (d *Differ) Diff(current []models.ProductSnapshot, previous map[string]models.ProductSnapshot) models.ChangeSet {
	var changes models.ChangeSet
	for _, snapshot := range current {
		prev, exists := previous[snapshot.CanonicalID]
		if !exists {
			changes = append(changes, snapshot)
			continue
		}
		if snapshotChanged(snapshot, prev) {
			changes = append(changes, snapshot)
		}
	}

	d.log.WithComponent("differ").WithFields(logger.Fields{
		"current":  len(current),
		"previous": len(previous),
		"changes":  len(changes),
	}).Info("state diff computed")

	return changes
}

// snapshotChanged compares one snapshot against its prior value. Prices are
// rounded to two decimal places before the equality check so float noise
// cannot produce spurious diffs. Presence and quantity take part in the
// comparison only when the current snapshot carries a confident signal.
func snapshotChanged(current, prev models.ProductSnapshot) bool {
	if !priceEqual(current.Price, prev.Price) {
		return true
	}

	if !current.PresenceConfident {
		return false
	}

	if !boolPtrEqual(current.Presence, prev.Presence) {
		return true
	}
	if !intPtrEqual(current.Quantity, prev.Quantity) {
		return true
	}

	return false
}

func priceEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	da := decimal.NewFromFloat(*a).Round(2)
	db := decimal.NewFromFloat(*b).Round(2)
	return da.Equal(db)
}

func boolPtrEqual(a, b *bool) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
