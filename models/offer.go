package models

// Offer is one parsed <offer> element from a supplier feed. It only lives
// for the duration of a run.
type Offer struct {
	FeedIndex         int
	VendorCode        string
	NativeID          string
	CanonicalID       string
	Name              string
	Price             *float64
	Quantity          *int
	Presence          *bool
	PresenceConfident bool
}

// Snapshot converts the offer into the comparable product snapshot form.
func (o Offer) Snapshot() ProductSnapshot {
	return ProductSnapshot{
		CanonicalID:       o.CanonicalID,
		Price:             o.Price,
		Presence:          o.Presence,
		Quantity:          o.Quantity,
		PresenceConfident: o.PresenceConfident,
	}
}

// FeedResult carries the outcome of fetching and parsing one feed.
type FeedResult struct {
	URL       string
	FeedIndex int
	Offers    []Offer
	Err       error
}
