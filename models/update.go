package models

const (
	PresenceAvailable    = "available"
	PresenceNotAvailable = "not_available"
)

// ProductUpdate is the wire form of one item inside a catalog update call.
// Optional fields are pointers so that absent values are omitted from the
// payload instead of being sent as zeros.
type ProductUpdate struct {
	ID              string   `json:"id"`
	Price           *float64 `json:"price,omitempty"`
	QuantityInStock *int     `json:"quantity_in_stock,omitempty"`
	Presence        string   `json:"presence,omitempty"`
	PresenceSure    *bool    `json:"presence_sure,omitempty"`
}

// NewProductUpdate builds the update payload for a snapshot. Presence and
// quantity are transmitted only when the snapshot carries a confident
// availability signal; an unconfident snapshot contributes price alone.
func NewProductUpdate(s ProductSnapshot) ProductUpdate {
	u := ProductUpdate{ID: s.CanonicalID, Price: s.Price}
	if !s.PresenceConfident {
		return u
	}

	u.QuantityInStock = s.Quantity
	if s.Presence != nil {
		if *s.Presence {
			u.Presence = PresenceAvailable
		} else {
			u.Presence = PresenceNotAvailable
		}
	}
	sure := true
	u.PresenceSure = &sure
	return u
}

// DispatchBatch is one bounded slice of a change set submitted as a single
// API call. Snapshots travel with the batch so that the dispatcher can
// persist exactly what was acknowledged.
type DispatchBatch struct {
	BatchID   string
	Index     int
	Items     []ProductUpdate
	Snapshots []ProductSnapshot
}

// DispatchResult records the outcome of delivering one batch.
type DispatchResult struct {
	BatchIndex   int
	HTTPStatus   int
	SucceededIDs []string
	FailedIDs    map[string]string
}

// EditResponse is the remote catalog's reply to an update call: the list of
// identifiers it processed and a per-item error map for the rest.
type EditResponse struct {
	ProcessedIDs []string          `json:"processed_ids"`
	Errors       map[string]string `json:"errors"`
}

// CatalogProduct is one row of the paginated catalog read call, used only
// when vendor codes must be resolved to the marketplace's numeric IDs.
type CatalogProduct struct {
	ID         int64  `json:"id"`
	ExternalID string `json:"external_id"`
	VendorCode string `json:"vendor_code"`
	Article    string `json:"article"`
	SKU        string `json:"sku"`
}

// ExternalRef returns the first non-empty external identifier of the product.
func (p CatalogProduct) ExternalRef() string {
	for _, ref := range []string{p.ExternalID, p.VendorCode, p.Article, p.SKU} {
		if ref != "" {
			return ref
		}
	}
	return ""
}

// ListResponse is the remote catalog's reply to the paginated read call.
type ListResponse struct {
	Products   []CatalogProduct `json:"products"`
	TotalCount int              `json:"total_count"`
}
