package models

// ProductSnapshot is the last-delivered (or about to be delivered) state of
// one catalog item. The canonical ID is the map key in the persisted product
// state file, so it is not serialized with the value.
type ProductSnapshot struct {
	CanonicalID       string   `json:"-"`
	Price             *float64 `json:"price,omitempty"`
	Presence          *bool    `json:"presence,omitempty"`
	Quantity          *int     `json:"quantity,omitempty"`
	PresenceConfident bool     `json:"-"`
}

// ChangeSet is the ordered set of snapshots whose persisted prior value
// differs from the current one, or which are new.
type ChangeSet []ProductSnapshot

// IDs returns the canonical IDs of the change set in order.
func (cs ChangeSet) IDs() []string {
	ids := make([]string, 0, len(cs))
	for _, s := range cs {
		ids = append(ids, s.CanonicalID)
	}
	return ids
}
