package models

import (
	"encoding/json"
	"strings"
	"testing"
)

func floatPtr(v float64) *float64 { return &v }
func intPtr(v int) *int           { return &v }
func boolPtr(v bool) *bool        { return &v }

func TestNewProductUpdateConfident(t *testing.T) {
	s := ProductSnapshot{
		CanonicalID:       "f1_abc",
		Price:             floatPtr(199.9),
		Presence:          boolPtr(true),
		Quantity:          intPtr(5),
		PresenceConfident: true,
	}
	u := NewProductUpdate(s)
	if u.ID != "f1_abc" {
		t.Errorf("unexpected id: %s", u.ID)
	}
	if u.Presence != PresenceAvailable {
		t.Errorf("unexpected presence: %q", u.Presence)
	}
	if u.QuantityInStock == nil || *u.QuantityInStock != 5 {
		t.Errorf("unexpected quantity: %v", u.QuantityInStock)
	}
	if u.PresenceSure == nil || !*u.PresenceSure {
		t.Errorf("presence_sure not set")
	}
}

func TestNewProductUpdateUnconfidentOmitsStockFields(t *testing.T) {
	s := ProductSnapshot{
		CanonicalID:       "f2_xyz",
		Price:             floatPtr(10),
		Presence:          boolPtr(true),
		Quantity:          intPtr(3),
		PresenceConfident: false,
	}
	u := NewProductUpdate(s)

	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	payload := string(data)
	for _, field := range []string{"quantity_in_stock", "presence", "presence_sure"} {
		if strings.Contains(payload, field) {
			t.Errorf("payload contains %s for unconfident snapshot: %s", field, payload)
		}
	}
	if !strings.Contains(payload, "price") {
		t.Errorf("payload missing price: %s", payload)
	}
}

func TestNewProductUpdateNotAvailable(t *testing.T) {
	s := ProductSnapshot{
		CanonicalID:       "f1_a",
		Presence:          boolPtr(false),
		Quantity:          intPtr(0),
		PresenceConfident: true,
	}
	u := NewProductUpdate(s)
	if u.Presence != PresenceNotAvailable {
		t.Errorf("unexpected presence: %q", u.Presence)
	}
	data, err := json.Marshal(u)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if strings.Contains(string(data), "price") {
		t.Errorf("payload contains price for snapshot without one: %s", data)
	}
}

func TestCatalogProductExternalRef(t *testing.T) {
	cases := []struct {
		product CatalogProduct
		want    string
	}{
		{CatalogProduct{ExternalID: "e", VendorCode: "v"}, "e"},
		{CatalogProduct{VendorCode: "v"}, "v"},
		{CatalogProduct{Article: "a"}, "a"},
		{CatalogProduct{SKU: "s"}, "s"},
		{CatalogProduct{}, ""},
	}
	for _, c := range cases {
		if got := c.product.ExternalRef(); got != c.want {
			t.Errorf("ExternalRef() = %q, want %q", got, c.want)
		}
	}
}

func TestChangeSetIDs(t *testing.T) {
	cs := ChangeSet{
		{CanonicalID: "f1_a"},
		{CanonicalID: "f1_b"},
	}
	ids := cs.IDs()
	if len(ids) != 2 || ids[0] != "f1_a" || ids[1] != "f1_b" {
		t.Errorf("unexpected ids: %v", ids)
	}
}
