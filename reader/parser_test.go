package reader

import (
	"testing"
)

func TestParseOfferBasic(t *testing.T) {
	doc := `<?xml version="1.0"?>
<catalog>
  <shop>
    <offers>
      <offer id="101" available="true">
        <name>Widget</name>
        <vendorCode>W-100</vendorCode>
        <price>249.00</price>
        <quantity>7</quantity>
      </offer>
    </offers>
  </shop>
</catalog>`

	p := NewParser(NewIdentityResolver())
	offers, err := p.Parse([]byte(doc), 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(offers))
	}
	o := offers[0]
	if o.CanonicalID != "f1_W-100" {
		t.Errorf("unexpected canonical id: %s", o.CanonicalID)
	}
	if o.Price == nil || *o.Price != 249.0 {
		t.Errorf("unexpected price: %v", o.Price)
	}
	if o.Quantity == nil || *o.Quantity != 7 {
		t.Errorf("unexpected quantity: %v", o.Quantity)
	}
	if o.Presence == nil || !*o.Presence || !o.PresenceConfident {
		t.Errorf("expected confident positive presence, got %+v", o)
	}
}

func TestParseCommaDecimalPrice(t *testing.T) {
	doc := `<offers><offer id="1"><vendorCode>A</vendorCode><price>199,90</price></offer></offers>`

	p := NewParser(NewIdentityResolver())
	offers, err := p.Parse([]byte(doc), 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(offers))
	}
	if offers[0].Price == nil || *offers[0].Price != 199.90 {
		t.Errorf("unexpected price: %v", offers[0].Price)
	}
}

func TestParseUnparsablePriceYieldsNoPrice(t *testing.T) {
	doc := `<offers><offer id="1"><vendorCode>A</vendorCode><price>call us</price></offer></offers>`

	p := NewParser(NewIdentityResolver())
	offers, err := p.Parse([]byte(doc), 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if offers[0].Price != nil {
		t.Errorf("expected no price, got %v", *offers[0].Price)
	}
}

func TestParseAvailableFalseWithoutQuantity(t *testing.T) {
	doc := `<offers><offer id="1" available="false"><vendorCode>A</vendorCode><price>10</price></offer></offers>`

	p := NewParser(NewIdentityResolver())
	offers, err := p.Parse([]byte(doc), 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	o := offers[0]
	if !o.PresenceConfident {
		t.Fatalf("expected confident presence")
	}
	if o.Presence == nil || *o.Presence {
		t.Errorf("expected presence false, got %v", o.Presence)
	}
	if o.Quantity == nil || *o.Quantity != 0 {
		t.Errorf("expected quantity 0, got %v", o.Quantity)
	}
}

func TestParseQuantityDrivesPresence(t *testing.T) {
	doc := `<offers>
  <offer id="1"><vendorCode>A</vendorCode><stock_quantity>0</stock_quantity></offer>
  <offer id="2"><vendorCode>B</vendorCode><count>12</count></offer>
</offers>`

	p := NewParser(NewIdentityResolver())
	offers, err := p.Parse([]byte(doc), 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(offers) != 2 {
		t.Fatalf("expected 2 offers, got %d", len(offers))
	}
	if offers[0].Presence == nil || *offers[0].Presence || !offers[0].PresenceConfident {
		t.Errorf("zero stock should be confident out-of-stock: %+v", offers[0])
	}
	if offers[1].Presence == nil || !*offers[1].Presence || !offers[1].PresenceConfident {
		t.Errorf("positive stock should be confident in-stock: %+v", offers[1])
	}
}

func TestParseTextualAvailability(t *testing.T) {
	doc := `<offers>
  <offer id="1"><vendorCode>A</vendorCode><availability>in stock</availability></offer>
  <offer id="2"><vendorCode>B</vendorCode><availability>out of stock</availability></offer>
</offers>`

	p := NewParser(NewIdentityResolver())
	offers, err := p.Parse([]byte(doc), 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if offers[0].Presence == nil || !*offers[0].Presence || !offers[0].PresenceConfident {
		t.Errorf("unexpected first offer availability: %+v", offers[0])
	}
	if offers[1].Presence == nil || *offers[1].Presence || !offers[1].PresenceConfident {
		t.Errorf("unexpected second offer availability: %+v", offers[1])
	}
}

func TestParseNoAvailabilitySignal(t *testing.T) {
	doc := `<offers><offer id="1"><vendorCode>A</vendorCode><price>5</price></offer></offers>`

	p := NewParser(NewIdentityResolver())
	offers, err := p.Parse([]byte(doc), 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	o := offers[0]
	if o.PresenceConfident {
		t.Errorf("expected unconfident presence")
	}
	if o.Presence != nil || o.Quantity != nil {
		t.Errorf("no signal must not synthesize presence or quantity: %+v", o)
	}
}

func TestParseDropsOfferWithoutIdentity(t *testing.T) {
	doc := `<offers><offer></offer><offer id="2"><vendorCode>B</vendorCode></offer></offers>`

	p := NewParser(NewIdentityResolver())
	offers, err := p.Parse([]byte(doc), 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("expected 1 offer, got %d", len(offers))
	}
	if offers[0].CanonicalID != "f1_B" {
		t.Errorf("unexpected canonical id: %s", offers[0].CanonicalID)
	}
}

func TestParseMalformedDocument(t *testing.T) {
	doc := `<offers><offer id="1"><vendorCode>A</vendorCode></offer><offer id="2">`

	p := NewParser(NewIdentityResolver())
	offers, err := p.Parse([]byte(doc), 1)
	if err == nil {
		t.Fatalf("expected feed-level error for truncated document")
	}
	if len(offers) != 1 {
		t.Errorf("expected offers parsed before the fault to survive, got %d", len(offers))
	}
}

func TestParseEmptyVendorCodeFallsBackToID(t *testing.T) {
	doc := `<offers><offer id="777"><price>1</price></offer></offers>`

	p := NewParser(NewIdentityResolver())
	offers, err := p.Parse([]byte(doc), 4)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if offers[0].CanonicalID != "f4_777" {
		t.Errorf("unexpected canonical id: %s", offers[0].CanonicalID)
	}
}
