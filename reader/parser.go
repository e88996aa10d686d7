package reader

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"feedsync/logger"
	"feedsync/models"
)

// offerElement mirrors the subset of an <offer> element the pipeline cares
// about. Supplier feeds disagree on tag names, so every known synonym gets
// its own field and extraction walks them in priority order.
type offerElement struct {
	NativeID  string `xml:"id,attr"`
	Available string `xml:"available,attr"`

	VendorCode string `xml:"vendorCode"`
	Name       string `xml:"name"`
	Title      string `xml:"title"`

	Price       string `xml:"price"`
	RetailPrice string `xml:"retail_price"`
	Cost        string `xml:"cost"`

	Quantity        string `xml:"quantity"`
	StockQuantity   string `xml:"stock_quantity"`
	Count           string `xml:"count"`
	QuantityInStock string `xml:"quantity_in_stock"`

	Availability string `xml:"availability"`
	InStock      string `xml:"instock"`
	InStockAlt   string `xml:"in_stock"`

	Inner []byte `xml:",innerxml"`
}

var affirmativeTokens = map[string]bool{
	"true": true, "1": true, "yes": true, "available": true,
	"in_stock": true, "instock": true, "in stock": true,
}

var negativeTokens = map[string]bool{
	"false": true, "0": true, "no": true, "unavailable": true,
	"out_of_stock": true, "out of stock": true,
}

// Parser turns raw feed bytes into normalized offers carrying canonical IDs.
type Parser struct {
	resolver IdentityResolver
	log      *logger.Log
}

func NewParser(resolver IdentityResolver) *Parser {
	return &Parser{
		resolver: resolver,
		log:      logger.GetLogger(),
	}
}

// Parse walks the document and yields one offer per well-formed <offer>
// element. Individual malformed offers are skipped; a broken document is a
// feed-level error, leaving the caller with whatever parsed before the fault.
func (p *Parser) Parse(data []byte, feedIndex int) ([]models.Offer, error) {
	log := p.log.WithComponent("feed_parser").WithFields(logger.Fields{"feed_index": feedIndex})

	dec := xml.NewDecoder(bytes.NewReader(data))
	dec.Strict = false

	var offers []models.Offer
	dropped := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return offers, fmt.Errorf("malformed feed document: %w", err)
		}

		se, ok := tok.(xml.StartElement)
		if !ok || se.Name.Local != "offer" {
			continue
		}

		var el offerElement
		if err := dec.DecodeElement(&el, &se); err != nil {
			dropped++
			log.WithError(err).Warn("skipping malformed offer element")
			continue
		}

		offer, ok := p.buildOffer(el, feedIndex)
		if !ok {
			dropped++
			log.WithFields(logger.Fields{
				"native_id":   el.NativeID,
				"vendor_code": el.VendorCode,
			}).Warn("offer has no usable identity, dropping")
			continue
		}
		offers = append(offers, offer)
	}

	if dropped > 0 {
		log.WithFields(logger.Fields{"dropped": dropped, "parsed": len(offers)}).Warn("some offers were dropped")
	}

	return offers, nil
}

func (p *Parser) buildOffer(el offerElement, feedIndex int) (models.Offer, bool) {
	id, ok := p.resolver.Resolve(feedIndex, el.VendorCode, el.NativeID, el.Inner)
	if !ok {
		return models.Offer{}, false
	}

	offer := models.Offer{
		FeedIndex:   feedIndex,
		VendorCode:  strings.TrimSpace(el.VendorCode),
		NativeID:    strings.TrimSpace(el.NativeID),
		CanonicalID: id,
		Name:        firstNonEmpty(el.Name, el.Title),
		Price:       parsePrice(firstNonEmpty(el.Price, el.RetailPrice, el.Cost)),
	}

	quantity := parseQuantity(firstNonEmpty(el.Quantity, el.StockQuantity, el.Count, el.QuantityInStock))

	// Availability signals, strongest first: explicit attribute, numeric
	// stock, then the textual vocabulary. Anything else stays unconfident
	// and never guesses a presence value.
	if presence, ok := parseBoolToken(el.Available); ok {
		offer.Presence = &presence
		offer.PresenceConfident = true
		if quantity == nil && !presence {
			zero := 0
			quantity = &zero
		}
	} else if quantity != nil {
		presence := *quantity > 0
		offer.Presence = &presence
		offer.PresenceConfident = true
	} else if presence, ok := parseBoolToken(firstNonEmpty(el.Availability, el.InStock, el.InStockAlt)); ok {
		offer.Presence = &presence
		offer.PresenceConfident = true
		if !presence {
			zero := 0
			quantity = &zero
		}
	}
	offer.Quantity = quantity

	return offer, true
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// parsePrice normalizes a comma decimal separator and parses the value.
// Unparsable input means "no price", never an error.
func parsePrice(text string) *float64 {
	if text == "" {
		return nil
	}
	text = strings.ReplaceAll(strings.TrimSpace(text), ",", ".")
	text = strings.ReplaceAll(text, " ", "")
	d, err := decimal.NewFromString(text)
	if err != nil {
		return nil
	}
	f, _ := d.Float64()
	return &f
}

func parseQuantity(text string) *int {
	if text == "" {
		return nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return nil
	}
	q := int(f)
	return &q
}

func parseBoolToken(text string) (bool, bool) {
	token := strings.ToLower(strings.TrimSpace(text))
	if token == "" {
		return false, false
	}
	if affirmativeTokens[token] {
		return true, true
	}
	if negativeTokens[token] {
		return false, true
	}
	return false, false
}
