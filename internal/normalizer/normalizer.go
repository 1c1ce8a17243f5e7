// Package normalizer implements the Row Normalizer: projecting a fully
// evaluated PropertyBag into a Product and OfferLine pair per spec §4.4.
package normalizer

import (
	"strconv"
	"strings"

	"github.com/thestrul/sacks/internal/domain"
	"github.com/thestrul/sacks/internal/engine"
)

// OfferLine is the per-row offer-side projection; it pairs with a Product
// to become one ProductOffer once the product side has been resolved by
// the Bulk Upsert Coordinator.
type OfferLine struct {
	Price           float64
	Quantity        int
	Currency        string
	Ref             string
	Description     string
	OfferProperties *domain.PropertyMap
}

// NormalizedRow is one row's normalizer output, or a drop reason.
type NormalizedRow struct {
	Product *domain.Product
	Offer   OfferLine
	Dropped *domain.RowDropped
}

// Normalizer projects bags into NormalizedRows for one supplier.
type Normalizer struct {
	defaultCurrency string
}

// New builds a Normalizer that falls back to defaultCurrency (the
// supplier's configured Currency) when a row's Offer.Currency is blank.
func New(defaultCurrency string) *Normalizer {
	return &Normalizer{defaultCurrency: strings.ToUpper(defaultCurrency)}
}

// Normalize projects bag (the result of one row's full action run) into a
// Product/OfferLine pair. rowIndex is used only for the RowDropped warning.
func (n *Normalizer) Normalize(bag *engine.Bag, rowIndex int) NormalizedRow {
	name, _ := bag.Get("Product.Name")
	name = strings.TrimSpace(name)
	if name == "" {
		return NormalizedRow{Dropped: &domain.RowDropped{Row: rowIndex, Reason: "missing Product.Name"}}
	}

	product := &domain.Product{
		Name:              name,
		DynamicProperties: domain.NewPropertyMap(),
	}
	if ean, ok := bag.Get("Product.EAN"); ok {
		ean = strings.TrimSpace(ean)
		if ean != "" {
			product.EAN = &ean
		}
	}

	offer := OfferLine{OfferProperties: domain.NewPropertyMap(), Currency: n.defaultCurrency}

	for _, key := range bag.OrderedKeys() {
		switch {
		case key == "product.name", key == "product.ean":
			// already projected above

		case strings.HasPrefix(key, "product."):
			x := key[len("product."):]
			v, _ := bag.Get(key)
			product.DynamicProperties.Set(x, v)

		case key == "offer.price":
			v, _ := bag.Get(key)
			offer.Price = parseDecimal(v)

		case key == "offer.quantity":
			v, _ := bag.Get(key)
			if qty, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				offer.Quantity = qty
			}

		case key == "offer.currency":
			v, _ := bag.Get(key)
			v = strings.ToUpper(strings.TrimSpace(v))
			if len(v) == 3 {
				offer.Currency = v
			}

		case key == "offer.ref":
			offer.Ref, _ = bag.Get(key)

		case key == "offer.description":
			offer.Description, _ = bag.Get(key)

		case strings.HasPrefix(key, "offer."):
			x := key[len("offer."):]
			v, _ := bag.Get(key)
			offer.OfferProperties.Set(x, v)
		}
	}

	return NormalizedRow{Product: product, Offer: offer}
}

// parseDecimal parses a price string in invariant culture (dot decimal
// separator). Comma decimal separators are not converted: a value such as
// "1,99" fails to parse and, like any other unparsable value, yields 0.
func parseDecimal(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}
