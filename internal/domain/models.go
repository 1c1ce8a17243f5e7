// Package domain holds the persistent catalog entities and the in-flight
// row/bag types the parsing engine operates on.
package domain

import "time"

// Supplier is created on first file received from a supplier and is never
// deleted by the core pipeline.
type Supplier struct {
	ID          int64  `json:"id" db:"id"`
	Name        string `json:"name" db:"name"`
	Description string `json:"description" db:"description"`
}

// Offer is created exactly once per successfully processed file. The pair
// (SupplierID, OfferName) is unique; a collision surfaces as DuplicateOffer.
type Offer struct {
	ID          int64     `json:"id" db:"id"`
	SupplierID  int64     `json:"supplier_id" db:"supplier_id"`
	OfferName   string    `json:"offer_name" db:"offer_name"`
	Currency    string    `json:"currency" db:"currency"`
	Description string    `json:"description" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Product is upserted by EAN when present, otherwise inserted fresh.
// DynamicProperties carries every Product.<X> bag key that isn't EAN/Name.
type Product struct {
	ID                int64        `json:"id" db:"id"`
	EAN               *string      `json:"ean,omitempty" db:"ean"`
	Name              string       `json:"name" db:"name"`
	DynamicProperties *PropertyMap `json:"dynamic_properties" db:"-"`
}

// ProductOffer is a single priced line binding a Product to an Offer. It is
// deleted along with its parent Offer.
type ProductOffer struct {
	ID              int64        `json:"id" db:"id"`
	ProductID       int64        `json:"product_id" db:"product_id"`
	OfferID         int64        `json:"offer_id" db:"offer_id"`
	Price           float64      `json:"price" db:"price"`
	Quantity        int          `json:"quantity" db:"quantity"`
	Currency        string       `json:"currency" db:"currency"`
	Description     string       `json:"description" db:"description"`
	OfferProperties *PropertyMap `json:"offer_properties" db:"-"`
}
