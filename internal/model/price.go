package model

import (
	"fmt"
	"math"
	"time"
)

// Money is a decimal amount tagged with an ISO 4217 currency code.
// Amounts are kept rounded to minor units (two decimal places).
type Money struct {
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// NewMoney rounds amount to minor units.
func NewMoney(amount float64, currency string) Money {
	return Money{Amount: RoundMinor(amount), Currency: currency}
}

func (m Money) String() string {
	return fmt.Sprintf("%.2f %s", m.Amount, m.Currency)
}

// RoundMinor rounds to two decimal places, half away from zero.
func RoundMinor(v float64) float64 {
	return math.Round(v*100) / 100
}

// PriceObservation is one append-only price-history row for a catalog item.
type PriceObservation struct {
	ID            string    `json:"id"`
	CatalogItemID string    `json:"catalog_item_id"`
	SourceName    string    `json:"source_name"`
	Price         Money     `json:"price"`
	Condition     string    `json:"condition,omitempty"`
	ListingURL    string    `json:"listing_url,omitempty"`
	ObservedAt    time.Time `json:"observed_at"`
}

// RawPrice is an unparsed price observation as handed to the aggregator.
type RawPrice struct {
	Value      string `json:"value"`
	SourceName string `json:"source_name"`
	Condition  string `json:"condition,omitempty"`
	ListingURL string `json:"listing_url,omitempty"`
}
