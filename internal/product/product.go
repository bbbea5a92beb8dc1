// Package product holds the canonical scraped record and the pure functions that
// turn raw card text into it.
package product

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// ScrapedProduct is a normalized product listing ready for a sink.
// Values are only built by Normalize and are not modified afterwards.
type ScrapedProduct struct {
	Name        string    `json:"name" validate:"required"`
	Price       float64   `json:"price" validate:"gt=0"`
	OldPrice    *float64  `json:"oldPrice,omitempty" validate:"omitempty,gt=0"`
	ImageURL    string    `json:"imageUrl,omitempty"`
	Store       string    `json:"store" validate:"required"`
	Category    string    `json:"category" validate:"required"`
	LastUpdated time.Time `json:"lastUpdated" validate:"required"`
	ProductURL  string    `json:"productUrl" validate:"required"`
	CategoryURL string    `json:"categoryUrl,omitempty"`
}

// RawCard is the plain text and attribute values read from one product card
// inside the page. Empty strings mean the element or attribute was absent.
type RawCard struct {
	Name     string `json:"name"`
	Price    string `json:"price"`
	OldPrice string `json:"oldPrice,omitempty"`
	Image    string `json:"image,omitempty"`
	Link     string `json:"link,omitempty"`
	// Err is set when reading the card failed; the other fields are then unreliable.
	Err string `json:"error,omitempty"`
}

// Context stamps records with data that does not come from the DOM.
type Context struct {
	Store       string
	Category    string
	CategoryURL string
}

var validate = validator.New()

// Validate runs the struct-level gate on a record.
func (p *ScrapedProduct) Validate() error {
	return validate.Struct(p)
}

// HasDiscount reports whether the record carries an old price above the current one.
func (p *ScrapedProduct) HasDiscount() bool {
	return p.OldPrice != nil && *p.OldPrice > p.Price
}
