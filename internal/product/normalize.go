package product

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

var (
	ErrEmptyName    = errors.New("empty or placeholder name")
	ErrNoPrice      = errors.New("price not found")
	ErrInvalidPrice = errors.New("price is not a positive finite number")
)

// placeholderNames are values sites render before a card is populated.
var placeholderNames = []string{"unknown product", "n/a"}

// PriceParser turns raw price text into a number.
type PriceParser func(text string) (float64, error)

// ParsePrice keeps digits, commas and periods, treats the last separator as the
// decimal point and drops the others as grouping.
//
//	"199,00 ₴"     -> 199
//	"1 299.50 UAH" -> 1299.5
//	"1.299,50"     -> 1299.5
//	"18.90 грн."   -> 18.9
func ParsePrice(text string) (float64, error) {
	var b strings.Builder
	for _, r := range text {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' {
			b.WriteRune(r)
		}
	}
	// a separator with no digits after it ends the text, as in "18.90 грн."
	cleaned := strings.TrimRight(b.String(), ",.")
	if cleaned == "" {
		return 0, ErrNoPrice
	}

	decimal := strings.LastIndexAny(cleaned, ",.")
	var digits string
	if decimal < 0 {
		digits = cleaned
	} else {
		whole := strings.NewReplacer(",", "", ".", "").Replace(cleaned[:decimal])
		digits = whole + "." + cleaned[decimal+1:]
	}

	value, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, text)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) || value <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidPrice, text)
	}
	return value, nil
}

// IsPlaceholderName reports whether name is empty or a known placeholder.
func IsPlaceholderName(name string) bool {
	name = strings.TrimSpace(name)
	if name == "" {
		return true
	}
	for _, p := range placeholderNames {
		if strings.EqualFold(name, p) {
			return true
		}
	}
	return false
}

// Normalize validates a raw card and builds the record. parse may be nil, in
// which case ParsePrice is used. The returned error explains the rejection.
func Normalize(raw RawCard, ctx Context, now time.Time, parse PriceParser) (ScrapedProduct, error) {
	if raw.Err != "" {
		return ScrapedProduct{}, fmt.Errorf("card error: %s", raw.Err)
	}
	if parse == nil {
		parse = ParsePrice
	}

	name := strings.TrimSpace(raw.Name)
	if IsPlaceholderName(name) {
		return ScrapedProduct{}, ErrEmptyName
	}

	if strings.TrimSpace(raw.Price) == "" {
		return ScrapedProduct{}, ErrNoPrice
	}
	price, err := parse(raw.Price)
	if err != nil {
		return ScrapedProduct{}, err
	}
	if math.IsNaN(price) || math.IsInf(price, 0) || price <= 0 {
		return ScrapedProduct{}, ErrInvalidPrice
	}

	p := ScrapedProduct{
		Name:        name,
		Price:       price,
		ImageURL:    strings.TrimSpace(raw.Image),
		Store:       ctx.Store,
		Category:    ctx.Category,
		LastUpdated: now.UTC(),
		ProductURL:  strings.TrimSpace(raw.Link),
		CategoryURL: ctx.CategoryURL,
	}

	if strings.TrimSpace(raw.OldPrice) != "" {
		if old, err := parse(raw.OldPrice); err == nil && old > 0 && !math.IsInf(old, 0) {
			p.OldPrice = &old
		}
	}

	if p.ProductURL == "" {
		p.ProductURL = ctx.CategoryURL
	}

	if err := p.Validate(); err != nil {
		return ScrapedProduct{}, fmt.Errorf("record rejected: %w", err)
	}
	return p, nil
}
