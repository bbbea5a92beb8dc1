package product

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePrice(t *testing.T) {
	testCases := []struct {
		text     string
		expected float64
	}{
		{"199,00 ₴", 199.0},
		{"1 299.50 UAH", 1299.50},
		{"49.99", 49.99},
		{"59,50 грн", 59.50},
		{"1.299,50", 1299.50},
		{"1,299.50", 1299.50},
		{"  12 ", 12},
		{"ціна: 7,9", 7.9},
		{"199.", 199},
		{"18.90 грн.", 18.90},
		{"59,50 грн.", 59.50},
		{"1 299,00 грн.", 1299},
	}

	for _, tc := range testCases {
		price, err := ParsePrice(tc.text)
		if assert.NoError(t, err, tc.text) {
			assert.InDelta(t, tc.expected, price, 1e-9, tc.text)
		}
	}
}

func TestParsePriceRejects(t *testing.T) {
	for _, text := range []string{"", "грн", "0,00", "0", ".", ",,", "free"} {
		_, err := ParsePrice(text)
		assert.Error(t, err, text)
	}
}

func TestIsPlaceholderName(t *testing.T) {
	assert.True(t, IsPlaceholderName(""))
	assert.True(t, IsPlaceholderName("   "))
	assert.True(t, IsPlaceholderName("N/A"))
	assert.True(t, IsPlaceholderName("Unknown Product"))
	assert.False(t, IsPlaceholderName("Молоко 2,5%"))
}

func TestNormalize(t *testing.T) {
	now := time.Date(2026, 10, 19, 9, 30, 0, 0, time.FixedZone("EEST", 3*3600))
	ctx := Context{Store: "Silpo", Category: "Dairy & Eggs", CategoryURL: "https://silpo.ua/category/molochni-produkty-ta-iaitsia-234"}

	p, err := Normalize(RawCard{
		Name:     "  Молоко Галичина 2,5% 870г ",
		Price:    "59,50 ₴",
		OldPrice: "79,99 ₴",
		Image:    "https://images.silpo.ua/milk.png",
		Link:     "https://silpo.ua/product/moloko-1",
	}, ctx, now, nil)
	require.NoError(t, err)

	assert.Equal(t, "Молоко Галичина 2,5% 870г", p.Name)
	assert.InDelta(t, 59.50, p.Price, 1e-9)
	require.NotNil(t, p.OldPrice)
	assert.InDelta(t, 79.99, *p.OldPrice, 1e-9)
	assert.True(t, p.HasDiscount())
	assert.Equal(t, "Silpo", p.Store)
	assert.Equal(t, "Dairy & Eggs", p.Category)
	assert.Equal(t, "https://silpo.ua/product/moloko-1", p.ProductURL)
	assert.Equal(t, ctx.CategoryURL, p.CategoryURL)
	assert.Equal(t, now.UTC(), p.LastUpdated)
	assert.Equal(t, time.UTC, p.LastUpdated.Location())
}

func TestNormalizeOptionalFields(t *testing.T) {
	ctx := Context{Store: "ATB", Category: "Drinks", CategoryURL: "https://www.atbmarket.com/catalog/307-napoi"}

	p, err := Normalize(RawCard{Name: "Вода", Price: "18.90 грн", OldPrice: "акція"}, ctx, time.Now(), nil)
	require.NoError(t, err)

	assert.Nil(t, p.OldPrice, "unparsable old price is omitted")
	assert.Empty(t, p.ImageURL)
	assert.Equal(t, ctx.CategoryURL, p.ProductURL, "product url falls back to the category url")
	assert.False(t, p.HasDiscount())
}

func TestNormalizeAbbreviatedCurrency(t *testing.T) {
	ctx := Context{Store: "ATB", Category: "Drinks", CategoryURL: "https://www.atbmarket.com/catalog/307-napoi"}

	p, err := Normalize(RawCard{Name: "Вода", Price: "18.90 грн.", OldPrice: "24,50 грн."}, ctx, time.Now(), nil)
	require.NoError(t, err)

	assert.InDelta(t, 18.90, p.Price, 1e-9)
	require.NotNil(t, p.OldPrice)
	assert.InDelta(t, 24.50, *p.OldPrice, 1e-9)
}

func TestNormalizeRejects(t *testing.T) {
	ctx := Context{Store: "ATB", Category: "Drinks", CategoryURL: "https://www.atbmarket.com/catalog/307-napoi"}

	testCases := []struct {
		name string
		raw  RawCard
	}{
		{"missing price", RawCard{Name: "Сік"}},
		{"zero price", RawCard{Name: "Сік", Price: "0,00 грн"}},
		{"non numeric price", RawCard{Name: "Сік", Price: "немає"}},
		{"empty name", RawCard{Name: "  ", Price: "10"}},
		{"placeholder name", RawCard{Name: "Unknown Product", Price: "10"}},
		{"card error", RawCard{Err: "TypeError: cannot read properties of null"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Normalize(tc.raw, ctx, time.Now(), nil)
			assert.Error(t, err)
		})
	}
}

func TestNormalizeCustomParser(t *testing.T) {
	kopecks := func(text string) (float64, error) {
		v, err := ParsePrice(text)
		return v / 100, err
	}

	p, err := Normalize(RawCard{Name: "Хліб", Price: "2450"}, Context{Store: "S", Category: "C", CategoryURL: "u"}, time.Now(), kopecks)
	require.NoError(t, err)
	assert.InDelta(t, 24.5, p.Price, 1e-9)
}

func TestNormalizeRequiresStoreContext(t *testing.T) {
	_, err := Normalize(RawCard{Name: "Хліб", Price: "24,50"}, Context{}, time.Now(), nil)
	assert.Error(t, err)
}
