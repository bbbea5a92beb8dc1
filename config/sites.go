package config

import (
	"fmt"
	"sort"
	"strings"

	"sjsage522/grocerycrawler/internal/product"

	"github.com/spf13/viper"
)

// Driver selects the page automation implementation for a site
type Driver string

const (
	// DriverChrome renders pages in headless Chrome
	DriverChrome Driver = "chrome"
	// DriverHTTP fetches server-rendered HTML without a browser
	DriverHTTP Driver = "http"
)

// Selectors contains CSS selectors for the elements of a product card
type Selectors struct {
	Card     string `mapstructure:"card" json:"card"`
	Name     string `mapstructure:"name" json:"name"`
	Price    string `mapstructure:"price" json:"price"`
	OldPrice string `mapstructure:"old_price" json:"oldPrice,omitempty"`
	Image    string `mapstructure:"image" json:"image,omitempty"`
	Link     string `mapstructure:"link" json:"link,omitempty"`
	// NextPage is recorded for each site but never followed: only the first
	// rendered page of a category is scraped.
	NextPage string `mapstructure:"next_page" json:"nextPage,omitempty"`
}

// SiteProfile describes one retail site. Profiles are built once at startup
// and passed by value; nothing mutates them afterwards.
type SiteProfile struct {
	Key        string
	Name       string
	BaseURL    string
	Driver     Driver
	Categories map[string]string
	Selectors  Selectors
	PriceRule  string
	ParsePrice product.PriceParser
}

// CategoryJob is one unit of work: a single category page of a single site
type CategoryJob struct {
	Site        string
	CategoryKey string
	DisplayName string
	URL         string
}

// PriceRules maps rule names usable in profile files to parsers
var PriceRules = map[string]product.PriceParser{
	"default": product.ParsePrice,
}

// categoryOrder is the canonical category order and display names
var categoryOrder = []struct {
	Key  string
	Name string
}{
	{"special_offers", "Special Offers"},
	{"akcija_7dniv", "7 Days Promo"},
	{"novelties", "Novelties"},
	{"fruits_vegetables", "Fruits & Vegetables"},
	{"meat", "Meat"},
	{"fish", "Fish"},
	{"sausages_delicacies", "Sausages & Delicacies"},
	{"cheese", "Cheese"},
	{"bread_bakery", "Bread & Bakery"},
	{"ready_meals", "Ready Meals"},
	{"dairy_eggs", "Dairy & Eggs"},
	{"groceries_canned", "Groceries & Canned"},
	{"sauces_spices", "Sauces & Spices"},
	{"sweets", "Sweets"},
	{"snacks_chips", "Snacks & Chips"},
	{"coffee_tea", "Coffee & Tea"},
	{"drinks", "Drinks"},
	{"frozen", "Frozen"},
	{"alcohol", "Alcohol"},
	{"cigarettes_gum", "Cigarettes & Gum"},
	{"flowers_garden", "Flowers & Garden"},
	{"home", "Home"},
	{"hygiene_beauty", "Hygiene & Beauty"},
	{"kids", "Kids"},
	{"pets", "Pets"},
}

// CategoryDisplayName returns the human readable name of a category key
func CategoryDisplayName(key string) string {
	for _, c := range categoryOrder {
		if c.Key == key {
			return c.Name
		}
	}
	words := strings.Fields(strings.ReplaceAll(key, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func categoryRank(key string) int {
	for i, c := range categoryOrder {
		if c.Key == key {
			return i
		}
	}
	return len(categoryOrder)
}

// ResolveURL returns path unchanged when it already carries a scheme,
// otherwise baseURL + path.
func ResolveURL(path, baseURL string) string {
	if strings.HasPrefix(path, "http") {
		return path
	}
	return baseURL + path
}

// Jobs returns the category jobs of the profile in canonical order. Categories
// the site does not carry are simply not present.
func (p SiteProfile) Jobs() []CategoryJob {
	keys := make([]string, 0, len(p.Categories))
	for k := range p.Categories {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		ri, rj := categoryRank(keys[i]), categoryRank(keys[j])
		if ri != rj {
			return ri < rj
		}
		return keys[i] < keys[j]
	})

	jobs := make([]CategoryJob, 0, len(keys))
	for _, k := range keys {
		jobs = append(jobs, CategoryJob{
			Site:        p.Key,
			CategoryKey: k,
			DisplayName: CategoryDisplayName(k),
			URL:         ResolveURL(p.Categories[k], p.BaseURL),
		})
	}
	return jobs
}

// PriceParser returns the profile's parser, falling back to the default rule
func (p SiteProfile) PriceParser() product.PriceParser {
	if p.ParsePrice != nil {
		return p.ParsePrice
	}
	return product.ParsePrice
}

// Validate checks a profile for missing required values
func (p SiteProfile) Validate() error {
	if p.Key == "" || p.Name == "" {
		return fmt.Errorf("site profile: key and name are required")
	}
	if !strings.HasPrefix(p.BaseURL, "http") {
		return fmt.Errorf("site %s: base url %q must be absolute", p.Key, p.BaseURL)
	}
	if p.Driver != DriverChrome && p.Driver != DriverHTTP {
		return fmt.Errorf("site %s: unknown driver %q", p.Key, p.Driver)
	}
	if p.Selectors.Card == "" || p.Selectors.Name == "" || p.Selectors.Price == "" {
		return fmt.Errorf("site %s: card, name and price selectors are required", p.Key)
	}
	for k, path := range p.Categories {
		if strings.TrimSpace(path) == "" {
			return fmt.Errorf("site %s: category %s has an empty path; omit it instead", p.Key, k)
		}
	}
	return nil
}

// SelectSites returns the profiles matching filter (case-insensitive key or
// name). An empty filter selects every profile.
func SelectSites(profiles []SiteProfile, filter string) ([]SiteProfile, error) {
	filter = strings.TrimSpace(filter)
	if filter == "" {
		return profiles, nil
	}
	for _, p := range profiles {
		if strings.EqualFold(p.Key, filter) || strings.EqualFold(p.Name, filter) {
			return []SiteProfile{p}, nil
		}
	}
	known := make([]string, 0, len(profiles))
	for _, p := range profiles {
		known = append(known, p.Key)
	}
	return nil, fmt.Errorf("unknown site %q (configured: %s)", filter, strings.Join(known, ", "))
}

// DefaultSites returns the built-in site table
func DefaultSites() []SiteProfile {
	return []SiteProfile{
		{
			Key:     "silpo",
			Name:    "Silpo",
			BaseURL: "https://silpo.ua",
			Driver:  DriverChrome,
			Categories: map[string]string{
				"special_offers":      "/category/spetsialni-propozytsii-5189",
				"fruits_vegetables":   "/category/frukty-ovochi-4788",
				"meat":                "/category/m-iaso-4411",
				"fish":                "/category/ryba-4430",
				"sausages_delicacies": "/category/kovbasni-vyroby-i-m-iasni-delikatesy-4731",
				"cheese":              "/category/syry-1468",
				"bread_bakery":        "/category/khlib-ta-vypichka-5121",
				"ready_meals":         "/category/gotovi-stravy-i-kulinariia-4761",
				"dairy_eggs":          "/category/molochni-produkty-ta-iaitsia-234",
				"groceries_canned":    "/category/bakaliia-i-konservy-4870",
				"sauces_spices":       "/category/sousy-i-spetsii-4938",
				"sweets":              "/category/solodoshchi-498",
				"snacks_chips":        "/category/sneky-ta-chypsy-5016",
				"coffee_tea":          "/category/kava-chai-359",
				"drinks":              "/category/napoi-52",
				"frozen":              "/category/zamorozhena-produktsiia-264",
				"alcohol":             "/category/alkogol-22",
				"cigarettes_gum":      "/category/sygarety-stiky-zhuiky-4384",
				"flowers_garden":      "/category/kvity-tovary-dlia-sadu-ta-gorodu-476",
				"home":                "/category/dlia-domu-567",
				"hygiene_beauty":      "/category/gigiiena-ta-krasa-4519",
				"kids":                "/category/dytiachi-tovary-449",
				"pets":                "/category/dlia-tvaryn-653",
			},
			Selectors: Selectors{
				Card:     ".products-list__item",
				Name:     ".product-card__title",
				Price:    ".product-card-price__displayPrice",
				OldPrice: ".product-card-price__displayOldPrice",
				Image:    ".product-card__product-img",
				Link:     "a.product-card",
				NextPage: ".pagination__button--next",
			},
			PriceRule:  "default",
			ParsePrice: product.ParsePrice,
		},
		{
			Key:     "atb",
			Name:    "ATB",
			BaseURL: "https://www.atbmarket.com",
			Driver:  DriverChrome,
			Categories: map[string]string{
				"special_offers":      "/catalog/economy",
				"akcija_7dniv":        "/catalog/388-aktsiya-7-dniv",
				"novelties":           "/catalog/novetly",
				"fruits_vegetables":   "/catalog/287-ovochi-ta-frukti",
				"meat":                "/catalog/maso",
				"fish":                "/catalog/593-riba",
				"sausages_delicacies": "/catalog/360-kovbasa-i-m-yasni-delikatesi",
				"cheese":              "/catalog/siri",
				"bread_bakery":        "/catalog/325-khlibobulochni-virobi",
				"ready_meals":         "/catalog/502-kulinariya",
				"dairy_eggs":          "/catalog/molocni-produkti-ta-ajca",
				"groceries_canned":    "/catalog/285-bakaliya",
				"sauces_spices":       "/catalog/305-pripravi-ta-marinadi",
				"sweets":              "/catalog/299-konditers-ki-virobi",
				"snacks_chips":        "/catalog/cipsi-sneki",
				"coffee_tea":          "/catalog/kava-caj",
				"drinks":              "/catalog/307-napoi",
				"frozen":              "/catalog/322-zamorozheni-produkti",
				"alcohol":             "/catalog/292-alkogol-i-tyutyun",
				"cigarettes_gum":      "/catalog/sigareti",
				"flowers_garden":      "/catalog/400-sad-ta-gorod",
				"home":                "/catalog/358-tovari-dlya-domu",
				"hygiene_beauty":      "/catalog/290-gigiena-i-kosmetika",
				"kids":                "/catalog/373-tovari-dlya-ditey",
				"pets":                "/catalog/436-tovari-dlya-tvarin",
			},
			Selectors: Selectors{
				Card:     "article.catalog-item",
				Name:     ".catalog-item__title a",
				Price:    ".product-price__top",
				OldPrice: ".product-price__bottom",
				Image:    ".catalog-item__img",
				Link:     ".catalog-item__title a",
				NextPage: ".pagination__next",
			},
			PriceRule:  "default",
			ParsePrice: product.ParsePrice,
		},
	}
}

// profileFile is the on-disk shape of a site profile
type profileFile struct {
	Key        string             `mapstructure:"key"`
	Name       string             `mapstructure:"name"`
	BaseURL    string             `mapstructure:"base_url"`
	Driver     string             `mapstructure:"driver"`
	PriceRule  string             `mapstructure:"price_rule"`
	Categories map[string]*string `mapstructure:"categories"`
	Selectors  Selectors          `mapstructure:"selectors"`
}

// LoadSites returns the profiles from path, or the built-in table when path is empty
func LoadSites(path string) ([]SiteProfile, error) {
	if path == "" {
		return DefaultSites(), nil
	}
	return LoadSiteProfiles(path)
}

// LoadSiteProfiles reads site profiles from a YAML, JSON or TOML file.
// Categories set to null are treated as not carried by the site.
func LoadSiteProfiles(path string) ([]SiteProfile, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading site profiles %s: %w", path, err)
	}

	var files []profileFile
	if err := v.UnmarshalKey("sites", &files); err != nil {
		return nil, fmt.Errorf("unable to decode site profiles: %w", err)
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("site profiles %s: no sites defined", path)
	}

	profiles := make([]SiteProfile, 0, len(files))
	seen := make(map[string]bool)
	for _, f := range files {
		p := SiteProfile{
			Key:        strings.ToLower(f.Key),
			Name:       f.Name,
			BaseURL:    strings.TrimSuffix(f.BaseURL, "/"),
			Driver:     Driver(strings.ToLower(f.Driver)),
			Categories: make(map[string]string),
			Selectors:  f.Selectors,
			PriceRule:  f.PriceRule,
		}
		if p.Driver == "" {
			p.Driver = DriverChrome
		}
		if p.PriceRule == "" {
			p.PriceRule = "default"
		}
		parse, ok := PriceRules[p.PriceRule]
		if !ok {
			return nil, fmt.Errorf("site %s: unknown price rule %q", p.Key, p.PriceRule)
		}
		p.ParsePrice = parse

		for k, path := range f.Categories {
			if path == nil {
				continue
			}
			p.Categories[k] = *path
		}

		if err := p.Validate(); err != nil {
			return nil, err
		}
		if seen[p.Key] {
			return nil, fmt.Errorf("site %s defined twice", p.Key)
		}
		seen[p.Key] = true
		profiles = append(profiles, p)
	}
	return profiles, nil
}
