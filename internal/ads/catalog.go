package ads

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"adsplice/internal/services"
)

// Ad is one promotable product in the catalog.
type Ad struct {
	ID              string              `toml:"id"`
	Name            string              `toml:"name"`
	Product         string              `toml:"product"`
	Category        string              `toml:"category"`
	Enabled         bool                `toml:"enabled"`
	Priority        int                 `toml:"priority"`
	Description     string              `toml:"description"`
	SellingPoints   []string            `toml:"selling_points"`
	TargetScenarios []string            `toml:"target_scenarios"`
	Templates       map[string][]string `toml:"templates"`
}

// generalTemplateKey holds templates that apply to any content category.
const generalTemplateKey = "general"

// Template returns the first template copy for the category, falling
// back to the general templates when the category has none.
func (a Ad) Template(category string) string {
	if templates := a.Templates[category]; len(templates) > 0 {
		return templates[0]
	}
	if category != generalTemplateKey {
		if templates := a.Templates[generalTemplateKey]; len(templates) > 0 {
			return templates[0]
		}
	}
	return ""
}

// SellingPointsText joins the selling points for prompt building.
func (a Ad) SellingPointsText() string {
	return strings.Join(a.SellingPoints, "; ")
}

type catalogFile struct {
	Ads []Ad `toml:"ads"`
}

// Catalog holds the loaded ad inventory.
type Catalog struct {
	ads []Ad
}

// Load reads the TOML catalog at path. A missing file is a
// configuration error; the pipeline cannot invent products.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: ad catalog not found at %s", services.ErrConfiguration, path)
		}
		return nil, fmt.Errorf("read ad catalog: %w", err)
	}
	var parsed catalogFile
	if err := toml.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse ad catalog %s: %v", services.ErrConfiguration, path, err)
	}
	if len(parsed.Ads) == 0 {
		return nil, fmt.Errorf("%w: ad catalog %s lists no ads", services.ErrConfiguration, path)
	}
	for i, ad := range parsed.Ads {
		if strings.TrimSpace(ad.ID) == "" {
			return nil, fmt.Errorf("%w: ad catalog entry %d has no id", services.ErrConfiguration, i)
		}
		if strings.TrimSpace(ad.Product) == "" {
			return nil, fmt.Errorf("%w: ad %q has no product", services.ErrConfiguration, ad.ID)
		}
	}
	return &Catalog{ads: parsed.Ads}, nil
}

// Enabled returns the enabled ads sorted by ascending priority.
func (c *Catalog) Enabled() []Ad {
	enabled := make([]Ad, 0, len(c.ads))
	for _, ad := range c.ads {
		if ad.Enabled {
			enabled = append(enabled, ad)
		}
	}
	sort.SliceStable(enabled, func(i, j int) bool {
		return enabled[i].Priority < enabled[j].Priority
	})
	return enabled
}

// ByID returns the ad with the given id.
func (c *Catalog) ByID(id string) (Ad, bool) {
	for _, ad := range c.ads {
		if ad.ID == id {
			return ad, true
		}
	}
	return Ad{}, false
}

// SelectForTheme picks the enabled ad whose target scenarios match the
// video theme, falling back to the highest-priority enabled ad.
func (c *Catalog) SelectForTheme(theme string) (Ad, error) {
	enabled := c.Enabled()
	if len(enabled) == 0 {
		return Ad{}, fmt.Errorf("%w: no enabled ads in catalog", services.ErrConfiguration)
	}
	theme = strings.ToLower(theme)
	for _, ad := range enabled {
		for _, scenario := range ad.TargetScenarios {
			if scenario != "" && strings.Contains(theme, strings.ToLower(scenario)) {
				return ad, nil
			}
		}
	}
	return enabled[0], nil
}
