package ads

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"adsplice/internal/services"
)

const sampleCatalog = `
[[ads]]
id = "lumo_grinder"
name = "Lumo Grinder"
product = "Lumo coffee grinder"
category = "lifestyle"
enabled = true
priority = 2
selling_points = ["consistent grind", "quiet motor"]
target_scenarios = ["coffee", "kitchen"]

[ads.templates]
lifestyle = ["Upgrade every morning with the Lumo grinder."]
general = ["Try the Lumo grinder today."]

[[ads]]
id = "cloudtrain"
name = "CloudTrain"
product = "CloudTrain GPU hours"
category = "tech"
enabled = true
priority = 1
selling_points = ["fast training"]
target_scenarios = ["machine learning", "ai"]

[ads.templates]
general = ["Train faster with CloudTrain."]

[[ads]]
id = "retired"
name = "Retired"
product = "Old product"
category = "misc"
enabled = false
priority = 0
`

func writeCatalog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ads.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write catalog: %v", err)
	}
	return path
}

func TestLoadAndSelectByScenario(t *testing.T) {
	catalog, err := Load(writeCatalog(t, sampleCatalog))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	ad, err := catalog.SelectForTheme("budget coffee setups at home")
	if err != nil {
		t.Fatalf("SelectForTheme returned error: %v", err)
	}
	if ad.ID != "lumo_grinder" {
		t.Fatalf("expected scenario match, got %q", ad.ID)
	}
}

func TestSelectFallsBackToPriority(t *testing.T) {
	catalog, err := Load(writeCatalog(t, sampleCatalog))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	ad, err := catalog.SelectForTheme("watercolor painting tutorial")
	if err != nil {
		t.Fatalf("SelectForTheme returned error: %v", err)
	}
	if ad.ID != "cloudtrain" {
		t.Fatalf("expected priority-1 ad, got %q", ad.ID)
	}
}

func TestEnabledSkipsDisabledAds(t *testing.T) {
	catalog, err := Load(writeCatalog(t, sampleCatalog))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	for _, ad := range catalog.Enabled() {
		if ad.ID == "retired" {
			t.Fatal("disabled ad must not be selectable")
		}
	}
}

func TestTemplateFallsBackToGeneral(t *testing.T) {
	catalog, err := Load(writeCatalog(t, sampleCatalog))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	ad, ok := catalog.ByID("lumo_grinder")
	if !ok {
		t.Fatal("expected lumo_grinder in catalog")
	}
	if got := ad.Template("lifestyle"); got != "Upgrade every morning with the Lumo grinder." {
		t.Fatalf("unexpected category template %q", got)
	}
	if got := ad.Template("tech"); got != "Try the Lumo grinder today." {
		t.Fatalf("expected general fallback, got %q", got)
	}
}

func TestLoadRejectsMissingOrEmptyCatalog(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.toml")); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for missing file, got %v", err)
	}
	if _, err := Load(writeCatalog(t, "")); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for empty catalog, got %v", err)
	}
	if _, err := Load(writeCatalog(t, "[[ads]]\nname = \"no id\"\n")); !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for missing id, got %v", err)
	}
}
