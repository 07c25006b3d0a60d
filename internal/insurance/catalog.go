package insurance

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"

	"hatch-backend/internal/database"

	"gopkg.in/yaml.v2"
	"gorm.io/gorm"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

type CatalogPlan struct {
	Name string `yaml:"name"`
	Type string `yaml:"type"`
}

type CatalogCompany struct {
	Name  string        `yaml:"name"`
	Plans []CatalogPlan `yaml:"plans"`
}

// Catalog is the list of companies and plans users can pick from.
type Catalog struct {
	Companies []CatalogCompany `yaml:"companies"`
}

func ParseCatalog(data []byte) (Catalog, error) {
	var catalog Catalog
	if err := yaml.UnmarshalStrict(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("error parsing insurance catalog: %w", err)
	}

	for _, company := range catalog.Companies {
		if company.Name == "" {
			return Catalog{}, fmt.Errorf("insurance catalog has a company without a name")
		}
		for _, plan := range company.Plans {
			if plan.Name == "" || plan.Type == "" {
				return Catalog{}, fmt.Errorf("insurance catalog has a plan of '%s' without a name or type", company.Name)
			}
		}
	}

	return catalog, nil
}

// LoadCatalog reads the catalog at path, or the built in one if path is
// empty.
func LoadCatalog(path string) (Catalog, error) {
	if path == "" {
		return ParseCatalog(defaultCatalogYAML)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("error reading insurance catalog: %w", err)
	}
	return ParseCatalog(data)
}

// SeedCatalog makes sure every company and plan of the catalog exists. It is
// safe to run on every startup.
func SeedCatalog(ctx context.Context, db *gorm.DB, catalog Catalog) error {
	plans := 0
	for _, company := range catalog.Companies {
		for _, plan := range company.Plans {
			if _, err := database.EnsureInsurancePlan(ctx, db, company.Name, plan.Name, plan.Type); err != nil {
				return fmt.Errorf("error seeding plan '%s' of '%s': %w", plan.Name, company.Name, err)
			}
			plans++
		}
	}

	slog.Info("insurance catalog seeded", "companies", len(catalog.Companies), "plans", plans)
	return nil
}
