package repository

import (
	"context"

	"github.com/visitwise/visitwise/internal/domain/entity"
)

// MedicineRepository holds the catalog loaded at startup
type MedicineRepository interface {
	// Set installs the catalog; called once during startup
	Set(ctx context.Context, catalog entity.MedicineCatalog) error

	// Catalog returns the loaded catalog, empty when nothing was loaded
	Catalog(ctx context.Context) (*entity.MedicineCatalog, error)

	// Count number of records
	Count(ctx context.Context) (int, error)
}

// MedicineLoader reads a catalog file
type MedicineLoader interface {
	// Load parses path; a missing file yields an empty catalog, not an error
	Load(ctx context.Context, path string) (*entity.MedicineCatalog, error)
}
