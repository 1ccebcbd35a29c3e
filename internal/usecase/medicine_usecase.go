package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/visitwise/visitwise/internal/domain/repository"
)

// MedicineUseCase read-only access to the startup catalog
type MedicineUseCase interface {
	// Load reads path with loader and installs the result
	Load(ctx context.Context, loader repository.MedicineLoader, path string) (int, error)

	// Count number of loaded records
	Count(ctx context.Context) (int, error)

	// CatalogInfo short human readable summary
	CatalogInfo(ctx context.Context) (string, error)
}

type medicineUseCase struct {
	medicineRepo repository.MedicineRepository
}

// NewMedicineUseCase MedicineUseCase over the catalog repository
func NewMedicineUseCase(medicineRepo repository.MedicineRepository) MedicineUseCase {
	return &medicineUseCase{medicineRepo: medicineRepo}
}

// Load reads and installs the catalog
func (u *medicineUseCase) Load(ctx context.Context, loader repository.MedicineLoader, path string) (int, error) {
	catalog, err := loader.Load(ctx, path)
	if err != nil {
		return 0, fmt.Errorf("failed to load medicines: %w", err)
	}
	if err := u.medicineRepo.Set(ctx, *catalog); err != nil {
		return 0, fmt.Errorf("failed to store medicines: %w", err)
	}
	return catalog.Len(), nil
}

// Count number of records
func (u *medicineUseCase) Count(ctx context.Context) (int, error) {
	return u.medicineRepo.Count(ctx)
}

// CatalogInfo source, load time, columns and record count
func (u *medicineUseCase) CatalogInfo(ctx context.Context) (string, error) {
	catalog, err := u.medicineRepo.Catalog(ctx)
	if err != nil {
		return "", err
	}
	if catalog.Len() == 0 {
		return "No non-prescription items loaded.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Catalog: %s\n", catalog.Source))
	sb.WriteString(fmt.Sprintf("Loaded: %s\n", catalog.LoadedAt.Format("2006-01-02 15:04")))
	sb.WriteString(fmt.Sprintf("Items: %d\n", catalog.Len()))
	if len(catalog.Columns) > 0 {
		sb.WriteString(fmt.Sprintf("Columns: %s\n", strings.Join(catalog.Columns, ", ")))
	}
	return sb.String(), nil
}
