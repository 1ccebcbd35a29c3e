package storage

import (
	"context"
	"sync"

	"github.com/visitwise/visitwise/internal/domain/entity"
	"github.com/visitwise/visitwise/internal/domain/repository"
)

type memoryMedicineRepository struct {
	mu      sync.RWMutex
	catalog entity.MedicineCatalog
}

// NewMemoryMedicineRepository in-memory holder for the startup catalog
func NewMemoryMedicineRepository() repository.MedicineRepository {
	return &memoryMedicineRepository{}
}

// Set installs the catalog
func (m *memoryMedicineRepository) Set(ctx context.Context, catalog entity.MedicineCatalog) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	catalog.Columns = append([]string(nil), catalog.Columns...)
	catalog.Records = append([]entity.MedicineRecord(nil), catalog.Records...)
	m.catalog = catalog
	return nil
}

// Catalog returns the loaded catalog; records are shared and must not be mutated
func (m *memoryMedicineRepository) Catalog(ctx context.Context) (*entity.MedicineCatalog, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c := m.catalog
	return &c, nil
}

// Count number of records
func (m *memoryMedicineRepository) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.catalog.Records), nil
}
