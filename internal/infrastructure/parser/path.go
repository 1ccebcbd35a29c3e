package parser

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/visitwise/visitwise/internal/domain/repository"
)

const (
	DefaultCatalogName = "medicines.csv"
	doubledCatalogName = "medicines.csv.csv"
)

// ResolveCatalogPath returns dir/medicines.csv, first renaming an accidentally
// double-extensioned medicines.csv.csv when the proper file is absent
func ResolveCatalogPath(dir string) (string, error) {
	target := filepath.Join(dir, DefaultCatalogName)
	doubled := filepath.Join(dir, doubledCatalogName)

	if !exists(doubled) || exists(target) {
		return target, nil
	}

	if err := os.Rename(doubled, target); err != nil {
		return "", fmt.Errorf("rename %s: %w", doubled, err)
	}
	slog.Info("Renamed medicine catalog", slog.String("from", doubled), slog.String("to", target))
	return target, nil
}

// NewMedicineLoader picks the loader by file extension
func NewMedicineLoader(path string) repository.MedicineLoader {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx", ".xlsm":
		return NewExcelLoader()
	default:
		return NewCSVLoader()
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return !errors.Is(err, fs.ErrNotExist)
}
