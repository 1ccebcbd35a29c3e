package parser

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/visitwise/visitwise/internal/domain/entity"
	"github.com/visitwise/visitwise/internal/domain/repository"
	"github.com/xuri/excelize/v2"
)

type excelLoader struct{}

// NewExcelLoader loader for .xlsx catalogs; the first sheet's first row is the header
func NewExcelLoader() repository.MedicineLoader {
	return &excelLoader{}
}

// Load reads the workbook at path; a missing file yields an empty catalog
func (e *excelLoader) Load(ctx context.Context, path string) (*entity.MedicineCatalog, error) {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Medicine catalog not found, continuing without it", slog.String("path", path))
		return emptyCatalog(path), nil
	}

	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open excel file: %w", err)
	}
	defer f.Close()

	catalog, err := e.parseExcelFile(f)
	if err != nil {
		return nil, err
	}
	catalog.Source = path

	slog.Info("Medicine catalog loaded",
		slog.String("path", path),
		slog.Int("records", len(catalog.Records)),
		slog.Any("columns", catalog.Columns))
	return catalog, nil
}

func (e *excelLoader) parseExcelFile(f *excelize.File) (*entity.MedicineCatalog, error) {
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("excel file has no sheets")
	}

	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to get rows: %w", err)
	}

	// skip leading blank rows so the first populated row is the header
	for len(rows) > 0 && isEmptyRow(rows[0]) {
		rows = rows[1:]
	}
	if len(rows) == 0 {
		return emptyCatalog(""), nil
	}

	columns, records := buildCatalog(rows[0], dropBlankRows(rows[1:]))
	slog.Debug("Excel sheet parsed", slog.String("sheet", sheets[0]), slog.Int("rows", len(rows)-1))

	return &entity.MedicineCatalog{
		Columns:  columns,
		Records:  records,
		LoadedAt: time.Now(),
	}, nil
}
