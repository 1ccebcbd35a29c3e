package parser

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/visitwise/visitwise/internal/domain/entity"
	"github.com/visitwise/visitwise/internal/domain/repository"
)

type csvLoader struct{}

// NewCSVLoader loader for comma separated catalogs with a header row
func NewCSVLoader() repository.MedicineLoader {
	return &csvLoader{}
}

// Load reads path; a missing file is logged and yields an empty catalog
func (c *csvLoader) Load(ctx context.Context, path string) (*entity.MedicineCatalog, error) {
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Warn("Medicine catalog not found, continuing without it", slog.String("path", path))
		return emptyCatalog(path), nil
	}
	if err != nil {
		return nil, fmt.Errorf("open medicine csv: %w", err)
	}
	defer f.Close()

	catalog, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	catalog.Source = path

	slog.Info("Medicine catalog loaded",
		slog.String("path", path),
		slog.Int("records", len(catalog.Records)),
		slog.Any("columns", catalog.Columns))
	return catalog, nil
}

// ParseCSV reads a header row followed by data rows, cells verbatim
func ParseCSV(r io.Reader) (*entity.MedicineCatalog, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return emptyCatalog(""), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}

	columns, records := buildCatalog(header, rows)
	return &entity.MedicineCatalog{
		Columns:  columns,
		Records:  records,
		LoadedAt: time.Now(),
	}, nil
}

func emptyCatalog(source string) *entity.MedicineCatalog {
	return &entity.MedicineCatalog{
		Source:   source,
		LoadedAt: time.Now(),
	}
}
