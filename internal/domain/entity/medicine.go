package entity

import "time"

// MedicineRecord one catalog row, keyed by the file's header
type MedicineRecord struct {
	Fields map[string]string
}

// Get value of column, "" when absent
func (r MedicineRecord) Get(column string) string {
	return r.Fields[column]
}

// MedicineCatalog over-the-counter items loaded once at startup
type MedicineCatalog struct {
	Columns  []string // header order
	Records  []MedicineRecord
	Source   string
	LoadedAt time.Time
}

// Len number of records, safe on nil
func (c *MedicineCatalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.Records)
}
