package usecase

import (
	"fmt"
	"sort"
	"strings"

	"github.com/visitwise/visitwise/internal/domain/entity"
)

// SystemPrompt triage rules sent with every model call
const SystemPrompt = `You are VisitWise, a triage assistant and symptom educator.

RULES:
- Give friendly, short guidance in 1–2 sentences
- Never diagnose or name conditions
- Never name illnesses
- Only general advice
- Suggest OTC medication cautiously with dose reminder
- Recommend GP if appropriate
- Urgent symptoms → urgent care`

// BuildPrompt interpolates the message, profile and whole catalog into the user prompt
func BuildPrompt(message string, profile entity.Profile, catalog *entity.MedicineCatalog) entity.Prompt {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("User message: %s\n", message))
	sb.WriteString(fmt.Sprintf("Age: %d\n", profile.Age))
	sb.WriteString(fmt.Sprintf("Gender: %s\n", profile.Gender))
	sb.WriteString(fmt.Sprintf("Medical history: %s\n", profile.MedicalHistory))
	sb.WriteString(fmt.Sprintf("Non-prescription items: %s\n", RenderCatalog(catalog)))

	return entity.Prompt{
		System: SystemPrompt,
		User:   sb.String(),
	}
}

// RenderCatalog dumps every record as {column: value, ...} in header order
func RenderCatalog(catalog *entity.MedicineCatalog) string {
	if catalog.Len() == 0 {
		return "[]"
	}

	var sb strings.Builder
	sb.WriteString("[")
	for i, rec := range catalog.Records {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("{")
		written := 0
		for _, col := range catalog.Columns {
			if written > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s: %s", col, rec.Get(col)))
			written++
		}
		for _, key := range extraKeys(catalog.Columns, rec) {
			if written > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s: %s", key, rec.Get(key)))
			written++
		}
		sb.WriteString("}")
	}
	sb.WriteString("]")
	return sb.String()
}

// extraKeys fields outside the header, sorted for a stable prompt
func extraKeys(columns []string, rec entity.MedicineRecord) []string {
	if len(rec.Fields) <= len(columns) {
		return nil
	}
	known := make(map[string]struct{}, len(columns))
	for _, col := range columns {
		known[col] = struct{}{}
	}
	var extra []string
	for key := range rec.Fields {
		if _, ok := known[key]; !ok {
			extra = append(extra, key)
		}
	}
	sort.Strings(extra)
	return extra
}
