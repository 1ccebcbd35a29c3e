package usecase

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/visitwise/visitwise/internal/domain/entity"
)

func TestBuildPromptInterpolatesProfileAndCatalog(t *testing.T) {
	catalog := &entity.MedicineCatalog{
		Columns: []string{"name", "dose"},
		Records: []entity.MedicineRecord{
			{Fields: map[string]string{"name": "Paracetamol", "dose": "500mg"}},
			{Fields: map[string]string{"name": "Ibuprofen", "dose": "200mg"}},
		},
	}
	profile := entity.Profile{Age: 34, Gender: entity.GenderFemale, MedicalHistory: "asthma"}

	p := BuildPrompt("Headache for two days", profile, catalog)

	assert.Equal(t, SystemPrompt, p.System)
	assert.Equal(t, "User message: Headache for two days\n"+
		"Age: 34\n"+
		"Gender: Female\n"+
		"Medical history: asthma\n"+
		"Non-prescription items: [{name: Paracetamol, dose: 500mg}, {name: Ibuprofen, dose: 200mg}]\n", p.User)
}

func TestRenderCatalogEmpty(t *testing.T) {
	assert.Equal(t, "[]", RenderCatalog(nil))
	assert.Equal(t, "[]", RenderCatalog(&entity.MedicineCatalog{}))
}

func TestRenderCatalogExtraFields(t *testing.T) {
	catalog := &entity.MedicineCatalog{
		Columns: []string{"name"},
		Records: []entity.MedicineRecord{
			{Fields: map[string]string{"name": "Cetirizine", "Extra_2": "10mg", "Extra_1": "tablet"}},
		},
	}
	assert.Equal(t, "[{name: Cetirizine, Extra_1: tablet, Extra_2: 10mg}]", RenderCatalog(catalog))
}
