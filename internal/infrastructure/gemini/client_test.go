package gemini

import (
	"testing"

	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
)

func TestExtractTextJoinsTextParts(t *testing.T) {
	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{
			{Content: &genai.Content{Parts: []genai.Part{genai.Text("Drink water. "), genai.Text("See a GP if it persists.")}}},
			{Content: nil},
		},
	}
	assert.Equal(t, "Drink water. See a GP if it persists.", extractText(resp))
}

func TestExtractTextEmpty(t *testing.T) {
	assert.Equal(t, "", extractText(&genai.GenerateContentResponse{}))
}
