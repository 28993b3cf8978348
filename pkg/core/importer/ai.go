package importer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	jsonrepair "github.com/RealAlexandreAI/json-repair"
	"google.golang.org/genai"

	"github.com/ekowhinson/HRMS-sub001/pkg/models"
)

// Collaborator is the column-mapping AI contract of the analyse phase.
// Both calls are synchronous; any failure falls back to the fuzzy
// matcher and is never fatal.
type Collaborator interface {
	DetectEntityType(ctx context.Context, columns []string, sample []map[string]string) (models.ImportEntityType, error)
	MapColumns(ctx context.Context, columns []string, sample []map[string]string, schema Schema, entity models.ImportEntityType) (map[string]*string, error)
}

// GeminiCollaborator implements Collaborator against the Gemini API.
type GeminiCollaborator struct {
	Model string // e.g. "gemini-2.0-flash-exp"
}

var _ Collaborator = (*GeminiCollaborator)(nil)

const detectSystemPrompt = `You classify tabular HR/payroll data files.
Given column headers and sample rows, answer with JSON only:
{"entity_type": "<one of EMPLOYEE, EMPLOYEE_TRANSACTION, PAY_COMPONENT, BANK, BANK_ACCOUNT>"}`

const mapSystemPrompt = `You map source spreadsheet columns to target schema fields.
Answer with JSON only: {"mapping": {"<source column>": "<target field or null>"}}.
Every source column must appear as a key. Use null when no target field applies.
Never invent target fields that are not in the provided schema.`

// DetectEntityType asks the model to classify the file by its headers
// and a small sample.
func (g *GeminiCollaborator) DetectEntityType(ctx context.Context, columns []string, sample []map[string]string) (models.ImportEntityType, error) {
	prompt := fmt.Sprintf("Column headers: %s\nSample rows: %s", mustJSON(columns), mustJSON(sample))
	raw, err := g.generate(ctx, prompt, detectSystemPrompt)
	if err != nil {
		return "", err
	}
	var out struct {
		EntityType string `json:"entity_type"`
	}
	if err := decodeModelJSON(raw, &out); err != nil {
		return "", err
	}
	entity := models.ImportEntityType(strings.ToUpper(strings.TrimSpace(out.EntityType)))
	switch entity {
	case models.ImportEmployee, models.ImportEmployeeTransaction, models.ImportPayComponent,
		models.ImportBank, models.ImportBankAccount:
		return entity, nil
	}
	return "", fmt.Errorf("model returned unknown entity type %q", out.EntityType)
}

// MapColumns asks the model for a source-to-target mapping. Unknown
// target fields are dropped silently; the caller revalidates.
func (g *GeminiCollaborator) MapColumns(ctx context.Context, columns []string, sample []map[string]string, schema Schema, entity models.ImportEntityType) (map[string]*string, error) {
	prompt := fmt.Sprintf("Entity type: %s\nTarget schema fields: %s\nSource columns: %s\nSample rows: %s",
		entity, mustJSON(schema.Names()), mustJSON(columns), mustJSON(sample))
	raw, err := g.generate(ctx, prompt, mapSystemPrompt)
	if err != nil {
		return nil, err
	}
	var out struct {
		Mapping map[string]*string `json:"mapping"`
	}
	if err := decodeModelJSON(raw, &out); err != nil {
		return nil, err
	}
	if out.Mapping == nil {
		return nil, fmt.Errorf("model returned no mapping")
	}
	return out.Mapping, nil
}

func (g *GeminiCollaborator) generate(ctx context.Context, prompt, systemPrompt string) (string, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return "", fmt.Errorf("GEMINI_API_KEY environment variable not set")
	}
	model := g.Model
	if model == "" {
		model = "gemini-2.0-flash-exp"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return "", fmt.Errorf("create genai client: %w", err)
	}

	config := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.1)),
		ResponseMIMEType: "application/json",
		SystemInstruction: &genai.Content{
			Parts: []*genai.Part{{Text: systemPrompt}},
		},
	}

	result, err := client.Models.GenerateContent(ctx, model, genai.Text(prompt), config)
	if err != nil {
		return "", fmt.Errorf("gemini generation failed: %w", err)
	}
	return result.Text(), nil
}

// decodeModelJSON unmarshals possibly-fenced model output, repairing
// common JSON defects before giving up.
func decodeModelJSON(raw string, target interface{}) error {
	trimmed := stripFences(raw)
	if err := json.Unmarshal([]byte(trimmed), target); err == nil {
		return nil
	}
	repaired, err := jsonrepair.RepairJSON(trimmed)
	if err != nil {
		return fmt.Errorf("repair model output: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), target); err != nil {
		return fmt.Errorf("decode model output: %w", err)
	}
	return nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		if idx := strings.Index(s, "\n"); idx >= 0 {
			s = s[idx+1:]
		}
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}

func mustJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
