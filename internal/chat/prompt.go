package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"text/template"

	"hatch-backend/internal/ai"
	"hatch-backend/internal/auth"
	"hatch-backend/internal/database"

	"gorm.io/gorm"
)

var insurancePromptTemplate = template.Must(template.New("insurance_prompt").Parse(
	`{{.Base}}

# Insurance data for {{.Email}}
{{.Data}}

## Coverage
- Doctor visits
- Prescription medications
- Emergency care
- Preventive services
- Hospital stays
- Mental health care
- Surgery
- Physical therapy
- Lab tests
- Maternity care

## Clause
The coverage provided under this policy is subject to the terms, conditions, and exclusions set forth herein. The insurer shall only be liable for costs incurred for medically necessary services, treatments, or procedures that are explicitly outlined in the Schedule of Benefits. Any expenses arising from excluded treatments, elective procedures, or services not preauthorized, where applicable, shall be the sole responsibility of the insured. The insurer reserves the right to deny claims for any treatments inconsistent with policy provisions or unsupported by appropriate documentation.
`))

type insurancePromptEntry struct {
	Plan     string                    `json:"plan"`
	PlanType string                    `json:"plan_type"`
	Company  string                    `json:"company"`
	Details  database.InsuranceDetails `json:"details"`
}

// BuildSystemPrompt renders the system prompt with the user's insurance
// records. It is rebuilt on every request so edits to the profile apply to
// the next message.
func BuildSystemPrompt(ctx context.Context, db *gorm.DB, user auth.User) (string, error) {
	records, err := database.GetUserInsurance(ctx, db, user.Id)
	if err != nil {
		return "", err
	}

	entries := make([]insurancePromptEntry, 0, len(records))
	for _, record := range records {
		entries = append(entries, insurancePromptEntry{
			Plan:     record.PlanName,
			PlanType: record.PlanType,
			Company:  record.CompanyName,
			Details:  record.Details.Data(),
		})
	}

	return renderSystemPrompt(user.Email, entries)
}

func renderSystemPrompt(email string, entries []insurancePromptEntry) (string, error) {
	if entries == nil {
		entries = []insurancePromptEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return "", fmt.Errorf("error serializing insurance data: %w", err)
	}

	var b strings.Builder
	if err := insurancePromptTemplate.Execute(&b, struct {
		Base  string
		Email string
		Data  string
	}{ai.SystemPrompt, email, string(data)}); err != nil {
		return "", fmt.Errorf("error rendering system prompt: %w", err)
	}

	slog.Debug("assembled system prompt", "email", email, "records", len(entries), "prompt", b.String())
	return b.String(), nil
}
