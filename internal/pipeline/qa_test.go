package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"agentpm/internal/shared/model"
)

func TestExtractFields(t *testing.T) {
	qa := map[string]string{
		"What problem are you solving?":           "Manual invoicing",
		"Who is the target audience?":             "Freelancers",
		"What are the key features?":              "Recurring invoices",
		"Any integrations with payment providers?": "Stripe",
		"What data do you need to store?":         "Invoices, clients",
		"Ignored question":                        "whatever",
		"Empty answer about risk":                 "  ",
	}
	got := ExtractFields(qa)
	assert.Equal(t, "Manual invoicing", got["problem_statement"])
	assert.Equal(t, "Freelancers", got["target_users"])
	assert.Equal(t, "Recurring invoices", got["key_features"])
	assert.Equal(t, "Stripe", got["integrations"])
	assert.Equal(t, "Invoices, clients", got["data_entities"])
	assert.NotContains(t, got, "risks")
	assert.Len(t, got, 5)
}

func TestExtractFieldsMultipleAnswers(t *testing.T) {
	got := ExtractFields(map[string]string{
		"Primary goal?":   "Ship v1",
		"Other objective": "Reduce churn",
	})
	assert.Equal(t, "Reduce churn\nShip v1", got["goals"])
}

func TestBuildContextFiltersByKind(t *testing.T) {
	qa := map[string]string{
		"What problem?":      "slow reports",
		"What data entities?": "orders",
	}
	shared := map[string]string{"project": "reports", "problem_statement": "old"}

	prd := BuildContext(model.DocumentPRD, shared, qa)
	assert.Equal(t, "slow reports", prd["problem_statement"])
	assert.Equal(t, "reports", prd["project"])
	assert.NotContains(t, prd, "data_entities")

	erd := BuildContext(model.DocumentERD, shared, qa)
	assert.Equal(t, "orders", erd["data_entities"])
	assert.Equal(t, "old", erd["problem_statement"])
}
