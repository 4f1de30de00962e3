package catalog_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finassist/internal/catalog"
	"finassist/internal/domain"
	"finassist/internal/repository/memory"
)

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func TestSeed(t *testing.T) {
	c, err := catalog.Seed(now)
	require.NoError(t, err)

	require.Len(t, c.Resources, 7)
	ids := make([]string, len(c.Resources))
	for i, r := range c.Resources {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"res_1", "res_2", "res_3", "res_4", "res_5", "res_6", "res_7"}, ids)
	assert.Nil(t, c.Resources[3].MaxAmount)
	require.NotNil(t, c.Resources[0].MaxAmount)
	assert.Equal(t, 2000, *c.Resources[0].MaxAmount)
	assert.Equal(t, "2-3 business days", c.Resources[0].ApprovalTime)

	require.Len(t, c.Cases, 5)
	first := c.Cases[0]
	assert.Equal(t, "case_1", first.ID)
	assert.Equal(t, domain.UrgencyCritical, first.Urgency)
	assert.Equal(t, 580, first.Snapshot.CreditScore)
	require.Len(t, first.Messages, 1)
	assert.Equal(t, "case_1", first.Messages[0].CaseID)
	assert.Equal(t, now.Add(-24*time.Hour), c.Cases[4].LastContact)
}

func TestParse_JSON(t *testing.T) {
	data := []byte(`{"resources":[{"id":"r1","name":"Fund","category":"rent","application_difficulty":"easy","success_rate":0.5}]}`)
	c, err := catalog.Parse(data, now)
	require.NoError(t, err)
	require.Len(t, c.Resources, 1)
	assert.Empty(t, c.Cases)
}

func TestParse_Empty(t *testing.T) {
	c, err := catalog.Parse(nil, now)
	require.NoError(t, err)
	assert.Empty(t, c.Resources)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"success rate out of range", `resources: [{id: r1, name: F, category: rent, application_difficulty: easy, success_rate: 1.5}]`},
		{"unknown category", `resources: [{id: r1, name: F, category: pets, application_difficulty: easy, success_rate: 0.5}]`},
		{"missing difficulty", `resources: [{id: r1, name: F, category: rent, success_rate: 0.5}]`},
		{"duplicate resource", `resources: [{id: r1, name: F, category: rent, application_difficulty: easy, success_rate: 0.5}, {id: r1, name: G, category: rent, application_difficulty: easy, success_rate: 0.5}]`},
		{"negative income", `cases: [{id: c1, employee_name: A, urgency: low, categories: [food], financial_snapshot: {annual_income: -1, credit_score: 600, savings: 0, total_debt: 0, dependents: 0}}]`},
		{"missing snapshot", `cases: [{id: c1, employee_name: A, urgency: low, categories: [food]}]`},
		{"empty categories", `cases: [{id: c1, employee_name: A, urgency: low, categories: [], financial_snapshot: {annual_income: 1, credit_score: 600, savings: 0, total_debt: 0, dependents: 0}}]`},
		{"bad duration", `cases: [{id: c1, employee_name: A, urgency: low, categories: [food], last_contact_ago: soon, financial_snapshot: {annual_income: 1, credit_score: 600, savings: 0, total_debt: 0, dependents: 0}}]`},
		{"not yaml", "resources: [unterminated"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := catalog.Parse([]byte(tt.data), now)
			assert.ErrorIs(t, err, domain.ErrInvalidRecord)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`resources: [{id: r1, name: F, category: food, application_difficulty: moderate, success_rate: 0.4}]`), 0o600))

	c, err := catalog.Load(path, now)
	require.NoError(t, err)
	assert.Equal(t, domain.CategoryFood, c.Resources[0].Category)

	_, err = catalog.Load(filepath.Join(t.TempDir(), "missing.yaml"), now)
	assert.Error(t, err)
}

func TestInstall_SkipsExistingRecords(t *testing.T) {
	ctx := context.Background()
	c, err := catalog.Seed(now)
	require.NoError(t, err)
	cases := memory.NewCaseRepository()
	resources := memory.NewResourceRepository()

	added, err := c.Install(ctx, cases, resources)
	require.NoError(t, err)
	assert.Equal(t, len(c.Resources)+len(c.Cases), added)

	added, err = c.Install(ctx, cases, resources)
	require.NoError(t, err)
	assert.Zero(t, added)

	listed, err := resources.List(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, len(c.Resources))
}
