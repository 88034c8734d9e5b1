package quality

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentpm/internal/pipeline"
	"agentpm/internal/shared/metrics"
	"agentpm/internal/shared/model"
)

func TestCheckConsistency(t *testing.T) {
	docs := map[model.DocumentKind]string{
		model.DocumentBRD:  "Customers place orders. Each customer has a profile.",
		model.DocumentPRD:  "Users place orders. A user owns an account. Users browse.",
		model.DocumentUXDD: "The user sees the dashboard.",
	}
	conflicts := CheckConsistency(docs)
	assert.Equal(t, []Conflict{
		{Group: "user", A: model.DocumentPRD, TermA: "user", B: model.DocumentBRD, TermB: "customer"},
		{Group: "user", A: model.DocumentBRD, TermA: "customer", B: model.DocumentUXDD, TermB: "user"},
		{Group: "account", A: model.DocumentPRD, TermA: "account", B: model.DocumentBRD, TermB: "profile"},
	}, conflicts)
	assert.Equal(t, `prd uses "user", brd uses "customer"`, conflicts[0].String())
}

func TestCheckConsistencyNoConflicts(t *testing.T) {
	docs := map[model.DocumentKind]string{
		model.DocumentPRD: "Users place orders.",
		model.DocumentBRD: "A user places an order.",
	}
	assert.Empty(t, CheckConsistency(docs))
}

func TestTermHarmonizer(t *testing.T) {
	docs := map[model.DocumentKind]string{
		model.DocumentPRD: "Users own an account.",
		model.DocumentBRD: "Customers own a profile. Every customer matters.",
	}
	updated, stats, err := NewTermHarmonizer().Harmonize(context.Background(), docs, CheckConsistency(docs))
	require.NoError(t, err)

	require.Contains(t, updated, model.DocumentBRD)
	assert.NotContains(t, updated, model.DocumentPRD)
	assert.Equal(t, "Users own a account. Every user matters.", updated[model.DocumentBRD])
	assert.True(t, stats[model.DocumentBRD].Changed())
}

func TestTermHarmonizerKeepsRequiredSections(t *testing.T) {
	docs := map[model.DocumentKind]string{
		model.DocumentERD:  "## Entities\n\nEach entity has attributes and relationships with cardinality.",
		model.DocumentDBRD: "## Schema\n\n## Tables\n\nThe tables are normalized.\n\n## Indexes\n\n## Constraints\n\n## Migration\n",
	}
	conflicts := CheckConsistency(docs)
	require.Equal(t, []Conflict{
		{Group: "entity", A: model.DocumentERD, TermA: "entity", B: model.DocumentDBRD, TermB: "table"},
	}, conflicts)

	updated, _, err := NewTermHarmonizer().Harmonize(context.Background(), docs, conflicts)
	require.NoError(t, err)
	assert.NotContains(t, updated, model.DocumentDBRD, "dbrd requires a tables section")
}

func TestTermHarmonizerSkipsHeadingsAndKeepsPlurals(t *testing.T) {
	docs := map[model.DocumentKind]string{
		model.DocumentPRD: "Users sign in. Every table stores rows. Tables are indexed.",
		model.DocumentSRS: "## Customer Interfaces\n\nEntities are persisted. Each entity has an id.\n",
	}
	updated, _, err := NewTermHarmonizer().Harmonize(context.Background(), docs, CheckConsistency(docs))
	require.NoError(t, err)
	assert.Equal(t, "## Customer Interfaces\n\nTables are persisted. Each table has an id.\n", updated[model.DocumentSRS])
}

func TestPlural(t *testing.T) {
	assert.Equal(t, "entities", plural("entity"))
	assert.Equal(t, "users", plural("user"))
	assert.Equal(t, "tables", plural("table"))
	assert.Equal(t, "Entities", matchForm("Entities", "entity", "entity"))
	assert.Equal(t, "TABLES", matchForm("ENTITIES", "entity", "table"))
	assert.Equal(t, "table", matchForm("entity", "entity", "table"))
}

func TestHarmonizationNeverLowersCompleteness(t *testing.T) {
	docs := map[model.DocumentKind]string{}
	for i, kind := range model.AllDocumentKinds {
		var b strings.Builder
		sections := pipeline.RequiredSections[kind]
		for _, sec := range sections {
			b.WriteString("## " + sec + "\n\n")
		}
		b.WriteString("This document covers " + strings.Join(sections, ", ") + ".\n")
		for _, group := range TermGroups {
			term := group[i%len(group)]
			b.WriteString("The " + term + " and many " + plural(term) + " matter. ")
		}
		docs[kind] = b.String()
	}

	conflicts := CheckConsistency(docs)
	require.NotEmpty(t, conflicts)
	updated, _, err := NewTermHarmonizer().Harmonize(context.Background(), docs, conflicts)
	require.NoError(t, err)
	require.NotEmpty(t, updated)

	for kind, content := range updated {
		before := pipeline.Validate(kind, docs[kind])
		after := pipeline.Validate(kind, content)
		assert.GreaterOrEqual(t, after.Completeness, before.Completeness, "%s lost sections %v", kind, after.MissingSections)
	}
}

func TestDiff(t *testing.T) {
	d := Diff("the customer", "the user")
	assert.True(t, d.Changed())
	assert.Positive(t, d.Insertions)
	assert.Positive(t, d.Deletions)
	assert.False(t, Diff("same", "same").Changed())
}

func TestLoopHarmonize(t *testing.T) {
	m := metrics.New("agentpm")
	loop := New(nil, nil, Options{}).WithObservability(m, nil, nil)

	docs := map[model.DocumentKind]string{
		model.DocumentPRD: "The admin reviews alerts.",
		model.DocumentSRS: "The operator reviews notifications.",
	}
	updated, err := loop.Harmonize(context.Background(), docs)
	require.NoError(t, err)
	assert.Equal(t, map[model.DocumentKind]string{
		model.DocumentSRS: "The admin reviews alerts.",
	}, updated)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ConsistencyConflicts))

	none, err := loop.Harmonize(context.Background(), map[model.DocumentKind]string{model.DocumentPRD: "x"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

type failingHarmonizer struct{}

func (failingHarmonizer) Harmonize(context.Context, map[model.DocumentKind]string, []Conflict) (map[model.DocumentKind]string, map[model.DocumentKind]DiffStats, error) {
	return nil, nil, errors.New("harmonizer down")
}

func TestLoopHarmonizeError(t *testing.T) {
	loop := New(nil, nil, Options{}).WithHarmonizer(failingHarmonizer{})
	docs := map[model.DocumentKind]string{
		model.DocumentPRD: "Users place orders.",
		model.DocumentBRD: "Customers place orders.",
	}
	_, err := loop.Harmonize(context.Background(), docs)
	assert.EqualError(t, err, "harmonizer down")
}

func TestRefineBatch(t *testing.T) {
	loop := New(nil, nil, Options{})
	docs := map[model.DocumentKind]string{
		model.DocumentPRD: prdDocument("Users need examples."),
		model.DocumentBRD: "## Executive Summary\n\nCustomers want faster checkout.",
	}
	out, err := loop.RefineBatch(context.Background(), docs, model.QualityDraft)
	require.NoError(t, err)

	require.Len(t, out.Documents, 2)
	require.Len(t, out.Conflicts, 1)
	assert.Contains(t, out.Harmonized, model.DocumentBRD)
	assert.Contains(t, out.Contents()[model.DocumentBRD], "Users want faster checkout.")

	prd, brd := out.Documents[model.DocumentPRD], out.Documents[model.DocumentBRD]
	assert.InDelta(t, (prd.FinalScore+brd.FinalScore)/2, out.OverallScore, 1e-9)
	assert.Greater(t, prd.FinalScore, brd.FinalScore)

	empty, err := loop.RefineBatch(context.Background(), nil, model.QualityDraft)
	require.NoError(t, err)
	assert.Empty(t, empty.Documents)
}
