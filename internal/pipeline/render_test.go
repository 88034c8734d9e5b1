package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentpm/internal/shared/model"
	"agentpm/internal/shared/storage"
)

func sampleResult() *model.DocumentGenerationResult {
	return &model.DocumentGenerationResult{
		Kind:    model.DocumentPRD,
		Content: "# Overview\nbody",
		Status:  model.DocumentStatusCompleted,
		Metadata: model.DocumentMetadata{
			GeneratedAt:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
			QualityScore:     90,
			ValidationPassed: true,
			WordCount:        3,
			Duration:         1500 * time.Millisecond,
		},
	}
}

func TestRenderRoundTrip(t *testing.T) {
	data, err := Render("c1", sampleResult())
	require.NoError(t, err)
	assert.Contains(t, string(data), "document_kind: prd\n")
	assert.Contains(t, string(data), "2026-03-01T12:00:00Z")

	meta, body, err := ParseRendered(data)
	require.NoError(t, err)
	assert.Equal(t, "c1", meta["conversation_id"])
	assert.Equal(t, 90, meta["quality_score"])
	assert.Equal(t, true, meta["validation_passed"])
	assert.Equal(t, "1.5s", meta["generation_duration"])
	assert.Equal(t, "# Overview\nbody\n", body)
}

func TestParseRenderedWithoutHeader(t *testing.T) {
	meta, body, err := ParseRendered([]byte("plain"))
	require.NoError(t, err)
	assert.Nil(t, meta)
	assert.Equal(t, "plain", body)

	_, _, err = ParseRendered([]byte("---\nkey: v\n"))
	assert.Error(t, err)
}

type fakeExporter struct {
	keys []string
	err  error
}

func (f *fakeExporter) ExportDocument(_ context.Context, conv string, kind model.DocumentKind, _ []byte) error {
	f.keys = append(f.keys, conv+"/"+string(kind))
	return f.err
}

func TestStorePersister(t *testing.T) {
	docs := storage.NewMemoryDocumentStore()
	exp := &fakeExporter{err: errors.New("bucket missing")}
	p := NewStorePersister(docs, exp)
	ctx := context.Background()

	require.NoError(t, p.SaveDraft(ctx, "c1", sampleResult()))
	assert.Empty(t, exp.keys)

	require.NoError(t, p.SaveFinal(ctx, "c1", sampleResult()), "export failure must not fail the final save")
	assert.Equal(t, []string{"c1/prd"}, exp.keys)

	list, err := docs.ListDocuments(ctx, "c1", false)
	require.NoError(t, err)
	require.Len(t, list, 2)

	final, err := docs.GetDocument(ctx, "c1", model.DocumentPRD, true)
	require.NoError(t, err)
	assert.Equal(t, "c1:prd:final", final.ID)
	_, body, err := ParseRendered([]byte(final.Content))
	require.NoError(t, err)
	assert.Equal(t, "# Overview\nbody\n", body)
}
