package infra

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentpm/internal/config"
	eventbusredis "agentpm/internal/shared/eventbus/redis"
	"agentpm/internal/shared/model"
	"agentpm/internal/shared/statestore"
	"agentpm/internal/shared/storage"
	"agentpm/internal/shared/storage/repository"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		DatabaseDriver: "sqlite",
		DatabaseURL:    ":memory:",
		State: config.StateConfig{
			Backend:       "redis",
			StateTTL:      time.Hour,
			CheckpointTTL: 2 * time.Hour,
			CheckpointDir: t.TempDir(),
		},
	}
}

func TestNewWithRedisAndSQLite(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := testConfig(t)
	cfg.RedisURL = "redis://" + mr.Addr() + "/0"

	inf, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer inf.Close()

	assert.False(t, inf.IsDegraded())
	assert.IsType(t, &statestore.FallbackStore{}, inf.State)
	assert.IsType(t, &eventbusredis.Store{}, inf.EventBus)
	assert.IsType(t, &repository.Store{}, inf.Documents)
	assert.Nil(t, inf.Exporter)

	ctx := context.Background()
	state := model.NewConversationState("c1", model.ConversationKindIdea, time.Now().UTC())
	require.NoError(t, inf.State.SaveState(ctx, state))
	assert.True(t, mr.Exists(statestore.ConversationKey("c1")))
	assert.Equal(t, time.Hour, mr.TTL(statestore.ConversationKey("c1")))

	require.NoError(t, inf.Documents.SaveDocument(ctx, &model.StoredDocument{
		ConversationID: "c1",
		Kind:           model.DocumentPRD,
		Content:        "# PRD",
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}))
	got, err := inf.Documents.GetDocument(ctx, "c1", model.DocumentPRD, false)
	require.NoError(t, err)
	assert.Equal(t, "# PRD", got.Content)
}

func TestNewDegradesWithoutRedis(t *testing.T) {
	cfg := testConfig(t)
	cfg.RedisURL = "redis://127.0.0.1:1/0"

	inf, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer inf.Close()

	assert.True(t, inf.IsDegraded())
	assert.Equal(t, []string{"state", "eventbus"}, inf.Degraded)

	// 降级后检查点仍写入文件副本
	ctx := context.Background()
	state := model.NewConversationState("c2", model.ConversationKindTool, time.Now().UTC())
	_, err = inf.State.CreateCheckpoint(ctx, state)
	require.NoError(t, err)

	files, err := statestore.NewFileCheckpoints(cfg.State.CheckpointDir)
	require.NoError(t, err)
	cp, err := files.Read("c2")
	require.NoError(t, err)
	assert.Equal(t, "c2", cp.ConversationID)
}

func TestMemoryBackend(t *testing.T) {
	cfg := testConfig(t)
	cfg.State.Backend = "memory"
	cfg.State.CheckpointDir = ""

	inf, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer inf.Close()

	assert.IsType(t, &statestore.MemoryStore{}, inf.State)
	assert.Equal(t, []string{"eventbus"}, inf.Degraded)
}

func TestNewMemoryInfrastructure(t *testing.T) {
	inf := NewMemoryInfrastructure(statestore.DefaultOptions())
	assert.IsType(t, &storage.MemoryDocumentStore{}, inf.Documents)
	assert.False(t, inf.IsDegraded())
	assert.NoError(t, inf.Close())
}
