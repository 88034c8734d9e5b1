package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agentpm/internal/shared/eventbus"
)

func newTestBus(t *testing.T) *Store {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewStoreFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPublishAndGetEvents(t *testing.T) {
	s := newTestBus(t)
	ctx := context.Background()

	n := eventbus.NewNotifier(s)
	n.PhaseChanged(ctx, "c1", "discovery", "definition")
	n.AgentStatus(ctx, "c1", "product_manager", eventbus.EventAgentCompleted, "")

	count, err := s.GetEventCount(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	events, err := s.GetEvents(ctx, "c1", "", 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, eventbus.EventPhaseChanged, events[0].Type)
	assert.Equal(t, "definition", events[0].Data["to"])
	assert.Equal(t, eventbus.EventAgentCompleted, events[1].Type)
	assert.Equal(t, "product_manager", events[1].Data["agent"])

	rest, err := s.GetEvents(ctx, "c1", events[0].ID, 10)
	require.NoError(t, err)
	require.Len(t, rest, 1)
	assert.Equal(t, events[1].ID, rest[0].ID)

	require.NoError(t, s.DeleteEvents(ctx, "c1"))
	count, err = s.GetEventCount(ctx, "c1")
	require.NoError(t, err)
	assert.Zero(t, count)
}
