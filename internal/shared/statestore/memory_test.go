package statestore

import (
	"context"
	"errors"
	"testing"
	"time"

	"agentpm/internal/shared/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time           { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestState(id string) *model.ConversationState {
	now := time.Date(2026, 1, 2, 3, 4, 5, 6000, time.UTC)
	s := model.NewConversationState(id, model.ConversationKindFeature, now)
	s.AppendMessage(model.Message{ID: "m1", Role: model.RoleUser, Content: "build a planner", Timestamp: now})
	s.AddConsultedAgent("product_manager")
	s.Context["audience"] = "teams"
	return s
}

func TestMemorySaveLoad(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(DefaultOptions())

	_, err := s.LoadState(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	state := newTestState("c1")
	require.NoError(t, s.SaveState(ctx, state))

	got, err := s.LoadState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, state, got)

	// 返回的是副本
	got.Context["audience"] = "changed"
	again, err := s.LoadState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, "teams", again.Context["audience"])

	require.NoError(t, s.DeleteState(ctx, "c1"))
	_, err = s.LoadState(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStateTTLRefreshedOnWrite(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Now()}
	s := NewMemoryStore(Options{StateTTL: time.Hour})
	s.SetClock(clock.Now)

	state := newTestState("c1")
	require.NoError(t, s.SaveState(ctx, state))

	clock.Advance(50 * time.Minute)
	require.NoError(t, s.SaveState(ctx, state))

	clock.Advance(50 * time.Minute)
	_, err := s.LoadState(ctx, "c1")
	require.NoError(t, err, "write should refresh expiry")

	clock.Advance(11 * time.Minute)
	_, err = s.LoadState(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryCheckpointRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(DefaultOptions())
	state := newTestState("c1")

	cp, err := s.CreateCheckpoint(ctx, state)
	require.NoError(t, err)
	assert.Equal(t, "c1", cp.ConversationID)

	// 快照之后的修改不影响检查点
	state.AdvancePhase(model.PhaseDefinition, state.UpdatedAt)

	restored, err := Restore(ctx, s, "c1", 0)
	require.NoError(t, err)
	assert.Equal(t, model.PhaseDiscovery, restored.Phase)
	assert.Equal(t, newTestState("c1"), restored)

	loaded, err := s.LoadState(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, restored, loaded)
}

func TestMemoryCheckpointTimestampsMonotonic(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Now()}
	s := NewMemoryStore(DefaultOptions())
	s.SetClock(clock.Now)
	state := newTestState("c1")

	var prev int64
	for i := 0; i < 5; i++ {
		cp, err := s.CreateCheckpoint(ctx, state)
		require.NoError(t, err)
		assert.Greater(t, cp.Timestamp, prev)
		prev = cp.Timestamp
	}

	list, err := s.ListCheckpoints(ctx, "c1")
	require.NoError(t, err)
	assert.Len(t, list, 5)
	assert.IsIncreasing(t, list)

	latest, err := s.LatestCheckpoint(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, prev, latest.Timestamp)
}

func TestMemoryCheckpointExpiry(t *testing.T) {
	ctx := context.Background()
	clock := &fakeClock{t: time.Now()}
	s := NewMemoryStore(Options{CheckpointTTL: time.Hour})
	s.SetClock(clock.Now)

	_, err := s.CreateCheckpoint(ctx, newTestState("c1"))
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)
	_, err = s.LatestCheckpoint(ctx, "c1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRestoreMissingCheckpoint(t *testing.T) {
	_, err := Restore(context.Background(), NewMemoryStore(DefaultOptions()), "nope", 0)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestNextTimestamp(t *testing.T) {
	now := time.UnixMicro(1000)
	assert.Equal(t, int64(1000), NextTimestamp(0, now))
	assert.Equal(t, int64(1001), NextTimestamp(1000, now))
	assert.Equal(t, int64(2001), NextTimestamp(2000, now))
}

// brokenStore 模拟主存储不可达：状态与检查点读写全部失败
type brokenStore struct{ *MemoryStore }

var errUnreachable = errors.New("connection refused")

func (b brokenStore) SaveState(context.Context, *model.ConversationState) error {
	return errUnreachable
}

func (b brokenStore) LoadState(context.Context, string) (*model.ConversationState, error) {
	return nil, errUnreachable
}

func (b brokenStore) CreateCheckpoint(context.Context, *model.ConversationState) (*model.Checkpoint, error) {
	return nil, errUnreachable
}

func (b brokenStore) LatestCheckpoint(context.Context, string) (*model.Checkpoint, error) {
	return nil, errUnreachable
}

func (b brokenStore) GetCheckpoint(context.Context, string, int64) (*model.Checkpoint, error) {
	return nil, errUnreachable
}

func TestFallbackStoreRecoversFromFile(t *testing.T) {
	ctx := context.Background()
	files, err := NewFileCheckpoints(t.TempDir())
	require.NoError(t, err)

	primary := brokenStore{NewMemoryStore(DefaultOptions())}
	s := WithFileFallback(primary, files)
	state := newTestState("conv/with:odd chars")

	assert.ErrorIs(t, s.SaveState(ctx, state), errUnreachable)
	cp, err := s.CreateCheckpoint(ctx, state)
	require.NoError(t, err, "file copy is written when the primary is down")

	got, err := s.LatestCheckpoint(ctx, state.ID)
	require.NoError(t, err)
	assert.Equal(t, cp.Timestamp, got.Timestamp)
	assert.Equal(t, state, got.State)

	byTS, err := s.GetCheckpoint(ctx, state.ID, cp.Timestamp)
	require.NoError(t, err)
	assert.Equal(t, state, byTS.State)

	_, err = s.LoadState(ctx, state.ID)
	assert.ErrorIs(t, err, errUnreachable)

	restored, err := Restore(ctx, s, state.ID, 0)
	require.NoError(t, err, "write-back failure does not fail the restore")
	assert.Equal(t, state, restored)
}

func TestRestoreMissingCheckpointBehindBrokenPrimary(t *testing.T) {
	files, err := NewFileCheckpoints(t.TempDir())
	require.NoError(t, err)
	s := WithFileFallback(brokenStore{NewMemoryStore(DefaultOptions())}, files)

	_, err = Restore(context.Background(), s, "never-saved", 0)
	assert.ErrorIs(t, err, errUnreachable)
}

func TestFallbackStoreWritesFileCopyAlongsidePrimary(t *testing.T) {
	ctx := context.Background()
	files, err := NewFileCheckpoints(t.TempDir())
	require.NoError(t, err)
	s := WithFileFallback(NewMemoryStore(DefaultOptions()), files)

	cp, err := s.CreateCheckpoint(ctx, newTestState("c1"))
	require.NoError(t, err)

	fcp, err := files.Read("c1")
	require.NoError(t, err)
	assert.Equal(t, cp.Timestamp, fcp.Timestamp)

	_, err = files.Read("c2")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFallbackStoreNotFound(t *testing.T) {
	files, err := NewFileCheckpoints(t.TempDir())
	require.NoError(t, err)
	s := WithFileFallback(NewMemoryStore(DefaultOptions()), files)

	_, err = s.LatestCheckpoint(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}
