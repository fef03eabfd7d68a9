package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kart-io/alerthub/core"
	"github.com/kart-io/alerthub/core/errors"
)

func newTestStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "interactions.db")
	s, err := New(Options{Path: path})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, path
}

func TestNewRequiresPath(t *testing.T) {
	_, err := New(Options{})
	assert.ErrorIs(t, err, errors.ErrMissingConfig)
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	interaction := core.NewInteraction(core.InteractionTeamInvitation, "alice", "bob")
	interaction.ID = "int1"
	interaction.Message = "join us"
	interaction.Payload = core.NewInteractionPayload(core.InteractionPayload{
		InteractionID: "int1",
		FromUser:      "alice",
		ToUser:        "bob",
		Intent:        string(core.InteractionTeamInvitation),
	})
	require.NoError(t, s.Save(ctx, interaction))

	got, err := s.Get(ctx, "int1")
	require.NoError(t, err)
	assert.Equal(t, core.InteractionTeamInvitation, got.Type)
	assert.Equal(t, "alice", got.FromUser)
	assert.Equal(t, "bob", got.ToUser)
	assert.Equal(t, "join us", got.Message)
	assert.Equal(t, core.InteractionPending, got.Status)
	assert.Nil(t, got.RespondedAt)
	require.NotNil(t, got.Payload)
	require.NotNil(t, got.Payload.Interaction)
	assert.Equal(t, "int1", got.Payload.Interaction.InteractionID)
}

func TestSaveRejectsEmptyID(t *testing.T) {
	s, _ := newTestStore(t)

	interaction := core.NewInteraction(core.InteractionChatInvitation, "alice", "bob")
	assert.ErrorIs(t, s.Save(context.Background(), interaction), errors.ErrInvalidInteraction)
	assert.ErrorIs(t, s.Save(context.Background(), nil), errors.ErrInvalidInteraction)
}

func TestGetUnknownID(t *testing.T) {
	s, _ := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, errors.ErrInteractionNotFound)
}

func TestUpsertRecordsResponse(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	interaction := core.NewInteraction(core.InteractionConnectionRequest, "alice", "bob")
	interaction.ID = "int1"
	require.NoError(t, s.Save(ctx, interaction))

	respondedAt := time.Now()
	interaction.Status = core.InteractionAccepted
	interaction.RespondedAt = &respondedAt
	require.NoError(t, s.Save(ctx, interaction))

	got, err := s.Get(ctx, "int1")
	require.NoError(t, err)
	assert.Equal(t, core.InteractionAccepted, got.Status)
	require.NotNil(t, got.RespondedAt)
	assert.WithinDuration(t, respondedAt, *got.RespondedAt, time.Second)
}

func TestListForUserNewestFirst(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	base := time.Now().Add(-time.Minute)
	for i, id := range []string{"int1", "int2"} {
		interaction := core.NewInteraction(core.InteractionMeetingRequest, "alice", "bob")
		interaction.ID = id
		interaction.CreatedAt = base.Add(time.Duration(i) * time.Second)
		require.NoError(t, s.Save(ctx, interaction))
	}
	other := core.NewInteraction(core.InteractionMeetingRequest, "alice", "carol")
	other.ID = "int3"
	require.NoError(t, s.Save(ctx, other))

	list, err := s.ListForUser(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "int2", list[0].ID)
	assert.Equal(t, "int1", list[1].ID)
}

func TestSurvivesReopen(t *testing.T) {
	s, path := newTestStore(t)
	ctx := context.Background()

	interaction := core.NewInteraction(core.InteractionProjectInvitation, "alice", "bob")
	interaction.ID = "int1"
	require.NoError(t, s.Save(ctx, interaction))
	require.NoError(t, s.Close())

	reopened, err := New(Options{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get(ctx, "int1")
	require.NoError(t, err)
	assert.Equal(t, core.InteractionPending, got.Status)
}
