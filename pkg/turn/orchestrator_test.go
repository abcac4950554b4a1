package turn_test

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tavernkeep/gamemaster/internal/services"
	"github.com/tavernkeep/gamemaster/pkg/chat"
	"github.com/tavernkeep/gamemaster/pkg/scenario"
	"github.com/tavernkeep/gamemaster/pkg/schema"
	"github.com/tavernkeep/gamemaster/pkg/state"
	"github.com/tavernkeep/gamemaster/pkg/storage"
	"github.com/tavernkeep/gamemaster/pkg/turn"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testScenario() *scenario.Scenario {
	return &scenario.Scenario{
		Name:    "The Harbor",
		Premise: "A fog-bound harbor town where bells ring on their own.",
		Opening: "Fog rolls in off the water as you step onto the pier.",
		Characters: []scenario.StartingCharacter{
			{Name: "Keeper Malen", Attributes: map[string]int{"wisdom": 14}},
		},
		Items: []scenario.StartingItem{
			{Type: "Brass Key", Owner: "Keeper Malen"},
		},
		Flags: map[string]string{"bell_heard": "false"},
	}
}

func newTestOrchestrator(t *testing.T, mock *services.MockLLM) (*turn.Orchestrator, *state.Store) {
	t.Helper()
	registry, err := schema.Load()
	require.NoError(t, err)
	store := state.NewStore(nil, testLogger())
	o := turn.NewOrchestrator(testScenario(), registry, store, mock, testLogger(), turn.Options{
		BackoffBase: time.Millisecond,
	})
	return o, store
}

func TestStartSession_AppliesScenario(t *testing.T) {
	o, store := newTestOrchestrator(t, services.NewMockLLM())

	opening, err := o.StartSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Fog rolls in off the water as you step onto the pier.", opening)

	gs := store.Snapshot()
	ch, ok := gs.Character("keeper_malen")
	require.True(t, ok)
	assert.Equal(t, []string{"brass_key"}, ch.Inventory)
	assert.Equal(t, "false", gs.Flags["bell_heard"])
	assert.Equal(t, turn.AwaitingPlayerInput, o.State())
}

func TestPlayTurn_NarrativeOnly(t *testing.T) {
	mock := services.NewMockLLM().Respond("The keeper looks up from her ledger.")
	o, store := newTestOrchestrator(t, mock)
	_, err := o.StartSession(context.Background())
	require.NoError(t, err)

	rec, err := o.PlayTurn(context.Background(), "I approach the keeper.")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Turn)
	assert.Equal(t, "The keeper looks up from her ledger.", rec.Narrative)
	assert.Empty(t, rec.Outcomes)
	assert.Equal(t, 1, store.Snapshot().Turn)
	assert.Equal(t, turn.AwaitingPlayerInput, o.State())
}

func TestPlayTurn_AppliesCallChain(t *testing.T) {
	raw := "A stranger steps out of the fog.\n\n" +
		"```call\n" +
		`{"function": "create_character", "params": {"name": "Rin"}}` + "\n" +
		"```\n\n" +
		"She presses a sword into your companion's hands.\n\n" +
		"```call\n" +
		`{"function": "add_item", "params": {"character": "Rin", "item": "sword"}}` + "\n" +
		"```\n"
	mock := services.NewMockLLM().Respond(raw)
	o, store := newTestOrchestrator(t, mock)
	_, err := o.StartSession(context.Background())
	require.NoError(t, err)

	rec, err := o.PlayTurn(context.Background(), "Who goes there?")
	require.NoError(t, err)
	require.Len(t, rec.Outcomes, 2)
	assert.Empty(t, rec.Rejections())
	assert.Contains(t, rec.Narrative, "A stranger steps out of the fog.")
	assert.NotContains(t, rec.Narrative, "```")

	gs := store.Snapshot()
	ch, ok := gs.Character("rin")
	require.True(t, ok)
	assert.Equal(t, []string{"sword"}, ch.Inventory)
}

func TestPlayTurn_InvalidReferenceIsRecordedNotFatal(t *testing.T) {
	raw := "A ghost reaches for the lantern.\n\n" +
		"```call\n" +
		`{"function": "add_item", "params": {"character": "Ghost", "item": "lantern"}}` + "\n" +
		"```\n"
	mock := services.NewMockLLM().Respond(raw)
	o, store := newTestOrchestrator(t, mock)
	_, err := o.StartSession(context.Background())
	require.NoError(t, err)
	before := store.Snapshot()

	rec, err := o.PlayTurn(context.Background(), "I watch.")
	require.NoError(t, err)
	require.Len(t, rec.Rejections(), 1)
	assert.Equal(t, before.Items, store.Snapshot().Items)
	assert.Equal(t, turn.AwaitingPlayerInput, o.State())
}

func TestPlayTurn_TransientTransportErrorRetries(t *testing.T) {
	mock := services.NewMockLLM().
		Fail(errors.New("connection reset")).
		Respond("The fog thins for a moment.")
	o, _ := newTestOrchestrator(t, mock)
	_, err := o.StartSession(context.Background())
	require.NoError(t, err)

	rec, err := o.PlayTurn(context.Background(), "I wait.")
	require.NoError(t, err)
	assert.Equal(t, "The fog thins for a moment.", rec.Narrative)
	assert.Equal(t, 2, mock.Calls())
}

func TestPlayTurn_RetryExhaustionEndsSession(t *testing.T) {
	timeout := errors.New("request timed out")
	mock := services.NewMockLLM().Fail(timeout).Fail(timeout).Fail(timeout)
	o, store := newTestOrchestrator(t, mock)
	_, err := o.StartSession(context.Background())
	require.NoError(t, err)
	before := store.Snapshot()

	rec, err := o.PlayTurn(context.Background(), "Hello?")
	require.ErrorIs(t, err, turn.ErrSessionFailed)
	assert.Nil(t, rec)
	assert.Equal(t, 3, mock.Calls())
	assert.Equal(t, turn.SessionEnded, o.State())
	assert.Empty(t, o.Records())
	assert.Equal(t, before.Turn, store.Snapshot().Turn)

	_, err = o.PlayTurn(context.Background(), "Hello again?")
	assert.ErrorIs(t, err, turn.ErrSessionEnded)
}

func TestPlayTurn_RepeatedConflictAbortsTurnOnly(t *testing.T) {
	raw := "```call\n" + `{"function": "create_character", "params": {"name": "Rin"}}` + "\n```\n" +
		"```call\n" + `{"function": "create_character", "params": {"name": "rin"}}` + "\n```\n" +
		"```call\n" + `{"function": "create_character", "params": {"name": "RIN"}}` + "\n```\n"
	mock := services.NewMockLLM().
		Respond(raw).
		Respond("The bell rings once.")
	o, store := newTestOrchestrator(t, mock)
	_, err := o.StartSession(context.Background())
	require.NoError(t, err)

	rec, err := o.PlayTurn(context.Background(), "Name yourself!")
	require.ErrorIs(t, err, turn.ErrTurnAborted)
	require.NotNil(t, rec)
	assert.Len(t, rec.Rejections(), 3)
	_, ok := store.Snapshot().Character("rin")
	assert.False(t, ok)

	// The session survives a turn abort.
	rec, err = o.PlayTurn(context.Background(), "I listen.")
	require.NoError(t, err)
	assert.Equal(t, "The bell rings once.", rec.Narrative)
}

// The next request replays the composed narrative, never the raw
// response, so call payloads do not re-enter the context window.
func TestPlayTurn_HistoryUsesComposedNarrative(t *testing.T) {
	raw := "Rin arrives.\n\n" +
		"```call\n" + `{"function": "create_character", "params": {"name": "Rin"}}` + "\n```\n"
	mock := services.NewMockLLM().
		Respond(raw).
		Respond("Rin waves.")
	o, _ := newTestOrchestrator(t, mock)
	_, err := o.StartSession(context.Background())
	require.NoError(t, err)

	_, err = o.PlayTurn(context.Background(), "I wait by the pier.")
	require.NoError(t, err)
	_, err = o.PlayTurn(context.Background(), "I wave back.")
	require.NoError(t, err)

	// The system prompt legitimately shows a ```call example when it
	// explains the protocol; only the replayed conversation must be
	// free of payloads.
	var sawHistory bool
	for _, msg := range mock.LastMessages {
		if msg.Role == chat.ChatRoleSystem {
			continue
		}
		assert.NotContains(t, msg.Content, "```call")
		assert.NotContains(t, msg.Content, `"function"`)
		if msg.Content == "Rin arrives." {
			sawHistory = true
		}
	}
	assert.True(t, sawHistory, "previous narrative should be in the request")
}

func TestPlayTurn_PersistsThroughRecorder(t *testing.T) {
	mock := services.NewMockLLM().Respond("Waves lap at the pilings.")
	o, store := newTestOrchestrator(t, mock)
	rec := storage.NewMock()
	o.WithRecorder(rec)

	ctx := context.Background()
	_, err := o.StartSession(ctx)
	require.NoError(t, err)
	_, err = o.PlayTurn(ctx, "I look out at the water.")
	require.NoError(t, err)

	saved, err := rec.LoadSnapshot(ctx, o.SessionID())
	require.NoError(t, err)
	require.NotNil(t, saved)
	assert.Equal(t, store.Snapshot().Turn, saved.Turn)

	turns, err := rec.LoadTurns(ctx, o.SessionID())
	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "Waves lap at the pilings.", turns[0].Narrative)
}

func TestPlayTurn_PersistenceFailureIsNotFatal(t *testing.T) {
	mock := services.NewMockLLM().Respond("The tide turns.")
	o, _ := newTestOrchestrator(t, mock)
	o.WithRecorder(&storage.Mock{FailWith: errors.New("redis down")})

	ctx := context.Background()
	_, err := o.StartSession(ctx)
	require.NoError(t, err)

	rec, err := o.PlayTurn(ctx, "I wait for the tide.")
	require.NoError(t, err)
	assert.Equal(t, "The tide turns.", rec.Narrative)
}

func TestPlayTurn_CancelledContextEndsSessionCleanly(t *testing.T) {
	mock := services.NewMockLLM().Fail(context.Canceled)
	o, _ := newTestOrchestrator(t, mock)
	_, err := o.StartSession(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = o.PlayTurn(ctx, "I shout into the fog.")
	require.ErrorIs(t, err, turn.ErrSessionFailed)
	assert.Equal(t, 1, mock.Calls(), "no retries after cancellation")
}

func TestEnd_IsTerminal(t *testing.T) {
	o, _ := newTestOrchestrator(t, services.NewMockLLM())
	o.End()
	_, err := o.PlayTurn(context.Background(), "anyone there?")
	assert.ErrorIs(t, err, turn.ErrSessionEnded)
}
