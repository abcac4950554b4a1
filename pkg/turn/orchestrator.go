// Package turn drives the conversational loop with the model: build
// request, await response, parse, validate, apply, compose narrative,
// repeat. One session is strictly sequential; a turn fully completes
// before the next player input is accepted.
package turn

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/tavernkeep/gamemaster/pkg/chat"
	"github.com/tavernkeep/gamemaster/pkg/dispatch"
	"github.com/tavernkeep/gamemaster/pkg/narrative"
	"github.com/tavernkeep/gamemaster/pkg/parser"
	"github.com/tavernkeep/gamemaster/pkg/prompts"
	"github.com/tavernkeep/gamemaster/pkg/scenario"
	"github.com/tavernkeep/gamemaster/pkg/schema"
	"github.com/tavernkeep/gamemaster/pkg/state"
)

// State is the orchestrator's position in the turn cycle.
type State string

const (
	AwaitingPlayerInput State = "awaiting_player_input"
	RequestSent         State = "request_sent"
	ResponseReceived    State = "response_received"
	Validating          State = "validating"
	StateUpdated        State = "state_updated"
	NarrativeReady      State = "narrative_ready"
	SessionEnded        State = "session_ended"
)

var (
	// ErrSessionEnded is returned when a turn is attempted on a
	// session that already reached its terminal state.
	ErrSessionEnded = errors.New("session has ended")
	// ErrSessionFailed wraps the transport error that exhausted the
	// retry budget and ended the session.
	ErrSessionFailed = errors.New("session failed")
	// ErrTurnAborted wraps a non-fatal turn-level failure; the
	// session continues and the player is re-prompted.
	ErrTurnAborted = errors.New("turn aborted")
)

// Transport is the external model boundary. Implementations own the
// provider wire format; the orchestrator only sees messages in and raw
// text out.
type Transport interface {
	Chat(ctx context.Context, messages []chat.ChatMessage) (string, error)
}

// Recorder persists session progress. Persistence failures are logged,
// never fatal to the turn.
type Recorder interface {
	SaveSnapshot(ctx context.Context, gs *state.GameState) error
	AppendTurn(ctx context.Context, sessionID uuid.UUID, rec TurnRecord) error
}

// Options tune the orchestrator's retry and context policy.
type Options struct {
	HistoryLimit int           // conversation window, in messages
	MaxAttempts  int           // transport attempts per turn, including the first
	BackoffBase  time.Duration // initial backoff interval
}

func (o *Options) fill() {
	if o.HistoryLimit <= 0 {
		o.HistoryLimit = prompts.DefaultHistoryLimit
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = 500 * time.Millisecond
	}
}

// Orchestrator runs the turn state machine for one session.
type Orchestrator struct {
	scen       *scenario.Scenario
	registry   *schema.Registry
	store      *state.Store
	dispatcher *dispatch.Dispatcher
	transport  Transport
	recorder   Recorder // optional
	logger     *slog.Logger
	opts       Options

	machineState State
	records      []TurnRecord
	fatal        error
}

// NewOrchestrator wires a session together. The store may carry a
// resumed game state; records may carry a resumed turn log.
func NewOrchestrator(
	scen *scenario.Scenario,
	registry *schema.Registry,
	store *state.Store,
	transport Transport,
	logger *slog.Logger,
	opts Options,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	opts.fill()
	return &Orchestrator{
		scen:         scen,
		registry:     registry,
		store:        store,
		dispatcher:   dispatch.New(registry, store, logger),
		transport:    transport,
		logger:       logger,
		opts:         opts,
		machineState: AwaitingPlayerInput,
	}
}

// WithRecorder attaches session persistence.
func (o *Orchestrator) WithRecorder(r Recorder) *Orchestrator {
	o.recorder = r
	return o
}

// WithRecords seeds the turn log when resuming a saved session.
func (o *Orchestrator) WithRecords(records []TurnRecord) *Orchestrator {
	o.records = records
	return o
}

// State reports the current machine state.
func (o *Orchestrator) State() State { return o.machineState }

// Records returns the turn log, oldest first.
func (o *Orchestrator) Records() []TurnRecord { return o.records }

// SessionID identifies the session for persistence keys.
func (o *Orchestrator) SessionID() uuid.UUID { return o.store.Snapshot().ID }

// Err returns the fatal error that ended the session, if any.
func (o *Orchestrator) Err() error { return o.fatal }

// StartSession applies the scenario's starting state and returns the
// opening narration. Call once, before the first turn.
func (o *Orchestrator) StartSession(ctx context.Context) (string, error) {
	if err := o.store.Apply(o.scen.StartingOps()); err != nil {
		return "", fmt.Errorf("failed to set up scenario %q: %w", o.scen.Name, err)
	}
	if o.recorder != nil {
		if err := o.recorder.SaveSnapshot(ctx, o.store.Snapshot()); err != nil {
			o.logger.Error("failed to persist starting snapshot", "error", err)
		}
	}
	return o.scen.Opening, nil
}

// End moves the session to its terminal state. Safe from any state.
func (o *Orchestrator) End() {
	o.machineState = SessionEnded
}

// PlayTurn runs one full turn: player input to composed narrative.
// Parse and validation failures degrade gracefully and still produce a
// turn record. A transport failure that exhausts the retry budget ends
// the session (ErrSessionFailed, no record appended). A repeated batch
// conflict aborts only the turn (ErrTurnAborted, record appended, no
// state change).
func (o *Orchestrator) PlayTurn(ctx context.Context, input string) (*TurnRecord, error) {
	if o.machineState == SessionEnded {
		return nil, ErrSessionEnded
	}
	if o.machineState != AwaitingPlayerInput {
		return nil, fmt.Errorf("turn already in progress (state %s)", o.machineState)
	}

	o.machineState = RequestSent
	raw, err := o.sendRequest(ctx, input)
	if err != nil {
		o.machineState = SessionEnded
		o.fatal = fmt.Errorf("%w: %v", ErrSessionFailed, err)
		o.logger.Error("transport failed, ending session", "error", err)
		return nil, o.fatal
	}
	o.machineState = ResponseReceived

	o.machineState = Validating
	text, candidates := parser.Parse(raw)
	outcomes, dispatchErr := o.dispatcher.Dispatch(candidates)
	if dispatchErr != nil && !errors.Is(dispatchErr, dispatch.ErrBatchConflict) {
		// Invariant violation: a bug, never silently patched.
		o.machineState = SessionEnded
		o.fatal = dispatchErr
		return nil, dispatchErr
	}
	o.machineState = StateUpdated

	turnNumber := o.store.AdvanceTurn()
	composed := narrative.Compose(text, outcomes)
	record := TurnRecord{
		Turn:        turnNumber,
		PlayerInput: input,
		RawResponse: raw,
		Outcomes:    outcomes,
		Narrative:   composed,
		CreatedAt:   time.Now().UTC(),
	}
	o.records = append(o.records, record)
	o.machineState = NarrativeReady

	o.persist(ctx, record)

	if rejected := record.Rejections(); len(rejected) > 0 {
		o.logger.Info("turn completed with rejections",
			"turn", turnNumber,
			"rejected", len(rejected),
			"applied", len(outcomes)-len(rejected))
	}

	o.machineState = AwaitingPlayerInput
	if errors.Is(dispatchErr, dispatch.ErrBatchConflict) {
		return &o.records[len(o.records)-1], fmt.Errorf("%w: %v", ErrTurnAborted, dispatchErr)
	}
	return &o.records[len(o.records)-1], nil
}

// sendRequest builds the prompt and calls the transport with bounded
// exponential backoff. Context cancellation stops retrying immediately
// and, because Store.Apply is atomic, cannot leave partial state.
func (o *Orchestrator) sendRequest(ctx context.Context, input string) (string, error) {
	messages, err := prompts.New().
		WithScenario(o.scen).
		WithRegistry(o.registry).
		WithSnapshot(o.store.Snapshot()).
		WithHistory(o.historyMessages()).
		WithHistoryLimit(o.opts.HistoryLimit).
		WithUserMessage(input).
		Build()
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}

	attempt := 0
	operation := func() (string, error) {
		attempt++
		raw, err := o.transport.Chat(ctx, messages)
		if err != nil {
			if ctx.Err() != nil {
				return "", backoff.Permanent(err)
			}
			o.logger.Warn("transport error, will retry", "attempt", attempt, "error", err)
			return "", err
		}
		return raw, nil
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = o.opts.BackoffBase
	return backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(uint(o.opts.MaxAttempts)))
}

// historyMessages rebuilds the conversation from the turn log. The
// composed narrative stands in for the raw response so call payloads
// do not re-enter the context window.
func (o *Orchestrator) historyMessages() []chat.ChatMessage {
	messages := make([]chat.ChatMessage, 0, len(o.records)*2)
	for _, rec := range o.records {
		messages = append(messages,
			chat.ChatMessage{Role: chat.ChatRoleUser, Content: rec.PlayerInput},
			chat.ChatMessage{Role: chat.ChatRoleAgent, Content: rec.Narrative},
		)
	}
	return messages
}

func (o *Orchestrator) persist(ctx context.Context, rec TurnRecord) {
	if o.recorder == nil {
		return
	}
	sessionID := o.SessionID()
	if err := o.recorder.SaveSnapshot(ctx, o.store.Snapshot()); err != nil {
		o.logger.Error("failed to persist snapshot", "error", err, "session_id", sessionID.String())
	}
	if err := o.recorder.AppendTurn(ctx, sessionID, rec); err != nil {
		o.logger.Error("failed to persist turn record", "error", err, "session_id", sessionID.String())
	}
}
