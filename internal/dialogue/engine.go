package dialogue

import (
	"context"
	"fmt"

	"outreach-server/internal/observability"
	"outreach-server/internal/session"

	"github.com/google/uuid"
)

// maxToolRounds bounds how many tool calls one callback may trigger before the
// engine gives up on the model converging to an utterance.
const maxToolRounds = 4

// SessionStore is the slice of the session registry the engine needs. The
// registry satisfies it directly; tests substitute it to force failures.
type SessionStore interface {
	GetByID(id uuid.UUID) (session.Session, error)
	AppendTurn(ctx context.Context, id uuid.UUID, turn session.Turn) error
	UpdateStatus(ctx context.Context, id uuid.UUID, newStatus session.Status) error
	Fail(ctx context.Context, id uuid.UUID, reason string) error
	SetSystemInstructions(id uuid.UUID, instructions string) (string, error)
	SetPhase(id uuid.UUID, phase session.Phase) error
	MarkShouldEnd(id uuid.UUID) error
}

// Reply is what the engine tells the caller to speak, and whether to hang up
// afterwards.
type Reply struct {
	Utterance string
	Hangup    bool
}

// Engine drives one session's dialogue state machine. Each provider callback
// becomes one Advance call; the engine loops internally through tool rounds
// until the model produces something speakable.
type Engine struct {
	store    SessionStore
	provider TurnProvider
	executor ToolExecutor
	logger   *observability.Logger
}

// NewEngine creates a dialogue engine.
func NewEngine(store SessionStore, provider TurnProvider, executor ToolExecutor, logger *observability.Logger) *Engine {
	return &Engine{
		store:    store,
		provider: provider,
		executor: executor,
		logger:   logger,
	}
}

// Advance runs the dialogue one step: record what the caller said, consult the
// model (executing tools as requested), and return the agent's next line.
// Model and infrastructure failures never propagate to the telephony layer;
// they fail the session and produce an apology plus hangup instead.
func (e *Engine) Advance(ctx context.Context, sessionID uuid.UUID, userUtterance string) Reply {
	ctx = observability.WithFields(ctx, observability.Field{Key: "session_id", Value: sessionID.String()})

	sess, err := e.store.GetByID(sessionID)
	if err != nil {
		e.logger.Error(ctx, "Dialogue advance on unknown session", err)
		return Reply{Utterance: apologyLine, Hangup: true}
	}

	// A finished dialogue answers every late callback the same way and never
	// touches the transcript again.
	if sess.Dialogue.Phase == session.PhaseTerminated {
		return Reply{Utterance: goodbyeLine, Hangup: true}
	}
	// The session went terminal outside the dialogue (cancel, dispatch
	// failure) while the call was still up: say goodbye once and close out.
	if sess.Status.IsTerminal() {
		return e.terminate(ctx, sessionID, goodbyeLine, false)
	}

	instructions := sess.Dialogue.SystemInstructions
	if sess.Dialogue.Phase == session.PhaseInit {
		instructions, err = e.store.SetSystemInstructions(sessionID, BuildSystemInstructions(sess.Config))
		if err != nil {
			return e.failOut(ctx, sessionID, fmt.Errorf("storing system instructions: %w", err))
		}
	}

	if userUtterance != "" {
		if err := e.store.AppendTurn(ctx, sessionID, session.Turn{Role: session.RoleUser, Text: userUtterance}); err != nil {
			return e.failOut(ctx, sessionID, fmt.Errorf("appending user turn: %w", err))
		}
	}

	for round := 0; round < maxToolRounds; round++ {
		sess, err = e.store.GetByID(sessionID)
		if err != nil {
			return e.failOut(ctx, sessionID, fmt.Errorf("reloading session: %w", err))
		}
		// Cancellation is cooperative: it is observed here, between turns,
		// never mid-request.
		if sess.Status == session.StatusCancelled {
			return e.terminate(ctx, sessionID, goodbyeLine, false)
		}

		shouldEnd := sess.Dialogue.ShouldEnd
		result, err := e.provider.NextTurn(ctx, instructions, sess.Turns, !shouldEnd)
		if err != nil {
			return e.failOut(ctx, sessionID, fmt.Errorf("generating agent turn: %w", err))
		}

		if result.ToolName != "" && !shouldEnd {
			kind, known := ParseToolKind(result.ToolName)
			if !known {
				// Unknown tool names fall through to the utterance path so a
				// hallucinated tool never crashes the call.
				e.logger.Warn(observability.WithFields(ctx,
					observability.Field{Key: "tool", Value: result.ToolName},
				), "Model requested unknown tool, using utterance instead")
			} else {
				e.runTool(ctx, sessionID, kind, result)
				continue
			}
		}

		return e.speak(ctx, sessionID, result.Utterance, shouldEnd)
	}

	return e.failOut(ctx, sessionID, fmt.Errorf("model did not produce an utterance within %d tool rounds", maxToolRounds))
}

// runTool executes one catalog tool and records its outcome as a tool-result
// turn. Failures are absorbed into the transcript so the model can react; the
// engine never retries a tool on the model's behalf.
func (e *Engine) runTool(ctx context.Context, sessionID uuid.UUID, kind ToolKind, result TurnResult) {
	out, err := e.executor.Run(ctx, kind, result.ToolArgs, sessionConfig(e.store, sessionID))
	if err != nil {
		e.logger.Error(observability.WithFields(ctx,
			observability.Field{Key: "tool", Value: string(kind)},
		), "Tool execution failed", err)
		out = fmt.Sprintf(`{"status":"failed","error":%q}`, err.Error())
	} else if kind == ToolEndConversation {
		if markErr := e.store.MarkShouldEnd(sessionID); markErr != nil {
			e.logger.Error(ctx, "Failed to flag conversation end", markErr)
		}
	}

	if appendErr := e.store.AppendTurn(ctx, sessionID, session.Turn{Role: session.RoleToolResult, Text: out}); appendErr != nil {
		e.logger.Error(ctx, "Failed to append tool result turn", appendErr)
	}
}

// speak records the agent utterance and decides whether the call continues.
func (e *Engine) speak(ctx context.Context, sessionID uuid.UUID, utterance string, shouldEnd bool) Reply {
	if shouldEnd {
		if utterance == "" {
			utterance = goodbyeLine
		}
		return e.terminate(ctx, sessionID, utterance, true)
	}
	if utterance == "" {
		// Empty model output mid-conversation gets one reprompt rather than a
		// dead-air hangup.
		utterance = repromptLine
	}

	if err := e.store.AppendTurn(ctx, sessionID, session.Turn{Role: session.RoleAgent, Text: utterance}); err != nil {
		return e.failOut(ctx, sessionID, fmt.Errorf("appending agent turn: %w", err))
	}
	if err := e.store.SetPhase(sessionID, session.PhaseAwaitUser); err != nil {
		return e.failOut(ctx, sessionID, fmt.Errorf("updating dialogue phase: %w", err))
	}
	return Reply{Utterance: utterance}
}

// terminate records the closing line, moves the dialogue to its terminal
// phase, and completes the session when it ended normally.
func (e *Engine) terminate(ctx context.Context, sessionID uuid.UUID, closing string, completed bool) Reply {
	if err := e.store.AppendTurn(ctx, sessionID, session.Turn{Role: session.RoleAgent, Text: closing}); err != nil {
		e.logger.Error(ctx, "Failed to append closing turn", err)
	}
	if err := e.store.SetPhase(sessionID, session.PhaseTerminated); err != nil {
		e.logger.Error(ctx, "Failed to terminate dialogue phase", err)
	}
	if completed {
		if err := e.store.UpdateStatus(ctx, sessionID, session.StatusCompleted); err != nil {
			e.logger.Error(ctx, "Failed to complete session", err)
		}
	}
	return Reply{Utterance: closing, Hangup: true}
}

// failOut fails the session and hands the caller a graceful exit line.
func (e *Engine) failOut(ctx context.Context, sessionID uuid.UUID, err error) Reply {
	e.logger.Error(ctx, "Dialogue failed", err)
	if failErr := e.store.Fail(ctx, sessionID, err.Error()); failErr != nil {
		e.logger.Error(ctx, "Failed to mark session failed", failErr)
	}
	if phaseErr := e.store.SetPhase(sessionID, session.PhaseTerminated); phaseErr != nil {
		e.logger.Error(ctx, "Failed to terminate dialogue phase", phaseErr)
	}
	return Reply{Utterance: apologyLine, Hangup: true}
}

func sessionConfig(store SessionStore, id uuid.UUID) session.Config {
	sess, err := store.GetByID(id)
	if err != nil {
		return session.Config{}
	}
	return sess.Config
}
