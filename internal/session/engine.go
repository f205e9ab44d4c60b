// Package session drives user turns through the orchestrator and keeps the
// conversation state between them.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/relay/internal/journal"
	"github.com/fyrsmithlabs/relay/internal/logging"
	"github.com/fyrsmithlabs/relay/internal/orchestrator"
	"github.com/fyrsmithlabs/relay/internal/touched"
)

// ErrEmptyInput is returned by Turn for blank input.
var ErrEmptyInput = errors.New("session: empty input")

// Runner executes orchestrator turns. *orchestrator.Orchestrator implements it.
type Runner interface {
	Step(ctx context.Context, input string, prior orchestrator.State) (orchestrator.State, error)
	Run(ctx context.Context, input string, prior orchestrator.State) (orchestrator.State, error)
}

// Recorder persists finished turns. *journal.Store implements it.
type Recorder interface {
	RecordTurn(ctx context.Context, t journal.Turn) (int64, error)
}

// Config holds engine settings.
type Config struct {
	// SessionID identifies the session in logs and the journal. Generated when empty.
	SessionID string

	// Autonomous selects Run instead of Step for every turn.
	Autonomous bool

	// Seed pre-populates the context fields, for example from a resumed session.
	Seed orchestrator.ContextFields
}

// TurnResult is what one user turn produced.
type TurnResult struct {
	TurnID     string
	Answer     string
	Iterations int
	Fields     orchestrator.ContextFields

	// Files are the paths written during the turn, sorted.
	Files []string
}

// Engine owns the conversation state of one session. Turns are serialised.
type Engine struct {
	mu         sync.Mutex
	runner     Runner
	recorder   Recorder
	sessionID  string
	autonomous bool
	state      orchestrator.State
	logger     *logging.Logger
	metrics    *Metrics
}

// NewEngine creates an engine. recorder may be nil.
func NewEngine(runner Runner, recorder Recorder, cfg Config, logger *logging.Logger) (*Engine, error) {
	if runner == nil {
		return nil, errors.New("session: runner is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	id := cfg.SessionID
	if id == "" {
		id = uuid.NewString()
	}
	if !logging.ValidID(id) {
		return nil, fmt.Errorf("session: invalid session id %q", id)
	}
	return &Engine{
		runner:     runner,
		recorder:   recorder,
		sessionID:  id,
		autonomous: cfg.Autonomous,
		state:      orchestrator.State{Fields: cfg.Seed},
		logger:     logger.Named("session"),
		metrics:    NewMetrics(),
	}, nil
}

// SessionID returns the session identifier.
func (e *Engine) SessionID() string {
	return e.sessionID
}

// State returns a snapshot of the conversation state.
func (e *Engine) State() orchestrator.State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Turn runs one user turn. On failure the state committed before the failure
// is kept, the files written so far are still reported and the partial turn
// is journaled when it made progress.
func (e *Engine) Turn(ctx context.Context, input string) (TurnResult, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return TurnResult{}, ErrEmptyInput
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	turnID := uuid.NewString()
	ctx = logging.WithSessionID(ctx, e.sessionID)
	ctx = logging.WithTurnID(ctx, turnID)
	files := touched.New()
	ctx = touched.WithSet(ctx, files)

	mode := "interactive"
	run := e.runner.Step
	if e.autonomous {
		mode = "autonomous"
		run = e.runner.Run
	}

	prior := e.state
	start := time.Now()
	next, err := run(ctx, input, prior)
	e.metrics.TurnDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
	e.state = next

	result := TurnResult{
		TurnID:     turnID,
		Answer:     next.LastAnswer,
		Iterations: next.IterationCount,
		Fields:     next.Fields,
		Files:      files.Sorted(),
	}
	e.metrics.FilesTouched.Add(float64(len(result.Files)))

	if err != nil {
		e.metrics.TurnsTotal.WithLabelValues(mode, "error").Inc()
		e.logger.Error(ctx, "turn failed", zap.Error(err))
		// Iterations committed before the failure and files already written
		// still belong in the journal.
		if next.History.Len() > prior.History.Len() || len(result.Files) > 0 {
			e.record(ctx, input, result)
		}
		return result, fmt.Errorf("turn failed: %w", err)
	}
	e.metrics.TurnsTotal.WithLabelValues(mode, "ok").Inc()
	e.record(ctx, input, result)

	e.logger.Info(ctx, "turn completed",
		zap.Int("iterations", result.Iterations),
		zap.Int("files", len(result.Files)),
	)
	return result, nil
}

func (e *Engine) record(ctx context.Context, input string, result TurnResult) {
	if e.recorder == nil {
		return
	}
	_, err := e.recorder.RecordTurn(ctx, journal.Turn{
		SessionID:  e.sessionID,
		Question:   input,
		Answer:     result.Answer,
		Iterations: result.Iterations,
		Fields:     result.Fields,
		Files:      result.Files,
	})
	if err != nil {
		e.logger.Warn(ctx, "failed to record turn", zap.Error(err))
	}
}
