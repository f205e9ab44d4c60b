package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/relay/internal/conversation"
	"github.com/fyrsmithlabs/relay/internal/logging"
)

var tracer = otel.Tracer("relay.orchestrator")

// Config holds orchestrator settings.
type Config struct {
	// IterationBudget caps agent invocations per turn sequence.
	IterationBudget int
	Vocabulary      Vocabulary
}

// Orchestrator runs turns against an Agent.
type Orchestrator struct {
	agent    Agent
	log      ConversationLog
	detector *ConfirmationDetector
	vocab    Vocabulary
	budget   int
	logger   *logging.Logger
	metrics  *Metrics
	progress ProgressCallback
}

// New creates an orchestrator. log may be nil, in which case exchanges are
// not recorded.
func New(agent Agent, log ConversationLog, cfg Config, logger *logging.Logger) (*Orchestrator, error) {
	if agent == nil {
		return nil, ErrNilAgent
	}
	if cfg.IterationBudget <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidBudget, cfg.IterationBudget)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Orchestrator{
		agent:    agent,
		log:      log,
		detector: NewConfirmationDetector(cfg.Vocabulary.ConfirmationTokens),
		vocab:    cfg.Vocabulary,
		budget:   cfg.IterationBudget,
		logger:   logger.Named("orchestrator"),
		metrics:  NewMetrics(),
	}, nil
}

// OnProgress sets the progress callback.
func (o *Orchestrator) OnProgress(callback ProgressCallback) {
	o.progress = callback
}

// Budget returns the iteration budget.
func (o *Orchestrator) Budget() int {
	return o.budget
}

// Step runs exactly one iteration for input. The iteration count is reset,
// so the returned State has IterationCount 1 on success. On error the prior
// State is returned unchanged.
func (o *Orchestrator) Step(ctx context.Context, input string, prior State) (State, error) {
	state := prior
	state.IterationCount = 0

	next, confirmed, err := o.iterate(ctx, input, state)
	if err != nil {
		return prior, err
	}
	next.IterationCount = 1
	o.finish(ctx, next, confirmed, ReasonSingleShot)
	return next, nil
}

// Run iterates on input until the answer contains a completion phrase or
// the iteration budget is reached.
//
// Every iteration re-submits the original input; the agent sees its own
// previous answers through the history. If an iteration fails, Run returns
// the State committed by the iterations before it along with the error.
func (o *Orchestrator) Run(ctx context.Context, input string, prior State) (State, error) {
	state := prior
	state.IterationCount = 0

	for {
		next, confirmed, err := o.iterate(ctx, input, state)
		if err != nil {
			if state.IterationCount == 0 {
				return prior, err
			}
			return state, err
		}

		reason, done := o.shouldTerminate(next.LastAnswer, state.IterationCount)
		next.IterationCount = state.IterationCount + 1
		state = next

		if done {
			o.finish(ctx, state, confirmed, reason)
			return state, nil
		}
		o.report(IterationProgress{
			Iteration: state.IterationCount,
			Budget:    o.budget,
			Answer:    state.LastAnswer,
			Confirmed: confirmed,
		})
	}
}

// BuildMessages returns the message list an iteration would send for input,
// and whether input was detected as a confirmation.
func (o *Orchestrator) BuildMessages(input string, state State) ([]conversation.Message, bool) {
	var lastAgent *conversation.Message
	if m, ok := state.History.LastByRole(conversation.RoleAgent); ok {
		lastAgent = &m
	}
	confirmed := o.detector.IsConfirmation(input, lastAgent)

	var parts []string
	if line := RenderContextLine(state.Fields, o.vocab); line != "" {
		parts = append(parts, line)
	}
	if confirmed && o.vocab.ConfirmationSentinel != "" {
		parts = append(parts, o.vocab.ConfirmationSentinel)
	}

	msgs := make([]conversation.Message, 0, state.History.Len()+2)
	if len(parts) > 0 {
		msgs = append(msgs, conversation.SystemContext(strings.Join(parts, o.vocab.delimiter())))
	}
	msgs = append(msgs, state.History.Messages()...)
	msgs = append(msgs, conversation.Human(input))
	return msgs, confirmed
}

// iterate performs one agent invocation and returns the resulting State.
// IterationCount is left for the caller to advance.
func (o *Orchestrator) iterate(ctx context.Context, input string, state State) (State, bool, error) {
	iteration := state.IterationCount + 1
	ctx = logging.WithIteration(ctx, iteration)
	ctx, span := tracer.Start(ctx, "orchestrator.iteration",
		trace.WithAttributes(
			attribute.Int("iteration", iteration),
			attribute.Int("budget", o.budget),
			attribute.Int("history.len", state.History.Len()),
		),
	)
	defer span.End()

	msgs, confirmed := o.BuildMessages(input, state)
	if confirmed {
		o.metrics.ConfirmationsTotal.Inc()
	}
	span.SetAttributes(attribute.Bool("confirmed", confirmed), attribute.Int("messages", len(msgs)))
	o.logger.Debug(ctx, "invoking agent",
		zap.Int("messages", len(msgs)),
		zap.Bool("confirmed", confirmed),
		zap.Int("remaining_budget", o.budget-state.IterationCount),
	)

	start := time.Now()
	result, err := o.agent.Invoke(ctx, msgs, o.budget-state.IterationCount)
	o.metrics.AgentDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		o.metrics.IterationsTotal.WithLabelValues("error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.logger.Error(ctx, "agent invocation failed", zap.Error(err))
		return state, false, fmt.Errorf("agent invocation (iteration %d): %w", iteration, err)
	}

	var (
		produced []conversation.Message
		update   ContextFields
	)
	if result != nil {
		produced = result.Messages
		update = result.Fields
	}

	history := state.History.Append(conversation.Human(input))
	answer := ""
	if m, ok := conversation.LastMatching(produced, conversation.IsRole(conversation.RoleAgent)); ok {
		answer = m.Content
		history = history.Append(conversation.Agent(answer))
	} else {
		o.metrics.EmptyAnswersTotal.Inc()
		o.logger.Warn(ctx, "agent produced no message")
	}

	next := State{
		History:        history,
		Fields:         state.Fields.Merge(update),
		IterationCount: state.IterationCount,
		LastAnswer:     answer,
	}

	if o.log != nil {
		if err := o.log.Append(ctx, input, answer); err != nil {
			o.logger.Warn(ctx, "failed to record exchange", zap.Error(err))
		}
	}

	o.metrics.IterationsTotal.WithLabelValues("ok").Inc()
	span.SetAttributes(attribute.Int("answer.len", len(answer)))
	o.logger.Info(ctx, "iteration completed",
		zap.Int("answer_len", len(answer)),
		zap.Strings("fields_updated", keysOf(update.Established())),
	)
	return next, confirmed, nil
}

// shouldTerminate decides whether Run stops after the iteration that
// produced answer, given the count before that iteration.
func (o *Orchestrator) shouldTerminate(answer string, countBefore int) (TerminationReason, bool) {
	lower := strings.ToLower(answer)
	for _, phrase := range o.vocab.CompletionPhrases {
		if phrase != "" && strings.Contains(lower, strings.ToLower(phrase)) {
			return ReasonCompletion, true
		}
	}
	if countBefore+1 >= o.budget {
		return ReasonBudget, true
	}
	return "", false
}

func (o *Orchestrator) finish(ctx context.Context, state State, confirmed bool, reason TerminationReason) {
	o.metrics.TerminationsTotal.WithLabelValues(string(reason)).Inc()
	o.logger.Info(ctx, "turn finished",
		zap.String("reason", string(reason)),
		zap.Int("iterations", state.IterationCount),
	)
	o.report(IterationProgress{
		Iteration: state.IterationCount,
		Budget:    o.budget,
		Answer:    state.LastAnswer,
		Confirmed: confirmed,
		Done:      true,
		Reason:    reason,
	})
}

func (o *Orchestrator) report(p IterationProgress) {
	if o.progress != nil {
		o.progress(p)
	}
}

func keysOf(keys []FieldKey) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = string(k)
	}
	return out
}
