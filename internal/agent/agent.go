// Package agent adapts a langchaingo chat model into the reasoning agent the
// orchestrator drives.
//
// The adapter runs a tool-calling loop: the model is queried, any requested
// tools are executed and their output is fed back, until the model answers
// without tools or the step budget runs out.
package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fyrsmithlabs/relay/internal/conversation"
	"github.com/fyrsmithlabs/relay/internal/logging"
	"github.com/fyrsmithlabs/relay/internal/orchestrator"
)

var tracer = otel.Tracer("relay.agent")

// NeedMoreSteps is the answer produced when the step budget runs out while
// the model still requests tools.
const NeedMoreSteps = "Sorry, need more steps to process this request."

var (
	// ErrNilModel is returned by New when no model is supplied.
	ErrNilModel = errors.New("agent: model is required")

	// ErrNoChoices is returned when the model response carries no choices.
	ErrNoChoices = errors.New("agent: model returned no choices")

	// ErrTimeBudgetExhausted is returned when an invocation exceeds MaxExecutionTime.
	ErrTimeBudgetExhausted = errors.New("agent: execution time budget exhausted")
)

// Config holds adapter settings.
type Config struct {
	SystemPrompt     string
	Temperature      float64
	MaxExecutionTime time.Duration

	// RequestsPerSecond throttles model calls. Zero disables throttling.
	RequestsPerSecond float64
}

// Option configures an Agent.
type Option func(*Agent)

// WithObserver sets the progress observer.
func WithObserver(o Observer) Option {
	return func(a *Agent) {
		if o != nil {
			a.observer = o
		}
	}
}

// Agent implements orchestrator.Agent over an llms.Model.
type Agent struct {
	model    llms.Model
	tools    *Registry
	cfg      Config
	limiter  *rate.Limiter
	observer Observer
	logger   *logging.Logger
	metrics  *Metrics
}

var _ orchestrator.Agent = (*Agent)(nil)

// New creates an agent. tools may be nil for a tool-less agent.
func New(model llms.Model, tools *Registry, cfg Config, logger *logging.Logger, opts ...Option) (*Agent, error) {
	if model == nil {
		return nil, ErrNilModel
	}
	if tools == nil {
		tools = &Registry{}
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	a := &Agent{
		model:    model,
		tools:    tools,
		cfg:      cfg,
		limiter:  rate.NewLimiter(limit, 1),
		observer: nopObserver{},
		logger:   logger.Named("agent"),
		metrics:  NewMetrics(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Invoke runs the tool loop over messages. Every model call consumes one step
// of remainingBudget. The returned messages are the input followed by every
// agent and tool message produced.
func (a *Agent) Invoke(ctx context.Context, messages []conversation.Message, remainingBudget int) (*orchestrator.AgentResult, error) {
	if a.cfg.MaxExecutionTime > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.MaxExecutionTime)
		defer cancel()
	}
	ctx, span := tracer.Start(ctx, "agent.invoke",
		trace.WithAttributes(
			attribute.Int("messages", len(messages)),
			attribute.Int("remaining_budget", remainingBudget),
		),
	)
	defer span.End()

	steps := remainingBudget
	if steps < 1 {
		steps = 1
	}

	collector := &fieldCollector{}
	ctx = withFieldCollector(ctx, collector)

	out := make([]conversation.Message, len(messages), len(messages)+2)
	copy(out, messages)
	content := toMessageContent(a.cfg.SystemPrompt, messages)

	for step := 0; ; step++ {
		if step >= steps {
			a.metrics.StepsExhausted.Inc()
			a.logger.Warn(ctx, "step budget exhausted", zap.Int("steps", steps))
			out = append(out, conversation.Agent(NeedMoreSteps))
			break
		}

		choice, err := a.generate(ctx, content)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}

		msg := fromChoice(choice)
		out = append(out, msg)
		content = append(content, aiContent(choice))
		if len(choice.ToolCalls) == 0 {
			break
		}

		for _, call := range choice.ToolCalls {
			name := toolName(call)
			result := a.runTool(ctx, name, call)
			out = append(out, conversation.Message{
				Role:       conversation.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
				Name:       name,
			})
			content = append(content, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: call.ID,
					Name:       name,
					Content:    result,
				}},
			})
		}
	}

	span.SetAttributes(attribute.Int("produced", len(out)-len(messages)))
	return &orchestrator.AgentResult{
		Messages: out,
		Fields:   collector.fields(),
	}, nil
}

func (a *Agent) generate(ctx context.Context, content []llms.MessageContent) (*llms.ContentChoice, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, a.wrapContextErr(ctx, fmt.Errorf("rate limiter: %w", err))
	}

	a.observer.ModelStart(ctx)
	start := time.Now()
	resp, err := a.model.GenerateContent(ctx, content, a.callOptions()...)
	a.metrics.ModelCallDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		a.metrics.ModelCallsTotal.WithLabelValues("error").Inc()
		a.logger.Error(ctx, "model call failed", zap.Error(err))
		return nil, a.wrapContextErr(ctx, fmt.Errorf("model call: %w", err))
	}
	a.observer.ModelEnd(ctx)

	if resp == nil || len(resp.Choices) == 0 {
		a.metrics.ModelCallsTotal.WithLabelValues("error").Inc()
		return nil, ErrNoChoices
	}
	a.metrics.ModelCallsTotal.WithLabelValues("ok").Inc()
	choice := resp.Choices[0]
	a.logger.Debug(ctx, "model responded",
		zap.Int("tool_calls", len(choice.ToolCalls)),
		zap.String("stop_reason", choice.StopReason),
	)
	return choice, nil
}

func (a *Agent) wrapContextErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s: %w", ErrTimeBudgetExhausted, a.cfg.MaxExecutionTime, err)
	}
	return err
}

func (a *Agent) callOptions() []llms.CallOption {
	opts := []llms.CallOption{llms.WithTemperature(a.cfg.Temperature)}
	if defs := a.tools.Definitions(); len(defs) > 0 {
		opts = append(opts, llms.WithTools(defs))
	}
	return opts
}

// runTool executes one tool call. Failures are returned to the model as text.
func (a *Agent) runTool(ctx context.Context, name string, call llms.ToolCall) string {
	ctx, span := tracer.Start(ctx, "agent.tool", trace.WithAttributes(attribute.String("tool", name)))
	defer span.End()

	a.observer.ToolStart(ctx, name)
	args := ""
	if call.FunctionCall != nil {
		args = call.FunctionCall.Arguments
	}

	label := name
	if _, ok := a.tools.Get(name); !ok {
		label = "unknown"
	}

	out, err := a.tools.Execute(ctx, name, args)
	a.observer.ToolEnd(ctx, name, err)
	if err != nil {
		a.metrics.ToolCallsTotal.WithLabelValues(label, "error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		a.logger.Warn(ctx, "tool failed", zap.String("tool", name), zap.Error(err))
		return "Error: " + err.Error()
	}
	a.metrics.ToolCallsTotal.WithLabelValues(label, "ok").Inc()
	return out
}

func toolName(call llms.ToolCall) string {
	if call.FunctionCall == nil {
		return ""
	}
	return call.FunctionCall.Name
}
