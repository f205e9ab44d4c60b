package orchestrator

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/relay/internal/conversation"
)

var (
	// ErrNilAgent is returned by New when no agent is supplied.
	ErrNilAgent = errors.New("orchestrator: agent is required")

	// ErrInvalidBudget is returned by New for a non-positive iteration budget.
	ErrInvalidBudget = errors.New("orchestrator: iteration budget must be positive")
)

// Agent is the reasoning agent the orchestrator drives.
type Agent interface {
	// Invoke runs the agent over messages. remainingBudget is the number of
	// iterations left in the current turn sequence. The returned messages
	// include the input followed by whatever the agent produced.
	Invoke(ctx context.Context, messages []conversation.Message, remainingBudget int) (*AgentResult, error)
}

// AgentResult is what an Agent produced for one invocation.
type AgentResult struct {
	Messages []conversation.Message

	// Fields carries context values the agent established during the
	// invocation. Nil fields leave the prior values untouched.
	Fields ContextFields
}

// ConversationLog records every (question, answer) pair, including empty answers.
type ConversationLog interface {
	Append(ctx context.Context, question, answer string) error
}

// State is everything carried from one iteration to the next.
type State struct {
	History        conversation.History
	Fields         ContextFields
	IterationCount int
	LastAnswer     string
}

// TerminationReason explains why Run stopped.
type TerminationReason string

const (
	// ReasonSingleShot marks a Step, which always stops after one iteration.
	ReasonSingleShot TerminationReason = "single_shot"
	// ReasonCompletion means the answer contained a completion phrase.
	ReasonCompletion TerminationReason = "completion_phrase"
	// ReasonBudget means the iteration budget was reached.
	ReasonBudget TerminationReason = "budget_exhausted"
)

// IterationProgress is reported after every committed iteration.
type IterationProgress struct {
	Iteration int
	Budget    int
	Answer    string
	Confirmed bool
	Done      bool
	Reason    TerminationReason
}

// ProgressCallback receives progress updates during Run and Step.
type ProgressCallback func(progress IterationProgress)
