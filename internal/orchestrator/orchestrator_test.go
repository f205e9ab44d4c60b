package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/fyrsmithlabs/relay/internal/conversation"
	"github.com/fyrsmithlabs/relay/internal/logging"
)

const sentinel = "Confirmação do usuário: aceitou a última sugestão do agente."

// MockAgent is a mock implementation of Agent
type MockAgent struct {
	mock.Mock
}

func (m *MockAgent) Invoke(ctx context.Context, messages []conversation.Message, remainingBudget int) (*AgentResult, error) {
	args := m.Called(ctx, messages, remainingBudget)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*AgentResult), args.Error(1)
}

// MockConversationLog is a mock implementation of ConversationLog
type MockConversationLog struct {
	mock.Mock
}

func (m *MockConversationLog) Append(ctx context.Context, question, answer string) error {
	args := m.Called(ctx, question, answer)
	return args.Error(0)
}

func testVocabulary() Vocabulary {
	return Vocabulary{
		ConfirmationTokens:   []string{"sim", "sim.", "claro", "prossiga", "yes", "go ahead"},
		CompletionPhrases:    []string{"planning complete", "decision recorded", "all set"},
		ConfirmationSentinel: sentinel,
		FieldLabels: map[FieldKey]string{
			FieldTaskID:   "Tarefa atual",
			FieldUseCase:  "Caso de uso",
			FieldPriority: "Prioridade",
		},
		Delimiter: " | ",
	}
}

func newTestOrchestrator(t *testing.T, agent Agent, log ConversationLog, budget int) *Orchestrator {
	t.Helper()
	o, err := New(agent, log, Config{IterationBudget: budget, Vocabulary: testVocabulary()}, logging.NewTestLogger().Logger)
	require.NoError(t, err)
	return o
}

func answer(text string) *AgentResult {
	return &AgentResult{Messages: []conversation.Message{conversation.Agent(text)}}
}

func allowLog() *MockConversationLog {
	log := new(MockConversationLog)
	log.On("Append", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	return log
}

func strPtr(s string) *string { return &s }

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, nil, Config{IterationBudget: 1}, nil)
	assert.ErrorIs(t, err, ErrNilAgent)

	for _, budget := range []int{0, -1} {
		_, err = New(new(MockAgent), nil, Config{IterationBudget: budget}, nil)
		assert.ErrorIs(t, err, ErrInvalidBudget)
	}
}

func TestStep_EmptyContextSendsOnlyHumanMessage(t *testing.T) {
	agent := new(MockAgent)
	log := allowLog()
	input := "Crie um plano para a tarefa T6"

	agent.On("Invoke", mock.Anything, []conversation.Message{conversation.Human(input)}, 5).
		Return(answer("Plano criado. Deseja que eu detalhe as etapas?"), nil).Once()

	o := newTestOrchestrator(t, agent, log, 5)
	state, err := o.Step(context.Background(), input, State{})
	require.NoError(t, err)

	agent.AssertExpectations(t)
	log.AssertCalled(t, "Append", mock.Anything, input, "Plano criado. Deseja que eu detalhe as etapas?")
	assert.Equal(t, 1, state.IterationCount)
	assert.Equal(t, "Plano criado. Deseja que eu detalhe as etapas?", state.LastAnswer)
	assert.Equal(t, []conversation.Message{
		conversation.Human(input),
		conversation.Agent("Plano criado. Deseja que eu detalhe as etapas?"),
	}, state.History.Messages())
}

func TestStep_ConfirmationInjectsContextAndSentinel(t *testing.T) {
	agent := new(MockAgent)
	prior := State{
		History: conversation.NewHistory(
			conversation.Human("Crie um plano para a tarefa T6"),
			conversation.Agent("Posso gerar o plano no formato de tópicos?"),
		),
		Fields: ContextFields{TaskID: strPtr("T6"), Priority: strPtr("alta")},
	}

	want := []conversation.Message{
		conversation.SystemContext("Tarefa atual: T6 | Prioridade: alta | " + sentinel),
		conversation.Human("Crie um plano para a tarefa T6"),
		conversation.Agent("Posso gerar o plano no formato de tópicos?"),
		conversation.Human("sim"),
	}
	agent.On("Invoke", mock.Anything, want, 3).Return(answer("Feito."), nil).Once()

	o := newTestOrchestrator(t, agent, allowLog(), 3)
	state, err := o.Step(context.Background(), "sim", prior)
	require.NoError(t, err)
	agent.AssertExpectations(t)

	assert.Equal(t, 4, state.History.Len())
	assert.Equal(t, 2, prior.History.Len(), "prior history must not be mutated")
}

func TestBuildMessages(t *testing.T) {
	o := newTestOrchestrator(t, new(MockAgent), nil, 3)

	questionHistory := conversation.NewHistory(conversation.Agent("Quer continuar?"))
	statementHistory := conversation.NewHistory(conversation.Agent("Plano salvo."))
	fields := ContextFields{UseCase: strPtr("usc_04_142")}

	tests := []struct {
		name          string
		input         string
		state         State
		wantSystem    string
		wantConfirmed bool
	}{
		{
			name:          "confirmation without context",
			input:         "  SIM ",
			state:         State{History: questionHistory},
			wantSystem:    sentinel,
			wantConfirmed: true,
		},
		{
			name:       "confirmation token after a statement",
			input:      "sim",
			state:      State{History: statementHistory, Fields: fields},
			wantSystem: "Caso de uso: usc_04_142",
		},
		{
			name:  "confirmation with no agent message",
			input: "sim",
			state: State{History: conversation.NewHistory(conversation.Human("oi"))},
		},
		{
			name:  "non-token reply to a question",
			input: "sim, mas mude o prazo",
			state: State{History: questionHistory},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, confirmed := o.BuildMessages(tt.input, tt.state)
			assert.Equal(t, tt.wantConfirmed, confirmed)

			require.NotEmpty(t, msgs)
			assert.Equal(t, conversation.Human(tt.input), msgs[len(msgs)-1])
			if tt.wantSystem == "" {
				assert.NotEqual(t, conversation.RoleSystemContext, msgs[0].Role)
				assert.Len(t, msgs, tt.state.History.Len()+1)
				return
			}
			assert.Equal(t, conversation.SystemContext(tt.wantSystem), msgs[0])
			assert.Len(t, msgs, tt.state.History.Len()+2)
		})
	}
}

func TestRun_BudgetExhaustionResubmitsOriginalInput(t *testing.T) {
	agent := new(MockAgent)
	log := allowLog()
	input := "Migre a tela de pesquisa"

	agent.On("Invoke", mock.Anything, mock.Anything, mock.Anything).
		Return(answer("Continuando a migração."), nil)

	o := newTestOrchestrator(t, agent, log, 3)
	state, err := o.Run(context.Background(), input, State{})
	require.NoError(t, err)

	assert.Equal(t, 3, state.IterationCount)
	agent.AssertNumberOfCalls(t, "Invoke", 3)
	log.AssertNumberOfCalls(t, "Append", 3)
	assert.Equal(t, 6, state.History.Len())

	for i, call := range agent.Calls {
		msgs := call.Arguments.Get(1).([]conversation.Message)
		assert.Equal(t, conversation.Human(input), msgs[len(msgs)-1],
			"iteration %d must re-submit the original input", i+1)
		assert.Equal(t, 3-i, call.Arguments.Int(2), "remaining budget at iteration %d", i+1)
		assert.Len(t, msgs, 2*i+1, "iteration %d sees the answers committed before it", i+1)
	}
}

func TestRun_StopsOnCompletionPhrase(t *testing.T) {
	agent := new(MockAgent)
	agent.On("Invoke", mock.Anything, mock.Anything, 10).Return(answer("Etapa 1 feita."), nil).Once()
	agent.On("Invoke", mock.Anything, mock.Anything, 9).Return(answer("Tudo certo: PLANNING COMPLETE."), nil).Once()

	var progress []IterationProgress
	o := newTestOrchestrator(t, agent, allowLog(), 10)
	o.OnProgress(func(p IterationProgress) { progress = append(progress, p) })

	state, err := o.Run(context.Background(), "planeje T6", State{})
	require.NoError(t, err)
	agent.AssertExpectations(t)

	assert.Equal(t, 2, state.IterationCount)
	assert.Equal(t, "Tudo certo: PLANNING COMPLETE.", state.LastAnswer)
	require.Len(t, progress, 2)
	assert.False(t, progress[0].Done)
	assert.True(t, progress[1].Done)
	assert.Equal(t, ReasonCompletion, progress[1].Reason)
}

func TestRun_BudgetOfOne(t *testing.T) {
	agent := new(MockAgent)
	agent.On("Invoke", mock.Anything, mock.Anything, 1).Return(answer("ok"), nil).Once()

	var last IterationProgress
	o := newTestOrchestrator(t, agent, nil, 1)
	o.OnProgress(func(p IterationProgress) { last = p })

	state, err := o.Run(context.Background(), "go", State{IterationCount: 7})
	require.NoError(t, err)
	assert.Equal(t, 1, state.IterationCount, "count resets at the start of a turn sequence")
	assert.Equal(t, ReasonBudget, last.Reason)
}

func TestStep_AgentErrorCommitsNothing(t *testing.T) {
	agent := new(MockAgent)
	log := new(MockConversationLog)
	boom := errors.New("connection reset")
	agent.On("Invoke", mock.Anything, mock.Anything, mock.Anything).Return(nil, boom)

	prior := State{
		History:        conversation.NewHistory(conversation.Human("a"), conversation.Agent("b")),
		Fields:         ContextFields{TaskID: strPtr("T1")},
		IterationCount: 4,
		LastAnswer:     "b",
	}

	o := newTestOrchestrator(t, agent, log, 5)
	state, err := o.Step(context.Background(), "c", prior)

	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, prior, state)
	log.AssertNotCalled(t, "Append", mock.Anything, mock.Anything, mock.Anything)
}

func TestRun_ErrorKeepsCompletedIterations(t *testing.T) {
	agent := new(MockAgent)
	boom := errors.New("timeout")
	agent.On("Invoke", mock.Anything, mock.Anything, 5).Return(answer("first"), nil).Once()
	agent.On("Invoke", mock.Anything, mock.Anything, 4).Return(nil, boom).Once()

	o := newTestOrchestrator(t, agent, allowLog(), 5)
	state, err := o.Run(context.Background(), "x", State{})

	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, state.IterationCount)
	assert.Equal(t, "first", state.LastAnswer)
	assert.Equal(t, 2, state.History.Len())
}

func TestStep_EmptyAnswerIsNotAnError(t *testing.T) {
	agent := new(MockAgent)
	log := allowLog()
	agent.On("Invoke", mock.Anything, mock.Anything, mock.Anything).
		Return(&AgentResult{Messages: []conversation.Message{conversation.Human("q")}}, nil)

	o := newTestOrchestrator(t, agent, log, 2)
	state, err := o.Step(context.Background(), "q", State{})
	require.NoError(t, err)

	assert.Equal(t, "", state.LastAnswer)
	assert.Equal(t, []conversation.Message{conversation.Human("q")}, state.History.Messages())
	log.AssertCalled(t, "Append", mock.Anything, "q", "")
}

func TestStep_NilResultIsEmptyAnswer(t *testing.T) {
	agent := new(MockAgent)
	agent.On("Invoke", mock.Anything, mock.Anything, mock.Anything).Return((*AgentResult)(nil), nil)

	o := newTestOrchestrator(t, agent, nil, 2)
	state, err := o.Step(context.Background(), "q", State{})
	require.NoError(t, err)
	assert.Equal(t, 1, state.History.Len())
}

func TestStep_HistoryLengthAfterTurns(t *testing.T) {
	// answers[i] == "" means the agent produced no message on turn i.
	answers := []string{"a1", "", "a3", "", "", "a6"}

	agent := new(MockAgent)
	for _, a := range answers {
		result := &AgentResult{}
		if a != "" {
			result.Messages = []conversation.Message{conversation.Agent(a)}
		}
		agent.On("Invoke", mock.Anything, mock.Anything, mock.Anything).Return(result, nil).Once()
	}

	o := newTestOrchestrator(t, agent, nil, 3)
	state := State{}
	empty := 0
	for _, a := range answers {
		var err error
		state, err = o.Step(context.Background(), "next", state)
		require.NoError(t, err)
		if a == "" {
			empty++
		}
	}

	assert.Equal(t, 2*len(answers)-empty, state.History.Len())
}

func TestStep_MergesAgentFields(t *testing.T) {
	agent := new(MockAgent)
	agent.On("Invoke", mock.Anything, mock.Anything, mock.Anything).Return(&AgentResult{
		Messages: []conversation.Message{conversation.Agent("ok")},
		Fields:   ContextFields{Priority: strPtr("alta"), UseCase: strPtr("usc_04_142")},
	}, nil).Once()
	agent.On("Invoke", mock.Anything, mock.Anything, mock.Anything).Return(&AgentResult{
		Messages: []conversation.Message{conversation.Agent("ok")},
		Fields:   ContextFields{Priority: strPtr("baixa")},
	}, nil).Once()
	agent.On("Invoke", mock.Anything, mock.Anything, mock.Anything).Return(answer("ok"), nil).Once()

	o := newTestOrchestrator(t, agent, nil, 3)
	state := State{Fields: ContextFields{TaskID: strPtr("T6")}}

	var err error
	for i := 0; i < 3; i++ {
		state, err = o.Step(context.Background(), "go", state)
		require.NoError(t, err)
	}

	got := func(k FieldKey) string { v, _ := state.Fields.Get(k); return v }
	assert.Equal(t, "T6", got(FieldTaskID))
	assert.Equal(t, "baixa", got(FieldPriority))
	assert.Equal(t, "usc_04_142", got(FieldUseCase))
}

func TestStep_LogFailureDoesNotAbort(t *testing.T) {
	agent := new(MockAgent)
	agent.On("Invoke", mock.Anything, mock.Anything, mock.Anything).Return(answer("ok"), nil)
	log := new(MockConversationLog)
	log.On("Append", mock.Anything, "q", "ok").Return(errors.New("disk full"))

	tl := logging.NewTestLogger()
	o, err := New(agent, log, Config{IterationBudget: 2, Vocabulary: testVocabulary()}, tl.Logger)
	require.NoError(t, err)

	state, err := o.Step(context.Background(), "q", State{})
	require.NoError(t, err)
	assert.Equal(t, "ok", state.LastAnswer)
	tl.AssertLogged(t, zapcore.WarnLevel, "failed to record exchange")
}

func TestStep_ProgressReportsSingleShot(t *testing.T) {
	agent := new(MockAgent)
	agent.On("Invoke", mock.Anything, mock.Anything, mock.Anything).Return(answer("all set"), nil)

	var got []IterationProgress
	o := newTestOrchestrator(t, agent, nil, 4)
	o.OnProgress(func(p IterationProgress) { got = append(got, p) })

	_, err := o.Step(context.Background(), "q", State{})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, IterationProgress{Iteration: 1, Budget: 4, Answer: "all set", Done: true, Reason: ReasonSingleShot}, got[0])
}
