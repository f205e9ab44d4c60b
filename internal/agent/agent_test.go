package agent

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/fyrsmithlabs/relay/internal/alias"
	"github.com/fyrsmithlabs/relay/internal/conversation"
	"github.com/fyrsmithlabs/relay/internal/touched"
)

// scriptedModel replays canned responses and records every request.
type scriptedModel struct {
	mu        sync.Mutex
	responses []*llms.ContentResponse
	err       error
	block     bool
	requests  [][]llms.MessageContent
	options   []llms.CallOptions
}

func (m *scriptedModel) GenerateContent(ctx context.Context, msgs []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	var opts llms.CallOptions
	for _, o := range options {
		o(&opts)
	}

	m.mu.Lock()
	m.requests = append(m.requests, append([]llms.MessageContent(nil), msgs...))
	m.options = append(m.options, opts)
	m.mu.Unlock()

	if m.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if m.err != nil {
		return nil, m.err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.responses) == 0 {
		return nil, errors.New("script exhausted")
	}
	resp := m.responses[0]
	if len(m.responses) > 1 {
		m.responses = m.responses[1:]
	}
	return resp, nil
}

func (m *scriptedModel) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("not supported")
}

func text(content string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: content, StopReason: "stop"}}}
}

func toolCall(id, name, args string) *llms.ContentResponse {
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{
		ToolCalls: []llms.ToolCall{{
			ID:           id,
			Type:         "function",
			FunctionCall: &llms.FunctionCall{Name: name, Arguments: args},
		}},
	}}}
}

func newTestAgent(t *testing.T, model llms.Model, resolver *alias.Resolver, opts ...Option) *Agent {
	t.Helper()
	registry, err := NewRegistry(DefaultTools(resolver, 100)...)
	require.NoError(t, err)
	a, err := New(model, registry, Config{SystemPrompt: "You coordinate migrations."}, nil, opts...)
	require.NoError(t, err)
	return a
}

func TestNew_NilModel(t *testing.T) {
	_, err := New(nil, nil, Config{}, nil)
	assert.ErrorIs(t, err, ErrNilModel)
}

func TestInvoke_PlainAnswer(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{text("Plano criado.")}}
	a := newTestAgent(t, model, nil)

	in := []conversation.Message{
		conversation.SystemContext("Tarefa atual: T6"),
		conversation.Human("Crie um plano"),
	}
	res, err := a.Invoke(context.Background(), in, 5)
	require.NoError(t, err)

	require.Len(t, res.Messages, 3)
	assert.Equal(t, in, res.Messages[:2])
	assert.Equal(t, conversation.Agent("Plano criado."), res.Messages[2])
	assert.True(t, res.Fields.IsEmpty())

	require.Len(t, model.requests, 1)
	req := model.requests[0]
	require.Len(t, req, 3)
	assert.Equal(t, llms.ChatMessageTypeSystem, req[0].Role)
	assert.Equal(t, llms.TextContent{Text: "You coordinate migrations."}, req[0].Parts[0])
	assert.Equal(t, llms.ChatMessageTypeSystem, req[1].Role)
	assert.Equal(t, llms.ChatMessageTypeHuman, req[2].Role)

	require.Len(t, model.options[0].Tools, 6)
	assert.Equal(t, "update_task_context", model.options[0].Tools[0].Function.Name)
}

func TestInvoke_WriteFileRecordsTouchedPath(t *testing.T) {
	dir := t.TempDir()
	resolver := alias.NewResolver(map[string]string{"backend_laravel": dir}, nil,
		map[string][]string{"backend_laravel": {"laravel"}}, nil)

	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCall("call_1", "write_file", `{"path":"laravel:app/Plan.md","content":"# Plan"}`),
		text("Arquivo criado."),
	}}
	a := newTestAgent(t, model, resolver)

	set := touched.New()
	ctx := touched.WithSet(context.Background(), set)
	res, err := a.Invoke(ctx, []conversation.Message{conversation.Human("escreva o plano")}, 5)
	require.NoError(t, err)

	written := filepath.Join(dir, "app", "Plan.md")
	data, err := os.ReadFile(written)
	require.NoError(t, err)
	assert.Equal(t, "# Plan", string(data))
	assert.Equal(t, []string{written}, set.Sorted())

	require.Len(t, res.Messages, 4)
	assert.Equal(t, conversation.RoleAgent, res.Messages[1].Role)
	require.Len(t, res.Messages[1].ToolCalls, 1)
	assert.Equal(t, "write_file", res.Messages[1].ToolCalls[0].Name)
	assert.Equal(t, conversation.RoleTool, res.Messages[2].Role)
	assert.Equal(t, "call_1", res.Messages[2].ToolCallID)
	assert.Contains(t, res.Messages[2].Content, "File written")
	assert.Equal(t, conversation.Agent("Arquivo criado."), res.Messages[3])

	require.Len(t, model.requests, 2)
	second := model.requests[1]
	last := second[len(second)-1]
	assert.Equal(t, llms.ChatMessageTypeTool, last.Role)
	resp, ok := last.Parts[0].(llms.ToolCallResponse)
	require.True(t, ok)
	assert.Equal(t, "call_1", resp.ToolCallID)
}

func TestInvoke_UpdateContextCollectsFields(t *testing.T) {
	resolver := alias.NewResolver(nil, nil, nil, map[string][]string{"usc_04_143": {"usc 04.143", "consulta"}})
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCall("c1", "update_task_context", `{"task_id":"T6","use_case":"USC-04.143"}`),
		toolCall("c2", "update_task_context", `{"priority":"alta"}`),
		text("Contexto registrado."),
	}}
	a := newTestAgent(t, model, resolver)

	res, err := a.Invoke(context.Background(), []conversation.Message{conversation.Human("T6")}, 5)
	require.NoError(t, err)

	v, ok := res.Fields.Get("task_id")
	require.True(t, ok)
	assert.Equal(t, "T6", v)
	v, _ = res.Fields.Get("use_case")
	assert.Equal(t, "usc_04_143", v)
	v, _ = res.Fields.Get("priority")
	assert.Equal(t, "alta", v)
}

func TestInvoke_StepBudgetExhausted(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCall("c1", "list_projects", `{}`),
	}}
	a := newTestAgent(t, model, nil)

	res, err := a.Invoke(context.Background(), []conversation.Message{conversation.Human("loop")}, 2)
	require.NoError(t, err)

	assert.Len(t, model.requests, 2, "each model call consumes one step")
	last := res.Messages[len(res.Messages)-1]
	assert.Equal(t, conversation.Agent(NeedMoreSteps), last)
}

func TestInvoke_ToolErrorsAreFedBack(t *testing.T) {
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCall("c1", "delete_everything", `{}`),
		toolCall("c2", "read_file", `{"path":"/nonexistent/relay/file.txt"}`),
		text("ok"),
	}}
	a := newTestAgent(t, model, nil)

	res, err := a.Invoke(context.Background(), []conversation.Message{conversation.Human("x")}, 5)
	require.NoError(t, err)

	require.Len(t, res.Messages, 6)
	assert.Equal(t, `Error: unknown tool "delete_everything"`, res.Messages[2].Content)
	assert.Contains(t, res.Messages[4].Content, "Error: read /nonexistent/relay/file.txt")
}

func TestInvoke_ModelError(t *testing.T) {
	boom := errors.New("connection refused")
	a := newTestAgent(t, &scriptedModel{err: boom}, nil)

	res, err := a.Invoke(context.Background(), []conversation.Message{conversation.Human("x")}, 5)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, boom)
}

func TestInvoke_NoChoices(t *testing.T) {
	a := newTestAgent(t, &scriptedModel{responses: []*llms.ContentResponse{{}}}, nil)

	_, err := a.Invoke(context.Background(), []conversation.Message{conversation.Human("x")}, 5)
	assert.ErrorIs(t, err, ErrNoChoices)
}

func TestInvoke_TimeBudget(t *testing.T) {
	model := &scriptedModel{block: true}
	a, err := New(model, nil, Config{MaxExecutionTime: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	_, err = a.Invoke(context.Background(), []conversation.Message{conversation.Human("x")}, 5)
	assert.ErrorIs(t, err, ErrTimeBudgetExhausted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInvoke_ObserverLines(t *testing.T) {
	var buf bytes.Buffer
	model := &scriptedModel{responses: []*llms.ContentResponse{
		toolCall("c1", "list_projects", `{}`),
		text("done"),
	}}
	a := newTestAgent(t, model, nil, WithObserver(NewPrinter(&buf)))

	_, err := a.Invoke(context.Background(), []conversation.Message{conversation.Human("x")}, 5)
	require.NoError(t, err)

	assert.Equal(t, "[agent] querying LLM...\n"+
		"[agent] LLM responded.\n"+
		"[agent] running tool 'list_projects'...\n"+
		"[agent] tool finished.\n"+
		"[agent] querying LLM...\n"+
		"[agent] LLM responded.\n", buf.String())
}

func TestToMessageContent_ReplaysToolTurns(t *testing.T) {
	msgs := []conversation.Message{
		conversation.Human("hi"),
		{Role: conversation.RoleAgent, ToolCalls: []conversation.ToolCall{{ID: "c1", Name: "list_projects", Arguments: "{}"}}},
		{Role: conversation.RoleTool, Content: "none", ToolCallID: "c1", Name: "list_projects"},
	}

	got := toMessageContent("", msgs)
	require.Len(t, got, 3)
	require.Len(t, got[1].Parts, 1, "no empty text part next to tool calls")
	call, ok := got[1].Parts[0].(llms.ToolCall)
	require.True(t, ok)
	assert.Equal(t, "list_projects", call.FunctionCall.Name)
	assert.Equal(t, llms.ChatMessageTypeTool, got[2].Role)
}
