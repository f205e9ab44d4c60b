package agent

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/fyrsmithlabs/relay/internal/alias"
	"github.com/fyrsmithlabs/relay/internal/orchestrator"
)

// fieldCollector accumulates context updates made by tools during one invocation.
type fieldCollector struct {
	mu      sync.Mutex
	current orchestrator.ContextFields
}

func (c *fieldCollector) merge(update orchestrator.ContextFields) {
	c.mu.Lock()
	c.current = c.current.Merge(update)
	c.mu.Unlock()
}

func (c *fieldCollector) fields() orchestrator.ContextFields {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

type collectorKey struct{}

func withFieldCollector(ctx context.Context, c *fieldCollector) context.Context {
	return context.WithValue(ctx, collectorKey{}, c)
}

func collectorFrom(ctx context.Context) *fieldCollector {
	c, _ := ctx.Value(collectorKey{}).(*fieldCollector)
	return c
}

type contextUpdate struct {
	TaskID               *string `json:"task_id,omitempty" jsonschema:"description=Task identifier such as T6"`
	UseCase              *string `json:"use_case,omitempty" jsonschema:"description=Use case key or one of its aliases"`
	Priority             *string `json:"priority,omitempty" jsonschema:"description=Task priority"`
	PlanningFormat       *string `json:"planning_format,omitempty" jsonschema:"description=Planning format such as todo or topics"`
	Deadline             *string `json:"deadline,omitempty" jsonschema:"description=Delivery deadline"`
	ExternalIntegrations *string `json:"external_integrations,omitempty" jsonschema:"description=External systems the task touches"`
	FrontendImplemented  *string `json:"frontend_implemented,omitempty" jsonschema:"description=Whether the frontend part already exists"`
	BackendEndpoints     *string `json:"backend_endpoints,omitempty" jsonschema:"description=Backend endpoints involved"`
	BusinessRules        *string `json:"business_rules,omitempty" jsonschema:"description=Business rules to respect"`
}

func (u contextUpdate) fields() orchestrator.ContextFields {
	return orchestrator.ContextFields{
		TaskID:               u.TaskID,
		UseCase:              u.UseCase,
		Priority:             u.Priority,
		PlanningFormat:       u.PlanningFormat,
		Deadline:             u.Deadline,
		ExternalIntegrations: u.ExternalIntegrations,
		FrontendImplemented:  u.FrontendImplemented,
		BackendEndpoints:     u.BackendEndpoints,
		BusinessRules:        u.BusinessRules,
	}
}

// NewUpdateContextTool returns the update_task_context tool. Use-case values
// are replaced by their canonical key when resolver knows them.
func NewUpdateContextTool(resolver *alias.Resolver) Tool {
	return NewTool("update_task_context",
		"Record task context established in the conversation. Only the fields provided are changed.",
		func(ctx context.Context, in contextUpdate) (string, error) {
			if in.UseCase != nil && resolver != nil {
				if key, ok := resolver.UseCase(*in.UseCase); ok {
					in.UseCase = &key
				}
			}

			update := in.fields()
			if update.IsEmpty() {
				return "", errors.New("no context fields provided")
			}
			c := collectorFrom(ctx)
			if c == nil {
				return "", errors.New("context updates are not available outside an agent invocation")
			}
			c.merge(update)

			keys := update.Established()
			names := make([]string, len(keys))
			for i, k := range keys {
				names[i] = string(k)
			}
			return "Context updated: " + strings.Join(names, ", "), nil
		})
}
