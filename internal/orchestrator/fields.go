package orchestrator

import (
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/relay/internal/config"
)

// FieldKey names one of the task context fields.
type FieldKey string

const (
	FieldTaskID               FieldKey = "task_id"
	FieldUseCase              FieldKey = "use_case"
	FieldPriority             FieldKey = "priority"
	FieldPlanningFormat       FieldKey = "planning_format"
	FieldDeadline             FieldKey = "deadline"
	FieldExternalIntegrations FieldKey = "external_integrations"
	FieldFrontendImplemented  FieldKey = "frontend_implemented"
	FieldBackendEndpoints     FieldKey = "backend_endpoints"
	FieldBusinessRules        FieldKey = "business_rules"
)

// fieldOrder is the rendering order of the context line.
var fieldOrder = []FieldKey{
	FieldTaskID,
	FieldUseCase,
	FieldPriority,
	FieldPlanningFormat,
	FieldDeadline,
	FieldExternalIntegrations,
	FieldFrontendImplemented,
	FieldBackendEndpoints,
	FieldBusinessRules,
}

// FieldKeys returns every field key in rendering order.
func FieldKeys() []FieldKey {
	return append([]FieldKey(nil), fieldOrder...)
}

// ParseFieldKey validates s as a field key.
func ParseFieldKey(s string) (FieldKey, bool) {
	for _, k := range fieldOrder {
		if string(k) == s {
			return k, true
		}
	}
	return "", false
}

// ContextFields is the task context the agent has established so far.
// A nil field has not been established yet.
type ContextFields struct {
	TaskID               *string `json:"task_id,omitempty"`
	UseCase              *string `json:"use_case,omitempty"`
	Priority             *string `json:"priority,omitempty"`
	PlanningFormat       *string `json:"planning_format,omitempty"`
	Deadline             *string `json:"deadline,omitempty"`
	ExternalIntegrations *string `json:"external_integrations,omitempty"`
	FrontendImplemented  *string `json:"frontend_implemented,omitempty"`
	BackendEndpoints     *string `json:"backend_endpoints,omitempty"`
	BusinessRules        *string `json:"business_rules,omitempty"`
}

func (f *ContextFields) slot(key FieldKey) **string {
	switch key {
	case FieldTaskID:
		return &f.TaskID
	case FieldUseCase:
		return &f.UseCase
	case FieldPriority:
		return &f.Priority
	case FieldPlanningFormat:
		return &f.PlanningFormat
	case FieldDeadline:
		return &f.Deadline
	case FieldExternalIntegrations:
		return &f.ExternalIntegrations
	case FieldFrontendImplemented:
		return &f.FrontendImplemented
	case FieldBackendEndpoints:
		return &f.BackendEndpoints
	case FieldBusinessRules:
		return &f.BusinessRules
	}
	return nil
}

// Get returns the value of key and whether it has been established.
func (f ContextFields) Get(key FieldKey) (string, bool) {
	p := f.slot(key)
	if p == nil || *p == nil {
		return "", false
	}
	return **p, true
}

// With returns a copy of f with key set to value. Unknown keys are ignored.
func (f ContextFields) With(key FieldKey, value string) ContextFields {
	if p := f.slot(key); p != nil {
		v := value
		*p = &v
	}
	return f
}

// Merge returns a copy of f where every established field of update
// overwrites the corresponding field of f. Nil fields of update never clear
// anything.
func (f ContextFields) Merge(update ContextFields) ContextFields {
	for _, key := range fieldOrder {
		if v, ok := update.Get(key); ok {
			f = f.With(key, v)
		}
	}
	return f
}

// IsEmpty reports whether no field has been established.
func (f ContextFields) IsEmpty() bool {
	for _, key := range fieldOrder {
		if _, ok := f.Get(key); ok {
			return false
		}
	}
	return true
}

// Established returns the keys with a value, in rendering order.
func (f ContextFields) Established() []FieldKey {
	var keys []FieldKey
	for _, key := range fieldOrder {
		if _, ok := f.Get(key); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

const defaultDelimiter = " | "

// Vocabulary holds the language-specific literals used to build prompts and
// detect confirmation and completion.
type Vocabulary struct {
	ConfirmationTokens   []string
	CompletionPhrases    []string
	ConfirmationSentinel string
	FieldLabels          map[FieldKey]string
	Delimiter            string
}

// NewVocabulary converts the configured vocabulary, rejecting unknown field keys.
func NewVocabulary(cfg config.VocabularyConfig) (Vocabulary, error) {
	labels := make(map[FieldKey]string, len(cfg.FieldLabels))
	for k, label := range cfg.FieldLabels {
		key, ok := ParseFieldKey(k)
		if !ok {
			return Vocabulary{}, fmt.Errorf("unknown context field %q in vocabulary.field_labels", k)
		}
		labels[key] = label
	}
	return Vocabulary{
		ConfirmationTokens:   cfg.ConfirmationTokens,
		CompletionPhrases:    cfg.CompletionPhrases,
		ConfirmationSentinel: cfg.ConfirmationSentinel,
		FieldLabels:          labels,
		Delimiter:            cfg.Delimiter,
	}, nil
}

// Label returns the display label of key, falling back to the key itself.
func (v Vocabulary) Label(key FieldKey) string {
	if label, ok := v.FieldLabels[key]; ok && label != "" {
		return label
	}
	return string(key)
}

func (v Vocabulary) delimiter() string {
	if v.Delimiter == "" {
		return defaultDelimiter
	}
	return v.Delimiter
}

// RenderContextLine joins the established, non-empty fields as
// "Label: value" pairs in a fixed order. It returns "" when there is nothing
// to render.
func RenderContextLine(f ContextFields, vocab Vocabulary) string {
	parts := make([]string, 0, len(fieldOrder))
	for _, key := range fieldOrder {
		if v, ok := f.Get(key); ok && v != "" {
			parts = append(parts, vocab.Label(key)+": "+v)
		}
	}
	return strings.Join(parts, vocab.delimiter())
}
