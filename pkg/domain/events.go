package domain

import (
	"context"
	"time"
)

// EventType defines the category of a lifecycle event.
type EventType string

const (
	EventStepEnter      EventType = "step_enter"
	EventStepComplete   EventType = "step_complete"
	EventStepRetry      EventType = "step_retry"
	EventConfirmation   EventType = "confirmation"
	EventDialogComplete EventType = "dialog_complete"
)

// EventBase contains common fields for all events.
type EventBase struct {
	Timestamp      time.Time `json:"timestamp"`
	Type           EventType `json:"type"`
	ConversationID string    `json:"conversation_id"`
}

// StepEvent represents entry, completion or retry of a step.
type StepEvent struct {
	EventBase
	Dialog    string      `json:"dialog"`
	Step      string      `json:"step"`
	Index     int         `json:"index"`
	Result    *StepResult `json:"result,omitempty"`
	Confirmed *bool       `json:"confirmed,omitempty"`
}

// DialogEvent represents the completion of a dialog run.
type DialogEvent struct {
	EventBase
	Dialog string         `json:"dialog"`
	Values map[string]any `json:"values,omitempty"`
}

// LifecycleHooks defines callbacks for stepper observability.
type LifecycleHooks struct {
	OnStepEnter      func(context.Context, *StepEvent)
	OnStepComplete   func(context.Context, *StepEvent)
	OnStepRetry      func(context.Context, *StepEvent)
	OnConfirmation   func(context.Context, *StepEvent)
	OnDialogComplete func(context.Context, *DialogEvent)
}

// TelemetryEvent is one structured custom event produced from a
// TelemetryDefinition.
type TelemetryEvent struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	ConversationID string            `json:"conversation_id,omitempty"`
	Timestamp      time.Time         `json:"timestamp"`
	Properties     map[string]string `json:"properties"`
}

// MergeHooks combines several hook sets; each event fans out in order.
func MergeHooks(sets ...LifecycleHooks) LifecycleHooks {
	var merged LifecycleHooks
	for _, h := range sets {
		merged.OnStepEnter = chainStep(merged.OnStepEnter, h.OnStepEnter)
		merged.OnStepComplete = chainStep(merged.OnStepComplete, h.OnStepComplete)
		merged.OnStepRetry = chainStep(merged.OnStepRetry, h.OnStepRetry)
		merged.OnConfirmation = chainStep(merged.OnConfirmation, h.OnConfirmation)
		merged.OnDialogComplete = chainDialog(merged.OnDialogComplete, h.OnDialogComplete)
	}
	return merged
}

func chainStep(a, b func(context.Context, *StepEvent)) func(context.Context, *StepEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *StepEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}

func chainDialog(a, b func(context.Context, *DialogEvent)) func(context.Context, *DialogEvent) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(ctx context.Context, e *DialogEvent) {
		a(ctx, e)
		b(ctx, e)
	}
}
