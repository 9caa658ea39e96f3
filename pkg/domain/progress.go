package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// Phase is the externally visible state of a conversation's progress.
type Phase string

const (
	PhaseIdle                 Phase = "idle"
	PhaseRunningStep          Phase = "running_step"
	PhaseAwaitingConfirmation Phase = "awaiting_confirmation"
)

// ConfirmationState is the training-confirmation sub-state.
type ConfirmationState string

const (
	ConfirmationNone     ConfirmationState = "none"
	ConfirmationAwaiting ConfirmationState = "awaiting"
)

// Progress is the persisted position of one conversation.
// An empty DialogName means no dialog is active.
type Progress struct {
	ConversationID string            `json:"conversation_id"`
	DialogName     string            `json:"dialog_name,omitempty"`
	StepIndex      int               `json:"step_index"`
	Values         map[string]any    `json:"values"`
	Confirmation   ConfirmationState `json:"confirmation"`

	// Pending holds the result awaiting a training confirmation.
	Pending *StepResult `json:"pending,omitempty"`

	CompletedRuns int       `json:"completed_runs"`
	Turns         int       `json:"turns"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewProgress creates idle progress for a conversation.
func NewProgress(conversationID string) *Progress {
	return &Progress{
		ConversationID: conversationID,
		Values:         make(map[string]any),
		Confirmation:   ConfirmationNone,
	}
}

// Phase derives the state machine position.
func (p *Progress) Phase() Phase {
	switch {
	case p.DialogName == "":
		return PhaseIdle
	case p.Confirmation == ConfirmationAwaiting:
		return PhaseAwaitingConfirmation
	default:
		return PhaseRunningStep
	}
}

// Idle reports whether no dialog is active.
func (p *Progress) Idle() bool {
	return p.DialogName == ""
}

// Reset returns the progress to Idle, keeping counters.
func (p *Progress) Reset() {
	p.DialogName = ""
	p.StepIndex = 0
	p.Values = make(map[string]any)
	p.Confirmation = ConfirmationNone
	p.Pending = nil
}

// Clone returns a deep copy safe for mutation.
func (p *Progress) Clone() *Progress {
	if p == nil {
		return nil
	}
	next := *p
	next.Values = deepCopyMap(p.Values)
	if p.Pending != nil {
		pending := p.Pending.Clone()
		next.Pending = &pending
	}
	return &next
}

// Snapshot returns the collected values as an independent map.
func (p *Progress) Snapshot() map[string]any {
	return deepCopyMap(p.Values)
}

// EncodeProgress serializes progress for byte-oriented stores.
func EncodeProgress(p *Progress) ([]byte, error) {
	return json.Marshal(p)
}

// DecodeProgress parses progress written by EncodeProgress. Whole numbers are
// restored as int64 so integer step values survive a round trip.
func DecodeProgress(data []byte) (*Progress, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var p Progress
	if err := dec.Decode(&p); err != nil {
		return nil, err
	}
	if p.Values == nil {
		p.Values = make(map[string]any)
	}
	for k, v := range p.Values {
		p.Values[k] = normalizeNumbers(v)
	}
	if p.Pending != nil {
		p.Pending.Value = normalizeNumbers(p.Pending.Value)
	}
	if p.Confirmation == "" {
		p.Confirmation = ConfirmationNone
	}
	return &p, nil
}

// NormalizeValue converts json.Number leaves to int64 when whole and float64
// otherwise, so values decoded with UseNumber compare equal to fresh ones.
func NormalizeValue(v any) any {
	return normalizeNumbers(v)
}

func normalizeNumbers(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		if f, err := val.Float64(); err == nil {
			return f
		}
		return val.String()
	case map[string]any:
		for k, sub := range val {
			val[k] = normalizeNumbers(sub)
		}
		return val
	case []any:
		for i, sub := range val {
			val[i] = normalizeNumbers(sub)
		}
		return val
	default:
		return v
	}
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = deepCopyValue(v)
	}
	return out
}

func deepCopyValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		out := make([]any, len(val))
		for i, sub := range val {
			out[i] = deepCopyValue(sub)
		}
		return out
	default:
		return v
	}
}
