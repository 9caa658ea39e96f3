package domain

import (
	"sort"
	"time"
)

// IntentNone is reported when no intent was recognized.
const IntentNone = "None"

// RecognizerResult is the raw output of an NLU recognizer.
type RecognizerResult struct {
	Text     string             `json:"text"`
	Intents  map[string]float64 `json:"intents"`
	Entities map[string][]any   `json:"entities"`
}

// TopIntent returns the highest scoring intent. Equal scores resolve to the
// lexically smallest name so the choice is deterministic.
func (r RecognizerResult) TopIntent() (string, float64) {
	if len(r.Intents) == 0 {
		return IntentNone, 0
	}
	names := make([]string, 0, len(r.Intents))
	for name := range r.Intents {
		names = append(names, name)
	}
	sort.Strings(names)

	best, bestScore := names[0], r.Intents[names[0]]
	for _, name := range names[1:] {
		if score := r.Intents[name]; score > bestScore {
			best, bestScore = name, score
		}
	}
	return best, bestScore
}

// StepResult is the normalized outcome of recognizing a reply for one step.
type StepResult struct {
	StepName  string           `json:"step_name"`
	Intent    string           `json:"intent"`
	Score     float64          `json:"score"`
	Entities  map[string][]any `json:"entities,omitempty"`
	Value     any              `json:"value,omitempty"`
	Type      ValueType        `json:"type"`
	Succeeded bool             `json:"succeeded"`
}

// Clone copies the result including its entity bag.
func (r StepResult) Clone() StepResult {
	next := r
	if r.Entities != nil {
		next.Entities = make(map[string][]any, len(r.Entities))
		for k, v := range r.Entities {
			next.Entities[k] = append([]any(nil), v...)
		}
	}
	next.Value = deepCopyValue(r.Value)
	return next
}

// DialogResult is handed to the caller when a dialog run completes.
type DialogResult struct {
	ConversationID string         `json:"conversation_id"`
	Dialog         string         `json:"dialog"`
	Values         map[string]any `json:"values"`
	Last           StepResult     `json:"last"`
	CompletedAt    time.Time      `json:"completed_at"`
}
