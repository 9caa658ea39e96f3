package domain

import (
	"fmt"
	"strings"
)

// RunMode controls in which environment a dialog or step is active.
type RunMode string

const (
	RunModeNone     RunMode = "none"
	RunModeDev      RunMode = "dev"
	RunModeTraining RunMode = "training"
)

// ParseRunMode normalizes a configuration value. Empty means RunModeNone.
func ParseRunMode(s string) (RunMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return RunModeNone, nil
	case "dev", "development":
		return RunModeDev, nil
	case "training":
		return RunModeTraining, nil
	default:
		return "", fmt.Errorf("unknown run mode %q", s)
	}
}

// ValueType is the declared type a step coerces its input to.
type ValueType string

const (
	ValueString  ValueType = "string"
	ValueInteger ValueType = "int"
	ValueCard    ValueType = "adaptive_card"
)

// ParseValueType normalizes a configuration value. Empty means ValueString.
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "string", "text":
		return ValueString, nil
	case "int", "integer", "number":
		return ValueInteger, nil
	case "adaptive_card", "card":
		return ValueCard, nil
	default:
		return "", fmt.Errorf("unknown value type %q", s)
	}
}

// TelemetryDefinition declares one custom event and the fields it carries.
// Fields use the address grammar "Class[.Nested].Property[ as alias]".
type TelemetryDefinition struct {
	EventName string   `json:"custom_event_name" yaml:"custom_event_name" mapstructure:"custom_event_name"`
	Fields    []string `json:"fields" yaml:"fields" mapstructure:"fields"`
}

// ModelDefinition names the recognizer model a step uses and which of its
// entities may replace the raw user text.
type ModelDefinition struct {
	Name             string   `json:"name" yaml:"name" mapstructure:"name"`
	MatchingEntities []string `json:"matching_entities,omitempty" yaml:"matching_entities,omitempty" mapstructure:"matching_entities"`
	Type             string   `json:"type,omitempty" yaml:"type,omitempty" mapstructure:"type"`
	Description      string   `json:"description,omitempty" yaml:"description,omitempty" mapstructure:"description"`
}

// StepDefinition is a single prompt/recognition unit.
type StepDefinition struct {
	Name        string                `json:"name"`
	Prompt      string                `json:"prompt"`
	RetryPrompt string                `json:"retry_prompt,omitempty"`
	Type        ValueType             `json:"type"`
	RunMode     RunMode               `json:"run_mode"`
	Model       ModelDefinition       `json:"model"`
	Telemetry   []TelemetryDefinition `json:"telemetry,omitempty"`
}

// Retry returns the text to send when recognition fails.
func (s *StepDefinition) Retry() string {
	if s.RetryPrompt != "" {
		return s.RetryPrompt
	}
	return s.Prompt
}

// DialogDefinition is a named, ordered sequence of steps.
type DialogDefinition struct {
	Name            string                `json:"name"`
	Steps           []string              `json:"prompts"`
	DispatchIntents []string              `json:"dispatch_intents,omitempty"`
	RunMode         RunMode               `json:"run_mode"`
	Telemetry       []TelemetryDefinition `json:"telemetry,omitempty"`
}

// Triggers reports whether the given intent starts this dialog.
func (d *DialogDefinition) Triggers(intent string) bool {
	for _, i := range d.DispatchIntents {
		if strings.EqualFold(i, intent) {
			return true
		}
	}
	return false
}

// AvailableIn reports whether the dialog may run under the engine mode.
func (d *DialogDefinition) AvailableIn(mode RunMode) bool {
	return d.RunMode == "" || d.RunMode == RunModeNone || d.RunMode == mode
}
