package loam

// DefinitionMetadata is the union of the keys accepted in dialog and step
// documents. Which fields apply depends on the folder the document lives in.
type DefinitionMetadata struct {
	Name string `json:"name" mapstructure:"name"`

	// Dialog documents
	Prompts         []string `json:"prompts" mapstructure:"prompts"`
	DispatchIntents []string `json:"dispatch_intents" mapstructure:"dispatch_intents"`

	// Step documents
	Prompt      string         `json:"prompt" mapstructure:"prompt"`
	RetryPrompt string         `json:"retry_prompt" mapstructure:"retry_prompt"`
	Type        string         `json:"type" mapstructure:"type"`
	Model       map[string]any `json:"model" mapstructure:"model"`

	RunMode   string `json:"run_mode" mapstructure:"run_mode"`
	Telemetry []any  `json:"telemetry" mapstructure:"telemetry"`
}
