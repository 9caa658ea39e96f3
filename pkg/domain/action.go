package domain

// ActionType identifies an outbound side-effect.
type ActionType string

const (
	// ActionSendText sends a plain text message. Payload: Text.
	ActionSendText ActionType = "send_text"
	// ActionSendStructured sends a structured payload. Payload: Payload.
	ActionSendStructured ActionType = "send_structured"
)

// Action is an outbound side-effect produced by a turn.
// The engine buffers actions and hands them to the transport after the
// progress was saved.
type Action struct {
	Type    ActionType `json:"type"`
	Text    string     `json:"text,omitempty"`
	Payload any        `json:"payload,omitempty"`
}

// SendText creates a text action.
func SendText(text string) Action {
	return Action{Type: ActionSendText, Text: text}
}

// SendStructured creates a structured payload action.
func SendStructured(payload any) Action {
	return Action{Type: ActionSendStructured, Payload: payload}
}
