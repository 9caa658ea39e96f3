package domain

import "time"

// ActivityType classifies inbound events.
type ActivityType string

const (
	ActivityMessage            ActivityType = "message"
	ActivityConversationUpdate ActivityType = "conversationUpdate"
	ActivityEvent              ActivityType = "event"
)

// ChannelAccount identifies a sender or recipient.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// ConversationAccount identifies the conversation an activity belongs to.
type ConversationAccount struct {
	ID      string `json:"id"`
	Name    string `json:"name,omitempty"`
	IsGroup bool   `json:"isGroup,omitempty"`
}

// Activity is one inbound event from the transport.
type Activity struct {
	ID           string              `json:"id,omitempty"`
	Type         ActivityType        `json:"type"`
	Text         string              `json:"text,omitempty"`
	Value        any                 `json:"value,omitempty"`
	Locale       string              `json:"locale,omitempty"`
	ChannelID    string              `json:"channelId,omitempty"`
	Timestamp    time.Time           `json:"timestamp,omitempty"`
	From         ChannelAccount      `json:"from"`
	Recipient    ChannelAccount      `json:"recipient"`
	Conversation ConversationAccount `json:"conversation"`
	MembersAdded []ChannelAccount    `json:"membersAdded,omitempty"`
}

// IsMessage reports whether the activity is a user message.
func (a *Activity) IsMessage() bool {
	return a.Type == ActivityMessage
}

// HasPayload reports whether the activity carries structured data.
func (a *Activity) HasPayload() bool {
	return a.Value != nil
}

// NewMessage builds a message activity, mostly for hosts and tests.
func NewMessage(conversationID, text string) *Activity {
	return &Activity{
		Type:         ActivityMessage,
		Text:         text,
		Timestamp:    time.Now().UTC(),
		Conversation: ConversationAccount{ID: conversationID},
		From:         ChannelAccount{ID: "user", Role: "user"},
		Recipient:    ChannelAccount{ID: "bot", Role: "bot"},
	}
}
