package ports

import "context"

// Transport is the outbound half of the message channel.
type Transport interface {
	SendText(ctx context.Context, text string) error
	SendStructured(ctx context.Context, payload any) error
}
