package ports

import (
	"context"

	"github.com/aretw0/ddialog/pkg/domain"
)

// TelemetrySink receives structured telemetry events.
// Errors are logged by the emitter and never reach the turn.
type TelemetrySink interface {
	Track(ctx context.Context, event domain.TelemetryEvent) error
}
