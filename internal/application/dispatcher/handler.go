package dispatcher

import (
	"context"

	"github.com/tracylegrand/Planned-Investment-Governance-sub000/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

type registration struct {
	name    string
	handler Handler
}
