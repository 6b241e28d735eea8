package notification

import "context"

// Sink delivers room notifications to the surrounding UI. Delivery is a side
// effect of a phase transition, never an input to it; a failing sink must not
// block the workflow.
type Sink interface {
	Publish(ctx context.Context, msg *Message) error
}
