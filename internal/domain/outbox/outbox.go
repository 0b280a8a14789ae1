package outbox

import (
	"context"
	"errors"
)

// ErrMalformedEvent marks an inbound payload that cannot be turned into an Event.
var ErrMalformedEvent = errors.New("outbox: malformed event")

// Event is any domain event with a name identifier. The name doubles as the topic.
type Event interface {
	EventName() string
}

// Handler processes a published event.
type Handler func(ctx context.Context, e Event) error

// Decoder turns a wire payload into an Event, wrapping ErrMalformedEvent on failure.
type Decoder func(data []byte) (Event, error)

// Publisher publishes events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}
