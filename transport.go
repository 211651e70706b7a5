package mailqueue

import "context"

// Transport delivers a single decorated message.
type Transport interface {
	// Send delivers the message and returns an error on failure.
	Send(ctx context.Context, msg *Message) error
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(ctx context.Context, msg *Message) error

// Send implements Transport.
func (fn TransportFunc) Send(ctx context.Context, msg *Message) error {
	return fn(ctx, msg)
}
