package events

import "context"

// DisabledPublisher drops all events. Used when no broker is configured.
type DisabledPublisher struct{}

func NewDisabledPublisher() *DisabledPublisher {
	return &DisabledPublisher{}
}

func (*DisabledPublisher) Publish(context.Context, Event) error { return nil }

func (*DisabledPublisher) Close() error { return nil }
