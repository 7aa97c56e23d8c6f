// Package notify fans session notifications out to the configured sinks.
package notify

import (
	"context"
	"fmt"
	"time"
)

type Kind string

const (
	KindConnected    Kind = "connected"
	KindChat         Kind = "chat"
	KindReconnecting Kind = "reconnecting"
	KindFault        Kind = "fault"
	KindGaveUp       Kind = "gave_up"
	KindDisconnected Kind = "disconnected"
)

// Event is one outbound notification about a session record.
type Event struct {
	ID       string    `json:"id" bson:"_id"`
	Kind     Kind      `json:"kind" bson:"kind"`
	Operator string    `json:"operator" bson:"operator"`
	Slot     int       `json:"slot" bson:"slot"`
	Target   string    `json:"target,omitempty" bson:"target,omitempty"`
	Identity string    `json:"identity,omitempty" bson:"identity,omitempty"`
	Speaker  string    `json:"speaker,omitempty" bson:"speaker,omitempty"`
	Text     string    `json:"text,omitempty" bson:"text,omitempty"`
	DelayMS  int64     `json:"delay_ms,omitempty" bson:"delay_ms,omitempty"`
	Attempt  int       `json:"attempt,omitempty" bson:"attempt,omitempty"`
	Error    string    `json:"error,omitempty" bson:"error,omitempty"`
	Time     time.Time `json:"time" bson:"time"`
}

// Label returns "operator#slot".
func (e Event) Label() string {
	return fmt.Sprintf("%s#%d", e.Operator, e.Slot)
}

// Message renders the event as one plain-language line.
func (e Event) Message() string {
	switch e.Kind {
	case KindConnected:
		return fmt.Sprintf("%s joined %s as %s", e.Label(), e.Target, e.Identity)
	case KindChat:
		return fmt.Sprintf("%s <%s> %s", e.Label(), e.Speaker, e.Text)
	case KindReconnecting:
		return fmt.Sprintf("%s lost the connection, reconnecting in %s (attempt %d)",
			e.Label(), time.Duration(e.DelayMS)*time.Millisecond, e.Attempt)
	case KindFault:
		return fmt.Sprintf("%s connection error: %s", e.Label(), e.Error)
	case KindGaveUp:
		return fmt.Sprintf("%s gave up reconnecting after %d attempts", e.Label(), e.Attempt)
	case KindDisconnected:
		return fmt.Sprintf("%s disconnected", e.Label())
	default:
		return fmt.Sprintf("%s %s", e.Label(), e.Kind)
	}
}

// Notifier accepts events without blocking the caller.
type Notifier interface {
	Notify(ev Event)
}

// Sink delivers events to one destination.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, ev Event) error
}

// DeliveryError is a sink failure. It is logged and never affects session state.
type DeliveryError struct {
	Sink string
	Err  error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notification sink %s: %v", e.Sink, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Discard drops every event.
type Discard struct{}

func (Discard) Notify(Event) {}
