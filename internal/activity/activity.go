// Package activity carries store events to observers such as the journal and
// the metrics registry.
package activity

import (
	"context"
	"time"
)

// Store names used in events.
const (
	StoreImages = "images"
	StoreScans  = "scans"
)

// Op is what happened to a store entry.
type Op string

const (
	OpSave   Op = "save"
	OpReject Op = "reject"
	OpEvict  Op = "evict"
	OpDelete Op = "delete"
)

// Event describes one store mutation or rejected mutation.
type Event struct {
	Store   string    `json:"store"`
	Op      Op        `json:"op"`
	Subject string    `json:"subject"`
	Bytes   int64     `json:"bytes"`
	Kind    string    `json:"kind,omitempty"`
	At      time.Time `json:"at"`
}

// Observer receives store events. Implementations must not block for long;
// they run inside the store's critical section.
type Observer interface {
	Observe(ctx context.Context, ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, ev Event)

func (f ObserverFunc) Observe(ctx context.Context, ev Event) {
	f(ctx, ev)
}

// Multi fans events out to every non-nil observer in order.
func Multi(observers ...Observer) Observer {
	out := make(multi, 0, len(observers))
	for _, o := range observers {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multi []Observer

func (m multi) Observe(ctx context.Context, ev Event) {
	for _, o := range m {
		o.Observe(ctx, ev)
	}
}

// Emit sends ev to o, stamping it when At is unset. A nil observer is a no-op.
func Emit(ctx context.Context, o Observer, ev Event) {
	if o == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	o.Observe(ctx, ev)
}
