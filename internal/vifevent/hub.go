// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package vifevent

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"
)

const (
	// EventInterfacePlugged is the event type the network stack sends once
	// a freshly created interface is wired up on its side.
	EventInterfacePlugged = "network-vif-plugged"
)

// PluggedEvent composes the hub key for the readiness event of the given
// interface.
func PluggedEvent(interfaceID string) string {
	return fmt.Sprintf("%s:%s", EventInterfacePlugged, interfaceID)
}

var ErrWaitTimeout = errors.New("timed out waiting for events")

// FailureFunc is invoked once per event that arrives with a failure status.
// Returning a non-nil error aborts the wait with that error; returning nil
// counts the event as arrived and the wait continues.
type FailureFunc func(event string) error

// Waiter registers interest in a set of named events before the operations
// that trigger them are issued. The returned Wait blocks until every event
// has arrived or the deadline elapses.
type Waiter interface {
	Prepare(events []string, onFailure FailureFunc) Wait
}

type Wait interface {
	// Wait blocks until all prepared events arrived, the timeout elapsed
	// or the context was cancelled.
	Wait(ctx context.Context, timeout time.Duration) error
	// Close releases the registration. Safe to call multiple times and
	// after Wait returned.
	Close()
}

type delivery struct {
	event  string
	failed bool
}

type subscription struct {
	events sets.Set[string]
	// pending holds the events not yet buffered. Guarded by the hub mutex;
	// it caps every event at one buffered delivery so redeliveries cannot
	// displace a distinct outstanding event.
	pending sets.Set[string]
	ch      chan delivery
}

// Hub fans deliveries from the external notifier out to prepared waits.
// Deliveries nobody is waiting for are dropped.
type Hub struct {
	log logr.Logger

	mu   sync.Mutex
	subs map[*subscription]struct{}
}

func NewHub(log logr.Logger) *Hub {
	return &Hub{
		log:  log,
		subs: make(map[*subscription]struct{}),
	}
}

// Notify delivers an event to every wait registered for it. It reports
// whether at least one wait consumed the event.
func (h *Hub) Notify(event string, failed bool) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	consumed := false
	for sub := range h.subs {
		if !sub.pending.Has(event) {
			if sub.events.Has(event) {
				// The network stack may redeliver events it already sent.
				h.log.V(1).Info("Dropping duplicate event delivery", "event", event)
			}
			continue
		}
		sub.pending.Delete(event)

		// Each pending event is buffered at most once; the channel holds
		// the full event set, so this send never blocks.
		sub.ch <- delivery{event: event, failed: failed}
		consumed = true
	}

	if !consumed {
		h.log.V(1).Info("No subscription for event", "event", event, "failed", failed)
	}
	return consumed
}

func (h *Hub) Prepare(events []string, onFailure FailureFunc) Wait {
	if len(events) == 0 {
		return noopWait{}
	}

	sub := &subscription{
		events:  sets.New(events...),
		pending: sets.New(events...),
		ch:      make(chan delivery, len(events)),
	}

	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()

	return &hubWait{
		hub:       h,
		sub:       sub,
		onFailure: onFailure,
		remaining: sets.New(events...),
	}
}

func (h *Hub) release(sub *subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
}

type hubWait struct {
	hub       *Hub
	sub       *subscription
	onFailure FailureFunc
	remaining sets.Set[string]

	closeOnce sync.Once
}

func (w *hubWait) Wait(ctx context.Context, timeout time.Duration) error {
	defer w.Close()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for w.remaining.Len() > 0 {
		select {
		case d := <-w.sub.ch:
			if !w.remaining.Has(d.event) {
				continue
			}
			if d.failed && w.onFailure != nil {
				if err := w.onFailure(d.event); err != nil {
					return err
				}
			}
			w.remaining.Delete(d.event)
		case <-timer.C:
			return fmt.Errorf("%w: %v outstanding", ErrWaitTimeout, sets.List(w.remaining))
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	return nil
}

func (w *hubWait) Close() {
	w.closeOnce.Do(func() {
		w.hub.release(w.sub)
	})
}

type noopWait struct{}

func (noopWait) Wait(context.Context, time.Duration) error { return nil }

func (noopWait) Close() {}
