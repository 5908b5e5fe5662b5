// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package netplug

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/UbuntuEvangelist/nova-powervm/api"
	"github.com/UbuntuEvangelist/nova-powervm/internal/config"
	"github.com/UbuntuEvangelist/nova-powervm/internal/pvm"
	"github.com/UbuntuEvangelist/nova-powervm/internal/vifevent"
	"github.com/go-logr/logr"
	"k8s.io/apimachinery/pkg/util/sets"
)

type PlugOptions struct {
	// Fatal aborts the plug pass when a readiness event fails or the
	// deadline elapses.
	Fatal bool

	// Timeout is the deadline for readiness corroboration.
	Timeout time.Duration

	Mode config.NetworkingMode
}

// Plugger creates adapters for desired interfaces not yet present on a
// machine and waits for the network stack to corroborate their readiness.
type Plugger struct {
	client pvm.Client
	waiter vifevent.Waiter
	opts   PlugOptions
}

func NewPlugger(client pvm.Client, waiter vifevent.Waiter, opts PlugOptions) *Plugger {
	return &Plugger{
		client: client,
		waiter: waiter,
		opts:   opts,
	}
}

// Plug creates an adapter for every desired interface that has no live
// adapter with the same normalized MAC address. It returns the adapter list
// as observed before any creation, or an empty list when nothing needed
// creation. Callers that need post-creation state must re-fetch.
func (p *Plugger) Plug(
	ctx context.Context,
	machineID string,
	state api.IOState,
	desired []*api.InterfaceSpec,
) ([]api.Adapter, error) {
	log := logr.FromContextOrDiscard(ctx)
	log.V(1).Info("Plugging network interfaces", "machineID", machineID)

	adapters, err := p.client.ListAdapters(ctx, machineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list adapters: %w", err)
	}

	live := sets.New[string]()
	for _, adapter := range adapters {
		live.Insert(NormalizeMAC(adapter.MACAddress))
	}

	// The desired list may name the same address twice; at most one
	// creation per normalized address is issued within a pass.
	seen := sets.New[string]()
	var toCreate []*api.InterfaceSpec
	for _, iface := range desired {
		mac := NormalizeMAC(iface.MACAddress)
		if live.Has(mac) || seen.Has(mac) {
			continue
		}
		seen.Insert(mac)
		toCreate = append(toCreate, iface)
	}

	if len(toCreate) == 0 {
		return []api.Adapter{}, nil
	}

	if !state.Modifiable {
		log.Error(ErrNotModifiable, "Unable to create interfaces",
			"machineID", machineID, "reason", state.Reason)
		return nil, fmt.Errorf("%w: %s", ErrNotModifiable, state.Reason)
	}

	wait := p.waiter.Prepare(p.waitEvents(toCreate), p.onEventFailure(log))
	defer wait.Close()

	for _, iface := range toCreate {
		log.V(1).Info("Creating adapter",
			"machineID", machineID, "mac", NormalizeMAC(iface.MACAddress))
		if _, err := p.client.CreateAdapter(ctx, machineID, iface); err != nil {
			return nil, fmt.Errorf("create adapter %s: %w", NormalizeMAC(iface.MACAddress), err)
		}
	}

	if err := wait.Wait(ctx, p.opts.Timeout); err != nil {
		if errors.Is(err, vifevent.ErrWaitTimeout) {
			log.Error(err, "Interfaces were not corroborated in time", "machineID", machineID)
			return nil, fmt.Errorf("%w: %w", ErrCorroborationTimeout, err)
		}
		return nil, err
	}

	return adapters, nil
}

// waitEvents returns the readiness events required before the pass may
// complete. Interfaces the network stack already reports active need no
// corroboration, and neither does the unconfirmed networking mode or a
// disabled fatal/timeout policy.
func (p *Plugger) waitEvents(toCreate []*api.InterfaceSpec) []string {
	if p.opts.Mode != config.ModeEventConfirmed || !p.opts.Fatal || p.opts.Timeout <= 0 {
		return nil
	}

	var events []string
	for _, iface := range toCreate {
		if iface.Active {
			continue
		}
		events = append(events, vifevent.PluggedEvent(iface.ID))
	}
	return events
}

func (p *Plugger) onEventFailure(log logr.Logger) vifevent.FailureFunc {
	return func(event string) error {
		if p.opts.Fatal {
			return fmt.Errorf("%w: %s", ErrCorroborationFailed, event)
		}

		log.Info("Ignoring failed interface readiness event", "event", event)
		return nil
	}
}
