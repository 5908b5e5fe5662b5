// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package netplug

import (
	"context"
	"fmt"

	"github.com/UbuntuEvangelist/nova-powervm/api"
	"github.com/UbuntuEvangelist/nova-powervm/internal/pvm"
	"github.com/go-logr/logr"
)

// Unplugger removes the adapters of interfaces that should no longer exist
// on a machine.
type Unplugger struct {
	client pvm.Client
}

func NewUnplugger(client pvm.Client) *Unplugger {
	return &Unplugger{client: client}
}

// Unplug deletes every live adapter whose normalized MAC address matches one
// of the target interfaces and returns the adapter list as observed at
// entry. Handles of deleted adapters in the returned list are stale. A
// target with no matching adapter is logged and skipped so that re-running
// the same pass is a no-op. A deletion failure aborts the pass; earlier
// deletions are not rolled back.
func (u *Unplugger) Unplug(
	ctx context.Context,
	machineID string,
	state api.IOState,
	targets []*api.InterfaceSpec,
) ([]api.Adapter, error) {
	log := logr.FromContextOrDiscard(ctx)
	log.V(1).Info("Unplugging network interfaces", "machineID", machineID)

	if !state.Modifiable {
		log.Error(ErrNotModifiable, "Unable to remove interfaces",
			"machineID", machineID, "reason", state.Reason)
		return nil, fmt.Errorf("%w: %s", ErrNotModifiable, state.Reason)
	}

	adapters, err := u.client.ListAdapters(ctx, machineID)
	if err != nil {
		return nil, fmt.Errorf("failed to list adapters: %w", err)
	}

	for _, iface := range targets {
		mac := NormalizeMAC(iface.MACAddress)

		found := false
		for _, adapter := range adapters {
			if NormalizeMAC(adapter.MACAddress) != mac {
				continue
			}

			log.V(1).Info("Deleting adapter", "machineID", machineID, "mac", mac)
			if err := u.client.DeleteAdapter(ctx, machineID, adapter); err != nil {
				log.Error(err, "Unable to unplug interface", "machineID", machineID, "mac", mac)
				return nil, fmt.Errorf("delete adapter %s: %w: %w", mac, ErrDeletionFailed, err)
			}

			found = true
			break
		}

		if !found {
			log.Info("Interface to unplug was not found on the machine",
				"machineID", machineID, "mac", mac)
		}
	}

	return adapters, nil
}
