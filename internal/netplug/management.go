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

// ManagementPlugger ensures a machine has exactly one adapter on the host's
// dedicated management virtual switch.
type ManagementPlugger struct {
	client pvm.Client
}

func NewManagementPlugger(client pvm.Client) *ManagementPlugger {
	return &ManagementPlugger{client: client}
}

// PlugManagement creates the management adapter unless the host has no
// management vswitch or the supplied adapter list already contains an
// adapter bound to it. It returns the created adapter, or nil when none was
// needed.
func (m *ManagementPlugger) PlugManagement(
	ctx context.Context,
	machineID string,
	adapters []api.Adapter,
) (*api.Adapter, error) {
	log := logr.FromContextOrDiscard(ctx)
	log.V(1).Info("Plugging the management network interface", "machineID", machineID)

	vswitch, err := m.client.ManagementVSwitch(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get management vswitch: %w", err)
	}
	if vswitch == nil {
		log.V(1).Info("Host has no management vswitch, skipping", "machineID", machineID)
		return nil, nil
	}

	for _, adapter := range adapters {
		if adapter.VSwitchURI == vswitch.URI {
			log.V(1).Info("Management adapter already present", "machineID", machineID)
			return nil, nil
		}
	}

	adapter, err := m.client.CreateManagementAdapter(ctx, machineID, *vswitch)
	if err != nil {
		return nil, fmt.Errorf("failed to create management adapter: %w", err)
	}

	log.V(1).Info("Created management adapter", "machineID", machineID, "uri", adapter.URI)
	return adapter, nil
}
