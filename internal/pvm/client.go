// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package pvm

import (
	"context"

	"github.com/UbuntuEvangelist/nova-powervm/api"
)

// Client is the hypervisor management endpoint as consumed by the
// reconciliation pipeline. All calls are synchronous; adapter creation is
// fire-and-forget with respect to network-stack readiness, which is
// corroborated separately through readiness events.
type Client interface {
	// ListAdapters returns the client network adapters currently bound to
	// the machine.
	ListAdapters(ctx context.Context, machineID string) ([]api.Adapter, error)

	// IOState returns a fresh snapshot of whether the machine accepts I/O
	// configuration changes.
	IOState(ctx context.Context, machineID string) (api.IOState, error)

	CreateAdapter(ctx context.Context, machineID string, iface *api.InterfaceSpec) (*api.Adapter, error)

	DeleteAdapter(ctx context.Context, machineID string, adapter api.Adapter) error

	// ManagementVSwitch resolves the host's dedicated management virtual
	// switch. It returns nil without error when the host has none.
	ManagementVSwitch(ctx context.Context) (*api.VSwitch, error)

	CreateManagementAdapter(ctx context.Context, machineID string, vswitch api.VSwitch) (*api.Adapter, error)
}
