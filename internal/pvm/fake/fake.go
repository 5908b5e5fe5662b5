// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package fake

import (
	"context"
	"fmt"
	"sync"

	"github.com/UbuntuEvangelist/nova-powervm/api"
	"github.com/UbuntuEvangelist/nova-powervm/internal/pvm"
	"github.com/google/uuid"
)

// Client is an in-memory pvm.Client for tests. All mutators are safe for
// concurrent use with the client methods.
type Client struct {
	mu sync.Mutex

	ioState  api.IOState
	adapters map[string][]api.Adapter

	managementVSwitch *api.VSwitch

	createErr error
	deleteErr error

	createdMACs []string
	deletedMACs []string

	// OnCreateAdapter, when set, is invoked after every successful adapter
	// creation. Tests use it to feed readiness events back into the hub.
	OnCreateAdapter func(machineID string, iface *api.InterfaceSpec)
}

var _ pvm.Client = (*Client)(nil)

func NewClient() *Client {
	return &Client{
		ioState:  api.IOState{Modifiable: true},
		adapters: make(map[string][]api.Adapter),
	}
}

func (c *Client) SetIOState(state api.IOState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ioState = state
}

func (c *Client) SetAdapters(machineID string, adapters []api.Adapter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.adapters[machineID] = adapters
}

func (c *Client) SetManagementVSwitch(vswitch *api.VSwitch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.managementVSwitch = vswitch
}

func (c *Client) SetCreateError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.createErr = err
}

func (c *Client) SetDeleteError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleteErr = err
}

// CreatedMACs returns the MAC addresses passed to CreateAdapter in call
// order.
func (c *Client) CreatedMACs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.createdMACs...)
}

func (c *Client) DeletedMACs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.deletedMACs...)
}

func (c *Client) ListAdapters(_ context.Context, machineID string) ([]api.Adapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]api.Adapter(nil), c.adapters[machineID]...), nil
}

func (c *Client) IOState(_ context.Context, _ string) (api.IOState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ioState, nil
}

func (c *Client) CreateAdapter(_ context.Context, machineID string, iface *api.InterfaceSpec) (*api.Adapter, error) {
	c.mu.Lock()
	if c.createErr != nil {
		err := c.createErr
		c.mu.Unlock()
		return nil, err
	}

	adapter := api.Adapter{
		MACAddress: iface.MACAddress,
		URI:        fmt.Sprintf("/machines/%s/adapters/%s", machineID, uuid.NewString()),
		VSwitchURI: "/vswitches/data",
	}
	c.adapters[machineID] = append(c.adapters[machineID], adapter)
	c.createdMACs = append(c.createdMACs, iface.MACAddress)
	hook := c.OnCreateAdapter
	c.mu.Unlock()

	if hook != nil {
		hook(machineID, iface)
	}
	return &adapter, nil
}

func (c *Client) DeleteAdapter(_ context.Context, machineID string, adapter api.Adapter) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.deleteErr != nil {
		return c.deleteErr
	}

	adapters := c.adapters[machineID]
	for i, a := range adapters {
		if a.URI == adapter.URI {
			c.adapters[machineID] = append(adapters[:i:i], adapters[i+1:]...)
			c.deletedMACs = append(c.deletedMACs, adapter.MACAddress)
			return nil
		}
	}
	return pvm.ErrNotFound
}

func (c *Client) ManagementVSwitch(_ context.Context) (*api.VSwitch, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.managementVSwitch, nil
}

func (c *Client) CreateManagementAdapter(_ context.Context, machineID string, vswitch api.VSwitch) (*api.Adapter, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	adapter := api.Adapter{
		MACAddress: "fa:16:3e:00:00:01",
		URI:        fmt.Sprintf("/machines/%s/adapters/%s", machineID, uuid.NewString()),
		VSwitchURI: vswitch.URI,
	}
	c.adapters[machineID] = append(c.adapters[machineID], adapter)
	return &adapter, nil
}
