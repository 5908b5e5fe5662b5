// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package pvm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/UbuntuEvangelist/nova-powervm/api"
	"github.com/go-logr/logr"
	utilssync "github.com/ironcore-dev/provider-utils/storeutils/sync"
)

var (
	ErrNotFound = errors.New("not found")
)

type ManagerOptions struct {
	// Socket is the unix socket of the management endpoint. When empty,
	// Address is used as an HTTP base URL instead.
	Socket  string
	Address string

	Logger logr.Logger
}

// Manager implements Client against the PowerVM management endpoint's JSON
// API. Calls for the same machine are serialized with a per-machine mutex;
// the orchestrator additionally guarantees one reconciliation pass at a time
// per machine.
type Manager struct {
	log logr.Logger

	httpClient *http.Client
	baseURL    string

	idMu *utilssync.MutexMap[string]
}

func NewManager(opts ManagerOptions) *Manager {
	httpClient := http.DefaultClient
	baseURL := opts.Address
	if opts.Socket != "" {
		httpClient = newUnixSocketClient(opts.Socket)
		baseURL = "http://localhost/api/v1"
	}

	return &Manager{
		log:        opts.Logger,
		httpClient: httpClient,
		baseURL:    baseURL,
		idMu:       utilssync.NewMutexMap[string](),
	}
}

var _ Client = (*Manager)(nil)

func (m *Manager) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, m.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if err := validateStatus(resp.StatusCode); err != nil {
		data, _ := io.ReadAll(resp.Body)
		m.log.V(1).Info("Request failed", "method", method, "path", path, "error", string(data))
		return err
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

func (m *Manager) ListAdapters(ctx context.Context, machineID string) ([]api.Adapter, error) {
	m.idMu.Lock(machineID)
	defer m.idMu.Unlock(machineID)

	var adapters []api.Adapter
	if err := m.do(ctx, http.MethodGet, fmt.Sprintf("/machines/%s/adapters", machineID), nil, &adapters); err != nil {
		return nil, fmt.Errorf("failed to list adapters: %w", err)
	}
	return adapters, nil
}

func (m *Manager) IOState(ctx context.Context, machineID string) (api.IOState, error) {
	m.idMu.Lock(machineID)
	defer m.idMu.Unlock(machineID)

	var state api.IOState
	if err := m.do(ctx, http.MethodGet, fmt.Sprintf("/machines/%s/io-state", machineID), nil, &state); err != nil {
		return api.IOState{}, fmt.Errorf("failed to get io state: %w", err)
	}
	return state, nil
}

type createAdapterRequest struct {
	InterfaceID string            `json:"interfaceId"`
	MACAddress  string            `json:"macAddress"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

func (m *Manager) CreateAdapter(ctx context.Context, machineID string, iface *api.InterfaceSpec) (*api.Adapter, error) {
	m.idMu.Lock(machineID)
	defer m.idMu.Unlock(machineID)

	req := createAdapterRequest{
		InterfaceID: iface.ID,
		MACAddress:  iface.MACAddress,
		Attributes:  iface.Attributes,
	}

	adapter := &api.Adapter{}
	if err := m.do(ctx, http.MethodPost, fmt.Sprintf("/machines/%s/adapters", machineID), req, adapter); err != nil {
		return nil, fmt.Errorf("failed to create adapter: %w", err)
	}

	m.log.V(1).Info("Created adapter", "machineID", machineID, "mac", iface.MACAddress)
	return adapter, nil
}

func (m *Manager) DeleteAdapter(ctx context.Context, machineID string, adapter api.Adapter) error {
	m.idMu.Lock(machineID)
	defer m.idMu.Unlock(machineID)

	if err := m.do(ctx, http.MethodDelete, adapter.URI, nil, nil); err != nil {
		return fmt.Errorf("failed to delete adapter: %w", err)
	}

	m.log.V(1).Info("Deleted adapter", "machineID", machineID, "mac", adapter.MACAddress)
	return nil
}

func (m *Manager) ManagementVSwitch(ctx context.Context) (*api.VSwitch, error) {
	vswitch := &api.VSwitch{}
	if err := m.do(ctx, http.MethodGet, "/vswitches/management", nil, vswitch); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get management vswitch: %w", err)
	}
	return vswitch, nil
}

type createManagementAdapterRequest struct {
	VSwitchURI string `json:"vswitchURI"`
}

func (m *Manager) CreateManagementAdapter(ctx context.Context, machineID string, vswitch api.VSwitch) (*api.Adapter, error) {
	m.idMu.Lock(machineID)
	defer m.idMu.Unlock(machineID)

	req := createManagementAdapterRequest{VSwitchURI: vswitch.URI}

	adapter := &api.Adapter{}
	if err := m.do(ctx, http.MethodPost, fmt.Sprintf("/machines/%s/management-adapter", machineID), req, adapter); err != nil {
		return nil, fmt.Errorf("failed to create management adapter: %w", err)
	}

	m.log.V(1).Info("Created management adapter", "machineID", machineID, "vswitch", vswitch.Name)
	return adapter, nil
}
