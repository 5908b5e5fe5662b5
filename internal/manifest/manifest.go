// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"fmt"
	"net"
	"os"

	"github.com/UbuntuEvangelist/nova-powervm/api"
	"gopkg.in/yaml.v3"
)

// Machine is the on-disk description of one virtual machine's desired
// interface set.
type Machine struct {
	// ID is the machine identifier. Minted on first sync when empty.
	ID string `yaml:"id,omitempty"`

	Name string `yaml:"name"`

	NetworkInterfaces []Interface `yaml:"networkInterfaces"`

	Labels      map[string]string `yaml:"labels,omitempty"`
	Annotations map[string]string `yaml:"annotations,omitempty"`
}

type Interface struct {
	// ID is the port identifier in the surrounding network stack.
	ID string `yaml:"id"`

	MACAddress string `yaml:"macAddress"`

	// Active marks the port as already active in the network stack, which
	// skips readiness corroboration for it.
	Active bool `yaml:"active,omitempty"`

	Attributes map[string]string `yaml:"attributes,omitempty"`
}

// LoadFromFile reads and validates a machine manifest.
func LoadFromFile(path string) (*Machine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Machine
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("invalid manifest: %w", err)
	}

	return &m, nil
}

func (m *Machine) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("name is required")
	}

	for i, iface := range m.NetworkInterfaces {
		if iface.ID == "" {
			return fmt.Errorf("networkInterfaces[%d]: id is required", i)
		}
		if _, err := net.ParseMAC(iface.MACAddress); err != nil {
			return fmt.Errorf("networkInterfaces[%d] (%s): invalid macAddress: %w", i, iface.ID, err)
		}
	}

	return nil
}

// InterfaceSpecs converts the manifest interfaces into the store
// representation.
func (m *Machine) InterfaceSpecs() []*api.InterfaceSpec {
	specs := make([]*api.InterfaceSpec, 0, len(m.NetworkInterfaces))
	for _, iface := range m.NetworkInterfaces {
		specs = append(specs, &api.InterfaceSpec{
			ID:         iface.ID,
			MACAddress: iface.MACAddress,
			Active:     iface.Active,
			Attributes: iface.Attributes,
		})
	}
	return specs
}
