// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package api

import "time"

// InterfaceSpec is one desired virtual network interface of a machine. It is
// owned by the caller and immutable for the duration of a reconciliation
// pass; adapters are matched against it by normalized MAC address only.
type InterfaceSpec struct {
	// ID is the identifier of the port in the surrounding network stack.
	ID string `json:"id"`

	MACAddress string `json:"macAddress"`

	// Active reports whether the network stack already considers the port
	// active. Inactive ports are corroborated by a readiness event after
	// the adapter is created.
	Active bool `json:"active"`

	Attributes map[string]string `json:"attributes,omitempty"`

	DeletedAt *time.Time `json:"deletedAt,omitempty"`
}

type InterfaceStatus struct {
	ID         string         `json:"id"`
	MACAddress string         `json:"macAddress"`
	AdapterURI string         `json:"adapterURI,omitempty"`
	State      InterfaceState `json:"state"`
}

type InterfaceState string

const (
	InterfaceStatePending InterfaceState = "Pending"
	InterfaceStatePlugged InterfaceState = "Plugged"
)
