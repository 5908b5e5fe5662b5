// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package api

// Adapter is a live hypervisor-side client network adapter bound to a
// machine. It exists only as long as the hypervisor reports it; a handle
// returned from a pass in which the adapter was deleted is stale.
type Adapter struct {
	MACAddress string `json:"macAddress"`
	URI        string `json:"uri"`
	VSwitchURI string `json:"vswitchURI"`
}

// IOState is a snapshot of whether the machine currently accepts I/O
// configuration changes. It must be fetched fresh per operation.
type IOState struct {
	Modifiable bool   `json:"modifiable"`
	Reason     string `json:"reason,omitempty"`
}

// VSwitch references a virtual switch on the host.
type VSwitch struct {
	Name string `json:"name"`
	URI  string `json:"uri"`
}
