// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package api

import (
	apiutils "github.com/ironcore-dev/provider-utils/apiutils/api"
)

type VirtualMachine struct {
	apiutils.Metadata `json:"metadata,omitempty"`

	Spec   VirtualMachineSpec   `json:"spec"`
	Status VirtualMachineStatus `json:"status"`
}

type VirtualMachineSpec struct {
	Name string `json:"name"`

	NetworkInterfaces []*InterfaceSpec `json:"networkInterfaces"`
}

type VirtualMachineStatus struct {
	State             VirtualMachineState `json:"state"`
	InterfaceStatus   []InterfaceStatus   `json:"interfaceStatus"`
	ManagementAdapter *Adapter            `json:"managementAdapter,omitempty"`
}

type VirtualMachineState string

const (
	VirtualMachineStatePending VirtualMachineState = "Pending"
	VirtualMachineStateReady   VirtualMachineState = "Ready"
)
