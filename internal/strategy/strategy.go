// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package strategy

import (
	"github.com/UbuntuEvangelist/nova-powervm/api"
)

var VirtualMachineStrategy = virtualMachineStrategy{}

type virtualMachineStrategy struct{}

func (virtualMachineStrategy) PrepareForCreate(obj *api.VirtualMachine) {
	obj.Status = api.VirtualMachineStatus{State: api.VirtualMachineStatePending}
}
