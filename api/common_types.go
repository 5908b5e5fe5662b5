// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package api

const (
	LabelsAnnotation = "powervm-provider.nova-powervm.io/labels"

	AnnotationsAnnotation = "powervm-provider.nova-powervm.io/annotations"
)

const (
	ManagerLabel = "powervm-provider.nova-powervm.io/manager"
)

const (
	MachineManager = "powervm-provider"
)
