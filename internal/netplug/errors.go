// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package netplug

import "errors"

var (
	// ErrNotModifiable is returned when the machine refuses I/O
	// configuration changes. No mutation has been attempted.
	ErrNotModifiable = errors.New("machine does not allow I/O configuration changes")

	// ErrDeletionFailed is returned when deleting a single adapter failed.
	// Adapters deleted earlier in the same pass stay deleted.
	ErrDeletionFailed = errors.New("adapter deletion failed")

	// ErrCorroborationFailed is returned when a readiness event reported
	// failure and the fatal plugging policy is enabled.
	ErrCorroborationFailed = errors.New("interface readiness corroboration failed")

	// ErrCorroborationTimeout is returned when the plugging deadline
	// elapsed before all readiness events arrived.
	ErrCorroborationTimeout = errors.New("timed out waiting for interface readiness")
)
