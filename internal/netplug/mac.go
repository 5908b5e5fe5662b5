// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package netplug

import "strings"

// NormalizeMAC returns the canonical lower-case, colon-separated form of a
// hardware address. Case and separator variance ("AABBCCDDEEFF",
// "AA-BB-CC-DD-EE-FF", "aa:bb:cc:dd:ee:ff") normalize to the same value.
// Every MAC comparison in this package routes through it.
func NormalizeMAC(mac string) string {
	cleaned := strings.ToLower(strings.Map(func(r rune) rune {
		switch r {
		case ':', '-', '.':
			return -1
		}
		return r
	}, mac))

	if len(cleaned) != 12 {
		return cleaned
	}

	parts := make([]string, 0, 6)
	for i := 0; i < len(cleaned); i += 2 {
		parts = append(parts, cleaned[i:i+2])
	}
	return strings.Join(parts, ":")
}
