// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package pvm

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"time"

	"k8s.io/apimachinery/pkg/util/wait"
)

func newUnixSocketClient(socketPath string) *http.Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			return net.Dial("unix", socketPath)
		},
	}

	return &http.Client{
		Transport: transport,
	}
}

func isSocketPresent(socketPath string) (bool, error) {
	stat, err := os.Stat(socketPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return false, err
		}
		return false, nil
	}
	return stat.Mode()&os.ModeSocket != 0, nil
}

// WaitForSocket blocks until the management endpoint socket exists or the
// timeout elapses. Only meaningful when the manager was configured with a
// unix socket.
func WaitForSocket(ctx context.Context, socketPath string, timeout time.Duration) error {
	return wait.PollUntilContextTimeout(ctx, 100*time.Millisecond, timeout, true,
		func(ctx context.Context) (bool, error) {
			return isSocketPresent(socketPath)
		})
}
