// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/UbuntuEvangelist/nova-powervm/cmd/powervm-provider/app"
	ctrl "sigs.k8s.io/controller-runtime"
)

func main() {
	ctx := ctrl.SetupSignalHandler()
	if err := app.Command().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
