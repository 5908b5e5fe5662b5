// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package app

import (
	"context"
	"errors"
	goflag "flag"
	"fmt"
	"net"
	"net/http"
	"path/filepath"
	"time"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/UbuntuEvangelist/nova-powervm/api"
	"github.com/UbuntuEvangelist/nova-powervm/internal/config"
	"github.com/UbuntuEvangelist/nova-powervm/internal/controllers"
	"github.com/UbuntuEvangelist/nova-powervm/internal/manifest"
	"github.com/UbuntuEvangelist/nova-powervm/internal/netplug"
	"github.com/UbuntuEvangelist/nova-powervm/internal/pvm"
	"github.com/UbuntuEvangelist/nova-powervm/internal/server"
	"github.com/UbuntuEvangelist/nova-powervm/internal/strategy"
	"github.com/UbuntuEvangelist/nova-powervm/internal/vifevent"
	"github.com/ironcore-dev/ironcore/broker/common"
	"github.com/ironcore-dev/provider-utils/eventutils/event"
	hostutils "github.com/ironcore-dev/provider-utils/storeutils/host"

	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

type Options struct {
	ConfigFile string

	MachineManifestDir string
	StoreDir           string

	EventAddress string

	PVMSocket  string
	PVMAddress string

	WorkerCount int
}

func (o *Options) AddFlags(fs *pflag.FlagSet) {
	fs.StringVar(&o.ConfigFile, "config", "", "Path to the provider config file.")
	fs.StringVar(&o.MachineManifestDir, "machine-manifest-dir", "/etc/powervm-provider/machines",
		"Directory of machine manifests to sync.")
	fs.StringVar(&o.StoreDir, "store-dir", "/var/lib/powervm-provider",
		"Directory for the machine record store.")
	fs.StringVar(&o.EventAddress, "event-address", "/var/run/powervm-provider-events.sock",
		"Unix socket to receive external readiness events on.")
	fs.StringVar(&o.PVMSocket, "pvm-socket", "",
		"Unix socket of the PowerVM management endpoint.")
	fs.StringVar(&o.PVMAddress, "pvm-address", "http://localhost:12080/api/v1",
		"HTTP address of the PowerVM management endpoint, used when no socket is set.")
	fs.IntVar(&o.WorkerCount, "workers", 5, "Number of reconcile workers.")
}

func Command() *cobra.Command {
	var (
		zapOpts = zap.Options{Development: true}
		opts    Options
	)

	cmd := &cobra.Command{
		Use: "powervm-provider",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger := zap.New(zap.UseFlagOptions(&zapOpts))
			ctrl.SetLogger(logger)
			cmd.SetContext(ctrl.LoggerInto(cmd.Context(), ctrl.Log))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return Run(cmd.Context(), opts)
		},
	}

	goFlags := goflag.NewFlagSet("", 0)
	zapOpts.BindFlags(goFlags)
	cmd.PersistentFlags().AddGoFlagSet(goFlags)

	opts.AddFlags(cmd.Flags())

	return cmd
}

func Run(ctx context.Context, opts Options) error {
	log := ctrl.LoggerFrom(ctx)
	setupLog := log.WithName("setup")

	cfg := config.Default()
	if opts.ConfigFile != "" {
		var err error
		cfg, err = config.LoadFromFile(opts.ConfigFile)
		if err != nil {
			return fmt.Errorf("error loading config: %w", err)
		}
	}

	machineStore, err := hostutils.NewStore[*api.VirtualMachine](hostutils.Options[*api.VirtualMachine]{
		Dir:            filepath.Join(opts.StoreDir, "machines"),
		NewFunc:        func() *api.VirtualMachine { return &api.VirtualMachine{} },
		CreateStrategy: strategy.VirtualMachineStrategy,
	})
	if err != nil {
		return fmt.Errorf("error creating machine store: %w", err)
	}

	machineEvents, err := event.NewListWatchSource[*api.VirtualMachine](
		machineStore.List,
		machineStore.Watch,
		event.ListWatchSourceOptions{},
	)
	if err != nil {
		return fmt.Errorf("error creating machine events: %w", err)
	}

	hub := vifevent.NewHub(log.WithName("vifevent"))

	client := pvm.NewManager(pvm.ManagerOptions{
		Socket:  opts.PVMSocket,
		Address: opts.PVMAddress,
		Logger:  log.WithName("pvm"),
	})
	if opts.PVMSocket != "" {
		setupLog.V(1).Info("Waiting for management endpoint socket", "path", opts.PVMSocket)
		if err := pvm.WaitForSocket(ctx, opts.PVMSocket, 30*time.Second); err != nil {
			return fmt.Errorf("error waiting for management endpoint socket: %w", err)
		}
	}

	plugger := netplug.NewPlugger(client, hub, netplug.PlugOptions{
		Fatal:   *cfg.PluggingIsFatal,
		Timeout: cfg.PluggingTimeout.Duration(),
		Mode:    cfg.NetworkingMode,
	})

	reconciler, err := controllers.NewMachineReconciler(
		log.WithName("machine-reconciler"),
		machineStore,
		machineEvents,
		&logRecorder{log: log.WithName("events")},
		client,
		netplug.NewUnplugger(client),
		plugger,
		netplug.NewManagementPlugger(client),
		controllers.MachineReconcilerOptions{WorkerCount: opts.WorkerCount},
	)
	if err != nil {
		return fmt.Errorf("error creating machine reconciler: %w", err)
	}

	syncer, err := manifest.NewSyncer(
		log.WithName("manifest-syncer"),
		opts.MachineManifestDir,
		machineStore,
		manifest.SyncerOptions{},
	)
	if err != nil {
		return fmt.Errorf("error creating manifest syncer: %w", err)
	}

	srv, err := server.New(log.WithName("event-server"), hub)
	if err != nil {
		return fmt.Errorf("error creating event server: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		setupLog.Info("Starting machine events")
		return machineEvents.Start(ctx)
	})
	g.Go(func() error {
		setupLog.Info("Starting manifest syncer", "dir", opts.MachineManifestDir)
		return syncer.Start(ctx)
	})
	g.Go(func() error {
		setupLog.Info("Starting machine reconciler")
		return reconciler.Start(ctx)
	})
	g.Go(func() error {
		return RunEventServer(ctx, setupLog, srv, opts.EventAddress)
	})
	return g.Wait()
}

// RunEventServer serves the external readiness-event intake on a unix
// socket until the context is cancelled.
func RunEventServer(ctx context.Context, setupLog logr.Logger, srv *server.Server, address string) error {
	setupLog.V(1).Info("Cleaning up any previous socket")
	if err := common.CleanupSocketIfExists(address); err != nil {
		return fmt.Errorf("error cleaning up socket: %w", err)
	}

	l, err := net.Listen("unix", address)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	httpSrv := &http.Server{
		Handler: srv.Handler(),
	}

	setupLog.Info("Starting event server", "Address", address)
	go func() {
		<-ctx.Done()
		setupLog.Info("Shutting down event server")
		_ = httpSrv.Shutdown(context.Background())
		setupLog.Info("Shut down event server")
	}()
	if err := httpSrv.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("error serving events: %w", err)
	}
	return nil
}
