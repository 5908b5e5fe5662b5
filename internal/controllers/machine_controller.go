// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package controllers

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/UbuntuEvangelist/nova-powervm/api"
	"github.com/UbuntuEvangelist/nova-powervm/internal/netplug"
	"github.com/UbuntuEvangelist/nova-powervm/internal/pvm"
	"github.com/go-logr/logr"
	"github.com/ironcore-dev/provider-utils/eventutils/event"
	"github.com/ironcore-dev/provider-utils/eventutils/recorder"
	"github.com/ironcore-dev/provider-utils/storeutils/store"
	"github.com/ironcore-dev/provider-utils/storeutils/utils"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/client-go/util/workqueue"
)

const (
	MachineFinalizer = "machine"
)

type MachineReconcilerOptions struct {
	// WorkerCount is the number of concurrent reconcile workers. Workqueue
	// keying still guarantees at most one pass at a time per machine.
	WorkerCount int
}

func NewMachineReconciler(
	log logr.Logger,
	machines store.Store[*api.VirtualMachine],
	machineEvents event.Source[*api.VirtualMachine],
	eventRecorder recorder.EventRecorder,
	client pvm.Client,
	unplugger *netplug.Unplugger,
	plugger *netplug.Plugger,
	managementPlugger *netplug.ManagementPlugger,
	opts MachineReconcilerOptions,
) (*MachineReconciler, error) {
	if machines == nil {
		return nil, fmt.Errorf("must specify machine store")
	}

	if machineEvents == nil {
		return nil, fmt.Errorf("must specify machine events")
	}

	if opts.WorkerCount == 0 {
		opts.WorkerCount = 5
	}

	return &MachineReconciler{
		log: log,
		queue: workqueue.NewTypedRateLimitingQueue[string](
			workqueue.DefaultTypedControllerRateLimiter[string](),
		),
		machines:          machines,
		machineEvents:     machineEvents,
		EventRecorder:     eventRecorder,
		client:            client,
		unplugger:         unplugger,
		plugger:           plugger,
		managementPlugger: managementPlugger,
		workerCount:       opts.WorkerCount,
	}, nil
}

type MachineReconciler struct {
	log   logr.Logger
	queue workqueue.TypedRateLimitingInterface[string]

	client pvm.Client

	unplugger         *netplug.Unplugger
	plugger           *netplug.Plugger
	managementPlugger *netplug.ManagementPlugger

	machines      store.Store[*api.VirtualMachine]
	machineEvents event.Source[*api.VirtualMachine]

	workerCount int

	recorder.EventRecorder
}

func (r *MachineReconciler) Start(ctx context.Context) error {
	log := r.log

	machineEventHandlerRegistration, err := r.machineEvents.AddHandler(
		event.HandlerFunc[*api.VirtualMachine](func(evt event.Event[*api.VirtualMachine]) {
			r.queue.Add(evt.Object.ID)
		}))
	if err != nil {
		return err
	}
	defer func() {
		if err = r.machineEvents.RemoveHandler(machineEventHandlerRegistration); err != nil {
			log.Error(err, "failed to remove machine event handler")
		}
	}()

	var wg sync.WaitGroup
	go func() {
		<-ctx.Done()
		r.queue.ShutDown()
	}()

	for i := 0; i < r.workerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for r.processNextWorkItem(ctx, log) {
			}
		}()
	}

	wg.Wait()
	return nil
}

func (r *MachineReconciler) processNextWorkItem(ctx context.Context, log logr.Logger) bool {
	id, shutdown := r.queue.Get()
	if shutdown {
		return false
	}
	defer r.queue.Done(id)

	log = log.WithValues("machineID", id)
	ctx = logr.NewContext(ctx, log)

	if err := r.reconcileMachine(ctx, id); err != nil {
		log.Error(err, "failed to reconcile machine")
		r.queue.AddRateLimited(id)
		return true
	}

	r.queue.Forget(id)
	return true
}

func (r *MachineReconciler) reconcileMachine(ctx context.Context, id string) error {
	log := logr.FromContextOrDiscard(ctx)

	log.V(2).Info("Getting machine from store", "id", id)
	machine, err := r.machines.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("failed to fetch machine from store: %w", err)
		}

		return nil
	}

	if machine.DeletedAt != nil {
		return r.deleteMachine(ctx, log, machine)
	}

	if !slices.Contains(machine.Finalizers, MachineFinalizer) {
		machine.Finalizers = append(machine.Finalizers, MachineFinalizer)
		if _, err := r.machines.Update(ctx, machine); err != nil {
			return fmt.Errorf("failed to set finalizers: %w", err)
		}
		return nil
	}

	var toRemove, desired []*api.InterfaceSpec
	for _, iface := range machine.Spec.NetworkInterfaces {
		if iface.DeletedAt != nil {
			toRemove = append(toRemove, iface)
			continue
		}
		desired = append(desired, iface)
	}

	if len(toRemove) > 0 {
		state, err := r.client.IOState(ctx, machine.ID)
		if err != nil {
			return fmt.Errorf("failed to get io state: %w", err)
		}

		if _, err := r.unplugger.Unplug(ctx, machine.ID, state, toRemove); err != nil {
			r.Eventf(machine.Metadata, corev1.EventTypeWarning, "UnplugFailed",
				"Failed to unplug %d interface(s): %v", len(toRemove), err)
			return fmt.Errorf("failed to unplug interfaces: %w", err)
		}

		machine.Spec.NetworkInterfaces = desired
		machine, err = r.machines.Update(ctx, machine)
		if err != nil {
			return fmt.Errorf("failed to update machine: %w", err)
		}
		r.Eventf(machine.Metadata, corev1.EventTypeNormal, "UnpluggedInterfaces",
			"Unplugged %d interface(s)", len(toRemove))
	}

	// The machine may have changed hardware state since the unplug stage;
	// each mutating stage gets a fresh snapshot.
	state, err := r.client.IOState(ctx, machine.ID)
	if err != nil {
		return fmt.Errorf("failed to get io state: %w", err)
	}

	preCreation, err := r.plugger.Plug(ctx, machine.ID, state, desired)
	if err != nil {
		r.Eventf(machine.Metadata, corev1.EventTypeWarning, "PlugFailed",
			"Failed to plug interface(s): %v", err)
		return fmt.Errorf("failed to plug interfaces: %w", err)
	}

	// An empty result means the plug stage had nothing to diff against for
	// the management duplicate check; hand it a fresh list instead.
	adapterList := preCreation
	if len(adapterList) == 0 {
		adapterList, err = r.client.ListAdapters(ctx, machine.ID)
		if err != nil {
			return fmt.Errorf("failed to list adapters: %w", err)
		}
	}

	managementAdapter, err := r.managementPlugger.PlugManagement(ctx, machine.ID, adapterList)
	if err != nil {
		r.Eventf(machine.Metadata, corev1.EventTypeWarning, "PlugManagementFailed",
			"Failed to plug management interface: %v", err)
		return fmt.Errorf("failed to plug management interface: %w", err)
	}
	if managementAdapter != nil {
		machine.Status.ManagementAdapter = managementAdapter
		r.Eventf(machine.Metadata, corev1.EventTypeNormal, "PluggedManagementInterface",
			"Plugged management interface %s", managementAdapter.URI)
	}

	if err := r.updateStatus(ctx, machine, desired); err != nil {
		return fmt.Errorf("failed to update machine status: %w", err)
	}

	log.V(1).Info("Successfully reconciled machine", "machineID", machine.ID)
	return nil
}

func (r *MachineReconciler) deleteMachine(
	ctx context.Context,
	log logr.Logger,
	machine *api.VirtualMachine,
) error {
	if !slices.Contains(machine.Finalizers, MachineFinalizer) {
		return nil
	}

	state, err := r.client.IOState(ctx, machine.ID)
	if err != nil {
		return fmt.Errorf("failed to get io state: %w", err)
	}

	if _, err := r.unplugger.Unplug(ctx, machine.ID, state, machine.Spec.NetworkInterfaces); err != nil {
		return fmt.Errorf("failed to unplug interfaces: %w", err)
	}

	machine.Finalizers = utils.DeleteSliceElement(machine.Finalizers, MachineFinalizer)
	if _, err := r.machines.Update(ctx, machine); store.IgnoreErrNotFound(err) != nil {
		return fmt.Errorf("failed to remove finalizers: %w", err)
	}

	log.V(1).Info("Successfully torn down machine", "machineID", machine.ID)
	return nil
}

func (r *MachineReconciler) updateStatus(
	ctx context.Context,
	machine *api.VirtualMachine,
	desired []*api.InterfaceSpec,
) error {
	adapters, err := r.client.ListAdapters(ctx, machine.ID)
	if err != nil {
		return fmt.Errorf("failed to list adapters: %w", err)
	}

	byMAC := make(map[string]api.Adapter, len(adapters))
	for _, adapter := range adapters {
		byMAC[netplug.NormalizeMAC(adapter.MACAddress)] = adapter
	}

	plugged := 0
	statuses := make([]api.InterfaceStatus, 0, len(desired))
	for _, iface := range desired {
		mac := netplug.NormalizeMAC(iface.MACAddress)

		status := api.InterfaceStatus{
			ID:         iface.ID,
			MACAddress: mac,
			State:      api.InterfaceStatePending,
		}
		if adapter, ok := byMAC[mac]; ok {
			status.AdapterURI = adapter.URI
			status.State = api.InterfaceStatePlugged
			plugged++
		}
		statuses = append(statuses, status)
	}

	machine.Status.InterfaceStatus = statuses
	machine.Status.State = api.VirtualMachineStateReady
	if plugged != len(statuses) {
		machine.Status.State = api.VirtualMachineStatePending
	}

	if _, err := r.machines.Update(ctx, machine); err != nil {
		return fmt.Errorf("failed to update machine: %w", err)
	}
	return nil
}
