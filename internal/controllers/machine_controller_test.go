// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package controllers_test

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/UbuntuEvangelist/nova-powervm/api"
	"github.com/UbuntuEvangelist/nova-powervm/internal/config"
	"github.com/UbuntuEvangelist/nova-powervm/internal/controllers"
	"github.com/UbuntuEvangelist/nova-powervm/internal/netplug"
	"github.com/UbuntuEvangelist/nova-powervm/internal/pvm/fake"
	"github.com/UbuntuEvangelist/nova-powervm/internal/strategy"
	"github.com/UbuntuEvangelist/nova-powervm/internal/vifevent"
	apiutils "github.com/ironcore-dev/provider-utils/apiutils/api"
	"github.com/ironcore-dev/provider-utils/eventutils/event"
	hostutils "github.com/ironcore-dev/provider-utils/storeutils/host"
	"github.com/ironcore-dev/provider-utils/storeutils/store"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	logf "sigs.k8s.io/controller-runtime/pkg/log"
)

type recordedEvent struct {
	Type    string
	Reason  string
	Message string
}

type fakeRecorder struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (r *fakeRecorder) Eventf(_ apiutils.Metadata, eventType, reason, messageFmt string, args ...interface{}) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, recordedEvent{
		Type:    eventType,
		Reason:  reason,
		Message: fmt.Sprintf(messageFmt, args...),
	})
}

func (r *fakeRecorder) Events() []recordedEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]recordedEvent(nil), r.events...)
}

var _ = Describe("MachineReconciler", func() {
	var (
		machines store.Store[*api.VirtualMachine]
		client   *fake.Client
		hub      *vifevent.Hub
		events   *fakeRecorder
	)

	BeforeEach(func(ctx SpecContext) {
		var err error
		machines, err = hostutils.NewStore[*api.VirtualMachine](hostutils.Options[*api.VirtualMachine]{
			Dir:            filepath.Join(GinkgoT().TempDir(), "machines"),
			NewFunc:        func() *api.VirtualMachine { return &api.VirtualMachine{} },
			CreateStrategy: strategy.VirtualMachineStrategy,
		})
		Expect(err).NotTo(HaveOccurred())

		machineEvents, err := event.NewListWatchSource[*api.VirtualMachine](
			machines.List,
			machines.Watch,
			// A short resync closes the startup race between the spec body
			// creating machines and the watch/handler wiring coming up.
			event.ListWatchSourceOptions{ResyncDuration: 100 * time.Millisecond},
		)
		Expect(err).NotTo(HaveOccurred())

		log := logf.Log.WithName("test")
		hub = vifevent.NewHub(log.WithName("vifevent"))
		client = fake.NewClient()
		// The surrounding network stack confirms each adapter as soon as it
		// is created.
		client.OnCreateAdapter = func(_ string, iface *api.InterfaceSpec) {
			hub.Notify(vifevent.PluggedEvent(iface.ID), false)
		}
		events = &fakeRecorder{}

		plugger := netplug.NewPlugger(client, hub, netplug.PlugOptions{
			Fatal:   true,
			Timeout: 5 * time.Second,
			Mode:    config.ModeEventConfirmed,
		})

		reconciler, err := controllers.NewMachineReconciler(
			log.WithName("machine-reconciler"),
			machines,
			machineEvents,
			events,
			client,
			netplug.NewUnplugger(client),
			plugger,
			netplug.NewManagementPlugger(client),
			controllers.MachineReconcilerOptions{WorkerCount: 1},
		)
		Expect(err).NotTo(HaveOccurred())

		runCtx, cancel := context.WithCancel(context.Background())
		DeferCleanup(cancel)

		go func() {
			defer GinkgoRecover()
			Expect(machineEvents.Start(runCtx)).To(Succeed())
		}()
		go func() {
			defer GinkgoRecover()
			Expect(reconciler.Start(runCtx)).To(Succeed())
		}()
	})

	createMachine := func(ctx SpecContext, ifaces ...*api.InterfaceSpec) *api.VirtualMachine {
		machine, err := machines.Create(ctx, &api.VirtualMachine{
			Metadata: apiutils.Metadata{ID: "machine-1"},
			Spec: api.VirtualMachineSpec{
				Name:              "vm-1",
				NetworkInterfaces: ifaces,
			},
		})
		Expect(err).NotTo(HaveOccurred())
		return machine
	}

	It("should plug desired interfaces and report the machine ready", func(ctx SpecContext) {
		createMachine(ctx,
			&api.InterfaceSpec{ID: "port-1", MACAddress: "aa:bb:cc:dd:ee:01"},
			&api.InterfaceSpec{ID: "port-2", MACAddress: "aa:bb:cc:dd:ee:02"},
		)

		Eventually(ctx, func(g Gomega) {
			machine, err := machines.Get(ctx, "machine-1")
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(machine.Finalizers).To(ContainElement(controllers.MachineFinalizer))
			g.Expect(machine.Status.State).To(Equal(api.VirtualMachineStateReady))
			g.Expect(machine.Status.InterfaceStatus).To(HaveLen(2))
			for _, status := range machine.Status.InterfaceStatus {
				g.Expect(status.State).To(Equal(api.InterfaceStatePlugged))
				g.Expect(status.AdapterURI).NotTo(BeEmpty())
			}
		}).Should(Succeed())

		Expect(client.CreatedMACs()).To(ConsistOf("aa:bb:cc:dd:ee:01", "aa:bb:cc:dd:ee:02"))
	})

	It("should report ready when desired interfaces share a hardware address", func(ctx SpecContext) {
		createMachine(ctx,
			&api.InterfaceSpec{ID: "port-1", MACAddress: "aa:bb:cc:dd:ee:01"},
			&api.InterfaceSpec{ID: "port-1-dup", MACAddress: "AA-BB-CC-DD-EE-01"},
		)

		Eventually(ctx, func(g Gomega) {
			machine, err := machines.Get(ctx, "machine-1")
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(machine.Status.State).To(Equal(api.VirtualMachineStateReady))
			g.Expect(machine.Status.InterfaceStatus).To(HaveLen(2))
			for _, status := range machine.Status.InterfaceStatus {
				g.Expect(status.State).To(Equal(api.InterfaceStatePlugged))
			}
		}).Should(Succeed())

		By("having created a single adapter for the shared address")
		Expect(client.CreatedMACs()).To(HaveLen(1))
	})

	It("should not create adapters that already exist", func(ctx SpecContext) {
		client.SetAdapters("machine-1", []api.Adapter{
			{MACAddress: "AA:BB:CC:DD:EE:01", URI: "/machines/machine-1/adapters/1", VSwitchURI: "/vswitches/data"},
		})

		createMachine(ctx, &api.InterfaceSpec{ID: "port-1", MACAddress: "aa:bb:cc:dd:ee:01"})

		Eventually(ctx, func(g Gomega) {
			machine, err := machines.Get(ctx, "machine-1")
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(machine.Status.State).To(Equal(api.VirtualMachineStateReady))
		}).Should(Succeed())

		Expect(client.CreatedMACs()).To(BeEmpty())
	})

	It("should plug the management interface when a management vswitch exists", func(ctx SpecContext) {
		client.SetManagementVSwitch(&api.VSwitch{Name: "MGMTSWITCH", URI: "/vswitches/mgmt"})

		createMachine(ctx, &api.InterfaceSpec{ID: "port-1", MACAddress: "aa:bb:cc:dd:ee:01"})

		Eventually(ctx, func(g Gomega) {
			machine, err := machines.Get(ctx, "machine-1")
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(machine.Status.ManagementAdapter).NotTo(BeNil())
			g.Expect(machine.Status.ManagementAdapter.VSwitchURI).To(Equal("/vswitches/mgmt"))
		}).Should(Succeed())

		adapters, err := client.ListAdapters(ctx, "machine-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(adapters).To(HaveLen(2))
	})

	It("should not duplicate the management interface across passes", func(ctx SpecContext) {
		client.SetManagementVSwitch(&api.VSwitch{Name: "MGMTSWITCH", URI: "/vswitches/mgmt"})

		machine := createMachine(ctx, &api.InterfaceSpec{ID: "port-1", MACAddress: "aa:bb:cc:dd:ee:01"})

		Eventually(ctx, func(g Gomega) {
			m, err := machines.Get(ctx, machine.ID)
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(m.Status.ManagementAdapter).NotTo(BeNil())
		}).Should(Succeed())

		// Touch the machine to force another pass.
		Eventually(ctx, func(g Gomega) {
			m, err := machines.Get(ctx, machine.ID)
			g.Expect(err).NotTo(HaveOccurred())
			m.Spec.Name = "vm-1-renamed"
			_, err = machines.Update(ctx, m)
			g.Expect(err).NotTo(HaveOccurred())
		}).Should(Succeed())

		Consistently(ctx, func(g Gomega) {
			adapters, err := client.ListAdapters(ctx, machine.ID)
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(adapters).To(HaveLen(2))
		}).Should(Succeed())
	})

	It("should unplug interfaces marked deleted and prune them from the spec", func(ctx SpecContext) {
		createMachine(ctx,
			&api.InterfaceSpec{ID: "port-1", MACAddress: "aa:bb:cc:dd:ee:01"},
			&api.InterfaceSpec{ID: "port-2", MACAddress: "aa:bb:cc:dd:ee:02"},
		)

		Eventually(ctx, func(g Gomega) {
			machine, err := machines.Get(ctx, "machine-1")
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(machine.Status.State).To(Equal(api.VirtualMachineStateReady))
		}).Should(Succeed())

		Eventually(ctx, func(g Gomega) {
			machine, err := machines.Get(ctx, "machine-1")
			g.Expect(err).NotTo(HaveOccurred())
			now := time.Now()
			machine.Spec.NetworkInterfaces[1].DeletedAt = &now
			_, err = machines.Update(ctx, machine)
			g.Expect(err).NotTo(HaveOccurred())
		}).Should(Succeed())

		Eventually(ctx, func(g Gomega) {
			machine, err := machines.Get(ctx, "machine-1")
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(machine.Spec.NetworkInterfaces).To(HaveLen(1))
			g.Expect(machine.Status.InterfaceStatus).To(HaveLen(1))
			g.Expect(machine.Status.State).To(Equal(api.VirtualMachineStateReady))
		}).Should(Succeed())

		Expect(client.DeletedMACs()).To(ConsistOf("aa:bb:cc:dd:ee:02"))
	})

	It("should tear down all adapters when the machine is deleted", func(ctx SpecContext) {
		createMachine(ctx, &api.InterfaceSpec{ID: "port-1", MACAddress: "aa:bb:cc:dd:ee:01"})

		Eventually(ctx, func(g Gomega) {
			machine, err := machines.Get(ctx, "machine-1")
			g.Expect(err).NotTo(HaveOccurred())
			g.Expect(machine.Status.State).To(Equal(api.VirtualMachineStateReady))
		}).Should(Succeed())

		Expect(machines.Delete(ctx, "machine-1")).To(Succeed())

		Eventually(ctx, func(g Gomega) {
			_, err := machines.Get(ctx, "machine-1")
			g.Expect(err).To(MatchError(store.ErrNotFound))
		}).Should(Succeed())

		Expect(client.DeletedMACs()).To(ConsistOf("aa:bb:cc:dd:ee:01"))
	})

	It("should leave the machine pending and emit a warning when io is not modifiable", func(ctx SpecContext) {
		client.SetIOState(api.IOState{Modifiable: false, Reason: "partition is busy"})

		createMachine(ctx, &api.InterfaceSpec{ID: "port-1", MACAddress: "aa:bb:cc:dd:ee:01"})

		Eventually(ctx, func(g Gomega) {
			var reasons []string
			for _, evt := range events.Events() {
				reasons = append(reasons, evt.Reason)
			}
			g.Expect(reasons).To(ContainElement("PlugFailed"))
		}).Should(Succeed())

		Expect(client.CreatedMACs()).To(BeEmpty())

		machine, err := machines.Get(ctx, "machine-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(machine.Status.State).NotTo(Equal(api.VirtualMachineStateReady))
	})
})
