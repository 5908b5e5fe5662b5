// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package netplug_test

import (
	"time"

	"github.com/UbuntuEvangelist/nova-powervm/api"
	"github.com/UbuntuEvangelist/nova-powervm/internal/config"
	"github.com/UbuntuEvangelist/nova-powervm/internal/netplug"
	"github.com/UbuntuEvangelist/nova-powervm/internal/pvm/fake"
	"github.com/UbuntuEvangelist/nova-powervm/internal/vifevent"
	"github.com/go-logr/logr"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Plugger", func() {
	const machineID = "machine-1"

	var (
		client *fake.Client
		hub    *vifevent.Hub

		modifiable = api.IOState{Modifiable: true}
	)

	BeforeEach(func() {
		client = fake.NewClient()
		hub = vifevent.NewHub(logr.Discard())
	})

	newPlugger := func(opts netplug.PlugOptions) *netplug.Plugger {
		return netplug.NewPlugger(client, hub, opts)
	}

	confirmed := netplug.PlugOptions{
		Fatal:   true,
		Timeout: 5 * time.Second,
		Mode:    config.ModeEventConfirmed,
	}

	// Lets the fake network stack confirm every created interface.
	confirmOnCreate := func() {
		client.OnCreateAdapter = func(_ string, iface *api.InterfaceSpec) {
			hub.Notify(vifevent.PluggedEvent(iface.ID), false)
		}
	}

	It("should create only the interfaces without a matching adapter", func(ctx SpecContext) {
		client.SetAdapters(machineID, []api.Adapter{
			{MACAddress: "AA:BB:CC:DD:EE:01", URI: "/machines/machine-1/adapters/1"},
		})
		confirmOnCreate()

		adapters, err := newPlugger(confirmed).Plug(ctx, machineID, modifiable, []*api.InterfaceSpec{
			{ID: "port-1", MACAddress: "aa:bb:cc:dd:ee:01"},
			{ID: "port-2", MACAddress: "CC:DD:EE:FF:00:01"},
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(client.CreatedMACs()).To(Equal([]string{"CC:DD:EE:FF:00:01"}))

		By("returning the pre-creation adapter list")
		Expect(adapters).To(HaveLen(1))
		Expect(netplug.NormalizeMAC(adapters[0].MACAddress)).To(Equal("aa:bb:cc:dd:ee:01"))
	})

	It("should short-circuit without a state check when nothing needs creation", func(ctx SpecContext) {
		client.SetAdapters(machineID, []api.Adapter{
			{MACAddress: "AA:BB:CC:DD:EE:01", URI: "/machines/machine-1/adapters/1"},
		})

		adapters, err := newPlugger(confirmed).Plug(ctx, machineID,
			api.IOState{Modifiable: false, Reason: "partition is busy"},
			[]*api.InterfaceSpec{{ID: "port-1", MACAddress: "AA:BB:CC:DD:EE:01"}},
		)
		Expect(err).NotTo(HaveOccurred())
		Expect(adapters).To(BeEmpty())
		Expect(client.CreatedMACs()).To(BeEmpty())
	})

	It("should perform zero creations on a second run", func(ctx SpecContext) {
		confirmOnCreate()
		desired := []*api.InterfaceSpec{{ID: "port-1", MACAddress: "AA:BB:CC:DD:EE:01"}}
		plugger := newPlugger(confirmed)

		_, err := plugger.Plug(ctx, machineID, modifiable, desired)
		Expect(err).NotTo(HaveOccurred())
		Expect(client.CreatedMACs()).To(HaveLen(1))

		_, err = plugger.Plug(ctx, machineID, modifiable, desired)
		Expect(err).NotTo(HaveOccurred())
		Expect(client.CreatedMACs()).To(HaveLen(1))
	})

	It("should fail without creating when the machine is not modifiable", func(ctx SpecContext) {
		_, err := newPlugger(confirmed).Plug(ctx, machineID,
			api.IOState{Modifiable: false, Reason: "partition is busy"},
			[]*api.InterfaceSpec{{ID: "port-1", MACAddress: "AA:BB:CC:DD:EE:01"}},
		)
		Expect(err).To(MatchError(netplug.ErrNotModifiable))
		Expect(client.CreatedMACs()).To(BeEmpty())
	})

	It("should create one adapter for a duplicated desired address", func(ctx SpecContext) {
		confirmOnCreate()

		_, err := newPlugger(confirmed).Plug(ctx, machineID, modifiable, []*api.InterfaceSpec{
			{ID: "port-1", MACAddress: "AA:BB:CC:DD:EE:01"},
			{ID: "port-1-dup", MACAddress: "aa-bb-cc-dd-ee-01"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(client.CreatedMACs()).To(HaveLen(1))
	})

	It("should fail with a timeout when corroboration never arrives", func(ctx SpecContext) {
		opts := confirmed
		opts.Timeout = 50 * time.Millisecond

		_, err := newPlugger(opts).Plug(ctx, machineID, modifiable, []*api.InterfaceSpec{
			{ID: "port-1", MACAddress: "AA:BB:CC:DD:EE:01"},
		})
		Expect(err).To(MatchError(netplug.ErrCorroborationTimeout))

		By("having created the adapter before the deadline elapsed")
		Expect(client.CreatedMACs()).To(HaveLen(1))
	})

	It("should fail when a readiness event reports failure under the fatal policy", func(ctx SpecContext) {
		client.OnCreateAdapter = func(_ string, iface *api.InterfaceSpec) {
			hub.Notify(vifevent.PluggedEvent(iface.ID), true)
		}

		_, err := newPlugger(confirmed).Plug(ctx, machineID, modifiable, []*api.InterfaceSpec{
			{ID: "port-1", MACAddress: "AA:BB:CC:DD:EE:01"},
		})
		Expect(err).To(MatchError(netplug.ErrCorroborationFailed))
	})

	It("should not wait for events when the fatal policy is disabled", func(ctx SpecContext) {
		opts := netplug.PlugOptions{
			Fatal:   false,
			Timeout: 50 * time.Millisecond,
			Mode:    config.ModeEventConfirmed,
		}

		_, err := newPlugger(opts).Plug(ctx, machineID, modifiable, []*api.InterfaceSpec{
			{ID: "port-1", MACAddress: "AA:BB:CC:DD:EE:01"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(client.CreatedMACs()).To(HaveLen(1))
	})

	It("should not wait for events in unconfirmed networking mode", func(ctx SpecContext) {
		opts := netplug.PlugOptions{
			Fatal:   true,
			Timeout: 50 * time.Millisecond,
			Mode:    config.ModeUnconfirmed,
		}

		_, err := newPlugger(opts).Plug(ctx, machineID, modifiable, []*api.InterfaceSpec{
			{ID: "port-1", MACAddress: "AA:BB:CC:DD:EE:01"},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(client.CreatedMACs()).To(HaveLen(1))
	})

	It("should not wait for interfaces the network stack reports active", func(ctx SpecContext) {
		opts := confirmed
		opts.Timeout = 50 * time.Millisecond

		_, err := newPlugger(opts).Plug(ctx, machineID, modifiable, []*api.InterfaceSpec{
			{ID: "port-1", MACAddress: "AA:BB:CC:DD:EE:01", Active: true},
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(client.CreatedMACs()).To(HaveLen(1))
	})
})
