// SPDX-FileCopyrightText: 2026 nova-powervm authors
// SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/UbuntuEvangelist/nova-powervm/api"
	"github.com/UbuntuEvangelist/nova-powervm/internal/netplug"
	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/ironcore-dev/controller-utils/metautils"
	"github.com/ironcore-dev/ironcore/broker/common/idgen"
	apiutils "github.com/ironcore-dev/provider-utils/apiutils/api"
	"github.com/ironcore-dev/provider-utils/storeutils/store"
	"github.com/ironcore-dev/provider-utils/storeutils/utils"
	"k8s.io/apimachinery/pkg/util/sets"
)

const (
	// FileAnnotation carries the manifest file a machine record was synced
	// from, so records re-associate with their files across restarts.
	FileAnnotation = "powervm-provider.nova-powervm.io/manifest-file"
)

type SyncerOptions struct {
	IDGen idgen.IDGen
}

func setSyncerOptionsDefaults(o *SyncerOptions) {
	if o.IDGen == nil {
		o.IDGen = utils.IdGenerateFunc(uuid.NewString)
	}
}

// Syncer keeps the machine store in step with a directory of YAML machine
// manifests. Interfaces dropped from a manifest are marked deleted rather
// than removed so the reconciler unplugs them first; removing a manifest
// file deletes the machine record.
type Syncer struct {
	log logr.Logger
	dir string

	idGen    idgen.IDGen
	machines store.Store[*api.VirtualMachine]
}

func NewSyncer(
	log logr.Logger,
	dir string,
	machines store.Store[*api.VirtualMachine],
	opts SyncerOptions,
) (*Syncer, error) {
	if machines == nil {
		return nil, fmt.Errorf("must specify machine store")
	}

	setSyncerOptionsDefaults(&opts)

	return &Syncer{
		log:      log,
		dir:      dir,
		idGen:    opts.IDGen,
		machines: machines,
	}, nil
}

func (s *Syncer) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create manifest watcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("failed to watch manifest dir %s: %w", s.dir, err)
	}

	if err := s.syncAll(ctx); err != nil {
		return fmt.Errorf("initial manifest sync failed: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			s.handleEvent(ctx, ev)
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.log.Error(err, "manifest watcher error")
		}
	}
}

func isManifestFile(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}

func (s *Syncer) handleEvent(ctx context.Context, ev fsnotify.Event) {
	if !isManifestFile(ev.Name) {
		return
	}

	log := s.log.WithValues("file", ev.Name)

	switch {
	case ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename):
		if err := s.removeMachine(ctx, ev.Name); err != nil {
			log.Error(err, "failed to remove machine for manifest")
		}
	case ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Write):
		if err := s.syncFile(ctx, ev.Name); err != nil {
			log.Error(err, "failed to sync manifest")
		}
	}
}

func (s *Syncer) syncAll(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("failed to read manifest dir: %w", err)
	}

	present := sets.New[string]()
	for _, entry := range entries {
		if entry.IsDir() || !isManifestFile(entry.Name()) {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		present.Insert(filepath.Base(path))
		if err := s.syncFile(ctx, path); err != nil {
			s.log.Error(err, "failed to sync manifest", "file", path)
		}
	}

	// Machines whose manifest disappeared while the provider was down.
	machines, err := s.machines.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list machines: %w", err)
	}
	for _, machine := range machines {
		if !api.IsManagedBy(machine, api.MachineManager) {
			continue
		}

		file, ok := machine.Annotations[FileAnnotation]
		if !ok || present.Has(file) || machine.DeletedAt != nil {
			continue
		}

		s.log.V(1).Info("Manifest gone, deleting machine", "machineID", machine.ID, "file", file)
		if err := s.machines.Delete(ctx, machine.ID); store.IgnoreErrNotFound(err) != nil {
			return fmt.Errorf("failed to delete machine %s: %w", machine.ID, err)
		}
	}

	return nil
}

func (s *Syncer) syncFile(ctx context.Context, path string) error {
	m, err := LoadFromFile(path)
	if err != nil {
		return err
	}

	machine, err := s.findByFile(ctx, filepath.Base(path))
	if err != nil {
		return err
	}

	if machine == nil {
		return s.createMachine(ctx, path, m)
	}
	return s.updateMachine(ctx, machine, m)
}

func (s *Syncer) createMachine(ctx context.Context, path string, m *Machine) error {
	id := m.ID
	if id == "" {
		id = s.idGen.Generate()
	}

	machine := &api.VirtualMachine{
		Metadata: apiutils.Metadata{
			ID: id,
		},
		Spec: api.VirtualMachineSpec{
			Name:              m.Name,
			NetworkInterfaces: m.InterfaceSpecs(),
		},
	}
	metautils.SetAnnotation(machine, FileAnnotation, filepath.Base(path))
	api.SetManagerLabel(machine, api.MachineManager)
	if err := setManifestMetadata(machine, m); err != nil {
		return err
	}

	if _, err := s.machines.Create(ctx, machine); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil
		}
		return fmt.Errorf("failed to create machine: %w", err)
	}

	s.log.V(1).Info("Created machine from manifest", "machineID", id, "name", m.Name)
	return nil
}

// setManifestMetadata carries the manifest's free-form labels and
// annotations on the machine record, where consumers read them back with
// api.GetLabelsAnnotation and api.GetAnnotationsAnnotation.
func setManifestMetadata(machine *api.VirtualMachine, m *Machine) error {
	if err := api.SetLabelsAnnotation(machine, m.Labels); err != nil {
		return err
	}
	return api.SetAnnotationsAnnotation(machine, m.Annotations)
}

func (s *Syncer) updateMachine(ctx context.Context, machine *api.VirtualMachine, m *Machine) error {
	machine.Spec.Name = m.Name
	machine.Spec.NetworkInterfaces = mergeInterfaces(
		machine.Spec.NetworkInterfaces, m.InterfaceSpecs(), time.Now())
	if err := setManifestMetadata(machine, m); err != nil {
		return err
	}

	if _, err := s.machines.Update(ctx, machine); err != nil {
		return fmt.Errorf("failed to update machine: %w", err)
	}

	s.log.V(1).Info("Updated machine from manifest", "machineID", machine.ID, "name", m.Name)
	return nil
}

func (s *Syncer) removeMachine(ctx context.Context, path string) error {
	machine, err := s.findByFile(ctx, filepath.Base(path))
	if err != nil {
		return err
	}
	if machine == nil {
		return nil
	}

	s.log.V(1).Info("Deleting machine for removed manifest", "machineID", machine.ID)
	if err := s.machines.Delete(ctx, machine.ID); store.IgnoreErrNotFound(err) != nil {
		return fmt.Errorf("failed to delete machine %s: %w", machine.ID, err)
	}
	return nil
}

func (s *Syncer) findByFile(ctx context.Context, file string) (*api.VirtualMachine, error) {
	machines, err := s.machines.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list machines: %w", err)
	}

	for _, machine := range machines {
		if machine.Annotations[FileAnnotation] == file {
			return machine, nil
		}
	}
	return nil, nil
}

// mergeInterfaces replaces the stored interface set with the desired one
// while carrying forward deletion marks for interfaces no longer desired.
func mergeInterfaces(existing, desired []*api.InterfaceSpec, now time.Time) []*api.InterfaceSpec {
	want := sets.New[string]()
	for _, iface := range desired {
		want.Insert(netplug.NormalizeMAC(iface.MACAddress))
	}

	merged := append([]*api.InterfaceSpec(nil), desired...)
	for _, iface := range existing {
		if want.Has(netplug.NormalizeMAC(iface.MACAddress)) {
			continue
		}

		removed := *iface
		if removed.DeletedAt == nil {
			t := now
			removed.DeletedAt = &t
		}
		merged = append(merged, &removed)
	}
	return merged
}
