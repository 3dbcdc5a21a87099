/*
Copyright 2025 The HAMi Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package nvmlwrapper

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/ccoveille/go-safecast"
)

// DriverVersion returns the version of the installed driver.
func (l *Library) DriverVersion() (string, error) {
	return call(l, l.iface.SystemGetDriverVersion)
}

// NVMLVersion returns the version of the native management library.
func (l *Library) NVMLVersion() (string, error) {
	return call(l, l.iface.SystemGetNVMLVersion)
}

// CudaDriverVersion returns the CUDA version supported by the driver.
func (l *Library) CudaDriverVersion() (CudaDriverVersion, error) {
	v, err := call(l, l.iface.SystemGetCudaDriverVersion)
	if err != nil {
		return CudaDriverVersion{}, err
	}
	return cudaDriverVersionFromRaw(v), nil
}

// ProcessName returns the name of the process with the given pid.
func (l *Library) ProcessName(pid uint32) (string, error) {
	p, err := safecast.ToInt(pid)
	if err != nil {
		return "", err
	}
	return call(l, func() (string, nvml.Return) { return l.iface.SystemGetProcessName(p) })
}

// HicVersions lists the host interface cards of the system.
func (l *Library) HicVersions() ([]HwbcEntry, error) {
	raw, err := call(l, l.iface.SystemGetHicVersion)
	if err != nil {
		return nil, err
	}
	entries := make([]HwbcEntry, 0, len(raw))
	for _, r := range raw {
		e, err := hwbcEntryFromRaw(r)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DeviceCount returns the number of devices visible to the library.
func (l *Library) DeviceCount() (uint32, error) {
	n, err := call(l, l.iface.DeviceGetCount)
	if err != nil {
		return 0, err
	}
	return safecast.ToUint32(n)
}

func (l *Library) newDevice(raw nvml.Device) *Device {
	return &Device{lib: l, raw: raw}
}

// DeviceByIndex returns the device at index. Indices follow PCI bus order and
// may differ from CUDA's.
func (l *Library) DeviceByIndex(index uint32) (*Device, error) {
	i, err := safecast.ToInt(index)
	if err != nil {
		return nil, err
	}
	raw, err := call(l, func() (nvml.Device, nvml.Return) { return l.iface.DeviceGetHandleByIndex(i) })
	if err != nil {
		return nil, err
	}
	return l.newDevice(raw), nil
}

// DeviceByUUID returns the device with the given UUID.
func (l *Library) DeviceByUUID(uuid string) (*Device, error) {
	raw, err := call(l, func() (nvml.Device, nvml.Return) { return l.iface.DeviceGetHandleByUUID(uuid) })
	if err != nil {
		return nil, err
	}
	return l.newDevice(raw), nil
}

// DeviceByPciBusID returns the device at the given PCI bus id.
func (l *Library) DeviceByPciBusID(busID string) (*Device, error) {
	raw, err := call(l, func() (nvml.Device, nvml.Return) { return l.iface.DeviceGetHandleByPciBusId(busID) })
	if err != nil {
		return nil, err
	}
	return l.newDevice(raw), nil
}

// Devices returns every device, in index order.
func (l *Library) Devices() ([]*Device, error) {
	count, err := l.DeviceCount()
	if err != nil {
		return nil, err
	}
	devices := make([]*Device, 0, count)
	for i := uint32(0); i < count; i++ {
		d, err := l.DeviceByIndex(i)
		if err != nil {
			return nil, err
		}
		devices = append(devices, d)
	}
	return devices, nil
}

// UnitCount returns the number of S-class units.
func (l *Library) UnitCount() (uint32, error) {
	n, err := call(l, l.iface.UnitGetCount)
	if err != nil {
		return 0, err
	}
	return safecast.ToUint32(n)
}

// UnitByIndex returns the S-class unit at index.
func (l *Library) UnitByIndex(index uint32) (*Unit, error) {
	i, err := safecast.ToInt(index)
	if err != nil {
		return nil, err
	}
	raw, err := call(l, func() (nvml.Unit, nvml.Return) { return l.iface.UnitGetHandleByIndex(i) })
	if err != nil {
		return nil, err
	}
	return &Unit{lib: l, raw: raw}, nil
}

// CreateEventSet returns an empty event set. Release it when done.
func (l *Library) CreateEventSet() (*EventSet, error) {
	raw, err := call(l, l.iface.EventSetCreate)
	if err != nil {
		return nil, err
	}
	return &EventSet{lib: l, raw: raw}, nil
}

// QueryDrainState reports whether the device at pci is being drained.
func (l *Library) QueryDrainState(pci PciInfo) (bool, error) {
	raw, err := pci.ToRaw()
	if err != nil {
		return false, err
	}
	state, err := call(l, func() (nvml.EnableState, nvml.Return) { return l.iface.DeviceQueryDrainState(&raw) })
	if err != nil {
		return false, err
	}
	return boolFromState(state)
}

// ModifyDrainState starts or stops draining the device at pci.
func (l *Library) ModifyDrainState(pci PciInfo, enabled bool) error {
	raw, err := pci.ToRaw()
	if err != nil {
		return err
	}
	return call0(l, func() nvml.Return { return l.iface.DeviceModifyDrainState(&raw, stateFromBool(enabled)) })
}
