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

// Package inventory takes serializable snapshots of the devices visible to a
// Library. It backs the nvml-query output and the exporter's /devices route.
package inventory

import (
	"errors"
	"fmt"

	"github.com/ccoveille/go-safecast"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/klog/v2"

	"github.com/Project-HAMi/nvml-wrapper/pkg/nvmlwrapper"
)

// MaxNvLinks is the number of NvLink slots probed per device.
const MaxNvLinks = 18

type System struct {
	DriverVersion string  `json:"driverVersion" yaml:"driverVersion"`
	NVMLVersion   string  `json:"nvmlVersion" yaml:"nvmlVersion"`
	CudaVersion   string  `json:"cudaVersion,omitempty" yaml:"cudaVersion,omitempty"`
	DeviceCount   uint32  `json:"deviceCount" yaml:"deviceCount"`
	UnitCount     *uint32 `json:"unitCount,omitempty" yaml:"unitCount,omitempty"`
}

type Device struct {
	Index             uint32    `json:"index" yaml:"index"`
	UUID              string    `json:"uuid" yaml:"uuid"`
	Name              string    `json:"name" yaml:"name"`
	Brand             string    `json:"brand,omitempty" yaml:"brand,omitempty"`
	Architecture      string    `json:"architecture,omitempty" yaml:"architecture,omitempty"`
	ComputeCapability string    `json:"computeCapability,omitempty" yaml:"computeCapability,omitempty"`
	PciBusID          string    `json:"pciBusId,omitempty" yaml:"pciBusId,omitempty"`
	MemoryTotal       string    `json:"memoryTotal,omitempty" yaml:"memoryTotal,omitempty"`
	MemoryUsed        string    `json:"memoryUsed,omitempty" yaml:"memoryUsed,omitempty"`
	GPUUtilization    *uint32   `json:"gpuUtilization,omitempty" yaml:"gpuUtilization,omitempty"`
	MemoryUtilization *uint32   `json:"memoryUtilization,omitempty" yaml:"memoryUtilization,omitempty"`
	Temperature       *uint32   `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	PowerUsage        *uint32   `json:"powerUsageMilliwatts,omitempty" yaml:"powerUsageMilliwatts,omitempty"`
	PowerLimit        *uint32   `json:"powerLimitMilliwatts,omitempty" yaml:"powerLimitMilliwatts,omitempty"`
	PerformanceState  string    `json:"performanceState,omitempty" yaml:"performanceState,omitempty"`
	ComputeMode       string    `json:"computeMode,omitempty" yaml:"computeMode,omitempty"`
	PersistenceMode   *bool     `json:"persistenceMode,omitempty" yaml:"persistenceMode,omitempty"`
	EccEnabled        *bool     `json:"eccEnabled,omitempty" yaml:"eccEnabled,omitempty"`
	MigMode           string    `json:"migMode,omitempty" yaml:"migMode,omitempty"`
	Processes         []Process `json:"processes,omitempty" yaml:"processes,omitempty"`
}

type Process struct {
	PID        uint32 `json:"pid" yaml:"pid"`
	Name       string `json:"name,omitempty" yaml:"name,omitempty"`
	UsedMemory string `json:"usedMemory,omitempty" yaml:"usedMemory,omitempty"`
}

type Link struct {
	Link        uint32  `json:"link" yaml:"link"`
	Active      bool    `json:"active" yaml:"active"`
	Version     *uint32 `json:"version,omitempty" yaml:"version,omitempty"`
	RemoteBusID string  `json:"remoteBusId,omitempty" yaml:"remoteBusId,omitempty"`
}

type Unit struct {
	Index           uint32 `json:"index" yaml:"index"`
	Name            string `json:"name" yaml:"name"`
	ID              string `json:"id" yaml:"id"`
	Serial          string `json:"serial" yaml:"serial"`
	FirmwareVersion string `json:"firmwareVersion" yaml:"firmwareVersion"`
	LedColor        string `json:"ledColor,omitempty" yaml:"ledColor,omitempty"`
	PsuState        string `json:"psuState,omitempty" yaml:"psuState,omitempty"`
	Fans            int    `json:"fans" yaml:"fans"`
}

// collector keeps the first hard error seen while filling a snapshot.
type collector struct {
	err error
}

type result[T any] struct {
	v   T
	err error
}

func fromPair[T any](v T, err error) result[T] {
	return result[T]{v: v, err: err}
}

func field[T any](c *collector, name string, r result[T]) *T {
	err := r.err
	if err == nil {
		return &r.v
	}
	if nvmlwrapper.IsUnavailable(err) {
		klog.V(4).InfoS("Field unavailable", "field", name, "err", err)
		return nil
	}
	if c.err == nil {
		c.err = fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// processName is empty when the process exited after it was listed.
func processName(lib *nvmlwrapper.Library, pid uint32) (string, error) {
	name, err := lib.ProcessName(pid)
	if err == nil {
		return name, nil
	}
	if errors.Is(err, nvmlwrapper.ErrNotFound) || nvmlwrapper.IsUnavailable(err) {
		klog.V(4).InfoS("Process name unavailable", "pid", pid, "err", err)
		return "", nil
	}
	return "", err
}

func stringField[T fmt.Stringer](c *collector, name string, r result[T]) string {
	if p := field(c, name, r); p != nil {
		return (*p).String()
	}
	return ""
}

// Bytes renders a byte count as a binary quantity such as "40Gi".
func Bytes(n uint64) string {
	v, err := safecast.ToInt64(n)
	if err != nil {
		return fmt.Sprintf("%d", n)
	}
	return resource.NewQuantity(v, resource.BinarySI).String()
}

func CollectSystem(lib *nvmlwrapper.Library) (System, error) {
	c := &collector{}
	var s System
	if v := field(c, "driver version", fromPair(lib.DriverVersion())); v != nil {
		s.DriverVersion = *v
	}
	if v := field(c, "NVML version", fromPair(lib.NVMLVersion())); v != nil {
		s.NVMLVersion = *v
	}
	if v := field(c, "CUDA driver version", fromPair(lib.CudaDriverVersion())); v != nil {
		s.CudaVersion = fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	if v := field(c, "device count", fromPair(lib.DeviceCount())); v != nil {
		s.DeviceCount = *v
	}
	s.UnitCount = field(c, "unit count", fromPair(lib.UnitCount()))
	return s, c.err
}

// CollectDevice snapshots one device. Fields the device does not support are
// left empty.
func CollectDevice(lib *nvmlwrapper.Library, d *nvmlwrapper.Device) (Device, error) {
	c := &collector{}
	var out Device

	uuid, err := d.UUID()
	if err != nil {
		return Device{}, fmt.Errorf("uuid: %w", err)
	}
	out.UUID = uuid
	if v := field(c, "index", fromPair(d.Index())); v != nil {
		out.Index = *v
	}
	if v := field(c, "name", fromPair(d.Name())); v != nil {
		out.Name = *v
	}
	out.Brand = stringField(c, "brand", fromPair(d.Brand()))
	out.Architecture = stringField(c, "architecture", fromPair(d.Architecture()))
	if v := field(c, "compute capability", fromPair(d.CudaComputeCapability())); v != nil {
		out.ComputeCapability = fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	if v := field(c, "pci info", fromPair(d.PciInfo())); v != nil {
		out.PciBusID = v.BusID
	}
	if v := field(c, "memory info", fromPair(d.MemoryInfo())); v != nil {
		out.MemoryTotal = Bytes(v.Total)
		out.MemoryUsed = Bytes(v.Used)
	}
	if v := field(c, "utilization", fromPair(d.UtilizationRates())); v != nil {
		out.GPUUtilization = &v.GPU
		out.MemoryUtilization = &v.Memory
	}
	out.Temperature = field(c, "temperature", fromPair(d.Temperature(nvmlwrapper.TemperatureSensorGPU)))
	out.PowerUsage = field(c, "power usage", fromPair(d.PowerUsage()))
	out.PowerLimit = field(c, "power limit", fromPair(d.EnforcedPowerLimit()))
	out.PerformanceState = stringField(c, "performance state", fromPair(d.PerformanceState()))
	out.ComputeMode = stringField(c, "compute mode", fromPair(d.ComputeMode()))
	out.PersistenceMode = field(c, "persistence mode", fromPair(d.IsInPersistentMode()))
	if v := field(c, "ecc mode", fromPair(d.IsEccEnabled())); v != nil {
		out.EccEnabled = &v.Current
	}
	if v := field(c, "mig mode", fromPair(d.MigMode())); v != nil {
		out.MigMode = v.Current.String()
	}
	if v := field(c, "compute processes", fromPair(d.RunningComputeProcesses())); v != nil {
		for _, p := range *v {
			proc := Process{PID: p.PID}
			if p.UsedGPUMemory != nil {
				proc.UsedMemory = Bytes(*p.UsedGPUMemory)
			}
			proc.Name, err = processName(lib, p.PID)
			if err != nil && c.err == nil {
				c.err = fmt.Errorf("process name: %w", err)
			}
			out.Processes = append(out.Processes, proc)
		}
	}
	return out, c.err
}

// CollectDevices snapshots every device whose UUID keep accepts. A nil keep
// accepts all devices.
func CollectDevices(lib *nvmlwrapper.Library, keep func(uuid string) bool) ([]Device, error) {
	devices, err := lib.Devices()
	if err != nil {
		return nil, err
	}
	out := make([]Device, 0, len(devices))
	for _, d := range devices {
		if keep != nil {
			uuid, err := d.UUID()
			if err != nil {
				return nil, err
			}
			if !keep(uuid) {
				continue
			}
		}
		snapshot, err := CollectDevice(lib, d)
		if err != nil {
			return nil, err
		}
		out = append(out, snapshot)
	}
	return out, nil
}

// CollectLinks snapshots the NvLinks of d. Slots the device does not have are
// skipped.
func CollectLinks(d *nvmlwrapper.Device) ([]Link, error) {
	var links []Link
	for i := uint32(0); i < MaxNvLinks; i++ {
		link := d.Link(i)
		active, err := link.IsActive()
		if err != nil {
			if nvmlwrapper.IsUnavailable(err) || errors.Is(err, nvmlwrapper.ErrInvalidArgument) {
				continue
			}
			return nil, fmt.Errorf("link %d: %w", i, err)
		}
		c := &collector{}
		out := Link{Link: i, Active: active}
		if active {
			out.Version = field(c, "version", fromPair(link.Version()))
			if v := field(c, "remote pci info", fromPair(link.RemotePciInfo())); v != nil {
				out.RemoteBusID = v.BusID
			}
		}
		if c.err != nil {
			return nil, fmt.Errorf("link %d: %w", i, c.err)
		}
		links = append(links, out)
	}
	return links, nil
}

func CollectUnits(lib *nvmlwrapper.Library) ([]Unit, error) {
	count, err := lib.UnitCount()
	if err != nil {
		if nvmlwrapper.IsUnavailable(err) {
			return nil, nil
		}
		return nil, err
	}
	units := make([]Unit, 0, count)
	for i := uint32(0); i < count; i++ {
		u, err := lib.UnitByIndex(i)
		if err != nil {
			return nil, err
		}
		info, err := u.Info()
		if err != nil {
			return nil, err
		}
		c := &collector{}
		out := Unit{
			Index:           i,
			Name:            info.Name,
			ID:              info.ID,
			Serial:          info.Serial,
			FirmwareVersion: info.FirmwareVersion,
		}
		if v := field(c, "led state", fromPair(u.LedState())); v != nil {
			out.LedColor = v.Color.String()
		}
		if v := field(c, "psu info", fromPair(u.PsuInfo())); v != nil {
			out.PsuState = v.State
		}
		if v := field(c, "fans", fromPair(u.FansInfo())); v != nil {
			out.Fans = len(v.Fans)
		}
		if c.err != nil {
			return nil, fmt.Errorf("unit %d: %w", i, c.err)
		}
		units = append(units, out)
	}
	return units, nil
}
