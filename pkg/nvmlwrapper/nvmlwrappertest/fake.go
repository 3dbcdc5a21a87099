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

// Package nvmlwrappertest builds fake GPUs on top of the go-nvml mocks for use
// in tests of packages that consume nvmlwrapper.
package nvmlwrappertest

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"
	mock "github.com/NVIDIA/go-nvml/pkg/nvml/mock"

	"github.com/Project-HAMi/nvml-wrapper/pkg/nvmlwrapper"
)

// Device describes the readings a fake GPU reports.
type Device struct {
	UUID              string
	Name              string
	BusID             string
	MemoryTotal       uint64
	MemoryUsed        uint64
	GPUUtilization    uint32
	MemoryUtilization uint32
	Temperature       uint32
	PowerUsage        uint32
	PowerLimit        uint32
	Energy            uint64
	PerformanceState  int32
	SMClock           uint32
	MemoryClock       uint32
	PcieTx            uint32
	PcieRx            uint32
	EccEnabled        bool
	EccCorrected      uint64
	EccUncorrected    uint64
	ThrottleReasons   uint64
	Processes         []nvml.ProcessInfo
	// Unsupported makes every optional reading return ERROR_NOT_SUPPORTED.
	Unsupported bool
}

func enableState(on bool) nvml.EnableState {
	if on {
		return nvml.FEATURE_ENABLED
	}
	return nvml.FEATURE_DISABLED
}

// NewDevice returns a mock whose getters report d. The index is assigned by
// NewInterface.
func NewDevice(d Device) *mock.Device {
	ret := nvml.SUCCESS
	if d.Unsupported {
		ret = nvml.ERROR_NOT_SUPPORTED
	}
	pci, err := nvmlwrapper.PciInfo{BusID: d.BusID}.ToRaw()
	if err != nil {
		panic(err)
	}
	return &mock.Device{
		GetUUIDFunc:  func() (string, nvml.Return) { return d.UUID, nvml.SUCCESS },
		GetNameFunc:  func() (string, nvml.Return) { return d.Name, nvml.SUCCESS },
		GetIndexFunc: func() (int, nvml.Return) { return 0, nvml.SUCCESS },
		GetBrandFunc: func() (nvml.BrandType, nvml.Return) {
			return nvml.BrandType(nvmlwrapper.BrandTesla), ret
		},
		GetArchitectureFunc: func() (nvml.DeviceArchitecture, nvml.Return) {
			return nvml.DeviceArchitecture(nvmlwrapper.ArchitectureAmpere), ret
		},
		GetCudaComputeCapabilityFunc: func() (int, int, nvml.Return) { return 8, 0, ret },
		GetPciInfoFunc:               func() (nvml.PciInfo, nvml.Return) { return pci, nvml.SUCCESS },
		GetMemoryInfoFunc: func() (nvml.Memory, nvml.Return) {
			return nvml.Memory{Total: d.MemoryTotal, Used: d.MemoryUsed, Free: d.MemoryTotal - d.MemoryUsed}, ret
		},
		GetUtilizationRatesFunc: func() (nvml.Utilization, nvml.Return) {
			return nvml.Utilization{Gpu: d.GPUUtilization, Memory: d.MemoryUtilization}, ret
		},
		GetTemperatureFunc: func(nvml.TemperatureSensors) (uint32, nvml.Return) {
			return d.Temperature, ret
		},
		GetPowerUsageFunc:             func() (uint32, nvml.Return) { return d.PowerUsage, ret },
		GetEnforcedPowerLimitFunc:     func() (uint32, nvml.Return) { return d.PowerLimit, ret },
		GetTotalEnergyConsumptionFunc: func() (uint64, nvml.Return) { return d.Energy, ret },
		GetPerformanceStateFunc: func() (nvml.Pstates, nvml.Return) {
			return nvml.Pstates(d.PerformanceState), ret
		},
		GetComputeModeFunc:     func() (nvml.ComputeMode, nvml.Return) { return 0, ret },
		GetPersistenceModeFunc: func() (nvml.EnableState, nvml.Return) { return nvml.FEATURE_ENABLED, ret },
		GetEccModeFunc: func() (nvml.EnableState, nvml.EnableState, nvml.Return) {
			return enableState(d.EccEnabled), enableState(d.EccEnabled), ret
		},
		GetMigModeFunc: func() (int, int, nvml.Return) { return 0, 0, ret },
		GetClockInfoFunc: func(clock nvml.ClockType) (uint32, nvml.Return) {
			if clock == nvml.ClockType(nvmlwrapper.ClockMemory) {
				return d.MemoryClock, ret
			}
			return d.SMClock, ret
		},
		GetPcieThroughputFunc: func(counter nvml.PcieUtilCounter) (uint32, nvml.Return) {
			if counter == nvml.PcieUtilCounter(nvmlwrapper.PcieUtilCounterSend) {
				return d.PcieTx, ret
			}
			return d.PcieRx, ret
		},
		GetTotalEccErrorsFunc: func(errorType nvml.MemoryErrorType, _ nvml.EccCounterType) (uint64, nvml.Return) {
			if errorType == nvml.MemoryErrorType(nvmlwrapper.MemoryErrorCorrected) {
				return d.EccCorrected, ret
			}
			return d.EccUncorrected, ret
		},
		GetCurrentClocksThrottleReasonsFunc: func() (uint64, nvml.Return) { return d.ThrottleReasons, ret },
		GetComputeRunningProcessesFunc: func() ([]nvml.ProcessInfo, nvml.Return) {
			return d.Processes, ret
		},
		GetSupportedEventTypesFunc: func() (uint64, nvml.Return) {
			return uint64(nvmlwrapper.EventTypeCriticalXidError), ret
		},
		RegisterEventsFunc: func(uint64, nvml.EventSet) nvml.Return { return ret },
	}
}

// NewInterface returns a mock library that enumerates devices in order and
// reports no units.
func NewInterface(devices ...*mock.Device) *mock.Interface {
	for i, d := range devices {
		index := i
		d.GetIndexFunc = func() (int, nvml.Return) { return index, nvml.SUCCESS }
	}
	return &mock.Interface{
		InitFunc:                   func() nvml.Return { return nvml.SUCCESS },
		ShutdownFunc:               func() nvml.Return { return nvml.SUCCESS },
		SystemGetDriverVersionFunc: func() (string, nvml.Return) { return "550.54.15", nvml.SUCCESS },
		SystemGetNVMLVersionFunc:   func() (string, nvml.Return) { return "12.550.54.15", nvml.SUCCESS },
		SystemGetCudaDriverVersionFunc: func() (int, nvml.Return) {
			return 12040, nvml.SUCCESS
		},
		SystemGetProcessNameFunc: func(pid int) (string, nvml.Return) {
			return "python", nvml.SUCCESS
		},
		DeviceGetCountFunc: func() (int, nvml.Return) { return len(devices), nvml.SUCCESS },
		DeviceGetHandleByIndexFunc: func(i int) (nvml.Device, nvml.Return) {
			if i < 0 || i >= len(devices) {
				return nil, nvml.ERROR_INVALID_ARGUMENT
			}
			return devices[i], nvml.SUCCESS
		},
		DeviceGetHandleByUUIDFunc: func(uuid string) (nvml.Device, nvml.Return) {
			for _, d := range devices {
				if u, _ := d.GetUUID(); u == uuid {
					return d, nvml.SUCCESS
				}
			}
			return nil, nvml.ERROR_NOT_FOUND
		},
		UnitGetCountFunc: func() (int, nvml.Return) { return 0, nvml.SUCCESS },
	}
}

// NewLibrary returns an initialized Library over iface.
func NewLibrary(iface nvml.Interface) (*nvmlwrapper.Library, error) {
	lib := nvmlwrapper.New(nvmlwrapper.WithInterface(iface))
	if err := lib.Init(); err != nil {
		return nil, err
	}
	return lib, nil
}
