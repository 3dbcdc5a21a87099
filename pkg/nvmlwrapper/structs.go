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
)

// PciInfo describes the PCI location of a device.
type PciInfo struct {
	Bus    uint32
	BusID  string
	Device uint32
	Domain uint32
	// PciDeviceID combines the device id (upper 16 bits) and vendor id (lower 16 bits).
	PciDeviceID uint32
	// PciSubSystemID is nil when the source of the structure does not fill it in,
	// which is the case for NvLink remote endpoints.
	PciSubSystemID *uint32
}

// PciInfoFromRaw translates the native PCI structure.
func PciInfoFromRaw(raw nvml.PciInfo, subSystemIDPresent bool) (PciInfo, error) {
	busID, err := stringFromBuffer(raw.BusId[:])
	if err != nil {
		return PciInfo{}, err
	}
	info := PciInfo{
		Bus:         raw.Bus,
		BusID:       busID,
		Device:      raw.Device,
		Domain:      raw.Domain,
		PciDeviceID: raw.PciDeviceId,
	}
	if subSystemIDPresent {
		id := raw.PciSubSystemId
		info.PciSubSystemID = &id
	}
	return info, nil
}

// ToRaw converts back to the native structure. The legacy bus id buffer is left
// zeroed and an absent sub system id is written as 0.
func (p PciInfo) ToRaw() (nvml.PciInfo, error) {
	var raw nvml.PciInfo
	if err := bufferFromString(p.BusID, raw.BusId[:]); err != nil {
		return nvml.PciInfo{}, err
	}
	raw.Bus = p.Bus
	raw.Device = p.Device
	raw.Domain = p.Domain
	raw.PciDeviceId = p.PciDeviceID
	if p.PciSubSystemID != nil {
		raw.PciSubSystemId = *p.PciSubSystemID
	}
	return raw, nil
}

// LegacyBusID decodes the short-form bus id kept for old consumers.
func LegacyBusID(raw nvml.PciInfo) (string, error) {
	return stringFromBuffer(raw.BusIdLegacy[:])
}

// MemoryInfo is the frame buffer usage of a device, in bytes.
type MemoryInfo struct {
	Free  uint64
	Total uint64
	Used  uint64
}

func memoryInfoFromRaw(raw nvml.Memory) MemoryInfo {
	return MemoryInfo{Free: raw.Free, Total: raw.Total, Used: raw.Used}
}

// BAR1MemoryInfo is the BAR1 aperture usage of a device, in bytes.
type BAR1MemoryInfo struct {
	Free  uint64
	Total uint64
	Used  uint64
}

func bar1MemoryInfoFromRaw(raw nvml.BAR1Memory) BAR1MemoryInfo {
	return BAR1MemoryInfo{Free: raw.Bar1Free, Total: raw.Bar1Total, Used: raw.Bar1Used}
}

// Utilization holds percentages over the last sample period.
type Utilization struct {
	GPU    uint32
	Memory uint32
}

// ViolationTime is how long a policy held clocks below their requested level.
type ViolationTime struct {
	// ReferenceTime is a CPU timestamp in microseconds.
	ReferenceTime uint64
	// ViolationTime is in nanoseconds.
	ViolationTime uint64
}

// EccErrorCounts breaks ECC errors down by memory location.
type EccErrorCounts struct {
	DeviceMemory uint64
	L1Cache      uint64
	L2Cache      uint64
	RegisterFile uint64
}

func eccErrorCountsFromRaw(raw nvml.EccErrorCounts) EccErrorCounts {
	return EccErrorCounts{
		DeviceMemory: raw.DeviceMemory,
		L1Cache:      raw.L1Cache,
		L2Cache:      raw.L2Cache,
		RegisterFile: raw.RegisterFile,
	}
}

// AccountingStats describes one process as recorded by accounting mode. Nil fields
// were not available.
type AccountingStats struct {
	GPUUtilization    *uint32
	IsRunning         bool
	MaxMemoryUsage    *uint64
	MemoryUtilization *uint32
	// StartTime is a CPU timestamp in microseconds.
	StartTime uint64
	// Time is the process run time in milliseconds.
	Time uint64
}

func accountingStatsFromRaw(raw nvml.AccountingStats) AccountingStats {
	return AccountingStats{
		GPUUtilization:    optional(raw.GpuUtilization, valueNotAvailable32),
		IsRunning:         boolFromUint(raw.IsRunning),
		MaxMemoryUsage:    optional(raw.MaxMemoryUsage, valueNotAvailable64),
		MemoryUtilization: optional(raw.MemoryUtilization, valueNotAvailable32),
		StartTime:         raw.StartTime,
		Time:              raw.Time,
	}
}

// ProcessInfo is a process holding a context on a device.
type ProcessInfo struct {
	PID uint32
	// UsedGPUMemory is nil on Windows with WDDM, where the driver does not report it.
	UsedGPUMemory *uint64
	// GPUInstanceID and ComputeInstanceID are nil unless MIG is enabled.
	GPUInstanceID     *uint32
	ComputeInstanceID *uint32
}

func processInfoFromRaw(raw nvml.ProcessInfo) ProcessInfo {
	return ProcessInfo{
		PID:               raw.Pid,
		UsedGPUMemory:     optional(raw.UsedGpuMemory, valueNotAvailable64),
		GPUInstanceID:     optional(raw.GpuInstanceId, invalidInstanceID),
		ComputeInstanceID: optional(raw.ComputeInstanceId, invalidInstanceID),
	}
}

// ProcessUtilizationSample is one utilization sample for a process.
type ProcessUtilizationSample struct {
	PID       uint32
	Timestamp uint64
	SMUtil    uint32
	MemUtil   uint32
	EncUtil   uint32
	DecUtil   uint32
}

func processUtilizationSampleFromRaw(raw nvml.ProcessUtilizationSample) ProcessUtilizationSample {
	return ProcessUtilizationSample{
		PID:       raw.Pid,
		Timestamp: raw.TimeStamp,
		SMUtil:    raw.SmUtil,
		MemUtil:   raw.MemUtil,
		EncUtil:   raw.EncUtil,
		DecUtil:   raw.DecUtil,
	}
}

// BridgeChipInfo describes one bridge chip on a board.
type BridgeChipInfo struct {
	FirmwareVersion *uint32
	Type            BridgeChip
}

// BridgeChipHierarchy lists the bridge chips of a board.
type BridgeChipHierarchy struct {
	Chips []BridgeChipInfo
}

func bridgeChipHierarchyFromRaw(raw nvml.BridgeChipHierarchy) (BridgeChipHierarchy, error) {
	count := min(int(raw.BridgeCount), len(raw.BridgeChipInfo))
	chips := make([]BridgeChipInfo, 0, count)
	for _, c := range raw.BridgeChipInfo[:count] {
		typ, err := bridgeChipFromRaw(nvml.BridgeChipType(c.Type))
		if err != nil {
			return BridgeChipHierarchy{}, err
		}
		chips = append(chips, BridgeChipInfo{
			FirmwareVersion: optional(c.FwVersion, firmwareUnavailable),
			Type:            typ,
		})
	}
	return BridgeChipHierarchy{Chips: chips}, nil
}

// EncoderSessionInfo describes one active encoder session.
type EncoderSessionInfo struct {
	SessionID uint32
	PID       uint32
	// VgpuInstance is nil when the session is not owned by a vGPU.
	VgpuInstance *uint32
	CodecType    EncoderType
	HResolution  uint32
	VResolution  uint32
	AverageFps   uint32
	// AverageLatency is in microseconds.
	AverageLatency uint32
}

func encoderSessionInfoFromRaw(raw nvml.EncoderSessionInfo) (EncoderSessionInfo, error) {
	codec, err := encoderTypeFromRaw(nvml.EncoderType(raw.CodecType))
	if err != nil {
		return EncoderSessionInfo{}, err
	}
	return EncoderSessionInfo{
		SessionID:      raw.SessionId,
		PID:            raw.Pid,
		VgpuInstance:   optional(uint32(raw.VgpuInstance), 0),
		CodecType:      codec,
		HResolution:    raw.HResolution,
		VResolution:    raw.VResolution,
		AverageFps:     raw.AverageFps,
		AverageLatency: raw.AverageLatency,
	}, nil
}

// AutoBoostClocksEnabledInfo reports the auto boost setting and its default.
type AutoBoostClocksEnabledInfo struct {
	Enabled        bool
	DefaultEnabled bool
}

// EccModeState is the current ECC mode and the one pending a reboot.
type EccModeState struct {
	Current bool
	Pending bool
}

// MigModeState is the current MIG mode and the one pending a reset.
type MigModeState struct {
	Current MigMode
	Pending MigMode
}

// PowerManagementConstraints bounds the power limit, in milliwatts.
type PowerManagementConstraints struct {
	MinLimit uint32
	MaxLimit uint32
}

// CudaComputeCapability is a CUDA compute capability such as 8.6.
type CudaComputeCapability struct {
	Major int
	Minor int
}

// CudaDriverVersion is the CUDA version the driver supports.
type CudaDriverVersion struct {
	Major int
	Minor int
}

func cudaDriverVersionFromRaw(v int) CudaDriverVersion {
	return CudaDriverVersion{Major: v / 1000, Minor: (v % 1000) / 10}
}

// RetiredPage is a retired frame buffer page.
type RetiredPage struct {
	Address   uint64
	Timestamp uint64
}

// RemappedRows summarizes row remapping on devices that do it.
type RemappedRows struct {
	Corrected   int
	Uncorrected int
	Pending     bool
	Failure     bool
}

// UtilizationControl configures what an NvLink utilization counter counts.
type UtilizationControl struct {
	Units        UtilizationCountUnit
	PacketFilter PacketTypes
}

func utilizationControlFromRaw(raw nvml.NvLinkUtilizationControl) (UtilizationControl, error) {
	units, err := utilizationCountUnitFromRaw(nvml.NvLinkUtilizationCountUnits(raw.Units))
	if err != nil {
		return UtilizationControl{}, err
	}
	filter, err := packetTypesFromRaw(raw.Pktfilter)
	if err != nil {
		return UtilizationControl{}, err
	}
	return UtilizationControl{Units: units, PacketFilter: filter}, nil
}

func (u UtilizationControl) toRaw() nvml.NvLinkUtilizationControl {
	return nvml.NvLinkUtilizationControl{
		Units:     uint32(u.Units),
		Pktfilter: uint32(u.PacketFilter),
	}
}

// UtilizationCounter holds the receive and transmit counts of an NvLink counter.
type UtilizationCounter struct {
	Receive uint64
	Send    uint64
}

// UnitInfo identifies an S-class unit.
type UnitInfo struct {
	FirmwareVersion string
	ID              string
	Name            string
	Serial          string
}

func unitInfoFromRaw(raw nvml.UnitInfo) (UnitInfo, error) {
	var (
		info UnitInfo
		err  error
	)
	if info.FirmwareVersion, err = stringFromBuffer(raw.FirmwareVersion[:]); err != nil {
		return UnitInfo{}, err
	}
	if info.ID, err = stringFromBuffer(raw.Id[:]); err != nil {
		return UnitInfo{}, err
	}
	if info.Name, err = stringFromBuffer(raw.Name[:]); err != nil {
		return UnitInfo{}, err
	}
	if info.Serial, err = stringFromBuffer(raw.Serial[:]); err != nil {
		return UnitInfo{}, err
	}
	return info, nil
}

// LedState is the state of a unit's LED.
type LedState struct {
	Cause string
	Color LedColor
}

func ledStateFromRaw(raw nvml.LedState) (LedState, error) {
	cause, err := stringFromBuffer(raw.Cause[:])
	if err != nil {
		return LedState{}, err
	}
	color, err := ledColorFromRaw(nvml.LedColor(raw.Color))
	if err != nil {
		return LedState{}, err
	}
	return LedState{Cause: cause, Color: color}, nil
}

// PsuInfo describes a unit's power supply.
type PsuInfo struct {
	// Current is in amperes.
	Current uint32
	// Power is in watts.
	Power uint32
	State string
	// Voltage is in volts.
	Voltage uint32
}

func psuInfoFromRaw(raw nvml.PSUInfo) (PsuInfo, error) {
	state, err := stringFromBuffer(raw.State[:])
	if err != nil {
		return PsuInfo{}, err
	}
	return PsuInfo{Current: raw.Current, Power: raw.Power, State: state, Voltage: raw.Voltage}, nil
}

// FanInfo is one unit fan.
type FanInfo struct {
	Speed uint32
	State FanState
}

// FansInfo lists the fans of a unit.
type FansInfo struct {
	Fans []FanInfo
}

func fansInfoFromRaw(raw nvml.UnitFanSpeeds) (FansInfo, error) {
	count := min(int(raw.Count), len(raw.Fans))
	fans := make([]FanInfo, 0, count)
	for _, f := range raw.Fans[:count] {
		state, err := fanStateFromRaw(nvml.FanState(f.State))
		if err != nil {
			return FansInfo{}, err
		}
		fans = append(fans, FanInfo{Speed: f.Speed, State: state})
	}
	return FansInfo{Fans: fans}, nil
}

// HwbcEntry is the firmware version of a host-side bridge chip.
type HwbcEntry struct {
	ID              uint32
	FirmwareVersion string
}

func hwbcEntryFromRaw(raw nvml.HwbcEntry) (HwbcEntry, error) {
	fw, err := stringFromBuffer(raw.FirmwareVersion[:])
	if err != nil {
		return HwbcEntry{}, err
	}
	return HwbcEntry{ID: raw.HwbcId, FirmwareVersion: fw}, nil
}

// UtilizationInfo is a codec utilization percentage and the period it was
// sampled over, in microseconds.
type UtilizationInfo struct {
	Value          uint32
	SamplingPeriod uint32
}
