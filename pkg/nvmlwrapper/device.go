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
	"github.com/google/uuid"
)

// Device is a handle to one GPU. It is only valid while the Library it came
// from is initialized.
type Device struct {
	lib *Library
	raw nvml.Device
}

func toUint32(v int, err error) (uint32, error) {
	if err != nil {
		return 0, err
	}
	return safecast.ToUint32(v)
}

func toBool(state nvml.EnableState, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	return boolFromState(state)
}

// Name returns the product name, such as "Tesla V100-SXM2-16GB".
func (d *Device) Name() (string, error) {
	return call(d.lib, d.raw.GetName)
}

func (d *Device) Brand() (Brand, error) {
	raw, err := call(d.lib, d.raw.GetBrand)
	if err != nil {
		return BrandUnknown, err
	}
	return brandFromRaw(raw)
}

// Index returns the index of the device. It may change across reboots.
func (d *Device) Index() (uint32, error) {
	return toUint32(call(d.lib, d.raw.GetIndex))
}

func (d *Device) Serial() (string, error) {
	return call(d.lib, d.raw.GetSerial)
}

// UUID returns the globally unique, immutable identifier of the device in its
// "GPU-..." form.
func (d *Device) UUID() (string, error) {
	return call(d.lib, d.raw.GetUUID)
}

// ParsedUUID is UUID parsed with ParseDeviceUUID.
func (d *Device) ParsedUUID() (uuid.UUID, error) {
	s, err := d.UUID()
	if err != nil {
		return uuid.Nil, err
	}
	return ParseDeviceUUID(s)
}

// MinorNumber returns N for the /dev/nvidiaN node of the device.
func (d *Device) MinorNumber() (uint32, error) {
	return toUint32(call(d.lib, d.raw.GetMinorNumber))
}

func (d *Device) BoardPartNumber() (string, error) {
	return call(d.lib, d.raw.GetBoardPartNumber)
}

// BoardID returns an id shared by every device on the same board.
func (d *Device) BoardID() (uint32, error) {
	return call(d.lib, d.raw.GetBoardId)
}

func (d *Device) InfoROMVersion(object InfoROM) (string, error) {
	return call(d.lib, func() (string, nvml.Return) {
		return d.raw.GetInforomVersion(nvml.InforomObject(object))
	})
}

func (d *Device) InfoROMImageVersion() (string, error) {
	return call(d.lib, d.raw.GetInforomImageVersion)
}

// ValidateInfoROM returns ErrCorruptedInfoROM if the checksum of the infoROM
// does not match.
func (d *Device) ValidateInfoROM() error {
	return call0(d.lib, d.raw.ValidateInforom)
}

// IsDisplayConnected reports whether a physical display is attached.
func (d *Device) IsDisplayConnected() (bool, error) {
	return toBool(call(d.lib, d.raw.GetDisplayMode))
}

// IsDisplayActive reports whether a display is initialized on the device,
// attached or not.
func (d *Device) IsDisplayActive() (bool, error) {
	return toBool(call(d.lib, d.raw.GetDisplayActive))
}

func (d *Device) IsInPersistentMode() (bool, error) {
	return toBool(call(d.lib, d.raw.GetPersistenceMode))
}

func (d *Device) PciInfo() (PciInfo, error) {
	raw, err := call(d.lib, d.raw.GetPciInfo)
	if err != nil {
		return PciInfo{}, err
	}
	return PciInfoFromRaw(raw, true)
}

func (d *Device) MaxPcieLinkGen() (uint32, error) {
	return toUint32(call(d.lib, d.raw.GetMaxPcieLinkGeneration))
}

func (d *Device) MaxPcieLinkWidth() (uint32, error) {
	return toUint32(call(d.lib, d.raw.GetMaxPcieLinkWidth))
}

func (d *Device) CurrentPcieLinkGen() (uint32, error) {
	return toUint32(call(d.lib, d.raw.GetCurrPcieLinkGeneration))
}

func (d *Device) CurrentPcieLinkWidth() (uint32, error) {
	return toUint32(call(d.lib, d.raw.GetCurrPcieLinkWidth))
}

// PcieThroughput returns KB/s over the last 20ms in the given direction.
func (d *Device) PcieThroughput(counter PcieUtilCounter) (uint32, error) {
	return call(d.lib, func() (uint32, nvml.Return) {
		return d.raw.GetPcieThroughput(nvml.PcieUtilCounter(counter))
	})
}

func (d *Device) PcieReplayCounter() (uint32, error) {
	return toUint32(call(d.lib, d.raw.GetPcieReplayCounter))
}

// ClockInfo returns the current clock speed in MHz.
func (d *Device) ClockInfo(clock Clock) (uint32, error) {
	return call(d.lib, func() (uint32, nvml.Return) {
		return d.raw.GetClockInfo(nvml.ClockType(clock))
	})
}

// MaxClockInfo returns the maximum clock speed in MHz.
func (d *Device) MaxClockInfo(clock Clock) (uint32, error) {
	return call(d.lib, func() (uint32, nvml.Return) {
		return d.raw.GetMaxClockInfo(nvml.ClockType(clock))
	})
}

// ApplicationsClock returns the clock applications will run at, in MHz.
func (d *Device) ApplicationsClock(clock Clock) (uint32, error) {
	return call(d.lib, func() (uint32, nvml.Return) {
		return d.raw.GetApplicationsClock(nvml.ClockType(clock))
	})
}

func (d *Device) DefaultApplicationsClock(clock Clock) (uint32, error) {
	return call(d.lib, func() (uint32, nvml.Return) {
		return d.raw.GetDefaultApplicationsClock(nvml.ClockType(clock))
	})
}

func (d *Device) AutoBoostedClocksEnabled() (AutoBoostClocksEnabledInfo, error) {
	enabled, defaultEnabled, err := call2(d.lib, d.raw.GetAutoBoostedClocksEnabled)
	if err != nil {
		return AutoBoostClocksEnabledInfo{}, err
	}
	info := AutoBoostClocksEnabledInfo{}
	if info.Enabled, err = boolFromState(enabled); err != nil {
		return AutoBoostClocksEnabledInfo{}, err
	}
	if info.DefaultEnabled, err = boolFromState(defaultEnabled); err != nil {
		return AutoBoostClocksEnabledInfo{}, err
	}
	return info, nil
}

// FanSpeed returns the intended speed of fan as a percentage of its maximum.
func (d *Device) FanSpeed(fan uint32) (uint32, error) {
	f, err := safecast.ToInt(fan)
	if err != nil {
		return 0, err
	}
	return call(d.lib, func() (uint32, nvml.Return) { return d.raw.GetFanSpeed_v2(f) })
}

func (d *Device) NumFans() (uint32, error) {
	return toUint32(call(d.lib, d.raw.GetNumFans))
}

// Temperature returns degrees Celsius.
func (d *Device) Temperature(sensor TemperatureSensor) (uint32, error) {
	return call(d.lib, func() (uint32, nvml.Return) {
		return d.raw.GetTemperature(nvml.TemperatureSensors(sensor))
	})
}

// TemperatureThreshold returns degrees Celsius.
func (d *Device) TemperatureThreshold(threshold TemperatureThreshold) (uint32, error) {
	return call(d.lib, func() (uint32, nvml.Return) {
		return d.raw.GetTemperatureThreshold(nvml.TemperatureThresholds(threshold))
	})
}

func (d *Device) PerformanceState() (PerformanceState, error) {
	raw, err := call(d.lib, d.raw.GetPerformanceState)
	if err != nil {
		return PerformanceStateUnknown, err
	}
	return performanceStateFromRaw(raw)
}

func (d *Device) CurrentThrottleReasons() (ThrottleReasons, error) {
	raw, err := call(d.lib, d.raw.GetCurrentClocksThrottleReasons)
	if err != nil {
		return ThrottleReasonNone, err
	}
	return throttleReasonsFromRaw(raw)
}

func (d *Device) SupportedThrottleReasons() (ThrottleReasons, error) {
	raw, err := call(d.lib, d.raw.GetSupportedClocksThrottleReasons)
	if err != nil {
		return ThrottleReasonNone, err
	}
	return throttleReasonsFromRaw(raw)
}

// PowerManagementLimit returns milliwatts.
func (d *Device) PowerManagementLimit() (uint32, error) {
	return call(d.lib, d.raw.GetPowerManagementLimit)
}

// PowerManagementLimitDefault returns milliwatts.
func (d *Device) PowerManagementLimitDefault() (uint32, error) {
	return call(d.lib, d.raw.GetPowerManagementDefaultLimit)
}

func (d *Device) PowerManagementLimitConstraints() (PowerManagementConstraints, error) {
	minLimit, maxLimit, err := call2(d.lib, d.raw.GetPowerManagementLimitConstraints)
	if err != nil {
		return PowerManagementConstraints{}, err
	}
	return PowerManagementConstraints{MinLimit: minLimit, MaxLimit: maxLimit}, nil
}

// PowerUsage returns milliwatts.
func (d *Device) PowerUsage() (uint32, error) {
	return call(d.lib, d.raw.GetPowerUsage)
}

// TotalEnergyConsumption returns millijoules since the driver was last loaded.
func (d *Device) TotalEnergyConsumption() (uint64, error) {
	return call(d.lib, d.raw.GetTotalEnergyConsumption)
}

// EnforcedPowerLimit returns milliwatts.
func (d *Device) EnforcedPowerLimit() (uint32, error) {
	return call(d.lib, d.raw.GetEnforcedPowerLimit)
}

func (d *Device) IsPowerManagementAlgoActive() (bool, error) {
	return toBool(call(d.lib, d.raw.GetPowerManagementMode))
}

func (d *Device) MemoryInfo() (MemoryInfo, error) {
	raw, err := call(d.lib, d.raw.GetMemoryInfo)
	if err != nil {
		return MemoryInfo{}, err
	}
	return memoryInfoFromRaw(raw), nil
}

func (d *Device) BAR1MemoryInfo() (BAR1MemoryInfo, error) {
	raw, err := call(d.lib, d.raw.GetBAR1MemoryInfo)
	if err != nil {
		return BAR1MemoryInfo{}, err
	}
	return bar1MemoryInfoFromRaw(raw), nil
}

func (d *Device) ComputeMode() (ComputeMode, error) {
	raw, err := call(d.lib, d.raw.GetComputeMode)
	if err != nil {
		return ComputeModeDefault, err
	}
	return computeModeFromRaw(raw)
}

func (d *Device) CudaComputeCapability() (CudaComputeCapability, error) {
	major, minor, err := call2(d.lib, d.raw.GetCudaComputeCapability)
	if err != nil {
		return CudaComputeCapability{}, err
	}
	return CudaComputeCapability{Major: major, Minor: minor}, nil
}

func (d *Device) Architecture() (Architecture, error) {
	raw, err := call(d.lib, d.raw.GetArchitecture)
	if err != nil {
		return ArchitectureUnknown, err
	}
	return architectureFromRaw(raw)
}

func (d *Device) IsEccEnabled() (EccModeState, error) {
	current, pending, err := call2(d.lib, d.raw.GetEccMode)
	if err != nil {
		return EccModeState{}, err
	}
	state := EccModeState{}
	if state.Current, err = boolFromState(current); err != nil {
		return EccModeState{}, err
	}
	if state.Pending, err = boolFromState(pending); err != nil {
		return EccModeState{}, err
	}
	return state, nil
}

func (d *Device) TotalEccErrors(errorType MemoryError, counter EccCounter) (uint64, error) {
	return call(d.lib, func() (uint64, nvml.Return) {
		return d.raw.GetTotalEccErrors(nvml.MemoryErrorType(errorType), nvml.EccCounterType(counter))
	})
}

func (d *Device) DetailedEccErrors(errorType MemoryError, counter EccCounter) (EccErrorCounts, error) {
	raw, err := call(d.lib, func() (nvml.EccErrorCounts, nvml.Return) {
		return d.raw.GetDetailedEccErrors(nvml.MemoryErrorType(errorType), nvml.EccCounterType(counter))
	})
	if err != nil {
		return EccErrorCounts{}, err
	}
	return eccErrorCountsFromRaw(raw), nil
}

func (d *Device) UtilizationRates() (Utilization, error) {
	raw, err := call(d.lib, d.raw.GetUtilizationRates)
	if err != nil {
		return Utilization{}, err
	}
	return Utilization{GPU: raw.Gpu, Memory: raw.Memory}, nil
}

func (d *Device) EncoderUtilization() (UtilizationInfo, error) {
	value, period, err := call2(d.lib, d.raw.GetEncoderUtilization)
	if err != nil {
		return UtilizationInfo{}, err
	}
	return UtilizationInfo{Value: value, SamplingPeriod: period}, nil
}

func (d *Device) DecoderUtilization() (UtilizationInfo, error) {
	value, period, err := call2(d.lib, d.raw.GetDecoderUtilization)
	if err != nil {
		return UtilizationInfo{}, err
	}
	return UtilizationInfo{Value: value, SamplingPeriod: period}, nil
}

// EncoderSessions lists the encoder sessions running on the device.
func (d *Device) EncoderSessions() ([]EncoderSessionInfo, error) {
	raw, err := call(d.lib, d.raw.GetEncoderSessions)
	if err != nil {
		return nil, err
	}
	sessions := make([]EncoderSessionInfo, 0, len(raw))
	for _, r := range raw {
		session, err := encoderSessionInfoFromRaw(r)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

func (d *Device) VbiosVersion() (string, error) {
	return call(d.lib, d.raw.GetVbiosVersion)
}

func (d *Device) BridgeChipInfo() (BridgeChipHierarchy, error) {
	raw, err := call(d.lib, d.raw.GetBridgeChipInfo)
	if err != nil {
		return BridgeChipHierarchy{}, err
	}
	return bridgeChipHierarchyFromRaw(raw)
}

func processInfosFromRaw(raw []nvml.ProcessInfo) []ProcessInfo {
	infos := make([]ProcessInfo, 0, len(raw))
	for _, p := range raw {
		infos = append(infos, processInfoFromRaw(p))
	}
	return infos
}

// RunningComputeProcesses lists processes with a compute context on the device.
func (d *Device) RunningComputeProcesses() ([]ProcessInfo, error) {
	raw, err := call(d.lib, d.raw.GetComputeRunningProcesses)
	if err != nil {
		return nil, err
	}
	return processInfosFromRaw(raw), nil
}

// RunningGraphicsProcesses lists processes with a graphics context on the device.
func (d *Device) RunningGraphicsProcesses() ([]ProcessInfo, error) {
	raw, err := call(d.lib, d.raw.GetGraphicsRunningProcesses)
	if err != nil {
		return nil, err
	}
	return processInfosFromRaw(raw), nil
}

// Samples returns the entries of a sample buffer newer than lastSeen, a CPU
// timestamp in microseconds. Pass 0 to get every entry.
func (d *Device) Samples(samplingType SamplingType, lastSeen uint64) ([]Sample, error) {
	tag, raw, err := call2(d.lib, func() (nvml.ValueType, []nvml.Sample, nvml.Return) {
		return d.raw.GetSamples(nvml.SamplingType(samplingType), lastSeen)
	})
	if err != nil {
		return nil, err
	}
	return samplesFromRaw(tag, raw)
}

// ProcessUtilizationStats returns per-process utilization newer than lastSeen.
func (d *Device) ProcessUtilizationStats(lastSeen uint64) ([]ProcessUtilizationSample, error) {
	raw, err := call(d.lib, func() ([]nvml.ProcessUtilizationSample, nvml.Return) {
		return d.raw.GetProcessUtilization(lastSeen)
	})
	if err != nil {
		return nil, err
	}
	samples := make([]ProcessUtilizationSample, 0, len(raw))
	for _, s := range raw {
		samples = append(samples, processUtilizationSampleFromRaw(s))
	}
	return samples, nil
}

func (d *Device) ViolationStatus(policy PerformancePolicy) (ViolationTime, error) {
	raw, err := call(d.lib, func() (nvml.ViolationTime, nvml.Return) {
		return d.raw.GetViolationStatus(nvml.PerfPolicyType(policy))
	})
	if err != nil {
		return ViolationTime{}, err
	}
	return ViolationTime{ReferenceTime: raw.ReferenceTime, ViolationTime: raw.ViolationTime}, nil
}

func (d *Device) IsAccountingEnabled() (bool, error) {
	return toBool(call(d.lib, d.raw.GetAccountingMode))
}

// AccountingStatsFor returns the accounting record of pid, which may have exited.
func (d *Device) AccountingStatsFor(pid uint32) (AccountingStats, error) {
	raw, err := call(d.lib, func() (nvml.AccountingStats, nvml.Return) {
		return d.raw.GetAccountingStats(pid)
	})
	if err != nil {
		return AccountingStats{}, err
	}
	return accountingStatsFromRaw(raw), nil
}

// AccountingPids lists the processes in the accounting buffer.
func (d *Device) AccountingPids() ([]uint32, error) {
	raw, err := call(d.lib, d.raw.GetAccountingPids)
	if err != nil {
		return nil, err
	}
	pids := make([]uint32, 0, len(raw))
	for _, p := range raw {
		pid, err := safecast.ToUint32(p)
		if err != nil {
			return nil, err
		}
		pids = append(pids, pid)
	}
	return pids, nil
}

// AccountingBufferSize returns how many processes the accounting buffer holds.
func (d *Device) AccountingBufferSize() (uint32, error) {
	return toUint32(call(d.lib, d.raw.GetAccountingBufferSize))
}

func (d *Device) RetiredPages(cause RetirementCause) ([]RetiredPage, error) {
	addresses, timestamps, err := call2(d.lib, func() ([]uint64, []uint64, nvml.Return) {
		return d.raw.GetRetiredPages_v2(nvml.PageRetirementCause(cause))
	})
	if err != nil {
		return nil, err
	}
	n := min(len(addresses), len(timestamps))
	pages := make([]RetiredPage, 0, n)
	for i := range n {
		pages = append(pages, RetiredPage{Address: addresses[i], Timestamp: timestamps[i]})
	}
	return pages, nil
}

// ArePagesPendingRetired reports whether pages will be retired on the next reboot.
func (d *Device) ArePagesPendingRetired() (bool, error) {
	return toBool(call(d.lib, d.raw.GetRetiredPagesPendingStatus))
}

func (d *Device) RemappedRows() (RemappedRows, error) {
	return call(d.lib, func() (RemappedRows, nvml.Return) {
		corrected, uncorrected, pending, failure, ret := d.raw.GetRemappedRows()
		return RemappedRows{
			Corrected:   corrected,
			Uncorrected: uncorrected,
			Pending:     pending,
			Failure:     failure,
		}, ret
	})
}

func (d *Device) MigMode() (MigModeState, error) {
	current, pending, err := call2(d.lib, d.raw.GetMigMode)
	if err != nil {
		return MigModeState{}, err
	}
	state := MigModeState{}
	if state.Current, err = migModeFromRaw(current); err != nil {
		return MigModeState{}, err
	}
	if state.Pending, err = migModeFromRaw(pending); err != nil {
		return MigModeState{}, err
	}
	return state, nil
}

// FieldValues reads several fields in one call. A failure to read a single field
// is reported in that field's Err; the returned error covers the whole call.
func (d *Device) FieldValues(ids ...FieldID) ([]FieldValue, error) {
	raw := make([]nvml.FieldValue, len(ids))
	for i, id := range ids {
		raw[i].FieldId = uint32(id)
	}
	if err := call0(d.lib, func() nvml.Return { return d.raw.GetFieldValues(raw) }); err != nil {
		return nil, err
	}
	values := make([]FieldValue, 0, len(raw))
	for _, r := range raw {
		values = append(values, fieldValueFromRaw(r))
	}
	return values, nil
}

func (d *Device) SupportedEventTypes() (EventTypes, error) {
	raw, err := call(d.lib, d.raw.GetSupportedEventTypes)
	if err != nil {
		return EventTypeNone, err
	}
	return eventTypesFromRaw(raw)
}

// RegisterEvents adds the device to set for the given event types.
func (d *Device) RegisterEvents(events EventTypes, set *EventSet) error {
	if set == nil || set.lib != d.lib {
		return invalidArgument()
	}
	return call0(d.lib, func() nvml.Return { return d.raw.RegisterEvents(uint64(events), set.raw) })
}

// Link returns a handle to one of the device's NvLinks. No call is made.
func (d *Device) Link(link uint32) *NvLink {
	return &NvLink{device: d, link: link}
}

func (d *Device) SetPersistent(enabled bool) error {
	return call0(d.lib, func() nvml.Return { return d.raw.SetPersistenceMode(stateFromBool(enabled)) })
}

func (d *Device) SetComputeMode(mode ComputeMode) error {
	return call0(d.lib, func() nvml.Return { return d.raw.SetComputeMode(nvml.ComputeMode(mode)) })
}

// SetEccEnabled takes effect after the next reboot.
func (d *Device) SetEccEnabled(enabled bool) error {
	return call0(d.lib, func() nvml.Return { return d.raw.SetEccMode(stateFromBool(enabled)) })
}

func (d *Device) ClearEccErrorCounts(counter EccCounter) error {
	return call0(d.lib, func() nvml.Return { return d.raw.ClearEccErrorCounts(nvml.EccCounterType(counter)) })
}

// SetApplicationsClocks sets the clocks applications run at, in MHz.
func (d *Device) SetApplicationsClocks(memClock, graphicsClock uint32) error {
	return call0(d.lib, func() nvml.Return { return d.raw.SetApplicationsClocks(memClock, graphicsClock) })
}

func (d *Device) ResetApplicationsClocks() error {
	return call0(d.lib, d.raw.ResetApplicationsClocks)
}

func (d *Device) SetAutoBoostedClocksEnabled(enabled bool) error {
	return call0(d.lib, func() nvml.Return { return d.raw.SetAutoBoostedClocksEnabled(stateFromBool(enabled)) })
}

// SetPowerManagementLimit sets the power limit in milliwatts.
func (d *Device) SetPowerManagementLimit(limit uint32) error {
	return call0(d.lib, func() nvml.Return { return d.raw.SetPowerManagementLimit(limit) })
}

func (d *Device) SetAccountingEnabled(enabled bool) error {
	return call0(d.lib, func() nvml.Return { return d.raw.SetAccountingMode(stateFromBool(enabled)) })
}

// ClearAccountingPids empties the accounting buffer.
func (d *Device) ClearAccountingPids() error {
	return call0(d.lib, d.raw.ClearAccountingPids)
}
