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
	"fmt"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

type integer interface {
	~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64
}

// enumFromRaw validates a raw enum value whose variants are numbered 0..count-1.
func enumFromRaw[E ~uint32, R integer](raw R, count int, typ string) (E, error) {
	v := int64(raw)
	if v < 0 || v >= int64(count) {
		return 0, &UnexpectedVariantError{Type: typ, Value: v}
	}
	return E(v), nil
}

func enumString(names []string, v uint32, typ string) string {
	if int(v) < len(names) && names[v] != "" {
		return names[v]
	}
	return fmt.Sprintf("%s(%d)", typ, v)
}

// Brand is the marketing brand of a device.
type Brand uint32

const (
	BrandUnknown Brand = iota
	BrandQuadro
	BrandTesla
	BrandNVS
	BrandGrid
	BrandGeForce
	BrandTitan
	BrandNvidiaVApps
	BrandNvidiaVPC
	BrandNvidiaVCS
	BrandNvidiaVWS
	BrandNvidiaCloudGaming
	BrandQuadroRTX
	BrandNvidiaRTX
	BrandNvidia
	BrandGeForceRTX
	BrandTitanRTX
)

var brandNames = []string{
	"Unknown", "Quadro", "Tesla", "NVS", "Grid", "GeForce", "Titan", "NvidiaVApps",
	"NvidiaVPC", "NvidiaVCS", "NvidiaVWS", "NvidiaCloudGaming", "QuadroRTX", "NvidiaRTX",
	"Nvidia", "GeForceRTX", "TitanRTX",
}

func (b Brand) String() string { return enumString(brandNames, uint32(b), "Brand") }

func brandFromRaw(raw nvml.BrandType) (Brand, error) {
	return enumFromRaw[Brand](raw, len(brandNames), "nvmlBrandType_t")
}

// PerformanceState is a P-state, P0 being the highest performance.
type PerformanceState uint32

const (
	PerformanceStateUnknown PerformanceState = 32
)

func (p PerformanceState) String() string {
	if p == PerformanceStateUnknown {
		return "Unknown"
	}
	return fmt.Sprintf("P%d", uint32(p))
}

func performanceStateFromRaw(raw nvml.Pstates) (PerformanceState, error) {
	v := int64(raw)
	switch {
	case v >= 0 && v <= 15:
		return PerformanceState(v), nil
	case v == int64(PerformanceStateUnknown):
		return PerformanceStateUnknown, nil
	}
	return 0, &UnexpectedVariantError{Type: "nvmlPstates_t", Value: v}
}

// ComputeMode controls which processes may create contexts on a device.
type ComputeMode uint32

const (
	ComputeModeDefault ComputeMode = iota
	ComputeModeExclusiveThread
	ComputeModeProhibited
	ComputeModeExclusiveProcess
)

var computeModeNames = []string{"Default", "ExclusiveThread", "Prohibited", "ExclusiveProcess"}

func (c ComputeMode) String() string { return enumString(computeModeNames, uint32(c), "ComputeMode") }

func computeModeFromRaw(raw nvml.ComputeMode) (ComputeMode, error) {
	return enumFromRaw[ComputeMode](raw, len(computeModeNames), "nvmlComputeMode_t")
}

// BridgeChip is the type of an on-board bridge chip.
type BridgeChip uint32

const (
	BridgeChipPLX BridgeChip = iota
	BridgeChipBRO4
)

var bridgeChipNames = []string{"PLX", "BRO4"}

func (b BridgeChip) String() string { return enumString(bridgeChipNames, uint32(b), "BridgeChip") }

func bridgeChipFromRaw(raw nvml.BridgeChipType) (BridgeChip, error) {
	return enumFromRaw[BridgeChip](raw, len(bridgeChipNames), "nvmlBridgeChipType_t")
}

// Architecture is the GPU micro-architecture.
type Architecture uint32

const (
	ArchitectureKepler    Architecture = 2
	ArchitectureMaxwell   Architecture = 3
	ArchitecturePascal    Architecture = 4
	ArchitectureVolta     Architecture = 5
	ArchitectureTuring    Architecture = 6
	ArchitectureAmpere    Architecture = 7
	ArchitectureAda       Architecture = 8
	ArchitectureHopper    Architecture = 9
	ArchitectureBlackwell Architecture = 10
	ArchitectureUnknown   Architecture = 0xffffffff
)

var architectureNames = []string{
	"", "", "Kepler", "Maxwell", "Pascal", "Volta", "Turing", "Ampere", "Ada", "Hopper", "Blackwell",
}

func (a Architecture) String() string {
	if a == ArchitectureUnknown {
		return "Unknown"
	}
	return enumString(architectureNames, uint32(a), "Architecture")
}

func architectureFromRaw(raw nvml.DeviceArchitecture) (Architecture, error) {
	v := int64(raw)
	if v == int64(ArchitectureUnknown) {
		return ArchitectureUnknown, nil
	}
	if v >= int64(ArchitectureKepler) && v <= int64(ArchitectureBlackwell) {
		return Architecture(v), nil
	}
	return 0, &UnexpectedVariantError{Type: "nvmlDeviceArchitecture_t", Value: v}
}

// UtilizationCountUnit is the unit an NvLink utilization counter counts in.
type UtilizationCountUnit uint32

const (
	UtilizationCountUnitCycles UtilizationCountUnit = iota
	UtilizationCountUnitPackets
	UtilizationCountUnitBytes
)

var utilizationCountUnitNames = []string{"Cycles", "Packets", "Bytes"}

func (u UtilizationCountUnit) String() string {
	return enumString(utilizationCountUnitNames, uint32(u), "UtilizationCountUnit")
}

func utilizationCountUnitFromRaw(raw nvml.NvLinkUtilizationCountUnits) (UtilizationCountUnit, error) {
	return enumFromRaw[UtilizationCountUnit](raw, len(utilizationCountUnitNames), "nvmlNvLinkUtilizationCountUnits_t")
}

// LedColor is the color of a unit's LED.
type LedColor uint32

const (
	LedColorGreen LedColor = iota
	LedColorAmber
)

var ledColorNames = []string{"Green", "Amber"}

func (l LedColor) String() string { return enumString(ledColorNames, uint32(l), "LedColor") }

func ledColorFromRaw(raw nvml.LedColor) (LedColor, error) {
	return enumFromRaw[LedColor](raw, len(ledColorNames), "nvmlLedColor_t")
}

// FanState reports whether a unit fan is working.
type FanState uint32

const (
	FanStateNormal FanState = iota
	FanStateFailed
)

var fanStateNames = []string{"Normal", "Failed"}

func (f FanState) String() string { return enumString(fanStateNames, uint32(f), "FanState") }

func fanStateFromRaw(raw nvml.FanState) (FanState, error) {
	return enumFromRaw[FanState](raw, len(fanStateNames), "nvmlFanState_t")
}

// MigMode reports whether multi-instance GPU mode is on.
type MigMode uint32

const (
	MigModeDisabled MigMode = iota
	MigModeEnabled
)

var migModeNames = []string{"Disabled", "Enabled"}

func (m MigMode) String() string { return enumString(migModeNames, uint32(m), "MigMode") }

func migModeFromRaw(raw int) (MigMode, error) {
	return enumFromRaw[MigMode](raw, len(migModeNames), "nvmlDeviceMigMode")
}

// The enums below are only ever passed to the library.

// Clock selects a clock domain.
type Clock uint32

const (
	ClockGraphics Clock = iota
	ClockSM
	ClockMemory
	ClockVideo
)

var clockNames = []string{"Graphics", "SM", "Memory", "Video"}

func (c Clock) String() string { return enumString(clockNames, uint32(c), "Clock") }

// TemperatureSensor selects a device temperature sensor.
type TemperatureSensor uint32

const (
	TemperatureSensorGPU TemperatureSensor = iota
)

func (t TemperatureSensor) String() string {
	return enumString([]string{"GPU"}, uint32(t), "TemperatureSensor")
}

// TemperatureThreshold selects a device temperature threshold.
type TemperatureThreshold uint32

const (
	TemperatureThresholdShutdown TemperatureThreshold = iota
	TemperatureThresholdSlowdown
	TemperatureThresholdMemMax
	TemperatureThresholdGPUMax
	TemperatureThresholdAcousticMin
	TemperatureThresholdAcousticCurrent
	TemperatureThresholdAcousticMax
)

var temperatureThresholdNames = []string{
	"Shutdown", "Slowdown", "MemMax", "GPUMax", "AcousticMin", "AcousticCurrent", "AcousticMax",
}

func (t TemperatureThreshold) String() string {
	return enumString(temperatureThresholdNames, uint32(t), "TemperatureThreshold")
}

// EccCounter selects which ECC counter to read.
type EccCounter uint32

const (
	EccCounterVolatile EccCounter = iota
	EccCounterAggregate
)

func (e EccCounter) String() string {
	return enumString([]string{"Volatile", "Aggregate"}, uint32(e), "EccCounter")
}

// MemoryError selects corrected or uncorrected memory errors.
type MemoryError uint32

const (
	MemoryErrorCorrected MemoryError = iota
	MemoryErrorUncorrected
)

func (m MemoryError) String() string {
	return enumString([]string{"Corrected", "Uncorrected"}, uint32(m), "MemoryError")
}

// PcieUtilCounter selects a PCIe throughput direction.
type PcieUtilCounter uint32

const (
	PcieUtilCounterSend PcieUtilCounter = iota
	PcieUtilCounterReceive
)

func (p PcieUtilCounter) String() string {
	return enumString([]string{"Send", "Receive"}, uint32(p), "PcieUtilCounter")
}

// PerformancePolicy selects the policy a violation time is reported for.
type PerformancePolicy uint32

const (
	PerformancePolicyPower           PerformancePolicy = 0
	PerformancePolicyThermal         PerformancePolicy = 1
	PerformancePolicySyncBoost       PerformancePolicy = 2
	PerformancePolicyBoardLimit      PerformancePolicy = 3
	PerformancePolicyLowUtilization  PerformancePolicy = 4
	PerformancePolicyReliability     PerformancePolicy = 5
	PerformancePolicyTotalAppClocks  PerformancePolicy = 10
	PerformancePolicyTotalBaseClocks PerformancePolicy = 11
)

var performancePolicyNames = map[PerformancePolicy]string{
	PerformancePolicyPower:           "Power",
	PerformancePolicyThermal:         "Thermal",
	PerformancePolicySyncBoost:       "SyncBoost",
	PerformancePolicyBoardLimit:      "BoardLimit",
	PerformancePolicyLowUtilization:  "LowUtilization",
	PerformancePolicyReliability:     "Reliability",
	PerformancePolicyTotalAppClocks:  "TotalAppClocks",
	PerformancePolicyTotalBaseClocks: "TotalBaseClocks",
}

func (p PerformancePolicy) String() string {
	if name, ok := performancePolicyNames[p]; ok {
		return name
	}
	return fmt.Sprintf("PerformancePolicy(%d)", uint32(p))
}

// SamplingType selects the buffer Device.Samples reads from.
type SamplingType uint32

const (
	SamplingTypeTotalPower SamplingType = iota
	SamplingTypeGPUUtilization
	SamplingTypeMemoryUtilization
	SamplingTypeEncoderUtilization
	SamplingTypeDecoderUtilization
	SamplingTypeProcessorClock
	SamplingTypeMemoryClock
)

var samplingTypeNames = []string{
	"TotalPower", "GPUUtilization", "MemoryUtilization", "EncoderUtilization",
	"DecoderUtilization", "ProcessorClock", "MemoryClock",
}

func (s SamplingType) String() string {
	return enumString(samplingTypeNames, uint32(s), "SamplingType")
}

// RetirementCause is why a page was retired.
type RetirementCause uint32

const (
	RetirementCauseMultipleSingleBitEccErrors RetirementCause = iota
	RetirementCauseDoubleBitEccError
)

func (r RetirementCause) String() string {
	return enumString([]string{"MultipleSingleBitEccErrors", "DoubleBitEccError"}, uint32(r), "RetirementCause")
}

// InfoROM selects an infoROM object.
type InfoROM uint32

const (
	InfoROMOEM InfoROM = iota
	InfoROMECC
	InfoROMPower
)

func (i InfoROM) String() string {
	return enumString([]string{"OEM", "ECC", "Power"}, uint32(i), "InfoROM")
}

// NvLinkCapability is a capability an NvLink may have.
type NvLinkCapability uint32

const (
	NvLinkCapabilityP2P NvLinkCapability = iota
	NvLinkCapabilitySysmemAccess
	NvLinkCapabilityP2PAtomics
	NvLinkCapabilitySysmemAtomics
	NvLinkCapabilitySLIBridge
	NvLinkCapabilityValidLink
)

var nvLinkCapabilityNames = []string{
	"P2P", "SysmemAccess", "P2PAtomics", "SysmemAtomics", "SLIBridge", "ValidLink",
}

func (c NvLinkCapability) String() string {
	return enumString(nvLinkCapabilityNames, uint32(c), "NvLinkCapability")
}

// NvLinkErrorCounter selects an NvLink error counter.
type NvLinkErrorCounter uint32

const (
	NvLinkErrorCounterDlReplay NvLinkErrorCounter = iota
	NvLinkErrorCounterDlRecovery
	NvLinkErrorCounterDlCrcFlit
	NvLinkErrorCounterDlCrcData
	NvLinkErrorCounterDlEccData
)

var nvLinkErrorCounterNames = []string{"DlReplay", "DlRecovery", "DlCrcFlit", "DlCrcData", "DlEccData"}

func (c NvLinkErrorCounter) String() string {
	return enumString(nvLinkErrorCounterNames, uint32(c), "NvLinkErrorCounter")
}

// NvLinkCounter selects one of the two NvLink utilization counters.
type NvLinkCounter uint32

const (
	NvLinkCounterZero NvLinkCounter = iota
	NvLinkCounterOne
)

func (c NvLinkCounter) String() string {
	return enumString([]string{"Zero", "One"}, uint32(c), "NvLinkCounter")
}

// UnitTemperature selects an S-class unit temperature reading.
type UnitTemperature uint32

const (
	UnitTemperatureIntake UnitTemperature = iota
	UnitTemperatureExhaust
	UnitTemperatureBoard
)

func (u UnitTemperature) String() string {
	return enumString([]string{"Intake", "Exhaust", "Board"}, uint32(u), "UnitTemperature")
}

// EncoderType is the codec of an encoder session.
type EncoderType uint32

const (
	EncoderTypeH264 EncoderType = iota
	EncoderTypeHEVC
	EncoderTypeAV1
)

var encoderTypeNames = []string{"H264", "HEVC", "AV1"}

func (e EncoderType) String() string { return enumString(encoderTypeNames, uint32(e), "EncoderType") }

func encoderTypeFromRaw(raw nvml.EncoderType) (EncoderType, error) {
	return enumFromRaw[EncoderType](raw, len(encoderTypeNames), "nvmlEncoderType_t")
}
