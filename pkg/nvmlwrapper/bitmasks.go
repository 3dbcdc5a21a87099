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
	"strings"
)

type bitName struct {
	bit  uint64
	name string
}

func bitsFromRaw[B ~uint32 | ~uint64](raw uint64, known B, typ string) (B, error) {
	if extra := raw &^ uint64(known); extra != 0 {
		return 0, &IncorrectBitsError{Type: typ, Bits: extra}
	}
	return B(raw), nil
}

func bitsString(v uint64, names []bitName) string {
	if v == 0 {
		return "None"
	}
	var parts []string
	for _, n := range names {
		if v&n.bit != 0 {
			parts = append(parts, n.name)
			v &^= n.bit
		}
	}
	if v != 0 {
		parts = append(parts, fmt.Sprintf("%#x", v))
	}
	return strings.Join(parts, "|")
}

// ThrottleReasons explains why clocks are below their maximum.
type ThrottleReasons uint64

const (
	ThrottleReasonGpuIdle                   ThrottleReasons = 0x1
	ThrottleReasonApplicationsClocksSetting ThrottleReasons = 0x2
	ThrottleReasonSwPowerCap                ThrottleReasons = 0x4
	ThrottleReasonHwSlowdown                ThrottleReasons = 0x8
	ThrottleReasonSyncBoost                 ThrottleReasons = 0x10
	ThrottleReasonSwThermalSlowdown         ThrottleReasons = 0x20
	ThrottleReasonHwThermalSlowdown         ThrottleReasons = 0x40
	ThrottleReasonHwPowerBrakeSlowdown      ThrottleReasons = 0x80
	ThrottleReasonDisplayClockSetting       ThrottleReasons = 0x100

	ThrottleReasonNone ThrottleReasons = 0
	ThrottleReasonAll  ThrottleReasons = 0x1ff
)

var throttleReasonNames = []bitName{
	{0x1, "GpuIdle"},
	{0x2, "ApplicationsClocksSetting"},
	{0x4, "SwPowerCap"},
	{0x8, "HwSlowdown"},
	{0x10, "SyncBoost"},
	{0x20, "SwThermalSlowdown"},
	{0x40, "HwThermalSlowdown"},
	{0x80, "HwPowerBrakeSlowdown"},
	{0x100, "DisplayClockSetting"},
}

func (t ThrottleReasons) String() string { return bitsString(uint64(t), throttleReasonNames) }

// Has reports whether every bit of reason is set.
func (t ThrottleReasons) Has(reason ThrottleReasons) bool { return t&reason == reason }

func throttleReasonsFromRaw(raw uint64) (ThrottleReasons, error) {
	return bitsFromRaw(raw, ThrottleReasonAll, "nvmlClocksThrottleReasons")
}

// EventTypes is a set of device events.
type EventTypes uint64

const (
	EventTypeSingleBitEccError EventTypes = 0x1
	EventTypeDoubleBitEccError EventTypes = 0x2
	EventTypePState            EventTypes = 0x4
	EventTypeCriticalXidError  EventTypes = 0x8
	EventTypeClock             EventTypes = 0x10
	EventTypePowerSourceChange EventTypes = 0x80
	EventTypeMigConfigChange   EventTypes = 0x100

	EventTypeNone EventTypes = 0
	EventTypeAll  EventTypes = 0x19f
)

var eventTypeNames = []bitName{
	{0x1, "SingleBitEccError"},
	{0x2, "DoubleBitEccError"},
	{0x4, "PState"},
	{0x8, "CriticalXidError"},
	{0x10, "Clock"},
	{0x80, "PowerSourceChange"},
	{0x100, "MigConfigChange"},
}

func (e EventTypes) String() string { return bitsString(uint64(e), eventTypeNames) }

// Has reports whether every bit of event is set.
func (e EventTypes) Has(event EventTypes) bool { return e&event == event }

func eventTypesFromRaw(raw uint64) (EventTypes, error) {
	return bitsFromRaw(raw, EventTypeAll, "nvmlEventType")
}

// PacketTypes filters the packets an NvLink utilization counter counts.
type PacketTypes uint32

const (
	PacketTypeNoOp     PacketTypes = 0x1
	PacketTypeRead     PacketTypes = 0x2
	PacketTypeWrite    PacketTypes = 0x4
	PacketTypeRatom    PacketTypes = 0x8
	PacketTypeNonRatom PacketTypes = 0x10
	PacketTypeFence    PacketTypes = 0x20
	PacketTypeResponse PacketTypes = 0x40

	PacketTypeNone PacketTypes = 0
	PacketTypeAll  PacketTypes = 0xff
)

var packetTypeNames = []bitName{
	{0x1, "NoOp"},
	{0x2, "Read"},
	{0x4, "Write"},
	{0x8, "Ratom"},
	{0x10, "NonRatom"},
	{0x20, "Fence"},
	{0x40, "Response"},
}

func (p PacketTypes) String() string {
	if p == PacketTypeAll {
		return "All"
	}
	return bitsString(uint64(p), packetTypeNames)
}

func packetTypesFromRaw(raw uint32) (PacketTypes, error) {
	return bitsFromRaw(uint64(raw), PacketTypeAll, "nvmlNvLinkUtilizationCountPktTypes")
}
