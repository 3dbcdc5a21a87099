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
	"reflect"
	"sync/atomic"
	"time"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/ccoveille/go-safecast"
)

// EventSet collects events from the devices registered with it.
type EventSet struct {
	lib      *Library
	raw      nvml.EventSet
	released atomic.Bool
}

// EventData is one event delivered by EventSet.Wait.
type EventData struct {
	Device    *Device
	EventType EventTypes
	// Data is the Xid for CriticalXidError events and 0 otherwise.
	Data uint64
	// GPUInstanceID and ComputeInstanceID are nil unless the event came from a
	// MIG instance.
	GPUInstanceID     *uint32
	ComputeInstanceID *uint32
}

func invalidArgument() error {
	return &Error{Code: nvml.ERROR_INVALID_ARGUMENT, err: ErrInvalidArgument}
}

// Wait blocks for up to timeout until an event arrives. It returns ErrTimeout
// when none did. Timeouts are truncated to milliseconds.
func (e *EventSet) Wait(timeout time.Duration) (EventData, error) {
	if e.released.Load() {
		return EventData{}, invalidArgument()
	}
	ms, err := safecast.ToUint32(timeout.Milliseconds())
	if err != nil {
		return EventData{}, err
	}
	raw, err := call(e.lib, func() (nvml.EventData, nvml.Return) { return e.raw.Wait(ms) })
	if err != nil {
		return EventData{}, err
	}
	events, err := eventTypesFromRaw(raw.EventType)
	if err != nil {
		return EventData{}, err
	}
	data := EventData{
		EventType:         events,
		Data:              raw.EventData,
		GPUInstanceID:     optional(raw.GpuInstanceId, invalidInstanceID),
		ComputeInstanceID: optional(raw.ComputeInstanceId, invalidInstanceID),
	}
	if !isNullDevice(raw.Device) {
		data.Device = e.lib.newDevice(raw.Device)
	}
	return data, nil
}

// isNullDevice reports whether d is absent. go-nvml hands back a device value
// wrapping a nil handle, not a nil interface, for events that belong to no device.
func isNullDevice(d nvml.Device) bool {
	return d == nil || reflect.ValueOf(d).IsZero()
}

// Release frees the set. The set cannot be used afterwards.
func (e *EventSet) Release() error {
	if !e.released.CompareAndSwap(false, true) {
		return invalidArgument()
	}
	return call0(e.lib, e.raw.Free)
}
