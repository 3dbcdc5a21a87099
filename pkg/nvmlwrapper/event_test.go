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
	"testing"
	"time"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	mock "github.com/NVIDIA/go-nvml/pkg/nvml/mock"
	"github.com/stretchr/testify/require"
)

// handleDevice stands in for the device value go-nvml returns, whose zero
// value is a null handle.
type handleDevice struct {
	nvml.Device
}

func TestIsNullDevice(t *testing.T) {
	require.True(t, isNullDevice(nil))
	require.True(t, isNullDevice(handleDevice{}))
	require.False(t, isNullDevice(handleDevice{Device: &mock.Device{}}))
	require.False(t, isNullDevice(&mock.Device{}))
}

func TestEventSetWait(t *testing.T) {
	device := &mock.Device{
		GetUUIDFunc: func() (string, nvml.Return) { return "GPU-0", nvml.SUCCESS },
	}
	events := []nvml.EventData{
		{Device: device, EventType: 0x8, EventData: 79, GpuInstanceId: invalidInstanceID, ComputeInstanceId: invalidInstanceID},
		{Device: handleDevice{}, EventType: 0x4, GpuInstanceId: 1, ComputeInstanceId: 0},
		{EventType: 0x400},
	}
	var timeouts []uint32
	set := &mock.EventSet{
		WaitFunc: func(timeout uint32) (nvml.EventData, nvml.Return) {
			timeouts = append(timeouts, timeout)
			if len(events) == 0 {
				return nvml.EventData{}, nvml.ERROR_TIMEOUT
			}
			e := events[0]
			events = events[1:]
			return e, nvml.SUCCESS
		},
		FreeFunc: func() nvml.Return { return nvml.SUCCESS },
	}
	lib := newTestLibrary(t, &mock.Interface{
		EventSetCreateFunc: func() (nvml.EventSet, nvml.Return) { return set, nvml.SUCCESS },
	})
	es, err := lib.CreateEventSet()
	require.NoError(t, err)

	xid, err := es.Wait(5 * time.Second)
	require.NoError(t, err)
	require.Equal(t, EventTypeCriticalXidError, xid.EventType)
	require.Equal(t, uint64(79), xid.Data)
	require.Nil(t, xid.GPUInstanceID)
	require.NotNil(t, xid.Device)
	uuid, err := xid.Device.UUID()
	require.NoError(t, err)
	require.Equal(t, "GPU-0", uuid)

	pstate, err := es.Wait(1500 * time.Microsecond)
	require.NoError(t, err)
	require.Nil(t, pstate.Device)
	require.Equal(t, uint32(1), *pstate.GPUInstanceID)
	require.Equal(t, uint32(0), *pstate.ComputeInstanceID)

	_, err = es.Wait(time.Second)
	var berr *IncorrectBitsError
	require.ErrorAs(t, err, &berr)

	_, err = es.Wait(time.Second)
	require.ErrorIs(t, err, ErrTimeout)
	require.Equal(t, []uint32{5000, 1, 1000, 1000}, timeouts)

	require.NoError(t, es.Release())
	require.ErrorIs(t, es.Release(), ErrInvalidArgument)
	_, err = es.Wait(time.Second)
	require.ErrorIs(t, err, ErrInvalidArgument)
	require.Len(t, set.FreeCalls(), 1)
}

func TestEventSetWaitTimeoutOverflow(t *testing.T) {
	lib := newTestLibrary(t, &mock.Interface{
		EventSetCreateFunc: func() (nvml.EventSet, nvml.Return) { return &mock.EventSet{}, nvml.SUCCESS },
	})
	es, err := lib.CreateEventSet()
	require.NoError(t, err)

	_, err = es.Wait(time.Duration(1<<33) * time.Millisecond)
	require.Error(t, err)
	require.False(t, IsNativeError(err))
}
