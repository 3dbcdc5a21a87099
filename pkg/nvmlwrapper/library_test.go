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
	"sync"
	"testing"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	mock "github.com/NVIDIA/go-nvml/pkg/nvml/mock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLibrary(t *testing.T, iface *mock.Interface) *Library {
	t.Helper()
	if iface.InitFunc == nil {
		iface.InitFunc = func() nvml.Return { return nvml.SUCCESS }
	}
	if iface.ShutdownFunc == nil {
		iface.ShutdownFunc = func() nvml.Return { return nvml.SUCCESS }
	}
	lib := New(WithInterface(iface))
	require.NoError(t, lib.Init())
	return lib
}

func TestLibraryInit(t *testing.T) {
	testCases := []struct {
		description   string
		initReturn    nvml.Return
		expectedError error
	}{
		{
			description: "success",
			initReturn:  nvml.SUCCESS,
		},
		{
			description:   "driver not loaded",
			initReturn:    nvml.ERROR_DRIVER_NOT_LOADED,
			expectedError: ErrDriverNotLoaded,
		},
		{
			description:   "library not found",
			initReturn:    nvml.ERROR_LIBRARY_NOT_FOUND,
			expectedError: ErrLibraryNotFound,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			lib := New(WithInterface(&mock.Interface{
				InitFunc: func() nvml.Return { return tc.initReturn },
			}))
			err := lib.Init()
			if tc.expectedError == nil {
				require.NoError(t, err)
				require.True(t, lib.Initialized())
				return
			}
			require.ErrorIs(t, err, tc.expectedError)
			require.False(t, lib.Initialized())
		})
	}
}

func TestLibraryInitTwice(t *testing.T) {
	iface := &mock.Interface{}
	lib := newTestLibrary(t, iface)

	require.ErrorIs(t, lib.Init(), ErrAlreadyInitialized)
	require.ErrorIs(t, lib.InitWithFlags(InitFlagNoGpus), ErrAlreadyInitialized)
	require.Len(t, iface.InitCalls(), 1)
}

func TestLibraryInitWithFlags(t *testing.T) {
	var got uint32
	lib := New(WithInterface(&mock.Interface{
		InitWithFlagsFunc: func(flags uint32) nvml.Return {
			got = flags
			return nvml.SUCCESS
		},
	}))
	require.NoError(t, lib.InitWithFlags(InitFlagNoGpus|InitFlagNoAttach))
	require.Equal(t, uint32(3), got)
}

func TestLibraryShutdown(t *testing.T) {
	t.Run("uninitialized", func(t *testing.T) {
		iface := &mock.Interface{}
		lib := New(WithInterface(iface))
		require.ErrorIs(t, lib.Shutdown(), ErrUninitialized)
		require.Empty(t, iface.ShutdownCalls())
	})

	t.Run("twice", func(t *testing.T) {
		iface := &mock.Interface{}
		lib := newTestLibrary(t, iface)
		require.NoError(t, lib.Shutdown())
		require.ErrorIs(t, lib.Shutdown(), ErrUninitialized)
		require.Len(t, iface.ShutdownCalls(), 1)
	})

	t.Run("native failure still closes the library", func(t *testing.T) {
		iface := &mock.Interface{
			ShutdownFunc: func() nvml.Return { return nvml.ERROR_UNKNOWN },
		}
		lib := newTestLibrary(t, iface)
		require.ErrorIs(t, lib.Shutdown(), ErrUnknown)
		require.False(t, lib.Initialized())
	})
}

func TestCallsBeforeInit(t *testing.T) {
	iface := &mock.Interface{}
	lib := New(WithInterface(iface))

	_, err := lib.DriverVersion()
	require.ErrorIs(t, err, ErrUninitialized)
	_, err = lib.DeviceCount()
	require.ErrorIs(t, err, ErrUninitialized)
	require.Empty(t, iface.SystemGetDriverVersionCalls())
	require.Empty(t, iface.DeviceGetCountCalls())
}

func TestDerivedHandlesAfterShutdown(t *testing.T) {
	device := &mock.Device{}
	unit := &mock.Unit{}
	set := &mock.EventSet{}
	iface := &mock.Interface{
		DeviceGetHandleByIndexFunc: func(int) (nvml.Device, nvml.Return) { return device, nvml.SUCCESS },
		UnitGetHandleByIndexFunc:   func(int) (nvml.Unit, nvml.Return) { return unit, nvml.SUCCESS },
		EventSetCreateFunc:         func() (nvml.EventSet, nvml.Return) { return set, nvml.SUCCESS },
	}
	lib := newTestLibrary(t, iface)

	d, err := lib.DeviceByIndex(0)
	require.NoError(t, err)
	u, err := lib.UnitByIndex(0)
	require.NoError(t, err)
	es, err := lib.CreateEventSet()
	require.NoError(t, err)
	link := d.Link(1)

	require.NoError(t, lib.Shutdown())

	// The mocks have no functions set, so any forwarded call would panic.
	_, err = d.Name()
	require.ErrorIs(t, err, ErrUninitialized)
	_, err = d.MemoryInfo()
	require.ErrorIs(t, err, ErrUninitialized)
	require.ErrorIs(t, d.SetPersistent(true), ErrUninitialized)
	_, err = link.IsActive()
	require.ErrorIs(t, err, ErrUninitialized)
	_, err = u.Info()
	require.ErrorIs(t, err, ErrUninitialized)
	_, err = es.Wait(0)
	require.ErrorIs(t, err, ErrUninitialized)
	_, err = lib.DeviceByIndex(0)
	require.ErrorIs(t, err, ErrUninitialized)
	require.Len(t, iface.DeviceGetHandleByIndexCalls(), 1)
}

func TestLibraryConcurrentUse(t *testing.T) {
	iface := &mock.Interface{
		SystemGetDriverVersionFunc: func() (string, nvml.Return) { return "550.54.15", nvml.SUCCESS },
	}
	lib := newTestLibrary(t, iface)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				v, err := lib.DriverVersion()
				if err != nil {
					assert.ErrorIs(t, err, ErrUninitialized)
					continue
				}
				assert.Equal(t, "550.54.15", v)
			}
		}()
	}
	require.NoError(t, lib.Shutdown())
	wg.Wait()
}

func TestNewDefaultPath(t *testing.T) {
	lib := New(WithInterface(&mock.Interface{}))
	require.Equal(t, DefaultLibraryPath, lib.path)

	lib = New(WithLibraryPath("/opt/nvidia/libnvidia-ml.so.1"), WithInterface(&mock.Interface{}))
	require.Equal(t, "/opt/nvidia/libnvidia-ml.so.1", lib.path)

	lib = New(WithLibraryPath(""), WithInterface(&mock.Interface{}))
	require.Equal(t, DefaultLibraryPath, lib.path)
}
