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

package main

import (
	"context"
	"testing"
	"time"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	mock "github.com/NVIDIA/go-nvml/pkg/nvml/mock"
	"github.com/stretchr/testify/require"

	"github.com/Project-HAMi/nvml-wrapper/pkg/config"
	"github.com/Project-HAMi/nvml-wrapper/pkg/metrics"
	"github.com/Project-HAMi/nvml-wrapper/pkg/nvmlwrapper"
	"github.com/Project-HAMi/nvml-wrapper/pkg/nvmlwrapper/nvmlwrappertest"
)

func TestApplyFlags(t *testing.T) {
	cfg, err := applyFlags(config.Default(), &options{})
	require.NoError(t, err)
	require.Equal(t, config.Default(), cfg)

	cfg, err = applyFlags(config.Default(), &options{
		libraryPath:   "/usr/lib64/libnvidia-ml.so.1",
		listenAddress: "127.0.0.1:9500",
		ignoredXids:   "13, 79,bogus",
	})
	require.NoError(t, err)
	require.Equal(t, "/usr/lib64/libnvidia-ml.so.1", cfg.LibraryPath)
	require.Equal(t, "127.0.0.1:9500", cfg.ListenAddress)
	require.Equal(t, []uint64{13, 79}, cfg.IgnoredXids)
}

func TestApplyFlagsKeepsFileSettings(t *testing.T) {
	file, err := config.Parse([]byte("xidEvents: false\nignoredXids: []\nlistenAddress: \":9500\"\n"))
	require.NoError(t, err)

	cfg, err := applyFlags(file, &options{libraryPath: "/opt/nvml/libnvidia-ml.so.1"})
	require.NoError(t, err)
	require.False(t, cfg.XidEventsEnabled())
	require.Empty(t, cfg.IgnoredXids)
	require.Equal(t, ":9500", cfg.ListenAddress)
	require.Equal(t, "/opt/nvml/libnvidia-ml.so.1", cfg.LibraryPath)
}

func TestInitLibrary(t *testing.T) {
	testCases := []struct {
		description   string
		returns       []nvml.Return
		expectedCalls int
		expectedError error
	}{
		{
			description:   "ready immediately",
			returns:       []nvml.Return{nvml.SUCCESS},
			expectedCalls: 1,
		},
		{
			description:   "driver comes up later",
			returns:       []nvml.Return{nvml.ERROR_DRIVER_NOT_LOADED, nvml.ERROR_LIBRARY_NOT_FOUND, nvml.SUCCESS},
			expectedCalls: 3,
		},
		{
			description:   "permanent failure",
			returns:       []nvml.Return{nvml.ERROR_NO_PERMISSION},
			expectedCalls: 1,
			expectedError: nvmlwrapper.ErrNoPermission,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			returns := tc.returns
			iface := &mock.Interface{
				InitFunc: func() nvml.Return {
					ret := returns[0]
					if len(returns) > 1 {
						returns = returns[1:]
					}
					return ret
				},
			}
			lib := nvmlwrapper.New(nvmlwrapper.WithInterface(iface))
			cfg := config.Default()
			cfg.InitRetryInterval = 10 * time.Millisecond
			cfg.InitTimeout = 5 * time.Second

			err := initLibrary(context.Background(), lib, cfg)
			require.Len(t, iface.InitCalls(), tc.expectedCalls)
			if tc.expectedError != nil {
				require.ErrorIs(t, err, tc.expectedError)
				require.False(t, lib.Initialized())
				return
			}
			require.NoError(t, err)
			require.True(t, lib.Initialized())
		})
	}
}

func TestInitLibraryTimeout(t *testing.T) {
	iface := &mock.Interface{
		InitFunc: func() nvml.Return { return nvml.ERROR_DRIVER_NOT_LOADED },
	}
	lib := nvmlwrapper.New(nvmlwrapper.WithInterface(iface))
	cfg := config.Default()
	cfg.InitRetryInterval = 10 * time.Millisecond
	cfg.InitTimeout = 50 * time.Millisecond

	err := initLibrary(context.Background(), lib, cfg)
	require.ErrorIs(t, err, nvmlwrapper.ErrDriverNotLoaded)
	require.NotEmpty(t, iface.InitCalls())
}

func TestXidRunner(t *testing.T) {
	device := nvmlwrappertest.NewDevice(nvmlwrappertest.Device{UUID: "GPU-0"})
	iface := nvmlwrappertest.NewInterface(device)
	iface.EventSetCreateFunc = func() (nvml.EventSet, nvml.Return) {
		return &mock.EventSet{
			WaitFunc: func(uint32) (nvml.EventData, nvml.Return) {
				time.Sleep(time.Millisecond)
				return nvml.EventData{}, nvml.ERROR_TIMEOUT
			},
			FreeFunc: func() nvml.Return { return nvml.SUCCESS },
		}, nvml.SUCCESS
	}
	lib, err := nvmlwrappertest.NewLibrary(iface)
	require.NoError(t, err)

	r := &xidRunner{watcher: metrics.NewXidWatcher(lib)}
	r.restart(context.Background(), config.Default())
	require.NotNil(t, r.cancel)

	disabled := config.Default()
	off := false
	disabled.XidEvents = &off
	r.restart(context.Background(), disabled)
	require.Nil(t, r.cancel)
	require.Len(t, iface.EventSetCreateCalls(), 1)

	r.stop()
}
