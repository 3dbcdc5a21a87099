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

package exporter

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/Project-HAMi/nvml-wrapper/pkg/config"
	"github.com/Project-HAMi/nvml-wrapper/pkg/inventory"
	"github.com/Project-HAMi/nvml-wrapper/pkg/metrics"
	"github.com/Project-HAMi/nvml-wrapper/pkg/nvmlwrapper"
	"github.com/Project-HAMi/nvml-wrapper/pkg/nvmlwrapper/nvmlwrappertest"
	"github.com/Project-HAMi/nvml-wrapper/pkg/version"
)

var (
	first = nvmlwrappertest.Device{
		UUID:        "GPU-00000000-0000-0000-0000-000000000001",
		Name:        "NVIDIA A100-SXM4-40GB",
		BusID:       "00000000:07:00.0",
		MemoryTotal: 40 << 30,
		Temperature: 41,
	}
	second = nvmlwrappertest.Device{
		UUID:        "GPU-00000000-0000-0000-0000-000000000002",
		Name:        "NVIDIA A100-SXM4-40GB",
		BusID:       "00000000:0B:00.0",
		MemoryTotal: 40 << 30,
		Temperature: 52,
	}
)

func newTestHandler(t *testing.T, keep DeviceFilter) (http.Handler, *nvmlwrapper.Library) {
	t.Helper()
	iface := nvmlwrappertest.NewInterface(nvmlwrappertest.NewDevice(first), nvmlwrappertest.NewDevice(second))
	lib, err := nvmlwrappertest.NewLibrary(iface)
	require.NoError(t, err)
	collector, err := metrics.NewDeviceCollector(lib, config.Default())
	require.NoError(t, err)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collector)
	return NewHandler(lib, reg, keep), lib
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	require.Equal(t, version.UserAgent("nvml-exporter"), w.Header().Get("Server"))
	return w
}

func TestHealthz(t *testing.T) {
	h, lib := newTestHandler(t, nil)

	w := get(t, h, "/healthz")
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, "ok", w.Body.String())

	require.NoError(t, lib.Shutdown())
	w = get(t, h, "/healthz")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestDevicesRoute(t *testing.T) {
	testCases := []struct {
		description   string
		keep          DeviceFilter
		expectedUUIDs []string
	}{
		{
			description:   "no filter",
			expectedUUIDs: []string{first.UUID, second.UUID},
		},
		{
			description:   "filtered",
			keep:          func(uuid string) bool { return uuid == second.UUID },
			expectedUUIDs: []string{second.UUID},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			h, _ := newTestHandler(t, tc.keep)
			w := get(t, h, "/devices")
			require.Equal(t, http.StatusOK, w.Code)
			require.Equal(t, "application/json", w.Header().Get("Content-Type"))

			var devices []inventory.Device
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &devices))
			var uuids []string
			for _, d := range devices {
				uuids = append(uuids, d.UUID)
				require.Equal(t, "40Gi", d.MemoryTotal)
			}
			require.Equal(t, tc.expectedUUIDs, uuids)
		})
	}
}

func TestDeviceRoute(t *testing.T) {
	keep := func(uuid string) bool { return uuid != second.UUID }
	testCases := []struct {
		description    string
		path           string
		expectedStatus int
	}{
		{
			description:    "known device",
			path:           "/devices/" + first.UUID,
			expectedStatus: http.StatusOK,
		},
		{
			description:    "unknown device",
			path:           "/devices/GPU-missing",
			expectedStatus: http.StatusNotFound,
		},
		{
			description:    "filtered device",
			path:           "/devices/" + second.UUID,
			expectedStatus: http.StatusNotFound,
		},
	}
	h, _ := newTestHandler(t, keep)
	for _, tc := range testCases {
		t.Run(tc.description, func(t *testing.T) {
			w := get(t, h, tc.path)
			require.Equal(t, tc.expectedStatus, w.Code, w.Body.String())
			if tc.expectedStatus != http.StatusOK {
				require.Contains(t, w.Body.String(), "error")
				return
			}
			var d inventory.Device
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &d))
			require.Equal(t, first.UUID, d.UUID)
			require.Equal(t, uint32(41), *d.Temperature)
		})
	}
}

func TestSystemAndVersionRoutes(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	w := get(t, h, "/system")
	require.Equal(t, http.StatusOK, w.Code)
	var s inventory.System
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &s))
	require.Equal(t, uint32(2), s.DeviceCount)
	require.Equal(t, "12.4", s.CudaVersion)

	w = get(t, h, "/version")
	require.Equal(t, http.StatusOK, w.Code)
	var info version.Info
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &info))
	require.Equal(t, version.Version(), info)
}

func TestMetricsRoute(t *testing.T) {
	h, _ := newTestHandler(t, nil)

	w := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	require.Contains(t, body, `nvml_up 1`)
	require.Contains(t, body, `nvml_temperature_celsius{gpu="1",uuid="`+second.UUID+`"} 52`)
}

func TestSystemRouteUninitialized(t *testing.T) {
	h, lib := newTestHandler(t, nil)
	require.NoError(t, lib.Shutdown())

	w := get(t, h, "/system")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestServe(t *testing.T) {
	h, _ := newTestHandler(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Serve(ctx, "127.0.0.1:0", h) }()

	time.Sleep(100 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not shut down")
	}
}
