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

// Package exporter serves device metrics and inventory over HTTP.
package exporter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"k8s.io/klog/v2"

	"github.com/Project-HAMi/nvml-wrapper/pkg/inventory"
	"github.com/Project-HAMi/nvml-wrapper/pkg/nvmlwrapper"
	"github.com/Project-HAMi/nvml-wrapper/pkg/version"
)

const (
	binaryName      = "nvml-exporter"
	shutdownTimeout = 5 * time.Second
)

// DeviceFilter reports whether the device with the given UUID is exposed.
type DeviceFilter func(uuid string) bool

func writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		klog.ErrorS(err, "Marshal response", "response", v)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprintf(w, "{\"error\":%q}", err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps a library error to the HTTP status reported for it.
func statusFor(err error) int {
	switch {
	case errors.Is(err, nvmlwrapper.ErrNotFound), errors.Is(err, nvmlwrapper.ErrInvalidArgument):
		return http.StatusNotFound
	case errors.Is(err, nvmlwrapper.ErrUninitialized):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func HealthzRoute(lib *nvmlwrapper.Library) httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		if !lib.Initialized() {
			http.Error(w, "nvml not initialized", http.StatusServiceUnavailable)
			return
		}
		if _, err := lib.DeviceCount(); err != nil {
			klog.ErrorS(err, "Health check failed")
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte("ok"))
	}
}

// DevicesRoute lists a snapshot of every exposed device.
func DevicesRoute(lib *nvmlwrapper.Library, keep DeviceFilter) httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		devices, err := inventory.CollectDevices(lib, keep)
		if err != nil {
			klog.ErrorS(err, "Collect devices")
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, devices)
	}
}

// DeviceRoute returns the snapshot of the device named by the :uuid parameter.
func DeviceRoute(lib *nvmlwrapper.Library, keep DeviceFilter) httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, ps httprouter.Params) {
		uuid := ps.ByName("uuid")
		if keep != nil && !keep(uuid) {
			writeError(w, http.StatusNotFound, fmt.Errorf("device %s is not exposed", uuid))
			return
		}
		d, err := lib.DeviceByUUID(uuid)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		snapshot, err := inventory.CollectDevice(lib, d)
		if err != nil {
			klog.ErrorS(err, "Collect device", "uuid", uuid)
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, snapshot)
	}
}

func SystemRoute(lib *nvmlwrapper.Library) httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		s, err := inventory.CollectSystem(lib)
		if err != nil {
			writeError(w, statusFor(err), err)
			return
		}
		writeJSON(w, http.StatusOK, s)
	}
}

func VersionRoute() httprouter.Handle {
	return func(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
		writeJSON(w, http.StatusOK, version.Version())
	}
}

// withServerHeader stamps every response with the binary's user agent.
func withServerHeader(next http.Handler) http.Handler {
	agent := version.UserAgent(binaryName)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Server", agent)
		next.ServeHTTP(w, r)
	})
}

// NewHandler wires every route of the exporter.
func NewHandler(lib *nvmlwrapper.Library, gatherer prometheus.Gatherer, keep DeviceFilter) http.Handler {
	router := httprouter.New()
	router.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	}))
	router.GET("/healthz", HealthzRoute(lib))
	router.GET("/system", SystemRoute(lib))
	router.GET("/devices", DevicesRoute(lib, keep))
	router.GET("/devices/:uuid", DeviceRoute(lib, keep))
	router.GET("/version", VersionRoute())
	return withServerHeader(router)
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		klog.InfoS("Listening", "address", addr)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
