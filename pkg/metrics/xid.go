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

package metrics

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"

	"github.com/Project-HAMi/nvml-wrapper/pkg/config"
	"github.com/Project-HAMi/nvml-wrapper/pkg/nvmlwrapper"
)

// allDevices labels events the driver did not attribute to a single device.
const allDevices = "all"

// XidWatcher counts critical Xid events and tracks which devices reported one
// that was not caused by an application.
type XidWatcher struct {
	lib     *nvmlwrapper.Library
	events  *prometheus.CounterVec
	healthy *prometheus.GaugeVec
}

func NewXidWatcher(lib *nvmlwrapper.Library) *XidWatcher {
	return &XidWatcher{
		lib: lib,
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "xid_errors_total",
			Help:      "Critical Xid events reported by the driver.",
		}, []string{"uuid", "xid"}),
		healthy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "device_healthy",
			Help:      "Whether the device has reported no device-side Xid since the watcher started.",
		}, []string{"uuid"}),
	}
}

func (w *XidWatcher) Describe(ch chan<- *prometheus.Desc) {
	w.events.Describe(ch)
	w.healthy.Describe(ch)
}

func (w *XidWatcher) Collect(ch chan<- prometheus.Metric) {
	w.events.Collect(ch)
	w.healthy.Collect(ch)
}

// Run registers every kept device that supports Xid events and counts events
// until ctx is done. It returns nil when no device supports them.
func (w *XidWatcher) Run(ctx context.Context, cfg config.Config) error {
	set, err := w.lib.CreateEventSet()
	if err != nil {
		return fmt.Errorf("create event set: %w", err)
	}
	defer func() {
		if err := set.Release(); err != nil {
			klog.ErrorS(err, "Failed to release event set")
		}
	}()

	registered, err := w.register(set, cfg)
	if err != nil {
		return err
	}
	if registered == 0 {
		klog.InfoS("No device supports Xid events, watcher not started")
		return nil
	}
	klog.InfoS("Watching Xid events", "devices", registered)

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		data, err := set.Wait(cfg.EventWaitTimeout)
		if errors.Is(err, nvmlwrapper.ErrTimeout) {
			continue
		}
		if err != nil {
			return fmt.Errorf("wait for events: %w", err)
		}
		if data.EventType.Has(nvmlwrapper.EventTypeCriticalXidError) {
			w.observe(data, cfg)
		}
	}
}

func (w *XidWatcher) register(set *nvmlwrapper.EventSet, cfg config.Config) (int, error) {
	devices, err := w.lib.Devices()
	if err != nil {
		return 0, fmt.Errorf("list devices: %w", err)
	}
	registered := 0
	for _, d := range devices {
		uuid, err := d.UUID()
		if err != nil {
			return 0, err
		}
		if !cfg.KeepDevice(uuid) {
			continue
		}
		supported, err := d.SupportedEventTypes()
		if err != nil && !nvmlwrapper.IsUnavailable(err) {
			return 0, fmt.Errorf("supported events of %s: %w", uuid, err)
		}
		if !supported.Has(nvmlwrapper.EventTypeCriticalXidError) {
			klog.V(2).InfoS("Device does not support Xid events", "uuid", uuid)
			continue
		}
		if err := d.RegisterEvents(nvmlwrapper.EventTypeCriticalXidError, set); err != nil {
			return 0, fmt.Errorf("register events of %s: %w", uuid, err)
		}
		w.healthy.WithLabelValues(uuid).Set(1)
		registered++
	}
	return registered, nil
}

func (w *XidWatcher) observe(data nvmlwrapper.EventData, cfg config.Config) {
	uuid := allDevices
	if data.Device != nil {
		if u, err := data.Device.UUID(); err == nil {
			uuid = u
		} else {
			klog.ErrorS(err, "Failed to get UUID of event device")
		}
	}
	xid := data.Data
	w.events.WithLabelValues(uuid, strconv.FormatUint(xid, 10)).Inc()
	if cfg.XidIgnored(xid) {
		klog.V(2).InfoS("Application Xid event", "uuid", uuid, "xid", xid)
		return
	}
	klog.InfoS("Critical Xid event", "uuid", uuid, "xid", xid)
	if uuid != allDevices {
		w.healthy.WithLabelValues(uuid).Set(0)
	}
}

// ParseXids reads a comma separated list of Xids. Entries that are not
// unsigned integers are logged and dropped.
func ParseXids(input string) []uint64 {
	var xids []uint64
	for _, field := range strings.Split(input, ",") {
		trimmed := strings.TrimSpace(field)
		if trimmed == "" {
			continue
		}
		xid, err := strconv.ParseUint(trimmed, 10, 64)
		if err != nil {
			klog.ErrorS(err, "Ignoring malformed Xid", "xid", trimmed)
			continue
		}
		xids = append(xids, xid)
	}
	return xids
}
