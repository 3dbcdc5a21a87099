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
	"fmt"
	"slices"
	"strconv"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/klog/v2"

	"github.com/Project-HAMi/nvml-wrapper/pkg/config"
	"github.com/Project-HAMi/nvml-wrapper/pkg/nvmlwrapper"
)

// Collector groups that can be turned off with disabledCollectors.
const (
	CollectorMemory      = "memory"
	CollectorUtilization = "utilization"
	CollectorPower       = "power"
	CollectorTemperature = "temperature"
	CollectorClocks      = "clocks"
	CollectorPState      = "pstate"
	CollectorEcc         = "ecc"
	CollectorPcie        = "pcie"
	CollectorThrottle    = "throttle"
)

var deviceLabels = []string{"gpu", "uuid"}

func newDesc(name, help string, labels ...string) *prometheus.Desc {
	return prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "", name),
		help,
		append(slices.Clone(deviceLabels), labels...),
		nil,
	)
}

var (
	upDesc = prometheus.NewDesc(
		"nvml_up",
		"Whether the NVML library is initialized.",
		nil, nil,
	)
	driverInfoDesc = prometheus.NewDesc(
		"nvml_driver_info",
		"Driver and CUDA versions exposed as labels with a constant value of 1.",
		[]string{"driver_version", "nvml_version", "cuda_version"}, nil,
	)
	deviceInfoDesc = newDesc("device_info", "Device metadata exposed as labels with a constant value of 1.", "name", "pci_bus_id")

	memoryUsedDesc  = newDesc("memory_used_bytes", "Frame buffer memory in use.")
	memoryFreeDesc  = newDesc("memory_free_bytes", "Frame buffer memory available.")
	memoryTotalDesc = newDesc("memory_total_bytes", "Total frame buffer memory.")

	gpuUtilizationDesc    = newDesc("gpu_utilization_ratio", "Fraction of the last sample period during which a kernel was running.")
	memoryUtilizationDesc = newDesc("memory_utilization_ratio", "Fraction of the last sample period during which memory was read or written.")

	powerUsageDesc = newDesc("power_usage_watts", "Current power draw of the board.")
	powerLimitDesc = newDesc("power_limit_watts", "Power limit enforced by the driver.")
	energyDesc     = newDesc("energy_consumption_joules_total", "Energy consumed since the driver was last loaded.")

	temperatureDesc = newDesc("temperature_celsius", "GPU core temperature.")
	clockDesc       = newDesc("clock_hz", "Current clock speed.", "clock")
	pstateDesc      = newDesc("performance_state", "Current P-state, 0 being the highest performance.")
	eccErrorsDesc   = newDesc("ecc_errors_total", "ECC errors since the last counter reset.", "type")
	pcieDesc        = newDesc("pcie_throughput_bytes_per_second", "PCIe throughput over the last 20ms.", "direction")
	throttleDesc    = newDesc("clocks_throttled", "Whether the given reason is currently holding clocks down.", "reason")
)

type group struct {
	name    string
	descs   []*prometheus.Desc
	collect func(s *scrape, d *nvmlwrapper.Device)
}

var groups = []group{
	{CollectorMemory, []*prometheus.Desc{memoryUsedDesc, memoryFreeDesc, memoryTotalDesc}, collectMemory},
	{CollectorUtilization, []*prometheus.Desc{gpuUtilizationDesc, memoryUtilizationDesc}, collectUtilization},
	{CollectorPower, []*prometheus.Desc{powerUsageDesc, powerLimitDesc, energyDesc}, collectPower},
	{CollectorTemperature, []*prometheus.Desc{temperatureDesc}, collectTemperature},
	{CollectorClocks, []*prometheus.Desc{clockDesc}, collectClocks},
	{CollectorPState, []*prometheus.Desc{pstateDesc}, collectPState},
	{CollectorEcc, []*prometheus.Desc{eccErrorsDesc}, collectEcc},
	{CollectorPcie, []*prometheus.Desc{pcieDesc}, collectPcie},
	{CollectorThrottle, []*prometheus.Desc{throttleDesc}, collectThrottle},
}

// ValidateCollectors rejects names that are not a known collector group.
func ValidateCollectors(names []string) error {
	for _, name := range names {
		if !slices.ContainsFunc(groups, func(g group) bool { return g.name == name }) {
			return fmt.Errorf("unknown collector %q", name)
		}
	}
	return nil
}

// DeviceCollector reads every kept device on each scrape.
type DeviceCollector struct {
	lib          *nvmlwrapper.Library
	cfg          atomic.Pointer[config.Config]
	scrapeErrors prometheus.Counter
}

func NewDeviceCollector(lib *nvmlwrapper.Library, cfg config.Config) (*DeviceCollector, error) {
	c := &DeviceCollector{
		lib: lib,
		scrapeErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "collect_errors_total",
			Help:      "Readings that failed for a reason other than being unsupported.",
		}),
	}
	if err := c.SetConfig(cfg); err != nil {
		return nil, err
	}
	return c, nil
}

// SetConfig swaps the device filter and disabled groups used by later scrapes.
func (c *DeviceCollector) SetConfig(cfg config.Config) error {
	if err := ValidateCollectors(cfg.DisabledCollectors); err != nil {
		return err
	}
	c.cfg.Store(&cfg)
	return nil
}

func (c *DeviceCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- upDesc
	ch <- driverInfoDesc
	ch <- deviceInfoDesc
	for _, g := range groups {
		for _, d := range g.descs {
			ch <- d
		}
	}
	c.scrapeErrors.Describe(ch)
}

func (c *DeviceCollector) Collect(ch chan<- prometheus.Metric) {
	defer c.scrapeErrors.Collect(ch)
	if !c.lib.Initialized() {
		ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, 0)
		return
	}
	ch <- prometheus.MustNewConstMetric(upDesc, prometheus.GaugeValue, 1)

	cfg := c.cfg.Load()
	s := &scrape{ch: ch, errors: c.scrapeErrors}
	c.collectDriver(s)

	devices, err := c.lib.Devices()
	if err != nil {
		klog.ErrorS(err, "Failed to list devices")
		c.scrapeErrors.Inc()
		return
	}
	for _, d := range devices {
		uuid, err := d.UUID()
		if err != nil {
			klog.ErrorS(err, "Failed to get device UUID")
			c.scrapeErrors.Inc()
			continue
		}
		if !cfg.KeepDevice(uuid) {
			continue
		}
		index, err := d.Index()
		if !s.ok(err, "index", uuid) {
			continue
		}
		s.labels = []string{strconv.FormatUint(uint64(index), 10), uuid}
		collectInfo(s, d)
		for _, g := range groups {
			if cfg.CollectorEnabled(g.name) {
				g.collect(s, d)
			}
		}
	}
}

func (c *DeviceCollector) collectDriver(s *scrape) {
	driver, err := c.lib.DriverVersion()
	if !s.ok(err, "driver version", "") {
		return
	}
	nvmlVersion, err := c.lib.NVMLVersion()
	if !s.ok(err, "NVML version", "") {
		return
	}
	cuda, err := c.lib.CudaDriverVersion()
	if !s.ok(err, "CUDA driver version", "") {
		return
	}
	s.ch <- prometheus.MustNewConstMetric(driverInfoDesc, prometheus.GaugeValue, 1,
		driver, nvmlVersion, fmt.Sprintf("%d.%d", cuda.Major, cuda.Minor))
}

// scrape carries the state of one Collect call.
type scrape struct {
	ch     chan<- prometheus.Metric
	errors prometheus.Counter
	labels []string
}

// ok reports whether a reading succeeded. Unsupported readings are skipped
// quietly, anything else is logged and counted.
func (s *scrape) ok(err error, what, uuid string) bool {
	if err == nil {
		return true
	}
	if nvmlwrapper.IsUnavailable(err) {
		klog.V(5).InfoS("Reading unavailable", "reading", what, "uuid", uuid, "err", err)
		return false
	}
	klog.ErrorS(err, "Failed to read device", "reading", what, "uuid", uuid)
	s.errors.Inc()
	return false
}

func (s *scrape) emit(desc *prometheus.Desc, typ prometheus.ValueType, v float64, extra ...string) {
	s.ch <- prometheus.MustNewConstMetric(desc, typ, v, append(slices.Clone(s.labels), extra...)...)
}

func (s *scrape) uuid() string {
	return s.labels[1]
}

func collectInfo(s *scrape, d *nvmlwrapper.Device) {
	name, err := d.Name()
	if !s.ok(err, "name", s.uuid()) {
		return
	}
	pci, err := d.PciInfo()
	if !s.ok(err, "pci info", s.uuid()) {
		return
	}
	s.emit(deviceInfoDesc, prometheus.GaugeValue, 1, name, pci.BusID)
}

func collectMemory(s *scrape, d *nvmlwrapper.Device) {
	mem, err := d.MemoryInfo()
	if !s.ok(err, "memory info", s.uuid()) {
		return
	}
	s.emit(memoryUsedDesc, prometheus.GaugeValue, float64(mem.Used))
	s.emit(memoryFreeDesc, prometheus.GaugeValue, float64(mem.Free))
	s.emit(memoryTotalDesc, prometheus.GaugeValue, float64(mem.Total))
}

func collectUtilization(s *scrape, d *nvmlwrapper.Device) {
	util, err := d.UtilizationRates()
	if !s.ok(err, "utilization", s.uuid()) {
		return
	}
	s.emit(gpuUtilizationDesc, prometheus.GaugeValue, float64(util.GPU)/100)
	s.emit(memoryUtilizationDesc, prometheus.GaugeValue, float64(util.Memory)/100)
}

func collectPower(s *scrape, d *nvmlwrapper.Device) {
	if usage, err := d.PowerUsage(); s.ok(err, "power usage", s.uuid()) {
		s.emit(powerUsageDesc, prometheus.GaugeValue, float64(usage)/1000)
	}
	if limit, err := d.EnforcedPowerLimit(); s.ok(err, "power limit", s.uuid()) {
		s.emit(powerLimitDesc, prometheus.GaugeValue, float64(limit)/1000)
	}
	if energy, err := d.TotalEnergyConsumption(); s.ok(err, "energy consumption", s.uuid()) {
		s.emit(energyDesc, prometheus.CounterValue, float64(energy)/1000)
	}
}

func collectTemperature(s *scrape, d *nvmlwrapper.Device) {
	if temp, err := d.Temperature(nvmlwrapper.TemperatureSensorGPU); s.ok(err, "temperature", s.uuid()) {
		s.emit(temperatureDesc, prometheus.GaugeValue, float64(temp))
	}
}

func collectClocks(s *scrape, d *nvmlwrapper.Device) {
	for _, clock := range []nvmlwrapper.Clock{nvmlwrapper.ClockGraphics, nvmlwrapper.ClockSM, nvmlwrapper.ClockMemory} {
		if mhz, err := d.ClockInfo(clock); s.ok(err, clock.String()+" clock", s.uuid()) {
			s.emit(clockDesc, prometheus.GaugeValue, float64(mhz)*1e6, clock.String())
		}
	}
}

func collectPState(s *scrape, d *nvmlwrapper.Device) {
	state, err := d.PerformanceState()
	if !s.ok(err, "performance state", s.uuid()) || state == nvmlwrapper.PerformanceStateUnknown {
		return
	}
	s.emit(pstateDesc, prometheus.GaugeValue, float64(state))
}

func collectEcc(s *scrape, d *nvmlwrapper.Device) {
	mode, err := d.IsEccEnabled()
	if !s.ok(err, "ecc mode", s.uuid()) || !mode.Current {
		return
	}
	for _, typ := range []nvmlwrapper.MemoryError{nvmlwrapper.MemoryErrorCorrected, nvmlwrapper.MemoryErrorUncorrected} {
		count, err := d.TotalEccErrors(typ, nvmlwrapper.EccCounterAggregate)
		if s.ok(err, "ecc errors", s.uuid()) {
			s.emit(eccErrorsDesc, prometheus.CounterValue, float64(count), typ.String())
		}
	}
}

func collectPcie(s *scrape, d *nvmlwrapper.Device) {
	for _, counter := range []nvmlwrapper.PcieUtilCounter{nvmlwrapper.PcieUtilCounterSend, nvmlwrapper.PcieUtilCounterReceive} {
		// Reported in KB/s.
		if kb, err := d.PcieThroughput(counter); s.ok(err, "pcie throughput", s.uuid()) {
			s.emit(pcieDesc, prometheus.GaugeValue, float64(kb)*1024, counter.String())
		}
	}
}

func collectThrottle(s *scrape, d *nvmlwrapper.Device) {
	reasons, err := d.CurrentThrottleReasons()
	if !s.ok(err, "throttle reasons", s.uuid()) {
		return
	}
	for bit := nvmlwrapper.ThrottleReasons(1); bit&nvmlwrapper.ThrottleReasonAll != 0; bit <<= 1 {
		v := 0.0
		if reasons.Has(bit) {
			v = 1
		}
		s.emit(throttleDesc, prometheus.GaugeValue, v, bit.String())
	}
}
