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
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/Project-HAMi/nvml-wrapper/pkg/inventory"
	"github.com/Project-HAMi/nvml-wrapper/pkg/nvmlwrapper"
)

func parseIndex(arg string) (uint32, error) {
	index, err := strconv.ParseUint(arg, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid device index %q: %w", arg, err)
	}
	return uint32(index), nil
}

func newSystemCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "system",
		Short: "Show driver, NVML and CUDA versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withLibrary(func(lib *nvmlwrapper.Library) error {
				sys, err := inventory.CollectSystem(lib)
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Driver", sys.DriverVersion},
					{"NVML", sys.NVMLVersion},
					{"CUDA", stringOrDash(sys.CudaVersion)},
					{"Devices", strconv.FormatUint(uint64(sys.DeviceCount), 10)},
					{"Units", orDash(sys.UnitCount, "")},
				}
				return o.printer().print(sys, []string{"Property", "Value"}, rows)
			})
		},
	}
}

func newDevicesCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List GPUs with their current readings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withLibrary(func(lib *nvmlwrapper.Library) error {
				devices, err := inventory.CollectDevices(lib, nil)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(devices))
				for _, d := range devices {
					rows = append(rows, []string{
						strconv.FormatUint(uint64(d.Index), 10),
						d.UUID,
						d.Name,
						stringOrDash(d.MemoryUsed) + "/" + stringOrDash(d.MemoryTotal),
						orDash(d.GPUUtilization, "%"),
						orDash(d.Temperature, "C"),
						stringOrDash(d.PerformanceState),
					})
				}
				header := []string{"Index", "UUID", "Name", "Memory", "Util", "Temp", "PState"}
				return o.printer().print(devices, header, rows)
			})
		},
	}
}

func newDeviceCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "device <index>",
		Short: "Show every property of one GPU",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return o.withLibrary(func(lib *nvmlwrapper.Library) error {
				d, err := lib.DeviceByIndex(index)
				if err != nil {
					return err
				}
				info, err := inventory.CollectDevice(lib, d)
				if err != nil {
					return err
				}
				rows := [][]string{
					{"Index", strconv.FormatUint(uint64(info.Index), 10)},
					{"UUID", info.UUID},
					{"Name", info.Name},
					{"Brand", stringOrDash(info.Brand)},
					{"Architecture", stringOrDash(info.Architecture)},
					{"Compute capability", stringOrDash(info.ComputeCapability)},
					{"PCI bus id", stringOrDash(info.PciBusID)},
					{"Memory total", stringOrDash(info.MemoryTotal)},
					{"Memory used", stringOrDash(info.MemoryUsed)},
					{"GPU utilization", orDash(info.GPUUtilization, "%")},
					{"Memory utilization", orDash(info.MemoryUtilization, "%")},
					{"Temperature", orDash(info.Temperature, "C")},
					{"Power usage", orDash(info.PowerUsage, "mW")},
					{"Power limit", orDash(info.PowerLimit, "mW")},
					{"Performance state", stringOrDash(info.PerformanceState)},
					{"Compute mode", stringOrDash(info.ComputeMode)},
					{"Persistence mode", boolOrDash(info.PersistenceMode)},
					{"ECC", boolOrDash(info.EccEnabled)},
					{"MIG mode", stringOrDash(info.MigMode)},
				}
				for _, p := range info.Processes {
					rows = append(rows, []string{
						"Process " + strconv.FormatUint(uint64(p.PID), 10),
						stringOrDash(p.Name) + " " + stringOrDash(p.UsedMemory),
					})
				}
				return o.printer().print(info, []string{"Property", "Value"}, rows)
			})
		},
	}
}

func newLinksCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "links <index>",
		Short: "Show the NvLink state of one GPU",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := parseIndex(args[0])
			if err != nil {
				return err
			}
			return o.withLibrary(func(lib *nvmlwrapper.Library) error {
				d, err := lib.DeviceByIndex(index)
				if err != nil {
					return err
				}
				links, err := inventory.CollectLinks(d)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(links))
				for _, l := range links {
					rows = append(rows, []string{
						strconv.FormatUint(uint64(l.Link), 10),
						strconv.FormatBool(l.Active),
						orDash(l.Version, ""),
						stringOrDash(l.RemoteBusID),
					})
				}
				return o.printer().print(links, []string{"Link", "Active", "Version", "Remote"}, rows)
			})
		},
	}
}

func newUnitsCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "units",
		Short: "List S-class units",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withLibrary(func(lib *nvmlwrapper.Library) error {
				units, err := inventory.CollectUnits(lib)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(units))
				for _, u := range units {
					rows = append(rows, []string{
						strconv.FormatUint(uint64(u.Index), 10),
						u.Name,
						u.Serial,
						u.FirmwareVersion,
						stringOrDash(u.LedColor),
						stringOrDash(u.PsuState),
						strconv.Itoa(u.Fans),
					})
				}
				header := []string{"Index", "Name", "Serial", "Firmware", "LED", "PSU", "Fans"}
				return o.printer().print(units, header, rows)
			})
		},
	}
}

type eventRecord struct {
	Time      time.Time `json:"time" yaml:"time"`
	UUID      string    `json:"uuid" yaml:"uuid"`
	EventType string    `json:"eventType" yaml:"eventType"`
	Data      uint64    `json:"data" yaml:"data"`
}

func newEventsCmd(o *options) *cobra.Command {
	var duration time.Duration
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Wait for device events and print them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withLibrary(func(lib *nvmlwrapper.Library) error {
				records, err := watchEvents(cmd, lib, duration)
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(records))
				for _, r := range records {
					rows = append(rows, []string{
						r.Time.Format(time.RFC3339),
						r.UUID,
						r.EventType,
						strconv.FormatUint(r.Data, 10),
					})
				}
				return o.printer().print(records, []string{"Time", "UUID", "Event", "Data"}, rows)
			})
		},
	}
	cmd.Flags().DurationVar(&duration, "duration", 10*time.Second, "how long to wait for events")
	return cmd
}

// watchEvents registers every device for the events it supports and
// collects what arrives until duration elapses or the command is cancelled.
func watchEvents(cmd *cobra.Command, lib *nvmlwrapper.Library, duration time.Duration) ([]eventRecord, error) {
	set, err := lib.CreateEventSet()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := set.Release(); err != nil {
			klog.ErrorS(err, "Failed to release event set")
		}
	}()

	devices, err := lib.Devices()
	if err != nil {
		return nil, err
	}
	registered := 0
	for _, d := range devices {
		supported, err := d.SupportedEventTypes()
		if err != nil {
			if nvmlwrapper.IsUnavailable(err) {
				continue
			}
			return nil, err
		}
		if supported == nvmlwrapper.EventTypeNone {
			continue
		}
		if err := d.RegisterEvents(supported, set); err != nil {
			return nil, err
		}
		registered++
	}
	if registered == 0 {
		return nil, errors.New("no device supports event reporting")
	}

	records := []eventRecord{}
	ctx := cmd.Context()
	deadline := time.Now().Add(duration)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 || (ctx != nil && ctx.Err() != nil) {
			return records, nil
		}
		e, err := set.Wait(min(remaining, time.Second))
		if errors.Is(err, nvmlwrapper.ErrTimeout) {
			continue
		}
		if err != nil {
			return nil, err
		}
		record := eventRecord{Time: time.Now(), UUID: "all", EventType: e.EventType.String(), Data: e.Data}
		if e.Device != nil {
			if uuid, err := e.Device.UUID(); err == nil {
				record.UUID = uuid
			} else {
				klog.ErrorS(err, "Failed to get UUID of event device")
			}
		}
		records = append(records, record)
	}
}
