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
	"strconv"

	nvinfo "github.com/NVIDIA/go-nvlib/pkg/nvlib/info"
	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"github.com/spf13/cobra"
	"k8s.io/klog/v2"
)

// platformInfo is the part of nvinfo.Interface the probe reads.
type platformInfo interface {
	ResolvePlatform() nvinfo.Platform
	HasNvml() (bool, string)
	HasDXCore() (bool, string)
	IsTegraSystem() (bool, string)
}

func newPlatformInfo(path string) platformInfo {
	var opts []nvml.LibraryOption
	if path != "" {
		opts = append(opts, nvml.WithLibraryPath(path))
	}
	return nvinfo.New(nvinfo.WithNvmlLib(nvml.New(opts...)))
}

type probeResult struct {
	Platform string `json:"platform" yaml:"platform"`
	Nvml     bool   `json:"nvml" yaml:"nvml"`
	DXCore   bool   `json:"dxcore" yaml:"dxcore"`
	Tegra    bool   `json:"tegra" yaml:"tegra"`
}

func probe(infolib platformInfo) probeResult {
	logWithReason := func(f func() (bool, string), tag string) bool {
		is, reason := f()
		if !is {
			tag = "non-" + tag
		}
		klog.V(2).Infof("Detected %v platform: %v", tag, reason)
		return is
	}
	return probeResult{
		Platform: string(infolib.ResolvePlatform()),
		Nvml:     logWithReason(infolib.HasNvml, "NVML"),
		DXCore:   logWithReason(infolib.HasDXCore, "WSL"),
		Tegra:    logWithReason(infolib.IsTegraSystem, "Tegra"),
	}
}

func newProbeCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Detect which GPU platform this host exposes without initializing NVML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			result := probe(o.platform(o.libraryPath))
			rows := [][]string{
				{"Platform", result.Platform},
				{"NVML", strconv.FormatBool(result.Nvml)},
				{"DXCore", strconv.FormatBool(result.DXCore)},
				{"Tegra", strconv.FormatBool(result.Tegra)},
			}
			return o.printer().print(result, []string{"Property", "Value"}, rows)
		},
	}
}
