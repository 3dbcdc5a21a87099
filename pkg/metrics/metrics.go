/*
Copyright 2026 The HAMi Authors.

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

// Package metrics turns NVML readings into Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/Project-HAMi/nvml-wrapper/pkg/version"
)

const namespace = "nvml"

// NewBuildInfoCollector returns a gauge fixed at 1 whose labels describe the
// build of binary.
func NewBuildInfoCollector(binary string) prometheus.Collector {
	info := version.Version()
	return prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "wrapper",
			Name:      "build_info",
			Help:      "nvml-wrapper build metadata exposed as labels with a constant value of 1.",
			ConstLabels: prometheus.Labels{
				"binary":     binary,
				"version":    info.Version,
				"revision":   info.Revision,
				"build_date": info.BuildDate,
				"go_version": info.GoVersion,
				"compiler":   info.Compiler,
				"platform":   info.Platform,
			},
		},
		func() float64 { return 1 },
	)
}
