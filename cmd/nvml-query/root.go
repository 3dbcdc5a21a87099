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
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"k8s.io/klog/v2"

	"github.com/Project-HAMi/nvml-wrapper/pkg/nvmlwrapper"
	flagutil "github.com/Project-HAMi/nvml-wrapper/pkg/util/flag"
	"github.com/Project-HAMi/nvml-wrapper/pkg/version"
)

type options struct {
	out         io.Writer
	libraryPath string
	output      string
	newLibrary  func(path string) *nvmlwrapper.Library
	platform    func(path string) platformInfo
}

func (o *options) printer() printer {
	return printer{out: o.out, format: o.output}
}

// withLibrary brackets fn with Init and Shutdown.
func (o *options) withLibrary(fn func(lib *nvmlwrapper.Library) error) error {
	lib := o.newLibrary(o.libraryPath)
	if err := lib.Init(); err != nil {
		return fmt.Errorf("initialize NVML: %w", err)
	}
	defer func() {
		if err := lib.Shutdown(); err != nil {
			klog.ErrorS(err, "Failed to shutdown NVML")
		}
	}()
	return fn(lib)
}

func newRootCmd(out io.Writer, newLibrary func(path string) *nvmlwrapper.Library) *cobra.Command {
	o := &options{
		out:        out,
		newLibrary: newLibrary,
		platform:   newPlatformInfo,
	}
	cmd := &cobra.Command{
		Use:          "nvml-query",
		Short:        "Query NVIDIA GPUs through NVML",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if klog.V(4).Enabled() {
				flagutil.PrintPFlags(cmd.Flags())
			}
			return validateFormat(o.output)
		},
	}
	cmd.SetOut(out)

	fs := cmd.PersistentFlags()
	fs.StringVar(&o.libraryPath, "library-path", "", "path to the NVML shared library, the platform default when empty")
	fs.StringVarP(&o.output, "output", "o", defaultFormat(), "output format: table, yaml or json")
	fs.AddGoFlagSet(flagutil.GlobalFlagSet())

	cmd.AddCommand(
		newSystemCmd(o),
		newDevicesCmd(o),
		newDeviceCmd(o),
		newLinksCmd(o),
		newUnitsCmd(o),
		newEventsCmd(o),
		newProbeCmd(o),
		version.NewVersionCmd(out),
	)
	return cmd
}
