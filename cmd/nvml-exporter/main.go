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
	"flag"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	flagutil "github.com/Project-HAMi/nvml-wrapper/pkg/util/flag"
	"github.com/Project-HAMi/nvml-wrapper/pkg/version"
)

type options struct {
	configFile    string
	libraryPath   string
	listenAddress string
	ignoredXids   string
}

func main() {
	c := cli.NewApp()
	o := &options{}
	c.Name = "nvml-exporter"
	c.Usage = "Prometheus exporter for NVIDIA GPUs"
	c.Version = version.Version().Version
	c.Action = func(ctx *cli.Context) error {
		flagutil.PrintCliFlags(ctx)
		return start(ctx, o)
	}
	c.Commands = []*cli.Command{
		{
			Name:  "version",
			Usage: "Show the version of nvml-exporter",
			Action: func(c *cli.Context) error {
				fmt.Println(version.Print())
				return nil
			},
		},
	}

	flagset := flag.NewFlagSet("klog", flag.ExitOnError)
	klog.InitFlags(flagset)
	c.Before = flagutil.KlogBefore(flagset)

	c.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:        "config-file",
			Usage:       "the path to a YAML config file; it is reloaded when it changes",
			Destination: &o.configFile,
			EnvVars:     []string{"CONFIG_FILE"},
		},
		&cli.StringFlag{
			Name:        "library-path",
			Usage:       "the NVML shared library to load instead of the platform default",
			Destination: &o.libraryPath,
			EnvVars:     []string{"NVML_LIBRARY_PATH"},
		},
		&cli.StringFlag{
			Name:        "listen-address",
			Usage:       "the address to serve /metrics, /healthz and /devices on",
			Destination: &o.listenAddress,
			EnvVars:     []string{"LISTEN_ADDRESS"},
		},
		&cli.StringFlag{
			Name:        "ignored-xids",
			Usage:       "comma separated Xids that are counted without marking the device unhealthy",
			Destination: &o.ignoredXids,
			EnvVars:     []string{"IGNORED_XIDS"},
		},
		flagutil.VerbosityFlag(),
	}
	if err := c.Run(os.Args); err != nil {
		klog.Error(err)
		os.Exit(1)
	}
}
