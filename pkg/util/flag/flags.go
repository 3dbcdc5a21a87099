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

package flag

import (
	goflag "flag"
	"fmt"
	"os"

	"github.com/spf13/pflag"
	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"
)

// GlobalFlagSet returns a go flag set carrying the klog flags, ready to be added
// to a cobra command with PersistentFlags().AddGoFlagSet.
func GlobalFlagSet() *goflag.FlagSet {
	fs := goflag.NewFlagSet(os.Args[0], goflag.ExitOnError)
	klog.InitFlags(fs)
	return fs
}

// VerbosityFlag is the urfave/cli counterpart of klog's -v.
func VerbosityFlag() cli.Flag {
	return &cli.IntFlag{
		Name:    "v",
		Usage:   "number for the log level verbosity",
		Value:   0,
		EnvVars: []string{"LOG_LEVEL"},
	}
}

// KlogBefore returns a cli.BeforeFunc that forwards the -v flag to klog.
func KlogBefore(flagset *goflag.FlagSet) cli.BeforeFunc {
	return func(ctx *cli.Context) error {
		return flagset.Set("v", fmt.Sprintf("%d", ctx.Int("v")))
	}
}

func PrintPFlags(flags *pflag.FlagSet) {
	flags.VisitAll(func(flag *pflag.Flag) {
		klog.Infof("FLAG: --%s=%q", flag.Name, flag.Value)
	})
}

func PrintCliFlags(c *cli.Context) {
	for _, flag := range c.App.Flags {
		for _, name := range flag.Names() {
			klog.Infof("FLAG: --%s=%q\n", name, c.Generic(name))
		}
	}
}
