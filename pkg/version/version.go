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

package version

import (
	"bytes"
	"fmt"
	"io"
	"runtime"
	"strings"
	"text/template"

	"github.com/spf13/cobra"
)

// Set through -ldflags "-X github.com/Project-HAMi/nvml-wrapper/pkg/version.version=...".
var (
	version  = "v0.0.0-master"
	revision = "unknown" // output of $(git rev-parse HEAD)

	buildDate = "unknown" // output of $(date -u +'%Y-%m-%dT%H:%M:%SZ')
)

// Info describes the running binary.
type Info struct {
	Version   string `json:"version" yaml:"version"`
	Revision  string `json:"revision" yaml:"revision"`
	BuildDate string `json:"buildDate" yaml:"buildDate"`
	GoVersion string `json:"goVersion" yaml:"goVersion"`
	Compiler  string `json:"compiler" yaml:"compiler"`
	Platform  string `json:"platform" yaml:"platform"`
}

// String returns a Go-syntax representation of the Info.
func (info Info) String() string {
	return fmt.Sprintf("%#v", info)
}

var versionInfoTmpl = template.Must(template.New("version").Parse(`
version:          {{.Version}}
revision:         {{.Revision}}
build date:       {{.BuildDate}}
go version:       {{.GoVersion}}
compiler:         {{.Compiler}}
platform:         {{.Platform}}
`))

// Print renders Version as an aligned, human readable block.
func Print() string {
	var buf bytes.Buffer
	if err := versionInfoTmpl.Execute(&buf, Version()); err != nil {
		panic(err)
	}
	return strings.TrimSpace(buf.String())
}

func Version() Info {
	return Info{
		Version:   version,
		Revision:  revision,
		BuildDate: buildDate,
		GoVersion: runtime.Version(),
		Compiler:  runtime.Compiler,
		Platform:  fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// UserAgent identifies the binary in HTTP responses.
func UserAgent(binary string) string {
	return fmt.Sprintf("%s/%s (%s/%s)", binary, version, runtime.GOOS, runtime.GOARCH)
}

// NewVersionCmd returns the "version" subcommand. With --short only the
// version string is printed.
func NewVersionCmd(out io.Writer) *cobra.Command {
	var short bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "print version",
		Run: func(cmd *cobra.Command, _ []string) {
			if short {
				fmt.Fprintln(out, version)
				return
			}
			fmt.Fprintln(out, Print())
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print only the version string")
	return cmd
}
