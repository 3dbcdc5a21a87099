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

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/fs"
)

func TestParse(t *testing.T) {
	off := false
	testCases := []struct {
		name     string
		data     string
		expected func() Config
		errMsg   string
	}{
		{
			name:     "empty file yields defaults",
			data:     "",
			expected: Default,
		},
		{
			name: "partial file keeps unset defaults",
			data: "listenAddress: 127.0.0.1:9500\neventWaitTimeout: 1s\ndevices: [GPU-a, GPU-b]\n",
			expected: func() Config {
				cfg := Default()
				cfg.ListenAddress = "127.0.0.1:9500"
				cfg.EventWaitTimeout = time.Second
				cfg.Devices = []string{"GPU-a", "GPU-b"}
				return cfg
			},
		},
		{
			name: "explicit false survives defaults",
			data: "xidEvents: false\ndisabledCollectors: [ecc]\n",
			expected: func() Config {
				cfg := Default()
				cfg.XidEvents = &off
				cfg.DisabledCollectors = []string{"ecc"}
				return cfg
			},
		},
		{
			name: "explicit empty and zero values survive defaults",
			data: "ignoredXids: []\neventWaitTimeout: 0s\n",
			expected: func() Config {
				cfg := Default()
				cfg.IgnoredXids = []uint64{}
				cfg.EventWaitTimeout = 0
				return cfg
			},
		},
		{
			name:   "unknown field",
			data:   "listen: :9400\n",
			errMsg: "field listen not found",
		},
		{
			name:   "bad duration",
			data:   "initTimeout: soon\n",
			errMsg: "decode config",
		},
		{
			name:   "negative duration",
			data:   "eventWaitTimeout: -1s\n",
			errMsg: "eventWaitTimeout must not be negative",
		},
		{
			name:   "retry longer than timeout",
			data:   "initTimeout: 1s\ninitRetryInterval: 2s\n",
			errMsg: "initRetryInterval 2s exceeds initTimeout 1s",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, err := Parse([]byte(tc.data))
			if tc.errMsg != "" {
				assert.ErrorContains(t, err, tc.errMsg)
				return
			}
			assert.NilError(t, err)
			assert.DeepEqual(t, tc.expected(), cfg)
		})
	}
}

func TestOverride(t *testing.T) {
	off := false
	base := Default()
	base.XidEvents = &off

	cfg, err := base.Override(Config{ListenAddress: ":9700", IgnoredXids: []uint64{79}})
	assert.NilError(t, err)
	assert.Equal(t, cfg.ListenAddress, ":9700")
	assert.DeepEqual(t, cfg.IgnoredXids, []uint64{79})
	assert.Equal(t, cfg.XidEventsEnabled(), false)
	assert.Equal(t, cfg.InitTimeout, 5*time.Minute)
	assert.Equal(t, base.ListenAddress, ":9400")
}

func TestLoad(t *testing.T) {
	dir := fs.NewDir(t, "nvml-exporter", fs.WithFile("config.yaml", "listenAddress: :9600\n"))

	cfg, err := Load(dir.Join("config.yaml"))
	assert.NilError(t, err)
	assert.Equal(t, cfg.ListenAddress, ":9600")
	assert.Equal(t, cfg.InitTimeout, 5*time.Minute)

	cfg, err = Load("")
	assert.NilError(t, err)
	assert.DeepEqual(t, cfg, Default())

	_, err = Load(dir.Join("missing.yaml"))
	assert.Assert(t, os.IsNotExist(err))
}

func TestFilters(t *testing.T) {
	cfg := Default()
	assert.Assert(t, cfg.KeepDevice("GPU-anything"))
	assert.Assert(t, cfg.CollectorEnabled("power"))
	assert.Assert(t, cfg.XidEventsEnabled())

	cfg.Devices = []string{"GPU-a"}
	cfg.DisabledCollectors = []string{"power"}
	cfg.XidEvents = nil
	assert.Assert(t, cfg.KeepDevice("GPU-a"))
	assert.Assert(t, !cfg.KeepDevice("GPU-b"))
	assert.Assert(t, !cfg.CollectorEnabled("power"))
	assert.Assert(t, cfg.CollectorEnabled("memory"))
	assert.Assert(t, !cfg.XidEventsEnabled())
}

func TestWatch(t *testing.T) {
	dir := fs.NewDir(t, "nvml-exporter", fs.WithFile("config.yaml", "listenAddress: :9400\n"))
	path := dir.Join("config.yaml")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	configs, err := Watch(ctx, path)
	assert.NilError(t, err)

	// An invalid write is skipped, the following valid one is delivered.
	assert.NilError(t, os.WriteFile(path, []byte("bogus: true\n"), 0o644))
	assert.NilError(t, os.WriteFile(path, []byte("listenAddress: :9700\n"), 0o644))
	assert.NilError(t, os.WriteFile(filepath.Join(dir.Path(), "other.yaml"), []byte("x"), 0o644))

	deadline := time.After(10 * time.Second)
	for {
		select {
		case cfg := <-configs:
			if cfg.ListenAddress != ":9700" {
				continue
			}
			cancel()
			for range configs {
			}
			return
		case <-deadline:
			t.Fatal("configuration change was not delivered")
		}
	}
}

func TestWatchMissingDirectory(t *testing.T) {
	_, err := Watch(context.Background(), filepath.Join(t.TempDir(), "missing", "config.yaml"))
	assert.Assert(t, errors.Is(err, os.ErrNotExist), "unexpected error: %v", err)
}

func TestXidIgnored(t *testing.T) {
	cfg, err := Parse([]byte("ignoredXids: [79]\n"))
	assert.NilError(t, err)
	assert.Assert(t, cfg.XidIgnored(79))
	assert.Assert(t, !cfg.XidIgnored(13))

	assert.Assert(t, Default().XidIgnored(13))
	assert.Assert(t, !Default().XidIgnored(79))
}
