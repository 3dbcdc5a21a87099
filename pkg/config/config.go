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

// Package config loads the exporter configuration file and watches it for
// changes.
package config

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/imdario/mergo"
	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

type Config struct {
	// ListenAddress is where /metrics, /healthz and /devices are served.
	ListenAddress string `yaml:"listenAddress" json:"listenAddress"`
	// LibraryPath overrides the NVML shared library to load.
	LibraryPath string `yaml:"libraryPath,omitempty" json:"libraryPath,omitempty"`
	// InitTimeout bounds how long startup waits for the driver to come up.
	InitTimeout time.Duration `yaml:"initTimeout" json:"initTimeout"`
	// InitRetryInterval is the pause between initialization attempts.
	InitRetryInterval time.Duration `yaml:"initRetryInterval" json:"initRetryInterval"`
	// EventWaitTimeout is how long a single wait for Xid events blocks.
	EventWaitTimeout time.Duration `yaml:"eventWaitTimeout" json:"eventWaitTimeout"`
	// XidEvents turns the Xid event watcher on.
	XidEvents *bool `yaml:"xidEvents,omitempty" json:"xidEvents,omitempty"`
	// IgnoredXids are Xids caused by applications rather than the device. They
	// are counted but do not mark the device unhealthy.
	IgnoredXids []uint64 `yaml:"ignoredXids,omitempty" json:"ignoredXids,omitempty"`
	// Devices restricts collection to these UUIDs. Empty means every device.
	Devices []string `yaml:"devices,omitempty" json:"devices,omitempty"`
	// DisabledCollectors names metric groups that are not collected.
	DisabledCollectors []string `yaml:"disabledCollectors,omitempty" json:"disabledCollectors,omitempty"`
}

func Default() Config {
	xid := true
	return Config{
		ListenAddress:     ":9400",
		InitTimeout:       5 * time.Minute,
		InitRetryInterval: 10 * time.Second,
		EventWaitTimeout:  5 * time.Second,
		XidEvents:         &xid,
		// Application-triggered Xids, see the NVIDIA Xid catalog.
		IgnoredXids: []uint64{13, 31, 43, 45, 68, 109},
	}
}

// Load reads the file at path and fills whatever it leaves out from Default.
// An empty path yields the defaults.
func Load(path string) (Config, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, err
	}
	return Parse(data)
}

// Parse decodes data over Default, so fields the document sets win even when
// they are zero, false or empty.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Override returns c with every non-zero field of o copied over it.
func (c Config) Override(o Config) (Config, error) {
	if err := mergo.Merge(&c, o, mergo.WithOverride); err != nil {
		return Config{}, fmt.Errorf("apply overrides: %w", err)
	}
	return c, nil
}

func (c Config) Validate() error {
	var errs []error
	if c.ListenAddress == "" {
		errs = append(errs, errors.New("listenAddress must not be empty"))
	}
	for name, d := range map[string]time.Duration{
		"initTimeout":       c.InitTimeout,
		"initRetryInterval": c.InitRetryInterval,
		"eventWaitTimeout":  c.EventWaitTimeout,
	} {
		if d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", name, d))
		}
	}
	if c.InitRetryInterval > c.InitTimeout {
		errs = append(errs, fmt.Errorf("initRetryInterval %s exceeds initTimeout %s", c.InitRetryInterval, c.InitTimeout))
	}
	return errors.Join(errs...)
}

// KeepDevice reports whether the device with the given UUID is collected.
func (c Config) KeepDevice(uuid string) bool {
	return len(c.Devices) == 0 || slices.Contains(c.Devices, uuid)
}

func (c Config) CollectorEnabled(name string) bool {
	return !slices.Contains(c.DisabledCollectors, name)
}

func (c Config) XidIgnored(xid uint64) bool {
	return slices.Contains(c.IgnoredXids, xid)
}

func (c Config) XidEventsEnabled() bool {
	return c.XidEvents != nil && *c.XidEvents
}

// Watch reloads the file at path whenever it is written or recreated and
// sends each configuration that loads cleanly. A file that fails to load is
// logged and skipped. The channel is closed when ctx is done.
func Watch(ctx context.Context, path string) (<-chan Config, error) {
	file, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(filepath.Dir(file)); err != nil {
		watcher.Close()
		return nil, err
	}

	configs := make(chan Config, 1)
	go func() {
		defer close(configs)
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Name != file || !(event.Has(fsnotify.Write) || event.Has(fsnotify.Create)) {
					continue
				}
				cfg, err := Load(file)
				if err != nil {
					klog.ErrorS(err, "Ignoring invalid configuration", "path", file)
					continue
				}
				klog.V(2).InfoS("Configuration reloaded", "path", file)
				// Keep only the newest configuration if the consumer is behind.
				select {
				case <-configs:
				default:
				}
				configs <- cfg
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				klog.Errorf("File watch error: %v", err)
			}
		}
	}()
	return configs, nil
}
