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
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	cli "github.com/urfave/cli/v2"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/klog/v2"

	"github.com/Project-HAMi/nvml-wrapper/pkg/config"
	"github.com/Project-HAMi/nvml-wrapper/pkg/exporter"
	"github.com/Project-HAMi/nvml-wrapper/pkg/metrics"
	"github.com/Project-HAMi/nvml-wrapper/pkg/nvmlwrapper"
)

// applyFlags lets explicitly set command line options win over the file.
func applyFlags(cfg config.Config, o *options) (config.Config, error) {
	overrides := config.Config{
		LibraryPath:   o.libraryPath,
		ListenAddress: o.listenAddress,
	}
	if o.ignoredXids != "" {
		overrides.IgnoredXids = metrics.ParseXids(o.ignoredXids)
	}
	return cfg.Override(overrides)
}

func loadConfig(o *options) (config.Config, error) {
	cfg, err := config.Load(o.configFile)
	if err != nil {
		return config.Config{}, fmt.Errorf("unable to load config: %w", err)
	}
	return applyFlags(cfg, o)
}

// initLibrary retries Init until the driver is ready or cfg.InitTimeout passes.
func initLibrary(ctx context.Context, lib *nvmlwrapper.Library, cfg config.Config) error {
	var lastErr error
	err := wait.PollUntilContextTimeout(ctx, cfg.InitRetryInterval, cfg.InitTimeout, true, func(context.Context) (bool, error) {
		lastErr = lib.Init()
		switch {
		case lastErr == nil:
			return true, nil
		case errors.Is(lastErr, nvmlwrapper.ErrDriverNotLoaded),
			errors.Is(lastErr, nvmlwrapper.ErrLibraryNotFound),
			errors.Is(lastErr, nvmlwrapper.ErrNotReady):
			klog.InfoS("NVML not ready, retrying", "err", lastErr, "interval", cfg.InitRetryInterval)
			return false, nil
		}
		return false, lastErr
	})
	if err != nil && lastErr != nil {
		return fmt.Errorf("initialize NVML: %w", lastErr)
	}
	return err
}

// xidRunner keeps one XidWatcher running and restarts it on reload.
type xidRunner struct {
	watcher *metrics.XidWatcher
	cancel  context.CancelFunc
	done    chan struct{}
}

func (r *xidRunner) restart(ctx context.Context, cfg config.Config) {
	r.stop()
	if !cfg.XidEventsEnabled() {
		klog.InfoS("Xid event watcher disabled")
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel, r.done = cancel, done
	go func() {
		defer close(done)
		if err := r.watcher.Run(runCtx, cfg); err != nil {
			klog.ErrorS(err, "Xid event watcher stopped")
		}
	}()
}

func (r *xidRunner) stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
	r.cancel, r.done = nil, nil
}

func start(c *cli.Context, o *options) error {
	cfg, err := loadConfig(o)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	lib := nvmlwrapper.New(nvmlwrapper.WithLibraryPath(cfg.LibraryPath))
	if err := initLibrary(ctx, lib, cfg); err != nil {
		return err
	}
	defer func() {
		if err := lib.Shutdown(); err != nil {
			klog.ErrorS(err, "Failed to shut down NVML")
		}
	}()

	collector, err := metrics.NewDeviceCollector(lib, cfg)
	if err != nil {
		return err
	}
	xid := &xidRunner{watcher: metrics.NewXidWatcher(lib)}
	defer xid.stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collector,
		xid.watcher,
		metrics.NewBuildInfoCollector(c.App.Name),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	var current atomic.Pointer[config.Config]
	current.Store(&cfg)
	keep := func(uuid string) bool { return current.Load().KeepDevice(uuid) }

	var reloads <-chan config.Config
	if o.configFile != "" {
		klog.Infof("Starting FS watcher for %v", o.configFile)
		if reloads, err = config.Watch(ctx, o.configFile); err != nil {
			return fmt.Errorf("failed to watch %s: %w", o.configFile, err)
		}
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- exporter.Serve(ctx, cfg.ListenAddress, exporter.NewHandler(lib, reg, keep))
	}()
	xid.restart(ctx, cfg)

	for {
		select {
		case err := <-serveErr:
			return err
		case next, ok := <-reloads:
			if !ok {
				reloads = nil
				continue
			}
			next, err := applyFlags(next, o)
			if err != nil {
				klog.ErrorS(err, "Rejecting reloaded configuration")
				continue
			}
			if err := collector.SetConfig(next); err != nil {
				klog.ErrorS(err, "Rejecting reloaded configuration")
				continue
			}
			if next.ListenAddress != cfg.ListenAddress || next.LibraryPath != cfg.LibraryPath {
				klog.InfoS("listenAddress and libraryPath changes take effect after a restart")
			}
			current.Store(&next)
			xid.restart(ctx, next)
			klog.InfoS("Applied reloaded configuration")
		}
	}
}
