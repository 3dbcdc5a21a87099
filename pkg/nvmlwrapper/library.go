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

package nvmlwrapper

import (
	"sync"

	"github.com/NVIDIA/go-nvml/pkg/nvml"
	"k8s.io/klog/v2"
)

// InitFlags alter the behaviour of InitWithFlags.
type InitFlags uint32

const (
	// InitFlagNoGpus allows the library to initialize without any GPU attached.
	InitFlagNoGpus InitFlags = 1
	// InitFlagNoAttach skips attaching to GPUs during initialization.
	InitFlagNoAttach InitFlags = 2
)

// Library is the root handle to the native management library. Every Device,
// NvLink, EventSet and Unit obtained from it stops working once Shutdown has
// been called.
//
// A Library is safe for concurrent use. Shutdown waits for calls that are
// already running, EventSet.Wait included.
type Library struct {
	path  string
	iface nvml.Interface

	mu          sync.RWMutex
	initialized bool
}

// Option configures a Library.
type Option func(*Library)

// WithLibraryPath loads the native library from path instead of
// DefaultLibraryPath. An empty path keeps the default.
func WithLibraryPath(path string) Option {
	return func(l *Library) {
		if path != "" {
			l.path = path
		}
	}
}

// WithInterface makes the Library forward to iface instead of loading the
// native library itself.
func WithInterface(iface nvml.Interface) Option {
	return func(l *Library) {
		l.iface = iface
	}
}

// New returns an uninitialized Library.
func New(opts ...Option) *Library {
	l := &Library{path: DefaultLibraryPath}
	for _, opt := range opts {
		opt(l)
	}
	if l.iface == nil {
		l.iface = nvml.New(nvml.WithLibraryPath(l.path))
	}
	return l
}

// Init loads and initializes the native library.
func (l *Library) Init() error {
	return l.init(func() nvml.Return { return l.iface.Init() })
}

// InitWithFlags is Init with initialization flags.
func (l *Library) InitWithFlags(flags InitFlags) error {
	return l.init(func() nvml.Return { return l.iface.InitWithFlags(uint32(flags)) })
}

func (l *Library) init(fn func() nvml.Return) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.initialized {
		return alreadyInitialized()
	}
	if err := FromReturn(fn()); err != nil {
		return err
	}
	l.initialized = true
	klog.V(2).InfoS("NVML initialized", "library", l.path)
	return nil
}

// Shutdown releases the native library. The Library is unusable afterwards even
// if the native call reports an error.
func (l *Library) Shutdown() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.initialized {
		return uninitialized()
	}
	l.initialized = false
	if err := FromReturn(l.iface.Shutdown()); err != nil {
		klog.ErrorS(err, "NVML shutdown failed")
		return err
	}
	klog.V(2).InfoS("NVML shut down")
	return nil
}

// Initialized reports whether Init succeeded and Shutdown has not been called.
func (l *Library) Initialized() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.initialized
}

// call runs fn while holding the library open and translates its status.
func call[T any](l *Library, fn func() (T, nvml.Return)) (T, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var zero T
	if !l.initialized {
		return zero, uninitialized()
	}
	v, ret := fn()
	if err := FromReturn(ret); err != nil {
		return zero, err
	}
	return v, nil
}

func call2[T, U any](l *Library, fn func() (T, U, nvml.Return)) (T, U, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var (
		zeroT T
		zeroU U
	)
	if !l.initialized {
		return zeroT, zeroU, uninitialized()
	}
	t, u, ret := fn()
	if err := FromReturn(ret); err != nil {
		return zeroT, zeroU, err
	}
	return t, u, nil
}

func call0(l *Library, fn func() nvml.Return) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.initialized {
		return uninitialized()
	}
	return FromReturn(fn())
}
