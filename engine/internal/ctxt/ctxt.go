// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package ctxt provides the GPU driver used in the engine.
package ctxt

import (
	"strings"
	"sync"

	"github.com/pkg/errors"

	"github.com/gviegas/rgraph/driver"
)

var (
	mu     sync.Mutex
	drv    driver.Driver
	gpu    driver.GPU
	limits driver.Limits
)

// ErrNoDriver means that no registered driver matched the
// requested name or could be opened.
var ErrNoDriver = errors.New("ctxt: driver not found")

// Load attempts to load any driver whose name contains
// the name string. It is case insensitive.
// If name is the empty string, then all registered
// drivers are considered.
// Once a driver is loaded, further calls return the same
// GPU regardless of name.
func Load(name string) (driver.GPU, error) {
	mu.Lock()
	defer mu.Unlock()
	if gpu != nil {
		return gpu, nil
	}
	drivers := driver.Drivers()
	err := ErrNoDriver
	name = strings.ToLower(name)
	for i := range drivers {
		if !strings.Contains(strings.ToLower(drivers[i].Name()), name) {
			continue
		}
		var u driver.GPU
		if u, err = drivers[i].Open(); err != nil {
			err = errors.Wrapf(err, "ctxt: opening %q", drivers[i].Name())
			continue
		}
		drv = drivers[i]
		gpu = u
		limits = gpu.Limits()
		return gpu, nil
	}
	return nil, err
}

// Unload closes the loaded driver, if any.
func Unload() {
	mu.Lock()
	defer mu.Unlock()
	if drv != nil {
		drv.Close()
	}
	drv, gpu, limits = nil, nil, driver.Limits{}
}

// Driver returns the loaded driver.Driver.
func Driver() driver.Driver {
	mu.Lock()
	defer mu.Unlock()
	return drv
}

// GPU returns the loaded driver.GPU.
func GPU() driver.GPU {
	mu.Lock()
	defer mu.Unlock()
	return gpu
}

// Limits returns GPU().Limits().
// This value is retrieved only once. It must not be
// changed by the caller.
func Limits() *driver.Limits { return &limits }
