// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package driver_test

import (
	"errors"
	"testing"

	"github.com/gviegas/rgraph/driver"
	"github.com/gviegas/rgraph/driver/nulldrv"
)

func findDriver(t *testing.T, name string) driver.Driver {
	for _, d := range driver.Drivers() {
		if d.Name() == name {
			return d
		}
	}
	t.Fatalf("driver.Drivers: %q not registered", name)
	return nil
}

func TestDrivers(t *testing.T) {
	drivers := driver.Drivers()
	if len(drivers) == 0 {
		t.Fatal("driver.Drivers: no drivers registered")
	}
	for i := range drivers {
		name := drivers[i].Name()
		for j := range i {
			if name == drivers[j].Name() {
				t.Error("driver.Drivers: Driver.Name is not unique")
			}
		}
	}
	drivers2 := driver.Drivers()
	if len(drivers) != len(drivers2) {
		t.Error("driver.Drivers: length mismatch")
	} else {
		for i := range drivers {
			if drivers[i].Name() != drivers2[i].Name() {
				t.Error("driver.Drivers: Driver.Name mismatch")
			}
		}
	}
}

func TestRegisterReplaces(t *testing.T) {
	n := len(driver.Drivers())
	driver.Register(&nulldrv.Driver{})
	if x := len(driver.Drivers()); x != n {
		t.Fatalf("driver.Register: len(Drivers)\nhave %d\nwant %d", x, n)
	}
}

func TestDriverName(t *testing.T) {
	drv := findDriver(t, "null")
	name := drv.Name()
	if name == "" {
		t.Error("Driver.Name: name is empty")
	}
	drv.Close()
	if drv.Name() != name {
		t.Error("Driver.Name: unexpected name after call to Close")
	}
	gpu, err := drv.Open()
	if err != nil {
		t.Fatal("Failed to re-Open drv - cannot continue")
	}
	if drv.Name() != name {
		t.Error("Driver.Name: unexpected name after call to Open")
	}
	if gpu.Driver() != drv {
		t.Error("GPU.Driver: unexpected driver")
	}
	if gpu2, _ := drv.Open(); gpu2 != gpu {
		t.Error("Driver.Open: GPU instance differs across calls")
	}
}

func TestLayoutString(t *testing.T) {
	for _, x := range [...]struct {
		l    driver.Layout
		want string
	}{
		{driver.LUndefined, "undefined"},
		{driver.LCommon, "common"},
		{driver.LColorTarget, "color-target"},
		{driver.LDSTarget, "ds-target"},
		{driver.LCopySrc, "copy-src"},
		{driver.Layout(-1), "invalid"},
	} {
		if s := x.l.String(); s != x.want {
			t.Errorf("Layout.String:\nhave %q\nwant %q", s, x.want)
		}
	}
}

func TestPixelFmtIsDS(t *testing.T) {
	for _, pf := range [...]driver.PixelFmt{driver.RGBA8Unorm, driver.BGRA8SRGB, driver.RGBA16Float} {
		if pf.IsDS() {
			t.Errorf("PixelFmt(%d).IsDS: have true, want false", pf)
		}
	}
	for _, pf := range [...]driver.PixelFmt{driver.D16Unorm, driver.D32Float, driver.D24UnormS8Uint} {
		if !pf.IsDS() {
			t.Errorf("PixelFmt(%d).IsDS: have false, want true", pf)
		}
	}
}

func TestErrors(t *testing.T) {
	errs := []error{
		driver.ErrNotInstalled,
		driver.ErrNoDevice,
		driver.ErrNoHostMemory,
		driver.ErrNoDeviceMemory,
		driver.ErrNotReady,
		driver.ErrFatal,
	}
	for i := range errs {
		for j := range i {
			if errors.Is(errs[i], errs[j]) {
				t.Errorf("errors.Is(%v, %v): have true, want false", errs[i], errs[j])
			}
		}
	}
}
