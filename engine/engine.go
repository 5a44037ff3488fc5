// Copyright 2023 Gustavo C. Viegas. All rights reserved.

// Package engine implements the frame loop of a real-time
// renderer built on a frame graph.
package engine

import (
	"log/slog"

	"github.com/pkg/errors"

	"github.com/gviegas/rgraph/driver"
)

const (
	// The maximum number of frames in flight.
	MaxFrame = 3

	// Names of the images the renderer tracks in its
	// graph.
	DrawImage  = "draw"
	DepthImage = "depth"

	// Formats of the draw and depth images.
	DrawFormat  = driver.RGBA16Float
	DepthFormat = driver.D32Float

	dflWidth         = 1700
	dflHeight        = 900
	dflRenderScale   = 1
	dflFenceTimeout  = 1000
	dflQueryCapacity = 64
	dflDescCopies    = 64
	dflLogLevel      = "info"
)

// ErrTimeout means that a frame slot did not become
// available within Config.FenceTimeout.
var ErrTimeout = errors.New("engine: fence wait timed out")

// ErrConfig means that a configuration is invalid.
var ErrConfig = errors.New("engine: invalid configuration")

// Config is used to configure the engine.
type Config struct {
	// Number of frames in flight.
	// It must be either 2 or MaxFrame.
	//
	// Default is MaxFrame.
	Frames int `toml:"frames" yaml:"frames"`

	// Size of the draw and depth images.
	//
	// Default is 1700x900.
	Width  int `toml:"width" yaml:"width"`
	Height int `toml:"height" yaml:"height"`

	// Fraction of the draw image that is rendered to,
	// in the interval (0, 1].
	//
	// Default is 1.
	RenderScale float32 `toml:"render_scale" yaml:"render_scale"`

	// How long to wait for a frame slot, in
	// milliseconds.
	//
	// Default is 1000.
	FenceTimeout int `toml:"fence_timeout" yaml:"fence_timeout"`

	// Initial number of timestamp queries per frame.
	// Pools grow as needed.
	//
	// Default is 64.
	QueryCapacity int `toml:"query_capacity" yaml:"query_capacity"`

	// Number of descriptor heap copies each feature
	// may use per frame.
	//
	// Default is 64.
	DescCopies int `toml:"desc_copies" yaml:"desc_copies"`

	// One of "debug", "info", "warn" or "error".
	//
	// Default is "info".
	LogLevel string `toml:"log_level" yaml:"log_level"`

	// Name (or part of the name) of the driver to use.
	// The empty string selects any registered driver.
	//
	// Default is "".
	Driver string `toml:"driver" yaml:"driver"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Frames:        MaxFrame,
		Width:         dflWidth,
		Height:        dflHeight,
		RenderScale:   dflRenderScale,
		FenceTimeout:  dflFenceTimeout,
		QueryCapacity: dflQueryCapacity,
		DescCopies:    dflDescCopies,
		LogLevel:      dflLogLevel,
	}
}

// Validate checks that c is a valid configuration.
// The returned error wraps ErrConfig.
func (c *Config) Validate() error {
	switch {
	case c.Frames != 2 && c.Frames != MaxFrame:
		return errors.Wrapf(ErrConfig, "frames must be 2 or %d, got %d", MaxFrame, c.Frames)
	case c.Width < 1 || c.Height < 1:
		return errors.Wrapf(ErrConfig, "invalid size %dx%d", c.Width, c.Height)
	case !(c.RenderScale > 0 && c.RenderScale <= 1):
		return errors.Wrapf(ErrConfig, "render scale %v out of (0, 1]", c.RenderScale)
	case c.FenceTimeout < 1:
		return errors.Wrapf(ErrConfig, "invalid fence timeout %d", c.FenceTimeout)
	case c.QueryCapacity < 2:
		return errors.Wrapf(ErrConfig, "query capacity %d less than 2", c.QueryCapacity)
	case c.DescCopies < 1:
		return errors.Wrapf(ErrConfig, "invalid descriptor copies %d", c.DescCopies)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level returns c.LogLevel as a slog.Level.
func (c *Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, errors.Wrapf(ErrConfig, "log level %q", c.LogLevel)
	}
	return l, nil
}
