// Copyright 2024 Gustavo C. Viegas. All rights reserved.

// Command rgdemo renders a synthetic scene for a number
// of frames and reports per-pass timings.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	_ "github.com/gviegas/rgraph/driver/nulldrv"
	"github.com/gviegas/rgraph/engine"
	"github.com/gviegas/rgraph/feature"
	"github.com/gviegas/rgraph/rgraph"
)

type options struct {
	config  string
	count   int
	driver  string
	shaders string
	grid    int
	noPBR   bool
	verbose bool
}

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var opt options
	cmd := &cobra.Command{
		Use:   "rgdemo",
		Short: "Render a synthetic scene through the frame graph",
		Long: `rgdemo renders a grid of cubes over a procedural sky for a
number of frames and prints the CPU and GPU time of every pass.
Without a shader directory, only the null driver can be used.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := engine.DefaultConfig()
			if opt.config != "" {
				var err error
				if cfg, err = engine.LoadConfig(opt.config); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("driver") {
				cfg.Driver = opt.driver
			}
			if opt.verbose {
				cfg.LogLevel = "debug"
			}
			return run(cmd.OutOrStdout(), &cfg, &opt)
		},
	}
	f := cmd.Flags()
	f.StringVarP(&opt.config, "config", "c", "", "configuration file (.toml, .yaml or .yml)")
	f.IntVarP(&opt.count, "frames", "n", 60, "number of frames to render")
	f.StringVarP(&opt.driver, "driver", "d", "", "name of the driver to use")
	f.StringVar(&opt.shaders, "shaders", "", "directory holding sky.comp.spv, mesh.vert.spv and mesh.frag.spv")
	f.IntVar(&opt.grid, "grid", 8, "number of cubes along each side of the grid")
	f.BoolVar(&opt.noPBR, "no-pbr", false, "skip the geometry pass")
	f.BoolVarP(&opt.verbose, "verbose", "v", false, "log debug messages")
	return cmd
}

// shaderCode holds the shader binaries the features use.
type shaderCode struct {
	sky, vert, frag []byte
}

func loadShaders(dir string) (s shaderCode, err error) {
	if dir == "" {
		// Accepted by the null driver only.
		stub := []byte("rgdemo")
		return shaderCode{stub, stub, stub}, nil
	}
	for _, x := range [...]struct {
		dst  *[]byte
		name string
	}{
		{&s.sky, "sky.comp.spv"},
		{&s.vert, "mesh.vert.spv"},
		{&s.frag, "mesh.frag.spv"},
	} {
		if *x.dst, err = os.ReadFile(filepath.Join(dir, x.name)); err != nil {
			return s, errors.Wrap(err, "rgdemo: reading shader")
		}
	}
	return
}

func run(w io.Writer, cfg *engine.Config, opt *options) error {
	if opt.count < 1 {
		return errors.Errorf("rgdemo: invalid frame count %d", opt.count)
	}
	if opt.grid < 1 {
		return errors.Errorf("rgdemo: invalid grid size %d", opt.grid)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	level, _ := cfg.Level()
	log := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	rgraph.SetLogger(log)

	shd, err := loadShaders(opt.shaders)
	if err != nil {
		return err
	}
	r, err := engine.New(cfg)
	if err != nil {
		return err
	}
	defer r.Free()

	bg, err := feature.NewBackground(r.GPU(), shd.sky, cfg.Frames)
	if err != nil {
		return err
	}
	defer bg.Free(nil)
	pbr, err := feature.NewPBR(r.GPU(), &feature.PBRConfig{
		Vertex:    shd.vert,
		Fragment:  shd.frag,
		Frames:    cfg.Frames,
		Materials: len(palette) + 1,
		Copies:    cfg.DescCopies,
		ColorFmt:  engine.DrawFormat,
		DepthFmt:  engine.DepthFormat,
	})
	if err != nil {
		return err
	}
	defer pbr.Free(nil)
	scn, err := newScene(r, pbr, opt.grid)
	if err != nil {
		return err
	}
	defer scn.free()
	pbr.Disabled = opt.noPBR

	rgraph.AddFeature(r.Graph(), bg)
	rgraph.AddFeature(r.Graph(), pbr)

	for i := range opt.count {
		scn.animate(pbr, i)
		r.Frame()
	}
	// Free waits for every frame, so the last statistics
	// are resolved afterwards.
	r.Free()
	if st, ok := r.Stats(); ok {
		printStats(w, &st)
	} else {
		fmt.Fprintln(w, "no timings available")
	}
	log.Info("rgdemo: done", "frames", r.FrameCount())
	return nil
}

func printStats(w io.Writer, st *engine.Stats) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "pass\tkind\tcpu (ms)\tgpu (ms)\tdraws\tdispatches\ttriangles\t\n")
	for _, p := range st.Passes {
		fmt.Fprintf(tw, "%s\t%s\t%.4f\t%.4f\t%d\t%d\t%d\t\n",
			p.Name, p.Kind, p.CPU, p.GPU, p.Draws, p.Dispatches, p.Triangles)
	}
	fmt.Fprintf(tw, "frame %d\t\t%.4f\t%.4f\t%d\t%d\t%d\t\n",
		st.Frame, st.CPU, st.GPU, st.Draws, st.Dispatches, st.Triangles)
	tw.Flush()
	fmt.Fprintf(w, "frame time (ms): %.4f\n", st.FrameCPU)
}
