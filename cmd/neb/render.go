// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/neb"
	"github.com/gogpu/neb/internal/config"
	"github.com/gogpu/neb/internal/export"
	"github.com/gogpu/neb/internal/params"
)

// renderFlags are the flags shared by render and serve. Flags that were set
// override the configuration file.
type renderFlags struct {
	configPath       string
	algorithm        string
	params           []string
	width            int
	height           int
	workers          int
	output           string
	format           string
	scale            float64
	caption          bool
	snapshotInterval time.Duration
}

func (f *renderFlags) register(cmd *cobra.Command) {
	d := config.Default()
	fs := cmd.Flags()
	fs.StringVarP(&f.configPath, "config", "c", "", "YAML render configuration file")
	fs.StringVarP(&f.algorithm, "algorithm", "a", d.Algorithm, "algorithm identifier (see 'neb algorithms')")
	fs.StringArrayVarP(&f.params, "param", "p", nil, "algorithm parameter as name=value (repeatable)")
	fs.IntVar(&f.width, "width", d.Width, "raster width in pixels")
	fs.IntVar(&f.height, "height", d.Height, "raster height in pixels")
	fs.IntVarP(&f.workers, "workers", "w", d.Workers, "worker goroutines (0 = GOMAXPROCS)")
	fs.StringVarP(&f.output, "output", "o", "", "output image path")
	fs.StringVar(&f.format, "format", "", "output format: png, bmp or tiff (default from extension)")
	fs.Float64Var(&f.scale, "scale", d.Scale, "resample factor for written images")
	fs.BoolVar(&f.caption, "caption", false, "draw the algorithm and progress on written images")
	fs.DurationVar(&f.snapshotInterval, "snapshot-interval", 0, "write a snapshot to the output at this interval")
}

// resolve merges the configuration file and the flags that were set.
func (f *renderFlags) resolve(cmd *cobra.Command) (config.Config, *neb.Parameters, error) {
	cfg := config.Default()
	if f.configPath != "" {
		var err error
		if cfg, err = config.Load(f.configPath); err != nil {
			return cfg, nil, err
		}
	}

	fs := cmd.Flags()
	if fs.Changed("algorithm") {
		cfg.Algorithm = f.algorithm
	}
	if fs.Changed("width") {
		cfg.Width = f.width
	}
	if fs.Changed("height") {
		cfg.Height = f.height
	}
	if fs.Changed("workers") {
		cfg.Workers = f.workers
	}
	if fs.Changed("output") {
		cfg.Output = f.output
	}
	if fs.Changed("format") {
		cfg.Format = f.format
	}
	if fs.Changed("scale") {
		cfg.Scale = f.scale
	}
	if fs.Changed("caption") {
		cfg.Caption = f.caption
	}
	if fs.Changed("snapshot-interval") {
		cfg.SnapshotInterval = f.snapshotInterval
	}
	if err := cfg.Validate(); err != nil {
		return cfg, nil, err
	}

	overrides, err := params.Parse(f.params)
	if err != nil {
		return cfg, nil, err
	}
	return cfg, params.FromMap(cfg.Parameters).Merge(overrides), nil
}

// newEngine creates an engine configured for cfg with the algorithm selected.
func (a *app) newEngine(cfg config.Config, p *neb.Parameters, opts ...neb.Option) (*neb.Engine, error) {
	opts = append([]neb.Option{
		neb.WithWorkers(cfg.Workers),
		neb.WithRasterSize(cfg.Width, cfg.Height),
		neb.WithRegistry(a.registry),
		neb.WithLogger(a.log),
	}, opts...)

	e, err := neb.New(opts...)
	if err != nil {
		return nil, err
	}
	if err := e.SetAlgorithm(cfg.Algorithm); err != nil {
		_ = e.Close()
		return nil, err
	}
	if err := e.SetParameters(p); err != nil {
		_ = e.Close()
		return nil, err
	}
	return e, nil
}

func (a *app) renderCmd() *cobra.Command {
	var flags renderFlags
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render an image and write it to a file",
		Long: `Render runs one render to completion and writes the final image.

With --snapshot-interval the output file is refreshed with the image so far
while rendering. An interrupt takes a last snapshot, writes it and exits.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, p, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			if cfg.Output == "" {
				return errors.New("no output file: set --output or output in the configuration")
			}
			return a.render(cmd.Context(), cfg, p)
		},
	}
	flags.register(cmd)
	return cmd
}

func (a *app) render(parent context.Context, cfg config.Config, p *neb.Parameters) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	format, err := outputFormat(cfg)
	if err != nil {
		return err
	}

	l := newProgressListener(a.stderr, a.printer, a.log)
	e, err := a.newEngine(cfg, p, neb.WithListener(l))
	if err != nil {
		return err
	}
	defer e.Close()

	if err := e.RenderCurrent(ctx); err != nil {
		return err
	}

	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(done)
		return e.Wait(gctx)
	})
	if cfg.SnapshotInterval > 0 {
		g.Go(func() error {
			t := time.NewTicker(cfg.SnapshotInterval)
			defer t.Stop()
			for {
				select {
				case <-done:
					return nil
				case <-gctx.Done():
					return nil
				case <-t.C:
					pos, err := e.Snapshot(gctx)
					if err != nil {
						if gctx.Err() != nil {
							return nil
						}
						return err
					}
					if err := a.write(cfg, format, e, pos); err != nil {
						return err
					}
					a.log.Debug("snapshot written", "path", cfg.Output)
				}
			}
		})
	}

	err = g.Wait()
	interrupted := ctx.Err() != nil
	if err != nil && !interrupted {
		return err
	}

	// After an interrupt this combines the progress so far.
	pos, err := e.Snapshot(context.WithoutCancel(ctx))
	if err != nil {
		return err
	}
	if err := a.write(cfg, format, e, pos); err != nil {
		return err
	}

	st := e.Status()
	if interrupted {
		a.printer.Fprintf(a.stdout, "Interrupted: wrote %s with %d of %d negatives developed\n",
			cfg.Output, st.Developed, st.Negatives)
		return nil
	}
	a.printer.Fprintf(a.stdout, "Wrote %s (%dx%d, %d negatives) in %v\n",
		cfg.Output, cfg.Width, cfg.Height, st.Negatives, st.Render.Elapsed.Round(time.Millisecond))
	return nil
}

// write writes pos to the output, captioned if configured.
func (a *app) write(cfg config.Config, format export.Format, e *neb.Engine, pos *neb.Positive) error {
	var img image.Image = pos
	if cfg.Caption {
		var err error
		if img, err = export.Caption(pos, captionText(e.Status())); err != nil {
			return err
		}
	}
	return export.WriteFile(cfg.Output, img, format, cfg.Scale)
}

// captionText describes a render for export.Caption.
func captionText(st neb.Status) string {
	return fmt.Sprintf("%s %dx%d, %d/%d negatives",
		st.Render.Algorithm, st.Render.Width, st.Render.Height, st.Developed, st.Negatives)
}

// outputFormat returns the configured format, or the one implied by the
// output path.
func outputFormat(cfg config.Config) (export.Format, error) {
	if cfg.Format != "" {
		return export.ParseFormat(cfg.Format)
	}
	return export.FormatFromPath(cfg.Output)
}
