// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Command neb renders fractal images with the neb engine.
//
// Usage:
//
//	neb algorithms
//	neb render --algorithm mbrot --param aa=4 --output mandelbrot.png
//	neb serve --addr :8080 --config render.yaml
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/gogpu/neb"
	"github.com/gogpu/neb/algorithms"
)

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds state shared by the subcommands.
type app struct {
	stdout   io.Writer
	stderr   io.Writer
	logLevel string
	log      *slog.Logger
	printer  *message.Printer
	registry *neb.Registry
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{
		stdout:   stdout,
		stderr:   stderr,
		log:      neb.Logger(),
		printer:  message.NewPrinter(language.English),
		registry: algorithms.Registry(),
	}

	root := &cobra.Command{
		Use:   "neb",
		Short: "Render fractals on a pausable worker pool",
		Long: `neb distributes iterative image synthesis over a pool of workers and
can snapshot the image at any point while it is being computed.`,
		SilenceUsage:      true,
		PersistentPreRunE: a.setup,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn or error")

	root.AddCommand(
		a.algorithmsCmd(),
		a.renderCmd(),
		a.serveCmd(),
	)
	return root
}

// setup installs the stderr logger.
func (a *app) setup(*cobra.Command, []string) error {
	var level slog.Level
	if err := level.UnmarshalText([]byte(a.logLevel)); err != nil {
		return fmt.Errorf("invalid --log-level %q", a.logLevel)
	}
	a.log = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: level}))
	neb.SetLogger(a.log)
	return nil
}

func (a *app) algorithmsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "algorithms",
		Short: "List the available algorithms and their default parameters",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			for _, name := range a.registry.Names() {
				f, err := a.registry.Lookup(name)
				if err != nil {
					return err
				}
				a.printer.Fprintf(a.stdout, "%s\t%s\n", f.Name, f.Description)
				defaults := f.Defaults()
				for _, k := range defaults.Keys() {
					v, _ := defaults.Get(k)
					a.printer.Fprintf(a.stdout, "    %s=%s\n", k, v)
				}
			}
			return nil
		},
	}
}
