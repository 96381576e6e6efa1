// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package main

import (
	"bytes"
	"context"
	"errors"
	"image"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gogpu/neb"
	"github.com/gogpu/neb/internal/cache"
	"github.com/gogpu/neb/internal/config"
	"github.com/gogpu/neb/internal/export"
	"github.com/gogpu/neb/internal/params"
)

// shutdownTimeout bounds the graceful HTTP shutdown.
const shutdownTimeout = 5 * time.Second

func (a *app) serveCmd() *cobra.Command {
	var (
		flags renderFlags
		addr  string
		idle  bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve an engine over HTTP",
		Long: `Serve starts an engine and exposes it over HTTP:

  GET  /algorithms     registered algorithms and their defaults
  GET  /status         render and pool state
  GET  /snapshot       the image so far (?format=png|bmp|tiff&scale=0.5&caption=1)
  GET  /metrics        Prometheus metrics
  POST /render         start a render ({"algorithm":"mbrot","parameters":{...}})
  POST /stop           park the workers
  POST /start          release the workers

Unless --idle is given the configured render starts immediately.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, p, err := flags.resolve(cmd)
			if err != nil {
				return err
			}
			return a.serve(cmd.Context(), addr, cfg, p, !idle)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().BoolVar(&idle, "idle", false, "do not start a render at startup")
	return cmd
}

func (a *app) serve(parent context.Context, addr string, cfg config.Config, p *neb.Parameters, start bool) error {
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	e, err := a.newEngine(cfg, p, neb.WithRegisterer(reg))
	if err != nil {
		return err
	}
	defer e.Close()

	if start {
		if err := e.RenderCurrent(ctx); err != nil {
			return err
		}
	}

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              addr,
		Handler:           newServer(e, a.registry, reg, a.log).router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.log.Info("listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		sctx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})
	return g.Wait()
}

// server exposes one engine over HTTP.
type server struct {
	engine   *neb.Engine
	registry *neb.Registry
	gatherer prometheus.Gatherer
	log      *slog.Logger

	// images holds encoded snapshots of finished renders.
	images *cache.Cache[snapshotKey, []byte]

	// mu serializes configure-then-render requests.
	mu sync.Mutex
}

// snapshotKey identifies one encoding of a finished render.
type snapshotKey struct {
	id      string
	format  export.Format
	scale   float64
	caption bool
}

// imageCacheSize is the number of encoded snapshots kept.
const imageCacheSize = 32

func newServer(e *neb.Engine, r *neb.Registry, g prometheus.Gatherer, log *slog.Logger) *server {
	return &server{
		engine:   e,
		registry: r,
		gatherer: g,
		log:      log,
		images:   cache.New[snapshotKey, []byte](imageCacheSize),
	}
}

func (s *server) router() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/algorithms", s.handleAlgorithms)
	r.GET("/status", s.handleStatus)
	r.GET("/snapshot", s.handleSnapshot)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	r.POST("/render", s.handleRender)
	r.POST("/stop", s.handleStop)
	r.POST("/start", s.handleStart)
	return r
}

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// AlgorithmResponse describes one registered algorithm.
type AlgorithmResponse struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Defaults    map[string]string `json:"defaults"`
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	State      string            `json:"state"`
	ID         string            `json:"id,omitempty"`
	Algorithm  string            `json:"algorithm,omitempty"`
	Parameters map[string]string `json:"parameters,omitempty"`
	Width      int               `json:"width,omitempty"`
	Height     int               `json:"height,omitempty"`
	Developed  int               `json:"developed"`
	Negatives  int               `json:"negatives"`
	Queued     int               `json:"queued"`
	Active     int               `json:"active"`
	Parked     int               `json:"parked"`
	Stopped    bool              `json:"stopped"`
	Elapsed    string            `json:"elapsed,omitempty"`
	Error      string            `json:"error,omitempty"`
}

// RenderRequest is the body of POST /render. Omitted fields keep the
// engine's current configuration.
type RenderRequest struct {
	Algorithm  string            `json:"algorithm"`
	Parameters map[string]string `json:"parameters"`
	Width      int               `json:"width" binding:"omitempty,gte=1,lte=65536"`
	Height     int               `json:"height" binding:"omitempty,gte=1,lte=65536"`
}

func (s *server) handleAlgorithms(c *gin.Context) {
	names := s.registry.Names()
	resp := make([]AlgorithmResponse, 0, len(names))
	for _, name := range names {
		f, err := s.registry.Lookup(name)
		if err != nil {
			continue
		}
		resp = append(resp, AlgorithmResponse{
			Name:        f.Name,
			Description: f.Description,
			Defaults:    f.Defaults().Map(),
		})
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) handleStatus(c *gin.Context) {
	st := s.engine.Status()
	resp := StatusResponse{
		State:     st.State.String(),
		ID:        st.Render.ID,
		Algorithm: s.engine.Algorithm(),
		Developed: st.Developed,
		Negatives: st.Negatives,
		Queued:    st.Queued,
		Active:    st.Active,
		Parked:    st.Parked,
		Stopped:   st.Stopped,
	}
	if resp.Algorithm != "" {
		resp.Parameters = s.engine.Parameters().Map()
	}
	resp.Width, resp.Height = s.engine.RasterSize()
	if st.Render.Elapsed > 0 {
		resp.Elapsed = st.Render.Elapsed.String()
	}
	if st.Err != nil {
		resp.Error = st.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

func (s *server) handleSnapshot(c *gin.Context) {
	format, err := export.ParseFormat(c.DefaultQuery("format", string(export.PNG)))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	factor := 1.0
	if v := c.Query("scale"); v != "" {
		if factor, err = strconv.ParseFloat(v, 64); err != nil || factor <= 0 || factor > 16 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "scale must be a number in (0, 16]"})
			return
		}
	}

	caption := c.Query("caption") != ""

	// The positive of a finished render no longer changes.
	key := snapshotKey{format: format, scale: factor, caption: caption}
	if st := s.engine.Status(); st.State == neb.StateFinished {
		key.id = st.Render.ID
		if data, ok := s.images.Get(key); ok {
			c.Data(http.StatusOK, contentType(format), data)
			return
		}
	}

	pos, err := s.engine.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	if pos == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no render has been started"})
		return
	}

	st := s.engine.Status()
	var img image.Image = pos
	if caption {
		if img, err = export.Caption(pos, captionText(st)); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
			return
		}
	}
	img, err = export.Scale(img, factor)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	var buf bytes.Buffer
	if err := export.Encode(&buf, img, format); err != nil {
		s.log.Error("snapshot encode failed", "error", err)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
		return
	}
	if st.State == neb.StateFinished && st.Render.ID == key.id {
		s.images.Set(key, buf.Bytes())
	}
	c.Data(http.StatusOK, contentType(format), buf.Bytes())
}

func (s *server) handleRender(c *gin.Context) {
	var req RenderRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
			return
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.configure(req); err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	if err := s.engine.RenderCurrent(c.Request.Context()); err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	s.handleStatus(c)
}

// configure applies the parts of req that were given.
func (s *server) configure(req RenderRequest) error {
	if req.Algorithm != "" && req.Algorithm != s.engine.Algorithm() {
		if err := s.engine.SetAlgorithm(req.Algorithm); err != nil {
			return err
		}
	}
	if req.Parameters != nil {
		if err := s.engine.SetParameters(params.FromMap(req.Parameters)); err != nil {
			return err
		}
	}
	if req.Width > 0 || req.Height > 0 {
		w, h := s.engine.RasterSize()
		if req.Width > 0 {
			w = req.Width
		}
		if req.Height > 0 {
			h = req.Height
		}
		if err := s.engine.SetRasterSize(w, h); err != nil {
			return err
		}
	}
	return nil
}

func (s *server) handleStop(c *gin.Context) {
	if err := s.engine.Stop(c.Request.Context()); err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	s.handleStatus(c)
}

func (s *server) handleStart(c *gin.Context) {
	if err := s.engine.Start(c.Request.Context()); err != nil {
		c.JSON(statusFor(err), ErrorResponse{Error: err.Error()})
		return
	}
	s.handleStatus(c)
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, neb.ErrRenderInProgress), errors.Is(err, neb.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, neb.ErrUnknownAlgorithm),
		errors.Is(err, neb.ErrInvalidParameter),
		errors.Is(err, neb.ErrInvalidRaster),
		errors.Is(err, neb.ErrNoAlgorithm):
		return http.StatusBadRequest
	case errors.Is(err, neb.ErrClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func contentType(f export.Format) string {
	switch f {
	case export.BMP:
		return "image/bmp"
	case export.TIFF:
		return "image/tiff"
	default:
		return "image/png"
	}
}
