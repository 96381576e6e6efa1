// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package neb

import (
	"errors"
	"slices"
	"testing"
)

// =============================================================================
// Registry Tests
// =============================================================================

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry(testFactory())

	if got := r.Names(); !slices.Equal(got, []string{"counting"}) {
		t.Errorf("Names() = %v", got)
	}
	if _, err := r.Lookup("counting"); err != nil {
		t.Errorf("Lookup(counting) = %v", err)
	}
	if _, err := r.Lookup("nope"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("Lookup(nope) = %v, want ErrUnknownAlgorithm", err)
	}
	if err := r.Register(testFactory()); err == nil {
		t.Error("duplicate Register() succeeded")
	}
	if err := r.Register(Factory{Name: "incomplete"}); err == nil {
		t.Error("Register() of an incomplete factory succeeded")
	}
}

func TestRegistry_New(t *testing.T) {
	r := NewRegistry(testFactory())

	alg, p, err := r.New("counting", NewParameters("goal", "7"))
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	if got := alg.TaskIterationGoal(4); got != 7 {
		t.Errorf("goal = %d, want 7", got)
	}
	if got := p.String(); got != "multiplier=1 goal=7" {
		t.Errorf("parameters = %q", got)
	}

	_, _, err = r.New("counting", NewParameters("colour", "red"))
	var perr *ParameterError
	if !errors.As(err, &perr) || perr.Name != "colour" {
		t.Errorf("New(colour=red) = %v, want ParameterError for colour", err)
	}
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("New(colour=red) = %v, want ErrInvalidParameter", err)
	}

	_, _, err = r.New("counting", NewParameters("goal", "x"))
	if !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("New(goal=x) = %v, want ErrInvalidParameter", err)
	}
}

// =============================================================================
// Engine Configuration Tests
// =============================================================================

func TestEngine_SetAlgorithm(t *testing.T) {
	l := newRecordingListener()
	e := newTestEngine(t, 2, WithListener(l), WithRegistry(NewRegistry(testFactory())))

	if err := e.SetAlgorithm("missing"); !errors.Is(err, ErrUnknownAlgorithm) {
		t.Errorf("SetAlgorithm(missing) = %v, want ErrUnknownAlgorithm", err)
	}
	if e.Algorithm() != "" || e.Parameters() != nil {
		t.Error("failed SetAlgorithm changed the configuration")
	}

	if err := e.SetAlgorithm("counting"); err != nil {
		t.Fatalf("SetAlgorithm() = %v", err)
	}
	if got := e.Algorithm(); got != "counting" {
		t.Errorf("Algorithm() = %q", got)
	}
	if got := e.Parameters().String(); got != "multiplier=1 goal=2" {
		t.Errorf("Parameters() = %q", got)
	}
	if got := l.lifecycle(); !slices.Equal(got, []string{"algorithm:counting"}) {
		t.Errorf("notifications = %v", got)
	}
}

func TestEngine_SetAndResetParameters(t *testing.T) {
	l := newRecordingListener()
	e := newTestEngine(t, 2, WithListener(l), WithRegistry(NewRegistry(testFactory())))

	if err := e.SetParameters(NewParameters("goal", "3")); !errors.Is(err, ErrNoAlgorithm) {
		t.Errorf("SetParameters() without algorithm = %v, want ErrNoAlgorithm", err)
	}
	if err := e.ResetParameters(); !errors.Is(err, ErrNoAlgorithm) {
		t.Errorf("ResetParameters() without algorithm = %v, want ErrNoAlgorithm", err)
	}

	if err := e.SetAlgorithm("counting"); err != nil {
		t.Fatalf("SetAlgorithm() = %v", err)
	}
	if err := e.SetParameters(NewParameters("goal", "3", "multiplier", "2")); err != nil {
		t.Fatalf("SetParameters() = %v", err)
	}
	if got := e.Parameters().String(); got != "multiplier=2 goal=3" {
		t.Errorf("Parameters() = %q", got)
	}

	// Invalid values leave the configuration unchanged.
	if err := e.SetParameters(NewParameters("goal", "-1")); !errors.Is(err, ErrInvalidParameter) {
		t.Errorf("SetParameters(goal=-1) = %v, want ErrInvalidParameter", err)
	}
	if got := e.Parameters().String(); got != "multiplier=2 goal=3" {
		t.Errorf("Parameters() after rejected set = %q", got)
	}

	if err := e.ResetParameters(); err != nil {
		t.Fatalf("ResetParameters() = %v", err)
	}
	if got := e.Parameters().String(); got != "multiplier=1 goal=2" {
		t.Errorf("Parameters() after reset = %q", got)
	}

	want := []string{"algorithm:counting", "parameters", "reset"}
	if got := l.lifecycle(); !slices.Equal(got, want) {
		t.Errorf("notifications = %v, want %v", got, want)
	}
}

func TestEngine_ParametersReturnsCopy(t *testing.T) {
	e := newTestEngine(t, 1, WithRegistry(NewRegistry(testFactory())))
	if err := e.SetAlgorithm("counting"); err != nil {
		t.Fatalf("SetAlgorithm() = %v", err)
	}

	p := e.Parameters()
	p.Put("goal", "99")
	if v, _ := e.Parameters().Get("goal"); v != "2" {
		t.Errorf("mutating Parameters() result changed the engine: goal=%s", v)
	}
}

func TestEngine_RenderCurrent(t *testing.T) {
	e := newTestEngine(t, 2, WithRegistry(NewRegistry(testFactory())), WithRasterSize(12, 3))
	ctx := testContext(t)

	if err := e.RenderCurrent(ctx); !errors.Is(err, ErrNoAlgorithm) {
		t.Errorf("RenderCurrent() without algorithm = %v, want ErrNoAlgorithm", err)
	}

	if err := e.SetAlgorithm("counting"); err != nil {
		t.Fatalf("SetAlgorithm() = %v", err)
	}
	if err := e.SetParameters(NewParameters("multiplier", "3")); err != nil {
		t.Fatalf("SetParameters() = %v", err)
	}
	if err := e.SetRasterSize(0, 3); !errors.Is(err, ErrInvalidRaster) {
		t.Errorf("SetRasterSize(0, 3) = %v, want ErrInvalidRaster", err)
	}
	if err := e.SetRasterSize(9, 5); err != nil {
		t.Fatalf("SetRasterSize() = %v", err)
	}

	if err := e.RenderCurrent(ctx); err != nil {
		t.Fatalf("RenderCurrent() = %v", err)
	}
	if err := e.Wait(ctx); err != nil {
		t.Fatalf("Wait() = %v", err)
	}

	st := e.Status()
	if st.Render.Width != 9 || st.Render.Height != 5 {
		t.Errorf("rendered %dx%d, want 9x5", st.Render.Width, st.Render.Height)
	}
	if st.Render.Algorithm != "counting" || st.Negatives != 6 {
		t.Errorf("render %q with %d negatives, want counting/6", st.Render.Algorithm, st.Negatives)
	}
	if st.Render.ID == "" {
		t.Error("render ID is empty")
	}
}

func TestEngine_ConfigurationRejectedWhileRendering(t *testing.T) {
	e := newTestEngine(t, 2, WithRegistry(NewRegistry(testFactory())))
	ctx := testContext(t)

	if err := e.SetAlgorithm("counting"); err != nil {
		t.Fatalf("SetAlgorithm() = %v", err)
	}
	if err := e.Stop(ctx); err != nil {
		t.Fatalf("Stop() = %v", err)
	}
	if err := e.RenderCurrent(ctx); err != nil {
		t.Fatalf("RenderCurrent() = %v", err)
	}

	if err := e.SetAlgorithm("counting"); !errors.Is(err, ErrRenderInProgress) {
		t.Errorf("SetAlgorithm() = %v, want ErrRenderInProgress", err)
	}
	if err := e.SetParameters(NewParameters("goal", "5")); !errors.Is(err, ErrRenderInProgress) {
		t.Errorf("SetParameters() = %v, want ErrRenderInProgress", err)
	}
	if err := e.ResetParameters(); !errors.Is(err, ErrRenderInProgress) {
		t.Errorf("ResetParameters() = %v, want ErrRenderInProgress", err)
	}

	if err := e.Start(ctx); err != nil {
		t.Fatalf("Start() = %v", err)
	}
	if err := e.Wait(ctx); err != nil {
		t.Fatalf("Wait() = %v", err)
	}
	if err := e.SetParameters(NewParameters("goal", "5")); err != nil {
		t.Errorf("SetParameters() after render = %v", err)
	}
}
