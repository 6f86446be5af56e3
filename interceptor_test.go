// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tube_test

import (
	"context"
	"slices"
	"testing"

	"code.hybscloud.com/tube"
)

// recordingInterceptor logs its prelude and cleanup around each driving
// pass.
type recordingInterceptor struct {
	name string
	log  *[]string
}

func (i *recordingInterceptor) Execute(f *tube.Fiber[string], next tube.Tube[string], work tube.Work[string]) tube.Tube[string] {
	*i.log = append(*i.log, i.name+".enter")
	defer func() { *i.log = append(*i.log, i.name+".exit") }()
	return work(next)
}

// loggingTube appends its invocations to a shared log.
type loggingTube struct {
	*simpleTube
	name string
	log  *[]string
}

func (t *loggingTube) ProcessRequest(f *tube.Fiber[string], request string) tube.Action[string] {
	*t.log = append(*t.log, t.name+".request")
	return t.simpleTube.ProcessRequest(f, request)
}

func (t *loggingTube) ProcessResponse(f *tube.Fiber[string], response string) tube.Action[string] {
	*t.log = append(*t.log, t.name+".response")
	return t.simpleTube.ProcessResponse(f, response)
}

// installingTube adds an interceptor during its own ProcessRequest.
type installingTube struct {
	*loggingTube
	interceptor tube.Interceptor[string]
}

func (t *installingTube) ProcessRequest(f *tube.Fiber[string], request string) tube.Action[string] {
	f.AddInterceptor(t.interceptor)
	return t.loggingTube.ProcessRequest(f, request)
}

func TestInterceptorDeferral(t *testing.T) {
	// An interceptor installed by X during its ProcessRequest wraps
	// the very next tube's invocation, not the rest of X's own.
	var log []string
	interceptor := &recordingInterceptor{name: "i", log: &log}
	y := &loggingTube{simpleTube: newSimpleTube(nil), name: "y", log: &log}
	x := &installingTube{
		loggingTube: &loggingTube{simpleTube: newSimpleTube(y), name: "x", log: &log},
		interceptor: interceptor,
	}

	engine := tube.NewEngine[string]("interceptorDeferral")
	result := runSync(t, engine, x, "Howdy")
	if result != "Howdy" {
		t.Fatalf("result got %q, want %q", result, "Howdy")
	}

	want := []string{"x.request", "i.enter", "y.request", "x.response", "i.exit"}
	if !slices.Equal(log, want) {
		t.Fatalf("event order got %v, want %v", log, want)
	}
}

// removingTube uninstalls an interceptor during its ProcessResponse.
type removingTube struct {
	*loggingTube
	interceptor tube.Interceptor[string]
	removed     bool
}

func (t *removingTube) ProcessResponse(f *tube.Fiber[string], response string) tube.Action[string] {
	t.removed = f.RemoveInterceptor(t.interceptor)
	return t.loggingTube.ProcessResponse(f, response)
}

func TestInterceptorRemovalDeferral(t *testing.T) {
	// Removal during Y's ProcessResponse happens inside the
	// interceptor's pass: the cleanup still runs, the wrapping stops
	// before X's ProcessResponse.
	var log []string
	interceptor := &recordingInterceptor{name: "i", log: &log}
	// y needs a downstream stage: only an Invoke puts y on the
	// continuation stack, and only then does its ProcessResponse run
	// on the way back.
	z := newSimpleTube(nil)
	y := &removingTube{
		loggingTube: &loggingTube{simpleTube: newSimpleTube(z), name: "y", log: &log},
		interceptor: interceptor,
	}
	x := &installingTube{
		loggingTube: &loggingTube{simpleTube: newSimpleTube(y), name: "x", log: &log},
		interceptor: interceptor,
	}

	engine := tube.NewEngine[string]("interceptorRemoval")
	result := runSync(t, engine, x, "Howdy")
	if result != "Howdy" {
		t.Fatalf("result got %q, want %q", result, "Howdy")
	}
	if !y.removed {
		t.Fatal("RemoveInterceptor reported the interceptor as unregistered")
	}
	assertCounts(t, "z", z, 1, 0, 0)

	want := []string{"x.request", "i.enter", "y.request", "y.response", "i.exit", "x.response"}
	if !slices.Equal(log, want) {
		t.Fatalf("event order got %v, want %v", log, want)
	}
}

func TestRemoveUnknownInterceptor(t *testing.T) {
	var log []string
	engine := tube.NewEngine[string]("removeUnknown")
	fiber := engine.CreateFiber()
	if fiber.RemoveInterceptor(&recordingInterceptor{name: "i", log: &log}) {
		t.Fatal("RemoveInterceptor reported an unregistered interceptor as removed")
	}
}

type ambientKey struct{}

// ambientInterceptor installs a context value for the duration of each
// driving pass and restores the previous ambient on the way out.
type ambientInterceptor struct {
	value string
}

func (i *ambientInterceptor) Execute(f *tube.Fiber[string], next tube.Tube[string], work tube.Work[string]) tube.Tube[string] {
	prev := f.SetContext(context.WithValue(f.Context(), ambientKey{}, i.value))
	defer f.SetContext(prev)
	return work(next)
}

// ambientTube reads the fiber's ambient context during processing.
type ambientTube struct {
	*simpleTube
	observed string
}

func (t *ambientTube) ProcessRequest(f *tube.Fiber[string], request string) tube.Action[string] {
	t.requestCount++
	if v, ok := f.Context().Value(ambientKey{}).(string); ok {
		t.observed = v
	}
	return tube.ReturnWith(request)
}

type ambientInstaller struct {
	*simpleTube
	interceptor tube.Interceptor[string]
}

func (t *ambientInstaller) ProcessRequest(f *tube.Fiber[string], request string) tube.Action[string] {
	t.requestCount++
	f.AddInterceptor(t.interceptor)
	return tube.Invoke(t.next, request)
}

func TestInterceptorAmbientContext(t *testing.T) {
	y := &ambientTube{simpleTube: newSimpleTube(nil)}
	x := &ambientInstaller{
		simpleTube:  newSimpleTube(y),
		interceptor: &ambientInterceptor{value: "transaction-42"},
	}

	engine := tube.NewEngine[string]("ambient")
	fiber := engine.CreateFiber()
	if _, err := fiber.RunSync(x, "Howdy"); err != nil {
		t.Fatalf("RunSync error: %v", err)
	}
	if y.observed != "transaction-42" {
		t.Fatalf("ambient value got %q, want %q", y.observed, "transaction-42")
	}
	if fiber.Context().Value(ambientKey{}) != nil {
		t.Fatal("ambient context not restored after the driving pass")
	}
}
