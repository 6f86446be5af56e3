// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tube

import (
	"code.hybscloud.com/kont"
)

// fiberDispatcher is the structural interface for fiber effects.
// Any effect op performed inside a [Bridge] protocol must implement
//
//	DispatchFiber(f *Fiber[P], resume func(P)) (kont.Resumed, bool)
//
// DispatchFiber handles the op on the driving fiber. Returning
// (value, true) resumes the protocol immediately with value. Returning
// (_, false) parks the fiber; the op must have arranged for resume to
// be invoked with the response packet, from any goroutine, even before
// DispatchFiber returns.
type fiberDispatcher[P any] interface {
	DispatchFiber(f *Fiber[P], resume func(P)) (kont.Resumed, bool)
}

// Await is the effect operation for waiting on an external event from
// within a [Bridge] protocol. Performing it suspends the driving
// fiber; the resumed packet becomes the operation's result.
type Await[P any] struct {
	kont.Phantom[P]

	// Hook connects the suspension to the external mechanism. It runs
	// before the fiber parks and receives the resume function, which
	// may be called from any goroutine, even before Hook returns; the
	// scheduler resolves that race.
	Hook func(resume func(P))
}

// DispatchFiber implements the fiber dispatch via structural interface
// assertion. Always parks: the external mechanism owns the resume.
func (op Await[P]) DispatchFiber(f *Fiber[P], resume func(P)) (kont.Resumed, bool) {
	op.Hook(resume)
	return nil, false
}

// AwaitValue performs an Await effect and yields the resumed packet.
func AwaitValue[P any](hook func(resume func(P))) kont.Eff[P] {
	return kont.Perform(Await[P]{Hook: hook})
}

// Bridge runs a continuation-passing protocol as a terminal tubeline
// stage. The protocol maps the request packet to an effectful
// computation of the response, advanced one effect at a time, the same
// stepping discipline an external event loop would use. Each performed
// op is dispatched on the driving fiber through its DispatchFiber
// method (see [Await] for the built-in parking op); an op that
// dispatches immediately keeps the fiber running, an op that parks
// translates into a fiber suspension and each Resume advances the
// protocol to its next effect.
//
// Like any tube, a Bridge is non-reentrant: it holds the pending
// suspension between the SUSPEND action and the resumed
// ProcessResponse. Copies made through a [Cloner] share the protocol
// and nothing else.
type Bridge[P any] struct {
	protocol func(P) kont.Eff[P]

	// susp is the protocol's pending suspension while the fiber is
	// parked.
	susp *kont.Suspension[P]
}

// NewBridge returns a tube evaluating protocol for every request.
func NewBridge[P any](protocol func(P) kont.Eff[P]) *Bridge[P] {
	return &Bridge[P]{protocol: protocol}
}

// ProcessRequest starts the protocol for the request packet.
func (t *Bridge[P]) ProcessRequest(f *Fiber[P], request P) Action[P] {
	result, susp := kont.StepExpr(kont.Reify(t.protocol(request)))
	return t.advance(f, result, susp)
}

// ProcessResponse resumes the pending suspension with the packet
// delivered by Fiber.Resume.
func (t *Bridge[P]) ProcessResponse(f *Fiber[P], response P) Action[P] {
	susp := t.susp
	t.susp = nil
	if susp == nil {
		panic("tube: Bridge resumed without a pending suspension")
	}
	result, next := susp.Resume(response)
	return t.advance(f, result, next)
}

// ProcessException continues unwinding; a bridge protocol has no error
// channel to convert it.
func (t *Bridge[P]) ProcessException(f *Fiber[P], err error) Action[P] {
	return ThrowException[P](err)
}

// PreDestroy discards a pending suspension, if any.
func (t *Bridge[P]) PreDestroy() {
	if t.susp != nil {
		t.susp.Discard()
		t.susp = nil
	}
}

// Copy implements Tube.
func (t *Bridge[P]) Copy(cloner *Cloner[P]) Tube[P] {
	copy := &Bridge[P]{protocol: t.protocol}
	cloner.Add(t, copy)
	return copy
}

// advance dispatches suspended ops on the fiber until the protocol
// completes or an op parks, and converts that into a scheduler action.
func (t *Bridge[P]) advance(f *Fiber[P], result P, susp *kont.Suspension[P]) Action[P] {
	for susp != nil {
		op, ok := susp.Op().(fiberDispatcher[P])
		if !ok {
			panic("tube: unhandled effect in Bridge")
		}
		v, resumed := op.DispatchFiber(f, f.Resume)
		if !resumed {
			t.susp = susp
			return Suspend[P]()
		}
		result, susp = susp.Resume(v)
	}
	return ReturnWith(result)
}
