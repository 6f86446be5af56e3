// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tube

import (
	"context"
	"fmt"
	"sync"

	"code.hybscloud.com/atomix"
)

// CompletionCallback is invoked exactly once when a fiber started with
// [Fiber.Start] reaches its terminal state: with the final response
// packet on success, or with a non-nil error when the tubeline threw
// and no continuation converted the error. It may run on a different
// goroutine than the one that started the fiber.
type CompletionCallback[P any] func(response P, err error)

// Fiber is a user-level thread driving one request/response through a
// tubeline. Many fibers multiplex onto the small worker pool owned by
// their [Engine]; a fiber that suspends keeps no goroutine parked (in
// the asynchronous mode) and is put back on the pool when resumed.
//
// A fiber remembers where in the tubeline processing is, which stages
// still need to see the response on the way out, and the ambient
// context tube code runs under. It executes on at most one goroutine
// at any instant.
type Fiber[P any] struct {
	// conts holds the tubes whose ProcessResponse (or
	// ProcessException) is pending, in LIFO order. Owned by the
	// driving goroutine.
	conts []Tube[P]

	// next, when non-nil, is the tube whose ProcessRequest runs next.
	// Nil means the scheduler drains conts. Written by the driving
	// goroutine, and always nil-ed before the fiber suspends, so the
	// pass triggered by a Resume observes a consistent value.
	next Tube[P]

	packet P
	err    error

	owner *Engine[P]

	// suspendedCount is −1, 0, or 1. Resume decrements, suspension
	// increments; −1 records a resume that arrived before the SUSPEND
	// action made it back to the scheduler. Guarded by mu.
	suspendedCount int

	completed   bool
	synchronous bool
	started     bool

	mu   sync.Mutex
	cond *sync.Cond

	interceptors   []Interceptor[P]
	handler        *interceptorHandler[P]
	needsToReenter bool

	// ctx is the fiber's ambient context, the analog of a thread's
	// ambient state. Tube code reaches it through Context; interceptors
	// install and restore it around driving passes.
	ctx context.Context

	completion CompletionCallback[P]

	serial Serial
}

func newFiber[P any](owner *Engine[P]) *Fiber[P] {
	f := &Fiber[P]{
		conts: make([]Tube[P], 0, 16),
		owner: owner,
		ctx:   context.Background(),
	}
	f.cond = sync.NewCond(&f.mu)
	if debugEnabled() {
		f.serial = owner.serials.Add(1)
		Log.Debugf("%s created", f)
	}
	return f
}

// Owner returns the engine this fiber was created by.
func (f *Fiber[P]) Owner() *Engine[P] { return f.owner }

// Start begins executing the tubeline asynchronously, like starting a
// thread. The engine's executor drives the fiber; completion, if
// non-nil, is invoked with the outcome.
func (f *Fiber[P]) Start(tubeline Tube[P], request P, completion CompletionCallback[P]) {
	f.next = tubeline
	f.packet = request
	f.completion = completion
	f.started = true
	f.owner.addRunnable(f)
}

// RunSync drives the tubeline on the calling goroutine and blocks
// until it completes, parking on the fiber's condition while
// suspended. The unconverted error of an abnormal completion is
// returned as err.
//
// RunSync is re-entrant: a tube may call it on the current fiber to
// run a sub-tubeline to completion without disturbing the outer
// continuations.
func (f *Fiber[P]) RunSync(tubeline Tube[P], request P) (response P, err error) {
	// Save the current continuations so RunSync returns without
	// executing them.
	oldConts := f.conts
	oldNext := f.next
	oldSynchronous := f.synchronous
	if len(f.conts) > 0 {
		f.conts = make([]Tube[P], 0, 16)
	}

	defer func() {
		f.conts = oldConts
		f.next = oldNext
		f.synchronous = oldSynchronous
		if !f.started {
			f.completionCheck()
		}
	}()

	f.synchronous = true
	f.packet = request
	f.next = tubeline
	var ps passState
	f.doRun(&ps)
	if f.err != nil {
		return response, f.err
	}
	return f.packet, nil
}

// Resume wakes up a suspended fiber with the response packet.
// Execution continues from the ProcessResponse of the tube that
// suspended, whether it suspended from ProcessRequest or from
// ProcessResponse.
//
// Resume is race-free: it may be invoked even before the suspending
// tube has returned its SUSPEND action, and the packet is still
// delivered. Callers need not synchronize suspension and resumption.
func (f *Fiber[P]) Resume(response P) {
	f.mu.Lock()
	if debugEnabled() {
		Log.Debugf("%s resumed", f)
	}
	f.packet = response
	f.suspendedCount--
	if f.suspendedCount == 0 {
		if f.synchronous {
			f.cond.Broadcast()
		} else {
			f.mu.Unlock()
			f.owner.addRunnable(f)
			return
		}
	}
	f.mu.Unlock()
}

// suspend parks the fiber. The call returns immediately. It reports
// whether an asynchronous pass must stop at once: the count reached 1,
// so the next Resume re-submits the fiber to a new pass. The
// synchronous driver observes the new count at its next blocking check.
func (f *Fiber[P]) suspend() bool {
	f.mu.Lock()
	if debugEnabled() {
		Log.Debugf("%s suspended", f)
	}
	f.suspendedCount++
	handOver := f.suspendedCount == 1 && !f.synchronous
	f.mu.Unlock()
	return handOver
}

// AddInterceptor installs an interceptor on this fiber. It takes
// effect after the current tube returns, before the next tube begins:
// when the tubeline is X→Y and X installs one during its
// ProcessRequest, the interceptor wraps Y's invocation but not the
// rest of X's.
//
// Must be called from the driving goroutine (i.e. from tube code).
func (f *Fiber[P]) AddInterceptor(i Interceptor[P]) {
	if f.handler == nil {
		f.handler = &interceptorHandler[P]{f: f}
	}
	f.interceptors = append(f.interceptors, i)
	f.needsToReenter = true
}

// RemoveInterceptor uninstalls an interceptor, matching by identity.
// Like installation, the removal takes effect at the next tube
// boundary: the interceptor's cleanup still runs for the pass that
// removed it. Reports whether the interceptor was registered.
//
// Must be called from the driving goroutine.
func (f *Fiber[P]) RemoveInterceptor(i Interceptor[P]) bool {
	for k, registered := range f.interceptors {
		if registered == i {
			f.interceptors = append(f.interceptors[:k], f.interceptors[k+1:]...)
			f.needsToReenter = true
			return true
		}
	}
	return false
}

// Context returns the fiber's ambient context.
func (f *Fiber[P]) Context() context.Context { return f.ctx }

// SetContext replaces the fiber's ambient context and returns the
// previous one, so interceptors can install and restore it around a
// driving pass.
func (f *Fiber[P]) SetContext(ctx context.Context) context.Context {
	prev := f.ctx
	f.ctx = ctx
	return prev
}

// Packet returns the packet currently associated with the fiber, or
// the zero value if none has been associated yet.
func (f *Fiber[P]) Packet() P {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.packet
}

// IsAlive reports whether the fiber is still running or suspended.
func (f *Fiber[P]) IsAlive() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return !f.completed
}

// Synchronous reports whether the current activation is being driven
// by the caller's goroutine via RunSync. Advanced tubes use this as a
// strategy hint: when already synchronous, a nested RunSync is cheaper
// than suspending.
func (f *Fiber[P]) Synchronous() bool { return f.synchronous }

// String returns the fiber's name for trace output.
func (f *Fiber[P]) String() string {
	return fmt.Sprintf("engine-%sfiber-%d", f.owner.ID, f.serial)
}

// passState is one driving pass's private bookkeeping. A pass that
// parked hands the fiber over to the pass triggered by Resume, so
// everything it still needs afterwards must live here, not on the
// fiber.
type passState struct {
	// parked: the pass stopped on a suspension.
	parked bool

	// drained: the step loop ran out of work; the fiber is terminal.
	drained bool
}

// run is one asynchronous driving pass, executed on the engine's
// executor.
func (f *Fiber[P]) run() {
	var ps passState
	f.doRun(&ps)
	if ps.drained {
		f.completionCheck()
	}
}

// completionCheck performs the terminal transition when nothing is
// left to execute, waking joiners and delivering the completion
// callback exactly once.
func (f *Fiber[P]) completionCheck() {
	f.mu.Lock()
	if f.completed || len(f.conts) != 0 || f.next != nil {
		f.mu.Unlock()
		return
	}
	if debugEnabled() {
		Log.Debugf("%s completed", f)
	}
	f.completed = true
	f.cond.Broadcast()
	completion := f.completion
	packet, err := f.packet, f.err
	f.mu.Unlock()

	if completion != nil {
		completion(packet, err)
	}
}

// doRun executes the fiber as much as possible on the current
// goroutine: until it runs out of work or blocks on suspension.
func (f *Fiber[P]) doRun(ps *passState) {
	if debugEnabled() {
		Log.Debugf("%s running", f)
	}

	if serializeExecution.Load() != 0 {
		serializedExecutionLock.Lock()
		defer serializedExecutionLock.Unlock()
	}

	f.interceptedRun(ps)
}

// interceptedRun drives the step loop through the interceptor chain,
// re-entering the chain whenever a tube changed the interceptor set so
// the new set is in force before the following tube begins. A pass
// that parked on a suspension never re-enters: the fiber now belongs
// to the pass triggered by Resume, which enters the chain from scratch
// with the new interceptor set.
func (f *Fiber[P]) interceptedRun(ps *passState) {
	next := f.next
	for {
		f.needsToReenter = false
		if f.handler == nil {
			next = f.stepLoop(next, ps)
		} else {
			next = f.handler.invoke(next, ps)
		}
		if ps.parked || !f.needsToReenter {
			return
		}
	}
}

// stepLoop is the scheduler core: it invokes one tube at a time and
// interprets the returned action, until the fiber runs out of work,
// blocks on suspension, or has to re-enter the interceptor chain.
// next mirrors f.next as a local, and ps is this pass's private
// bookkeeping: after parking, the pass reads no fiber state a resumed
// pass may be mutating.
func (f *Fiber[P]) stepLoop(next Tube[P], ps *passState) Tube[P] {
	for !f.isBlocking(ps) && !f.needsToReenter {
		var last Tube[P]
		var na Action[P]
		stepped := func() (ok bool) {
			defer func() {
				if r := recover(); r != nil {
					// A panic out of a tube starts stack unwinding,
					// identically to a THROW action.
					f.err = recoveredError(r)
					if traceEnabled() {
						Log.Tracef("%s caught %v, start stack unwinding", f, f.err)
					}
					ok = false
				}
			}()
			if f.err != nil {
				if len(f.conts) == 0 {
					// Nothing else to execute; terminal error.
					ps.drained = true
					return false
				}
				last = f.popCont()
				if traceEnabled() {
					Log.Tracef("%s %T.ProcessException(%v)", f, last, f.err)
				}
				na = last.ProcessException(f, f.err)
			} else if next != nil {
				last = next
				if traceEnabled() {
					Log.Tracef("%s %T.ProcessRequest(%v)", f, last, f.packet)
				}
				na = last.ProcessRequest(f, f.packet)
			} else {
				if len(f.conts) == 0 {
					// Nothing else to execute; terminal success.
					ps.drained = true
					return false
				}
				last = f.popCont()
				if traceEnabled() {
					Log.Tracef("%s %T.ProcessResponse(%v)", f, last, f.packet)
				}
				na = last.ProcessResponse(f, f.packet)
			}
			return true
		}()
		if ps.drained {
			return nil
		}
		if !stepped {
			// The captured panic drives exception processing on the
			// next iteration; the error check precedes the stale next.
			continue
		}

		if traceEnabled() {
			Log.Tracef("%s %T returned %s", f, last, na.kind)
		}

		// A SUSPEND action must not clobber the packet: a racing
		// Resume may already have delivered the response.
		if na.kind != KindSuspend {
			f.packet = na.packet
			f.err = na.err
		}

		switch na.kind {
		case KindInvoke:
			f.pushCont(last)
			next = na.next
			f.next = next
		case KindInvokeAndForget:
			next = na.next
			f.next = next
		case KindReturn, KindThrow:
			next = nil
			f.next = nil
		case KindSuspend:
			// f.next must be nil before the count goes up: once it
			// is, a Resume may start another driving pass.
			f.pushCont(last)
			next = nil
			f.next = nil
			if f.suspend() {
				// The fiber now belongs to the pass a Resume starts.
				ps.parked = true
				return nil
			}
		default:
			panic(fmt.Sprintf("tube: unknown action kind %d", na.kind))
		}
	}
	// Nothing can execute right away; we'll be back when the fiber is
	// resumed.
	return next
}

func (f *Fiber[P]) pushCont(t Tube[P]) {
	f.conts = append(f.conts, t)
}

func (f *Fiber[P]) popCont() Tube[P] {
	t := f.conts[len(f.conts)-1]
	f.conts[len(f.conts)-1] = nil
	f.conts = f.conts[:len(f.conts)-1]
	return t
}

// isBlocking reports whether the fiber must stop executing. The
// synchronous driver parks on the condition until resumed and then
// keeps driving; the asynchronous driver gives the goroutine back to
// the pool, records that in parked, and relies on Resume to re-submit
// the fiber.
func (f *Fiber[P]) isBlocking(ps *passState) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.synchronous {
		for f.suspendedCount == 1 {
			if debugEnabled() {
				Log.Debugf("%s is blocking its driving goroutine", f)
			}
			f.cond.Wait()
		}
		ps.parked = false
		return false
	}
	if f.suspendedCount == 1 {
		ps.parked = true
		return true
	}
	ps.parked = false
	return false
}

// recoveredError converts a recovered panic value into the error that
// drives stack unwinding.
func recoveredError(r any) error {
	if err, ok := r.(error); ok {
		return err
	}
	return fmt.Errorf("tube: tube panicked: %v", r)
}

// serializeExecution, when non-zero, forces driving passes of all
// fibers in the process to run one at a time. Debugging a process with
// many running fibers is tricky; this switch prevents that.
var serializeExecution atomix.Uint32

var serializedExecutionLock sync.Mutex

// SetSerializeExecution toggles process-wide serial execution of
// driving passes.
func SetSerializeExecution(on bool) {
	if on {
		serializeExecution.Store(1)
	} else {
		serializeExecution.Store(0)
	}
}

// SerializeExecution reports whether driving passes are serialized.
func SerializeExecution() bool {
	return serializeExecution.Load() != 0
}
