// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package tube provides a cooperative execution engine that drives one
// request/response through a tubeline: an ordered, possibly cyclic,
// directed graph of processing stages.
//
// A large number of in-flight request/response flows multiplex onto a
// small pool of goroutines by way of the [Fiber] — a user-level thread
// created per flow. A fiber remembers where in the tubeline processing
// is and what still needs to run on the way out, so a stage that waits
// for an external event parks the fiber instead of a goroutine.
//
// # Architecture
//
//   - Stages: [Tube] is the five-operation stage contract; packets flow
//     forward through ProcessRequest and backward through
//     ProcessResponse or ProcessException. [Filter] is the embeddable
//     pass-through base.
//   - Actions: each tube invocation returns an [Action] — [Invoke],
//     [InvokeAndForget], [ReturnWith], [ThrowException], or [Suspend] —
//     interpreted by the fiber scheduler.
//   - Fibers: [Fiber] owns the continuation stack and the suspension
//     state. [Fiber.Start] runs asynchronously on the engine's
//     executor; [Fiber.RunSync] drives on the calling goroutine.
//     [Fiber.Resume] is race-free against a pending SUSPEND.
//   - Engine: [Engine] hands out fibers and posts runnable ones to an
//     [Executor]; the default executor is a fixed worker pool draining
//     a bounded lock-free queue from [code.hybscloud.com/lfq] with
//     [code.hybscloud.com/iox] backoff.
//   - Cloning: tubes are non-reentrant, so concurrent use duplicates
//     the tubeline with [Clone]; [Cloner] preserves sharing and cycles.
//   - Interception: [Interceptor] wraps every driving pass so
//     goroutine-bound ambient state can be installed and torn down
//     around fiber execution; changes take effect at the next tube
//     boundary.
//   - Protocols: [Bridge] evaluates a [code.hybscloud.com/kont]
//     computation as a terminal stage, converting [Await] effects into
//     fiber suspensions.
//
// # Example
//
//	engine := tube.NewEngine[string]("example")
//	fiber := engine.CreateFiber()
//	response, err := fiber.RunSync(tubeline, "request")
//
// Asynchronous start with completion callback:
//
//	fiber.Start(tubeline, "request", func(response string, err error) {
//		// terminal state, delivered exactly once
//	})
package tube
