// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tube

// Tube is one stage of a tubeline: a directed graph of stages that a
// packet of type P flows through, forward via ProcessRequest and backward
// via ProcessResponse or ProcessException.
//
// The driving fiber is passed explicitly to the processing operations;
// it is only valid for the duration of the call. Tube implementations
// are non-reentrant: at most one fiber executes within a given instance
// at a time. Concurrent use of a tubeline requires [Clone].
//
// Processing operations never return errors and must not panic as a way
// of reporting protocol failures; failures are reported by returning a
// [ThrowException] action. A panic that does escape is caught by the
// scheduler and unwound identically to a THROW action.
type Tube[P any] interface {
	// ProcessRequest acts on a packet flowing forward and returns the
	// action directing what the fiber does next.
	ProcessRequest(f *Fiber[P], request P) Action[P]

	// ProcessResponse acts on a packet flowing backward. It runs when
	// this tube previously returned [Invoke] and the invoked part of the
	// tubeline completed normally, or when this tube suspended and the
	// fiber was resumed.
	ProcessResponse(f *Fiber[P], response P) Action[P]

	// ProcessException acts on an error flowing backward. It runs when
	// this tube previously returned [Invoke] and the invoked part of the
	// tubeline threw. Returning [ReturnWith] or [Invoke] converts the
	// error back into normal processing.
	ProcessException(f *Fiber[P], err error) Action[P]

	// PreDestroy is invoked once on one copy of the tubeline when it is
	// retired, so the stage can release resources shared across copies.
	PreDestroy()

	// Copy produces a tube isomorphic to this one for use by another
	// fiber. The implementation must register the new copy with
	// cloner.Add before copying any tube it references; see [Cloner].
	Copy(cloner *Cloner[P]) Tube[P]
}

// Modifiable is a tube whose forward reference can be rewired after
// construction, allowing tubelines to be assembled or spliced in place.
type Modifiable[P any] interface {
	Tube[P]

	// SetNext replaces the forward reference.
	SetNext(next Tube[P])

	// Next returns the forward reference, or nil for a terminal stage.
	Next() Tube[P]
}
