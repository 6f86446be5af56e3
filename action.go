// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tube

// Kind identifies what a tube wants the scheduler to do next.
type Kind uint8

const (
	// KindInvoke calls the next tube's ProcessRequest and arranges for the
	// current tube's ProcessResponse to run when the packet comes back.
	KindInvoke Kind = iota
	// KindInvokeAndForget calls the next tube's ProcessRequest without
	// registering the current tube for response processing.
	KindInvokeAndForget
	// KindReturn flips direction and begins response processing.
	KindReturn
	// KindThrow flips direction and begins exception processing.
	KindThrow
	// KindSuspend parks the fiber until Fiber.Resume is invoked.
	KindSuspend
)

// String returns the kind name for trace output.
func (k Kind) String() string {
	switch k {
	case KindInvoke:
		return "INVOKE"
	case KindInvokeAndForget:
		return "INVOKE_AND_FORGET"
	case KindReturn:
		return "RETURN"
	case KindThrow:
		return "THROW"
	case KindSuspend:
		return "SUSPEND"
	}
	return "UNKNOWN"
}

// Action directs the fiber scheduler after a tube invocation.
// Tubes construct actions with [Invoke], [InvokeAndForget], [ReturnWith],
// [ThrowException], and [Suspend]; only the scheduler reads them.
// Fields irrelevant to a kind stay zero.
type Action[P any] struct {
	kind   Kind
	next   Tube[P]
	packet P
	err    error
}

// Kind reports which of the five variants this action is.
func (a Action[P]) Kind() Kind { return a.kind }

// Invoke passes the packet to next.ProcessRequest. When next and its
// successors finish processing, the calling tube's ProcessResponse (or
// ProcessException) receives the result.
func Invoke[P any](next Tube[P], packet P) Action[P] {
	if next == nil {
		panic("tube: Invoke with nil next")
	}
	return Action[P]{kind: KindInvoke, next: next, packet: packet}
}

// InvokeAndForget passes the packet to next.ProcessRequest without
// registering the calling tube on the continuation stack. The caller
// receives neither ProcessResponse nor ProcessException for this packet;
// unwinding skips it.
func InvokeAndForget[P any](next Tube[P], packet P) Action[P] {
	if next == nil {
		panic("tube: InvokeAndForget with nil next")
	}
	return Action[P]{kind: KindInvokeAndForget, next: next, packet: packet}
}

// ReturnWith flips the processing direction: the most recently registered
// continuation receives the response packet.
func ReturnWith[P any](response P) Action[P] {
	return Action[P]{kind: KindReturn, packet: response}
}

// ThrowException flips the processing direction abnormally: registered
// continuations receive the error through ProcessException until one of
// them converts it back into a normal return.
func ThrowException[P any](err error) Action[P] {
	if err == nil {
		panic("tube: ThrowException with nil error")
	}
	return Action[P]{kind: KindThrow, err: err}
}

// Suspend parks the fiber until an external event calls Fiber.Resume.
// The resumed packet is delivered to the suspending tube's
// ProcessResponse. Resume may fire before the suspending tube has even
// returned this action; the scheduler resolves that race, so the tube
// only has to hook up the external mechanism before returning.
func Suspend[P any]() Action[P] {
	return Action[P]{kind: KindSuspend}
}
