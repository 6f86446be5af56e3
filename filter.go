// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tube

// Filter is an embeddable pass-through stage for tubes that sit in the
// middle of a tubeline and act on some packets while forwarding the
// rest. The zero behavior forwards requests to NextTube, returns
// responses unchanged, and rethrows exceptions; embedders override the
// operations they care about.
//
// Copy cannot be defaulted here because it must construct the concrete
// embedding type: embedders implement Copy themselves, calling
// Cloner.Add first and [Cloner.CopyNext] for the forward reference.
type Filter[P any] struct {
	// NextTube is the forward reference the filter delegates to.
	NextTube Tube[P]
}

// ProcessRequest forwards the request to the next stage and registers
// this filter for response processing.
func (t *Filter[P]) ProcessRequest(f *Fiber[P], request P) Action[P] {
	return Invoke(t.NextTube, request)
}

// ProcessResponse passes the response through unchanged.
func (t *Filter[P]) ProcessResponse(f *Fiber[P], response P) Action[P] {
	return ReturnWith(response)
}

// ProcessException continues unwinding with the same error.
func (t *Filter[P]) ProcessException(f *Fiber[P], err error) Action[P] {
	return ThrowException[P](err)
}

// PreDestroy propagates retirement to the next stage.
func (t *Filter[P]) PreDestroy() {
	if t.NextTube != nil {
		t.NextTube.PreDestroy()
	}
}

// SetNext replaces the forward reference.
func (t *Filter[P]) SetNext(next Tube[P]) { t.NextTube = next }

// Next returns the forward reference.
func (t *Filter[P]) Next() Tube[P] { return t.NextTube }
