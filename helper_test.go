// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tube_test

import (
	"code.hybscloud.com/tube"
)

// simpleTube is a counting pass-through stage: requests flow to next
// (or turn around at the end of the line), responses and exceptions
// flow through unchanged. Tests embed it and override single
// operations.
type simpleTube struct {
	requestCount    int
	responseCount   int
	exceptionCount  int
	preDestroyCount int
	copyCount       int

	next tube.Tube[string]
}

func newSimpleTube(next tube.Tube[string]) *simpleTube {
	return &simpleTube{next: next}
}

func (t *simpleTube) ProcessRequest(f *tube.Fiber[string], request string) tube.Action[string] {
	t.requestCount++
	if t.next == nil {
		return tube.ReturnWith(request)
	}
	return tube.Invoke(t.next, request)
}

func (t *simpleTube) ProcessResponse(f *tube.Fiber[string], response string) tube.Action[string] {
	t.responseCount++
	return tube.ReturnWith(response)
}

func (t *simpleTube) ProcessException(f *tube.Fiber[string], err error) tube.Action[string] {
	t.exceptionCount++
	return tube.ThrowException[string](err)
}

func (t *simpleTube) PreDestroy() {
	t.preDestroyCount++
}

func (t *simpleTube) Copy(cloner *tube.Cloner[string]) tube.Tube[string] {
	t.copyCount++
	cp := &simpleTube{}
	cloner.Add(t, cp)
	cp.next = cloner.CopyNext(t.next)
	return cp
}

func (t *simpleTube) SetNext(next tube.Tube[string]) { t.next = next }

func (t *simpleTube) Next() tube.Tube[string] { return t.next }

// newTubeline builds a straight chain of n simple tubes and returns
// the entry stage.
func newTubeline(n int) *simpleTube {
	head := newSimpleTube(nil)
	for i := n; i > 1; i-- {
		head = newSimpleTube(head)
	}
	return head
}

// chain returns the stages of a straight simpleTube line in order.
func chain(head *simpleTube) []*simpleTube {
	var tubes []*simpleTube
	for t := head; t != nil; {
		tubes = append(tubes, t)
		next, _ := t.Next().(*simpleTube)
		t = next
	}
	return tubes
}

// goExecutor runs every task on its own goroutine, keeping async tests
// independent of the default pool.
type goExecutor struct{}

func (goExecutor) Execute(task func()) { go task() }
