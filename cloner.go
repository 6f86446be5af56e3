// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package tube

// Cloner maps original tubes to their copies during one cloning episode,
// preserving graph isomorphism: shared stages stay shared and cycles do
// not recurse forever. One Cloner lives for exactly one [Clone] call.
type Cloner[P any] struct {
	master2copy map[Tube[P]]Tube[P]
}

// Clone duplicates the whole tubeline reachable from root and returns
// the copied entry stage. Tubes that appear more than once in the graph
// are copied exactly once.
func Clone[P any](root Tube[P]) Tube[P] {
	c := &Cloner[P]{master2copy: make(map[Tube[P]]Tube[P])}
	return c.Copy(root)
}

// Copy returns the copy of t recorded in this episode, invoking t.Copy
// to produce one on first sight. Tube implementations call this from
// their own Copy methods for every tube reference they own.
func (c *Cloner[P]) Copy(t Tube[P]) Tube[P] {
	if r, ok := c.master2copy[t]; ok {
		return r
	}
	r := t.Copy(c)
	// The tube must have registered its copy itself, before recursing,
	// or shared stages and cycles would have produced distinct copies.
	if recorded, ok := c.master2copy[t]; !ok || recorded != r {
		panic("tube: Copy must call Cloner.Add to register the copy before copying other tubes")
	}
	return r
}

// Add records the copy produced for original. Every Tube.Copy
// implementation must call this before it copies any tube it references.
func (c *Cloner[P]) Add(original, copy Tube[P]) {
	if original == nil || copy == nil {
		panic("tube: Cloner.Add with nil tube")
	}
	if _, ok := c.master2copy[original]; ok {
		panic("tube: Cloner.Add called twice for the same tube")
	}
	c.master2copy[original] = copy
}

// CopyNext copies a possibly-nil forward reference. Terminal stages keep
// their nil next without special-casing at the call site.
func (c *Cloner[P]) CopyNext(next Tube[P]) Tube[P] {
	if next == nil {
		return nil
	}
	return c.Copy(next)
}
