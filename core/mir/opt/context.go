package opt

import (
	mapset "github.com/deckarep/golang-set/v2"
	"github.com/e2m-lab/e2m/core/mir"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// ContextAnalyzer tracks which context slots are still read once control
// returns to a loop head.
//
// A continue re-enters its loop, and from there execution can reach every
// statement after the label of the outermost loop around it. A slot written
// by the continue is worth keeping only if one of those statements reads it.
type ContextAnalyzer struct {
	scope  map[int]int       // loop label -> index of the outermost enclosing loop label
	loopOf map[int]int       // index of a continue store -> loop label
	last   map[mir.VarId]int // index of the last kept statement reading the variable
}

// NewContextAnalyzer indexes the loops and continues of fn. Call Analyze
// before querying.
func NewContextAnalyzer(fn *mir.Function) *ContextAnalyzer {
	c := &ContextAnalyzer{
		scope:  make(map[int]int),
		loopOf: make(map[int]int),
		last:   make(map[mir.VarId]int),
	}
	labels := make(map[int]int)
	for i, s := range fn.Stmts {
		if l, ok := s.(*mir.Label); ok {
			labels[l.Id] = i
		}
	}
	for _, l := range fn.Loops {
		outer := l
		for outer.Parent >= 0 {
			p, ok := fn.Loop(outer.Parent)
			if !ok {
				break
			}
			outer = p
		}
		c.scope[l.Label] = labels[outer.Label]
	}
	for i := 0; i+1 < len(fn.Stmts); i++ {
		if _, ok := fn.Stmts[i].(*mir.StoreStack); !ok {
			continue
		}
		br, ok := fn.Stmts[i+1].(*mir.Br)
		if !ok {
			continue
		}
		if _, ok := c.scope[br.Target]; ok {
			c.loopOf[i] = br.Target
		}
	}
	return c
}

// Analyze records, for the given live set, the last statement reading each
// variable.
func (c *ContextAnalyzer) Analyze(fn *mir.Function, live mapset.Set[mir.VarId]) {
	maps.Clear(c.last)
	var buf []mir.VarId
	for i, s := range fn.Stmts {
		buf = reads(s, live, buf[:0])
		for _, v := range buf {
			c.last[v] = i
		}
	}
}

// Continue reports the loop re-entered by the statement at index i, if that
// statement is the context store of a continue.
func (c *ContextAnalyzer) Continue(i int) (int, bool) {
	l, ok := c.loopOf[i]
	return l, ok
}

// ReadInLoop reports whether v is read anywhere control can reach after
// re-entering loop.
func (c *ContextAnalyzer) ReadInLoop(loop int, v mir.VarId) bool {
	last, ok := c.last[v]
	return ok && last >= c.scope[loop]
}

// Context returns the slots read after re-entering loop, in order.
func (c *ContextAnalyzer) Context(loop int) []mir.VarId {
	var out []mir.VarId
	for v := range c.last {
		if v.Kind == mir.Slot && c.ReadInLoop(loop, v) {
			out = append(out, v)
		}
	}
	slices.SortFunc(out, func(a, b mir.VarId) int { return a.Index - b.Index })
	return out
}

// keep decides whether the StoreStack at index i keeps its entry v = e.
func (c *ContextAnalyzer) keep(i int, v mir.VarId, e mir.Expr, live mapset.Set[mir.VarId]) bool {
	if !live.Contains(v) || identity(v, e) {
		return false
	}
	if loop, ok := c.loopOf[i]; ok {
		return c.ReadInLoop(loop, v)
	}
	return true
}

func identity(v mir.VarId, e mir.Expr) bool {
	x, ok := e.(*mir.Var)
	return ok && x.Id == v
}
