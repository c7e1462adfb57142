// Package opt prunes IR that no observable effect depends on.
package opt

import (
	"fmt"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/e2m-lab/e2m/core/mir"
	"github.com/e2m-lab/e2m/internal/debug"
	"golang.org/x/exp/slices"
)

// Eliminate removes assignments and context stores that no result, store,
// log, abort or branch depends on, then renumbers the surviving variables
// densely in order of first appearance. The returned function shares no
// nodes with f, and Eliminate(Eliminate(f)) prints the same as Eliminate(f).
//
// Passes repeat until the output is stable. After the first pass the input is
// already renumbered, so a pass either drops a statement or a context entry,
// or reproduces its input; the loop ends after at most one pass per entry.
func Eliminate(f *mir.Function) *mir.Function {
	out := eliminateOnce(f)
	prev := mir.Format(out)
	for rounds := 1; ; rounds++ {
		next := eliminateOnce(out)
		cur := mir.Format(next)
		if cur == prev {
			debug.Debug("Dead variable elimination settled", "function", f.Name, "rounds", rounds)
			return next
		}
		if size(next) >= size(out) {
			panic(fmt.Sprintf("opt: elimination of %s renamed without shrinking", f.Name))
		}
		out, prev = next, cur
	}
}

// size counts statements and context entries, the units a pass can drop.
func size(f *mir.Function) int {
	n := len(f.Stmts)
	for _, s := range f.Stmts {
		if ss, ok := s.(*mir.StoreStack); ok {
			n += len(ss.Vars)
		}
	}
	return n
}

func eliminateOnce(f *mir.Function) *mir.Function {
	ca := NewContextAnalyzer(f)
	live := liveVars(f, ca)

	stmts := make([]mir.Stmt, 0, len(f.Stmts))
	for i, s := range f.Stmts {
		ss, ok := s.(*mir.StoreStack)
		if !ok {
			if kept(s, live) {
				stmts = append(stmts, s)
			}
			continue
		}
		vars := make(map[mir.VarId]mir.Expr, len(ss.Vars))
		for v, e := range ss.Vars {
			if ca.keep(i, v, e, live) {
				vars[v] = e
			}
		}
		if len(vars) > 0 {
			stmts = append(stmts, &mir.StoreStack{Vars: vars})
		}
	}
	if debug.Enabled() {
		debug.Debug("Eliminated dead statements", "function", f.Name, "before", len(f.Stmts), "after", len(stmts), "live", live.Cardinality())
	}
	return renumber(f, stmts)
}

// liveVars computes the least set of variables the roots depend on. Context
// slots may have several definitions, so every kept definition of a live
// variable contributes its operands.
func liveVars(f *mir.Function, ca *ContextAnalyzer) mapset.Set[mir.VarId] {
	live := mapset.NewThreadUnsafeSet[mir.VarId]()
	var buf []mir.VarId
	for {
		before := live.Cardinality()
		ca.Analyze(f, live)
		for i, s := range f.Stmts {
			buf = buf[:0]
			if ss, ok := s.(*mir.StoreStack); ok {
				for v, e := range ss.Vars {
					if ca.keep(i, v, e, live) {
						buf = mir.Uses(e, buf)
					}
				}
			} else if kept(s, live) {
				for _, e := range mir.Operands(s) {
					buf = mir.Uses(e, buf)
				}
			}
			for _, v := range buf {
				live.Add(v)
			}
		}
		if live.Cardinality() == before {
			return live
		}
	}
}

// kept reports whether a statement other than StoreStack survives.
func kept(s mir.Stmt, live mapset.Set[mir.VarId]) bool {
	if a, ok := s.(*mir.Assign); ok {
		if env, ok := a.Value.(*mir.Env); ok && env.Effectful() {
			return true
		}
		return live.Contains(a.Dst)
	}
	return true
}

// reads appends the variables s reads if it survives. Continue stores are
// counted without their loop filter, which keeps the analysis monotone.
func reads(s mir.Stmt, live mapset.Set[mir.VarId], out []mir.VarId) []mir.VarId {
	if ss, ok := s.(*mir.StoreStack); ok {
		for v, e := range ss.Vars {
			if live.Contains(v) && !identity(v, e) {
				out = mir.Uses(e, out)
			}
		}
		return out
	}
	if !kept(s, live) {
		return out
	}
	for _, e := range mir.Operands(s) {
		out = mir.Uses(e, out)
	}
	return out
}

type renamer struct {
	ids   map[mir.VarId]mir.VarId
	slots int
	temps int
}

func (r *renamer) rename(v mir.VarId) mir.VarId {
	if n, ok := r.ids[v]; ok {
		return n
	}
	var n mir.VarId
	if v.Kind == mir.Slot {
		n = mir.SlotVar(r.slots)
		r.slots++
	} else {
		n = mir.TempVar(r.temps)
		r.temps++
	}
	r.ids[v] = n
	return n
}

func (r *renamer) expr(e mir.Expr) mir.Expr {
	return mir.Rewrite(e, r.rename)
}

func (r *renamer) exprs(es []mir.Expr) []mir.Expr {
	out := make([]mir.Expr, len(es))
	for i, e := range es {
		out[i] = r.expr(e)
	}
	return out
}

func (r *renamer) stmt(s mir.Stmt) mir.Stmt {
	switch s := s.(type) {
	case *mir.Label:
		return &mir.Label{Id: s.Id}
	case *mir.Assign:
		value := r.expr(s.Value)
		return &mir.Assign{Dst: r.rename(s.Dst), Value: value}
	case *mir.MemStore:
		return &mir.MemStore{Offset: r.expr(s.Offset), Value: r.expr(s.Value), Width: s.Width}
	case *mir.SStore:
		return &mir.SStore{Key: r.expr(s.Key), Value: r.expr(s.Value), Transient: s.Transient}
	case *mir.Log:
		return &mir.Log{Offset: r.expr(s.Offset), Len: r.expr(s.Len), Topics: r.exprs(s.Topics)}
	case *mir.BrTrue:
		return &mir.BrTrue{Cond: r.expr(s.Cond), True: s.True, False: s.False}
	case *mir.Br:
		return &mir.Br{Target: s.Target}
	case *mir.Stop:
		return &mir.Stop{}
	case *mir.Abort:
		return &mir.Abort{Code: r.expr(s.Code)}
	case *mir.Result:
		return &mir.Result{Values: r.exprs(s.Values)}
	case *mir.StoreStack:
		// Targets are numbered first, in slot order, so a second pass
		// over the output sees them in the same order.
		slots := s.Slots()
		for _, v := range slots {
			r.rename(v)
		}
		vars := make(map[mir.VarId]mir.Expr, len(slots))
		for _, v := range slots {
			vars[r.rename(v)] = r.expr(s.Vars[v])
		}
		return &mir.StoreStack{Vars: vars}
	}
	panic(fmt.Sprintf("opt: unknown statement %T", s))
}

func renumber(f *mir.Function, stmts []mir.Stmt) *mir.Function {
	r := &renamer{ids: make(map[mir.VarId]mir.VarId)}
	out := &mir.Function{
		Name:  f.Name,
		Stmts: make([]mir.Stmt, 0, len(stmts)),
		Loops: slices.Clone(f.Loops),
	}
	for _, s := range stmts {
		out.Stmts = append(out.Stmts, r.stmt(s))
	}
	out.Vars = mir.Vars{Slots: r.slots, Temps: r.temps}
	return out
}
