package opt

import (
	"testing"

	"github.com/e2m-lab/e2m/core/cfg"
	"github.com/e2m-lab/e2m/core/evm"
	"github.com/e2m-lab/e2m/core/flow"
	"github.com/e2m-lab/e2m/core/mir"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/exp/slices"
)

func c(v uint64) mir.Expr { return mir.NewConst(v) }
func slot(i int) mir.Expr { return &mir.Var{Id: mir.SlotVar(i)} }
func tmp(i int) mir.Expr { return &mir.Var{Id: mir.TempVar(i)} }

func assign(i int, e mir.Expr) *mir.Assign {
	return &mir.Assign{Dst: mir.TempVar(i), Value: e}
}

func store(vars ...interface{}) *mir.StoreStack {
	ss := &mir.StoreStack{Vars: make(map[mir.VarId]mir.Expr)}
	for i := 0; i < len(vars); i += 2 {
		ss.Vars[mir.SlotVar(vars[i].(int))] = vars[i+1].(mir.Expr)
	}
	return ss
}

// loopIR counts s0 up to ten while s1, live before the loop, is bumped on
// every iteration. The bump is only observable when the body reads s1.
func loopIR(readInBody bool) *mir.Function {
	stmts := []mir.Stmt{
		assign(0, &mir.ArgLoad{Offset: c(0)}),
		store(0, c(0), 1, tmp(0)),
		&mir.SStore{Key: c(1), Value: slot(1)},
		&mir.Label{Id: 0},
		assign(1, &mir.Binary{Op: evm.GT, A: c(10), B: slot(0)}),
		assign(2, &mir.Unary{Op: evm.ISZERO, X: tmp(1)}),
		&mir.BrTrue{Cond: tmp(2), True: 2, False: 1},
		&mir.Label{Id: 1},
		assign(3, &mir.Binary{Op: evm.ADD, A: c(1), B: slot(0)}),
		assign(4, &mir.Binary{Op: evm.ADD, A: c(1), B: slot(1)}),
	}
	if readInBody {
		stmts = append(stmts, &mir.SStore{Key: c(2), Value: slot(1)})
	}
	stmts = append(stmts,
		store(0, tmp(3), 1, tmp(4)),
		&mir.Br{Target: 0},
		&mir.Label{Id: 2},
		&mir.Result{},
	)
	return &mir.Function{
		Name:  "main",
		Stmts: stmts,
		Vars:  mir.Vars{Slots: 2, Temps: 5},
		Loops: []mir.LoopInfo{{Label: 0, Head: 2, Parent: -1}},
	}
}

func TestEliminateDropsUnusedTemp(t *testing.T) {
	f := &mir.Function{
		Name: "main",
		Stmts: []mir.Stmt{
			assign(0, &mir.ArgLoad{Offset: c(0)}),
			assign(1, &mir.Binary{Op: evm.ADD, A: c(1), B: tmp(0)}),
			assign(2, &mir.Binary{Op: evm.MUL, A: c(2), B: tmp(0)}),
			&mir.SStore{Key: c(0), Value: tmp(2)},
			&mir.Result{},
		},
		Vars: mir.Vars{Temps: 3},
	}
	want := `fun main (slots 0, temps 2)
    t0 = arg(0x0)
    t1 = MUL(0x2, t0)
    sstore(0x0, t1)
    result()
`
	assert.Equal(t, want, mir.Format(Eliminate(f)))
}

func TestEliminateFiltersLoopContext(t *testing.T) {
	unread := `fun main (slots 2, temps 4)
    t0 = arg(0x0)
    store_stack {s0 = 0x0, s1 = t0}
    sstore(0x1, s1)
L0:
    t1 = GT(0xa, s0)
    t2 = ISZERO(t1)
    br_true t2, L2, L1
L1:
    t3 = ADD(0x1, s0)
    store_stack {s0 = t3}
    br L0
L2:
    result()
`
	assert.Equal(t, unread, mir.Format(Eliminate(loopIR(false))))

	read := `fun main (slots 2, temps 5)
    t0 = arg(0x0)
    store_stack {s0 = 0x0, s1 = t0}
    sstore(0x1, s1)
L0:
    t1 = GT(0xa, s0)
    t2 = ISZERO(t1)
    br_true t2, L2, L1
L1:
    t3 = ADD(0x1, s0)
    t4 = ADD(0x1, s1)
    sstore(0x2, s1)
    store_stack {s0 = t3, s1 = t4}
    br L0
L2:
    result()
`
	assert.Equal(t, read, mir.Format(Eliminate(loopIR(true))))
}

func TestEliminateDropsDeadLoopState(t *testing.T) {
	// s0 only feeds its own increment and s1 is re-stored unchanged.
	f := &mir.Function{
		Name: "main",
		Stmts: []mir.Stmt{
			assign(0, &mir.ArgLoad{Offset: c(0)}),
			store(0, c(0), 1, tmp(0)),
			&mir.Label{Id: 0},
			&mir.BrTrue{Cond: slot(1), True: 2, False: 1},
			&mir.Label{Id: 1},
			assign(1, &mir.Binary{Op: evm.ADD, A: c(1), B: slot(0)}),
			store(0, tmp(1), 1, slot(1)),
			&mir.Br{Target: 0},
			&mir.Label{Id: 2},
			&mir.Result{},
		},
		Vars:  mir.Vars{Slots: 2, Temps: 2},
		Loops: []mir.LoopInfo{{Label: 0, Head: 3, Parent: -1}},
	}
	want := `fun main (slots 1, temps 1)
    t0 = arg(0x0)
    store_stack {s0 = t0}
L0:
    br_true s0, L2, L1
L1:
    br L0
L2:
    result()
`
	assert.Equal(t, want, mir.Format(Eliminate(f)))
}

func TestEliminateSettlesDeadLoopChains(t *testing.T) {
	// Grow s1's update into a chain of twenty temps. Only the continue store
	// reads the end of the chain, and the loop never reads s1.
	f := loopIR(false)
	cont := len(f.Stmts) - 4
	var chain []mir.Stmt
	prev := tmp(4)
	for i := 5; i < 25; i++ {
		chain = append(chain, assign(i, &mir.Binary{Op: evm.MUL, A: c(3), B: prev}))
		prev = tmp(i)
	}
	stmts := append(slices.Clone(f.Stmts[:cont]), chain...)
	stmts = append(stmts, store(0, tmp(3), 1, prev))
	f.Stmts = append(stmts, f.Stmts[cont+1:]...)
	f.Vars.Temps = 25

	out := Eliminate(f)
	assert.Equal(t, mir.Format(Eliminate(loopIR(false))), mir.Format(out))
	assert.Equal(t, mir.Format(out), mir.Format(Eliminate(out)))
	assert.Less(t, size(out), size(f))
}

func TestEliminateKeepsEffectfulCalls(t *testing.T) {
	f := &mir.Function{
		Name: "main",
		Stmts: []mir.Stmt{
			assign(0, &mir.Env{Op: evm.BALANCE, Args: []mir.Expr{c(1)}}),
			assign(1, &mir.Env{Op: evm.CALL, Args: []mir.Expr{c(0), c(1)}}),
			&mir.Stop{},
		},
		Vars: mir.Vars{Temps: 2},
	}
	assert.Equal(t, "fun main (slots 0, temps 1)\n    t0 = CALL(0x0, 0x1)\n    stop\n", mir.Format(Eliminate(f)))
}

func TestContextAnalyzer(t *testing.T) {
	for _, readInBody := range []bool{false, true} {
		f := loopIR(readInBody)
		ca := NewContextAnalyzer(f)
		liveVars(f, ca)

		cont := len(f.Stmts) - 4
		loop, ok := ca.Continue(cont)
		require.True(t, ok)
		assert.Equal(t, 0, loop)
		_, ok = ca.Continue(1)
		assert.False(t, ok, "loop entry store is not a continue")

		want := []mir.VarId{mir.SlotVar(0)}
		if readInBody {
			want = append(want, mir.SlotVar(1))
		}
		assert.Equal(t, want, ca.Context(0), "read in body: %v", readInBody)
	}
}

func TestContextAnalyzerUsesOutermostLoop(t *testing.T) {
	// s0 is only read by the outer loop, after the inner loop exits.
	f := &mir.Function{
		Name: "main",
		Stmts: []mir.Stmt{
			store(0, c(0)),
			&mir.Label{Id: 0},
			&mir.SStore{Key: c(0), Value: slot(0)},
			&mir.BrTrue{Cond: slot(0), True: 4, False: 1},
			&mir.Label{Id: 1},
			&mir.Label{Id: 2},
			&mir.BrTrue{Cond: c(1), True: 3, False: 5},
			&mir.Label{Id: 5},
			store(0, c(7)),
			&mir.Br{Target: 2},
			&mir.Label{Id: 3},
			&mir.Br{Target: 0},
			&mir.Label{Id: 4},
			&mir.Result{},
		},
		Vars:  mir.Vars{Slots: 1},
		Loops: []mir.LoopInfo{{Label: 0, Head: 1, Parent: -1}, {Label: 2, Head: 9, Parent: 0}},
	}
	out := Eliminate(f)
	assert.Contains(t, mir.Format(out), "store_stack {s0 = 0x7}")
	assert.Equal(t, f.Loops, out.Loops)
}

var (
	diamond = []byte{
		0x60, 0x00, 0x35, 0x60, 0x0b, 0x57,
		0x60, 0x01, 0x60, 0x11, 0x56,
		0x5b, 0x60, 0x02, 0x60, 0x11, 0x56,
		0x5b, 0x60, 0x00, 0x55, 0x00,
	}
	counter = []byte{
		0x60, 0x00,
		0x5b, 0x80, 0x60, 0x0a, 0x11, 0x15, 0x60, 0x11, 0x57,
		0x60, 0x01, 0x01, 0x60, 0x02, 0x56,
		0x5b, 0x00,
	}
)

func TestEliminateIsIdempotent(t *testing.T) {
	fns := []*mir.Function{loopIR(false), loopIR(true)}
	for _, code := range [][]byte{diamond, counter} {
		g, err := cfg.Segment(code)
		require.NoError(t, err)
		res, err := flow.Build(g, flow.Options{})
		require.NoError(t, err)
		fn, err := mir.Build(g, res.Root, nil)
		require.NoError(t, err)
		// Nothing in these programs is dead.
		assert.Equal(t, mir.Format(fn), mir.Format(Eliminate(fn)))
		fns = append(fns, fn)
	}
	for _, fn := range fns {
		once := Eliminate(fn)
		assert.Equal(t, mir.Format(once), mir.Format(Eliminate(once)))

		orig := make(map[mir.Stmt]bool)
		for _, st := range fn.Stmts {
			orig[st] = true
		}
		for _, st := range once.Stmts {
			if _, ok := st.(*mir.Stop); ok {
				continue // zero sized, pointers may coincide
			}
			assert.False(t, orig[st], "statement %v shared with the input", st)
		}
	}
}
