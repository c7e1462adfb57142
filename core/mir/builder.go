package mir

import (
	"github.com/e2m-lab/e2m/core/cfg"
	"github.com/e2m-lab/e2m/core/evm"
	"github.com/e2m-lab/e2m/core/flow"
	"github.com/e2m-lab/e2m/internal/debug"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// maxInlineCopy bounds the CODECOPY length expanded into constant stores.
const maxInlineCopy = 1 << 12

type loopCtx struct {
	label int
	head  cfg.BlockId
	depth int
}

// state is everything an arm of a branch can change besides the statements.
type state struct {
	stack  []Expr
	mem    *accessModel
	store  *accessModel
	tstore *accessModel
}

// Builder executes a flow tree symbolically and emits IR. Stack cells only
// ever hold constants or variables; every other value is bound to a fresh
// temporary when it is computed, which fixes its evaluation order.
type Builder struct {
	g    *cfg.Graph
	hint *Hint
	fn   *Function

	stack  *flow.Stack[Expr]
	mem    *accessModel
	store  *accessModel
	tstore *accessModel

	labels int
	loops  []loopCtx

	block cfg.BlockId
	pc    uint64
}

// Build produces the IR of the function described by hint. A nil hint builds
// the whole program with no declared outputs.
func Build(g *cfg.Graph, root flow.Sequence, hint *Hint) (*Function, error) {
	b := &Builder{
		g:      g,
		hint:   hint,
		fn:     &Function{Name: "main"},
		stack:  flow.NewStack[Expr](nil),
		mem:    newMemoryModel(),
		store:  new(accessModel),
		tstore: new(accessModel),
	}
	if hint != nil {
		b.fn.Name = hint.Name
	}
	live, err := b.seq(root)
	if err != nil {
		return nil, err
	}
	if live {
		b.finish()
	}
	b.fn.Stmts = slices.DeleteFunc(b.fn.Stmts, func(s Stmt) bool {
		ss, ok := s.(*StoreStack)
		return ok && len(ss.Vars) == 0
	})
	debug.Debug("Built function IR", "name", b.fn.Name, "stmts", len(b.fn.Stmts),
		"slots", b.fn.Vars.Slots, "temps", b.fn.Vars.Temps)
	return b.fn, nil
}

func (b *Builder) emit(s Stmt) {
	b.fn.Stmts = append(b.fn.Stmts, s)
}

func (b *Builder) newLabel() int {
	b.labels++
	return b.labels - 1
}

func (b *Builder) fail(err error) error {
	var e *Error
	if errors.As(err, &e) {
		return err
	}
	return &Error{Block: b.block, Offset: b.pc, Err: err}
}

// atom binds e to a temporary unless it already is a constant or variable.
func (b *Builder) atom(e Expr) Expr {
	switch e.(type) {
	case *Const, *Var:
		return e
	}
	id := b.fn.Vars.newTemp()
	b.emit(&Assign{Dst: id, Value: e})
	return &Var{Id: id}
}

func (b *Builder) push(e Expr) {
	b.stack.Push(b.atom(e))
}

func (b *Builder) save() state {
	return state{
		stack:  b.stack.Items(),
		mem:    b.mem.clone(),
		store:  b.store.clone(),
		tstore: b.tstore.clone(),
	}
}

func (b *Builder) restore(s state) {
	b.stack.Reset(s.stack)
	b.mem, b.store, b.tstore = s.mem.clone(), s.store.clone(), s.tstore.clone()
}

func (b *Builder) clearModels() {
	b.mem.clear()
	b.store.clear()
	b.tstore.clear()
}

func (b *Builder) seq(s flow.Sequence) (bool, error) {
	live := true
	for _, n := range s {
		if !live {
			break
		}
		var err error
		switch n := n.(type) {
		case *flow.Block:
			live, _, err = b.exec(n.Id, false)
		case flow.Sequence:
			live, err = b.seq(n)
		case *flow.If:
			live, err = b.ifNode(n)
		case *flow.Loop:
			live, err = b.loop(n)
		case *flow.Continue:
			live, err = false, b.cont(n.Head)
		}
		if err != nil {
			return false, err
		}
	}
	return live, nil
}

// exec runs one block. For a condition block the final JUMPI is not executed
// and its condition is returned instead.
func (b *Builder) exec(id cfg.BlockId, cond bool) (bool, Expr, error) {
	blk, err := b.g.Block(id)
	if err != nil {
		return false, nil, err
	}
	b.block = id
	ins := blk.Instructions
	if cond {
		if blk.Last().Op != evm.JUMPI {
			b.pc = blk.Last().Offset
			return false, nil, b.fail(errors.Errorf("condition block ends in %v", blk.Last().Op))
		}
		ins = ins[:len(ins)-1]
	}
	for _, in := range ins {
		b.pc = in.Offset
		halt, err := b.step(in)
		if err != nil {
			return false, nil, b.fail(err)
		}
		if halt {
			return false, nil, nil
		}
	}
	if cond {
		b.pc = blk.Last().Offset
		args, err := b.stack.PopN(2)
		if err != nil {
			return false, nil, b.fail(err)
		}
		return true, args[1], nil
	}
	if !blk.Terminated() && uint64(blk.End()) >= uint64(len(b.g.Code())) {
		// Running off the end of the code is an implicit STOP.
		b.finish()
		return false, nil, nil
	}
	return true, nil, nil
}

func (b *Builder) ifNode(n *flow.If) (bool, error) {
	live, cond, err := b.exec(n.Cond, true)
	if err != nil || !live {
		return false, err
	}
	if c, ok := cond.(*Const); ok {
		if c.Value.IsZero() {
			return b.seq(n.False)
		}
		return b.seq(n.True)
	}
	lt, lf := b.newLabel(), b.newLabel()
	b.emit(&BrTrue{Cond: cond, True: lt, False: lf})
	entry := b.save()

	b.emit(&Label{Id: lt})
	tLive, err := b.seq(n.True)
	if err != nil {
		return false, err
	}
	var (
		tState, fState state
		tStore, fStore *StoreStack
		tBr            *Br
	)
	if tLive {
		tState = b.save()
		tStore = &StoreStack{Vars: make(map[VarId]Expr)}
		tBr = &Br{}
		b.emit(tStore)
		b.emit(tBr)
	}

	b.restore(entry)
	b.emit(&Label{Id: lf})
	fLive, err := b.seq(n.False)
	if err != nil {
		return false, err
	}
	if fLive {
		fState = b.save()
		fStore = &StoreStack{Vars: make(map[VarId]Expr)}
		b.emit(fStore)
	}

	switch {
	case !tLive && !fLive:
		return false, nil
	case tLive && !fLive:
		b.restore(tState)
	case fLive && !tLive:
		b.restore(fState)
	default:
		merged, err := b.merge(tState, fState, tStore, fStore)
		if err != nil {
			return false, err
		}
		b.restore(merged)
	}
	end := b.newLabel()
	if tBr != nil {
		tBr.Target = end
	}
	b.emit(&Label{Id: end})
	return true, nil
}

// merge joins the states at the end of two arms. Cells that differ, or that
// hold a context variable of another depth, become the slot variable of their
// depth, assigned at the end of each arm.
func (b *Builder) merge(t, f state, tStore, fStore *StoreStack) (state, error) {
	if len(t.stack) != len(f.stack) {
		return state{}, b.fail(ErrStackMismatch)
	}
	var (
		merged     = make([]Expr, len(t.stack))
		reassigned = make(map[VarId]bool)
	)
	for i := range t.stack {
		x, y := t.stack[i], f.stack[i]
		if Equal(x, y) && !foreignSlot(x, i) {
			merged[i] = x
			continue
		}
		id := b.fn.Vars.useSlot(i)
		tStore.Vars[id], fStore.Vars[id] = x, y
		merged[i] = &Var{Id: id}
		reassigned[id] = true
	}
	stale := func(e Expr) bool {
		for _, id := range Uses(e, nil) {
			if reassigned[id] {
				return true
			}
		}
		return false
	}
	out := state{stack: merged, mem: t.mem, store: t.store, tstore: t.tstore}
	for _, m := range []struct{ x, y *accessModel }{{out.mem, f.mem}, {out.store, f.store}, {out.tstore, f.tstore}} {
		m.x.intersect(m.y)
		m.x.forget(stale)
	}
	return out, nil
}

func foreignSlot(e Expr, depth int) bool {
	v, ok := e.(*Var)
	return ok && v.Id.Kind == Slot && v.Id.Index != depth
}

func (b *Builder) loop(n *flow.Loop) (bool, error) {
	items := b.stack.Items()
	entry := &StoreStack{Vars: make(map[VarId]Expr)}
	carried := make([]Expr, len(items))
	for i, it := range items {
		id := b.fn.Vars.useSlot(i)
		if v, ok := it.(*Var); !ok || v.Id != id {
			entry.Vars[id] = it
		}
		carried[i] = &Var{Id: id}
	}
	b.emit(entry)
	b.stack.Reset(carried)
	b.clearModels()

	label := b.newLabel()
	parent := -1
	if len(b.loops) > 0 {
		parent = b.loops[len(b.loops)-1].label
	}
	b.fn.Loops = append(b.fn.Loops, LoopInfo{Label: label, Head: n.Cond, Parent: parent})
	b.emit(&Label{Id: label})
	b.loops = append(b.loops, loopCtx{label: label, head: n.Cond, depth: len(items)})
	defer func() { b.loops = b.loops[:len(b.loops)-1] }()

	live, cond, err := b.exec(n.Cond, true)
	if err != nil || !live {
		return false, err
	}
	exit := b.save()
	body, out := b.newLabel(), b.newLabel()
	br := &BrTrue{Cond: cond, True: body, False: out}
	if !n.IsTrueBranchLoop {
		br.True, br.False = out, body
	}
	b.emit(br)
	b.emit(&Label{Id: body})
	live, err = b.seq(n.Body)
	if err != nil {
		return false, err
	}
	if live {
		if err := b.cont(n.Cond); err != nil {
			return false, err
		}
	}
	b.emit(&Label{Id: out})
	b.restore(exit)
	return true, nil
}

// cont re-enters the innermost loop on head with the whole stack as context.
// Entries that the loop never reads are pruned by the optimizer.
func (b *Builder) cont(head cfg.BlockId) error {
	for i := len(b.loops) - 1; i >= 0; i-- {
		l := b.loops[i]
		if l.head != head {
			continue
		}
		items := b.stack.Items()
		if len(items) != l.depth {
			return b.fail(ErrStackMismatch)
		}
		ss := &StoreStack{Vars: make(map[VarId]Expr, len(items))}
		for d, it := range items {
			ss.Vars[b.fn.Vars.useSlot(d)] = it
		}
		b.emit(ss)
		b.emit(&Br{Target: l.label})
		return nil
	}
	return b.fail(ErrUnknownLoop)
}

func (b *Builder) outputs() int {
	if b.hint == nil {
		return 0
	}
	return b.hint.Outputs
}

// finish ends execution normally without reading memory.
func (b *Builder) finish() {
	if b.outputs() == 0 {
		b.emit(&Result{})
		return
	}
	b.emit(&Stop{})
}

func isConst(e Expr) (*uint256.Int, bool) {
	if c, ok := e.(*Const); ok {
		return c.Value, true
	}
	return nil, false
}

// compute folds op when all operands are constant and builds an operator
// node otherwise. args are in stack order.
func (b *Builder) compute(op evm.ByteCode, args ...Expr) Expr {
	vals := make([]*uint256.Int, 0, len(args))
	for _, a := range args {
		v, ok := isConst(a)
		if !ok {
			break
		}
		vals = append(vals, v)
	}
	if len(vals) == len(args) {
		if v, ok := Fold(op, vals...); ok {
			return &Const{Value: v}
		}
	}
	switch len(args) {
	case 1:
		return &Unary{Op: op, X: args[0]}
	case 2:
		return &Binary{Op: op, A: args[0], B: args[1]}
	}
	return &Ternary{Op: op, A: args[0], B: args[1], C: args[2]}
}

func (b *Builder) load(offset Expr) Expr {
	if v, ok := b.mem.get(offset); ok {
		return v
	}
	v := b.atom(&MemLoad{Offset: offset})
	b.mem.put(offset, v, 32)
	return v
}

func (b *Builder) sload(key Expr, transient bool) Expr {
	model := b.store
	if transient {
		model = b.tstore
	}
	if v, ok := model.get(key); ok {
		return v
	}
	v := b.atom(&SLoad{Key: key, Transient: transient})
	model.put(key, v, 32)
	return v
}

func (b *Builder) sstore(key, value Expr, transient bool) {
	b.emit(&SStore{Key: key, Value: value, Transient: transient})
	if transient {
		b.tstore.put(key, value, 32)
		return
	}
	b.store.put(key, value, 32)
}

func (b *Builder) hash(offset, size Expr) Expr {
	off, ok1 := isConst(offset)
	n, ok2 := isConst(size)
	if ok1 && ok2 {
		if data, ok := b.mem.bytes(off, n); ok {
			return &Const{Value: new(uint256.Int).SetBytes(crypto.Keccak256(data))}
		}
	}
	return &Hash{Offset: offset, Len: size}
}

func (b *Builder) copyData(op evm.ByteCode, dest, offset, size, account Expr) {
	b.emit(&MemStore{Offset: dest, Value: &DataCopy{Source: op, Offset: offset, Size: size, Account: account}})
	b.mem.clear()
}

// codeCopy needs a constant source range. A constant destination turns the
// copy into constant stores the memory model can forward.
func (b *Builder) codeCopy(dest, offset, size Expr) error {
	off, ok1 := isConst(offset)
	n, ok2 := isConst(size)
	if !ok1 || !ok2 {
		return ErrDynamicOffset
	}
	d, ok := isConst(dest)
	if !ok || !d.IsUint64() || !n.LtUint64(maxInlineCopy+1) {
		b.copyData(evm.CODECOPY, dest, offset, size, nil)
		return nil
	}
	data := make([]byte, n.Uint64())
	if code := b.g.Code(); off.LtUint64(uint64(len(code))) {
		copy(data, code[off.Uint64():])
	}
	base := d.Uint64()
	for i := 0; i < len(data); {
		at := NewConst(base + uint64(i))
		if len(data)-i >= 32 {
			v := &Const{Value: new(uint256.Int).SetBytes(data[i : i+32])}
			b.emit(&MemStore{Offset: at, Value: v, Width: 32})
			b.mem.put(at, v, 32)
			i += 32
			continue
		}
		v := NewConst(uint64(data[i]))
		b.emit(&MemStore{Offset: at, Value: v, Width: 1})
		b.mem.put(at, v, 1)
		i++
	}
	return nil
}

func (b *Builder) ret(offset, size Expr) {
	n := b.outputs()
	if n == 0 {
		b.emit(&Result{})
		return
	}
	values := make([]Expr, n)
	for i := range values {
		addr := offset
		if i > 0 {
			addr = b.atom(b.compute(evm.ADD, offset, NewConst(uint64(32*i))))
		}
		values[i] = b.load(addr)
	}
	b.emit(&Result{Values: values})
}

func (b *Builder) revert(offset, size Expr) {
	if n, ok := isConst(size); ok && n.IsZero() {
		b.emit(&Abort{Code: NewConst(0)})
		return
	}
	b.emit(&Abort{Code: b.load(offset)})
}

// step executes one instruction and reports whether it ended execution.
func (b *Builder) step(in evm.Instruction) (bool, error) {
	op := in.Op
	switch {
	case op == evm.PUSH0 || op.IsPush():
		b.stack.Push(&Const{Value: in.Value()})
		return false, nil
	case op.IsDup():
		return false, b.stack.Dup(in.Param())
	case op.IsSwap():
		return false, b.stack.Swap(in.Param())
	case !op.Valid() || op == evm.INVALID:
		b.emit(&Abort{Code: NewConst(uint64(op))})
		return true, nil
	}
	args, err := b.stack.PopN(op.Info().Pops)
	if err != nil {
		return false, err
	}
	switch op {
	case evm.STOP:
		b.finish()
		return true, nil

	case evm.ADD, evm.MUL, evm.SUB, evm.DIV, evm.SDIV, evm.MOD, evm.SMOD, evm.EXP, evm.SIGNEXTEND,
		evm.LT, evm.GT, evm.SLT, evm.SGT, evm.EQ, evm.AND, evm.OR, evm.XOR, evm.BYTE,
		evm.SHL, evm.SHR, evm.SAR, evm.ISZERO, evm.NOT, evm.ADDMOD, evm.MULMOD:
		b.push(b.compute(op, args...))

	case evm.KECCAK256:
		b.push(b.hash(args[0], args[1]))

	case evm.ORIGIN, evm.CALLER:
		b.push(&Signer{})
	case evm.CALLVALUE:
		// The target VM has no value transfer.
		b.push(NewConst(0))
	case evm.CALLDATALOAD:
		if off, ok := isConst(args[0]); ok && off.IsZero() && b.hint != nil {
			b.push(&Const{Value: b.hint.word()})
			break
		}
		b.push(&ArgLoad{Offset: args[0]})
	case evm.CALLDATASIZE:
		b.push(&ArgSize{})
	case evm.CODESIZE:
		b.push(NewConst(uint64(len(b.g.Code()))))
	case evm.PC:
		b.push(NewConst(in.Offset))
	case evm.MSIZE:
		b.push(&MSize{})

	case evm.CALLDATACOPY, evm.RETURNDATACOPY, evm.MCOPY:
		b.copyData(op, args[0], args[1], args[2], nil)
	case evm.EXTCODECOPY:
		b.copyData(op, args[1], args[2], args[3], args[0])
	case evm.CODECOPY:
		return false, b.codeCopy(args[0], args[1], args[2])

	case evm.POP, evm.JUMPDEST, evm.JUMP, evm.JUMPI:

	case evm.MLOAD:
		b.push(b.load(args[0]))
	case evm.MSTORE:
		b.emit(&MemStore{Offset: args[0], Value: args[1], Width: 32})
		b.mem.put(args[0], args[1], 32)
	case evm.MSTORE8:
		v := args[1]
		if c, ok := isConst(v); ok {
			v = &Const{Value: new(uint256.Int).And(c, uint256.NewInt(0xff))}
		}
		b.emit(&MemStore{Offset: args[0], Value: v, Width: 1})
		b.mem.put(args[0], v, 1)
	case evm.SLOAD:
		b.push(b.sload(args[0], false))
	case evm.TLOAD:
		b.push(b.sload(args[0], true))
	case evm.SSTORE:
		b.sstore(args[0], args[1], false)
	case evm.TSTORE:
		b.sstore(args[0], args[1], true)

	case evm.LOG0, evm.LOG1, evm.LOG2, evm.LOG3, evm.LOG4:
		b.emit(&Log{Offset: args[0], Len: args[1], Topics: args[2:]})

	case evm.RETURN:
		b.ret(args[0], args[1])
		return true, nil
	case evm.REVERT:
		b.revert(args[0], args[1])
		return true, nil
	case evm.SELFDESTRUCT:
		b.emit(&Stop{})
		return true, nil

	case evm.CALL, evm.CALLCODE, evm.DELEGATECALL, evm.STATICCALL, evm.CREATE, evm.CREATE2:
		b.push(&Env{Op: op, Args: args})
		b.mem.clear()
		if op != evm.STATICCALL {
			b.store.clear()
			b.tstore.clear()
		}

	default:
		for i := 0; i < op.Info().Pushes; i++ {
			b.push(&Env{Op: op, Args: args})
		}
	}
	return false, nil
}
