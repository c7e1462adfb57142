package flow

import (
	"math"
	"strconv"
	"strings"

	"github.com/e2m-lab/e2m/core/cfg"
	"github.com/e2m-lab/e2m/core/evm"
	"github.com/holiman/uint256"
)

// OutcomeKind tells how control leaves a simulated block.
type OutcomeKind uint8

const (
	OutcomeJump OutcomeKind = iota
	OutcomeStop
	OutcomeCond
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeJump:
		return "jump"
	case OutcomeStop:
		return "stop"
	case OutcomeCond:
		return "cond"
	}
	return "unknown"
}

// Outcome is the result of simulating one block. Target is set for jumps,
// True and False for conditional jumps. Offset is the instruction that
// decided the outcome.
type Outcome struct {
	Kind   OutcomeKind
	Target cfg.BlockId
	True   cfg.BlockId
	False  cfg.BlockId
	Offset uint64
}

// Executor approximates the operand stack across blocks. It only tracks what
// is needed to resolve jump targets: constants pushed by PUSH and shuffled by
// DUP and SWAP. Every other opcode pops its arity and pushes unknowns.
type Executor struct {
	stack   *Stack[StackItem]
	codeLen uint64
	slots   *int
}

// NewExecutor returns a simulator with an empty stack for code of the given
// length. Reads below the bottom yield Negative placeholders.
func NewExecutor(codeLen uint64) *Executor {
	e := &Executor{codeLen: codeLen, slots: new(int)}
	e.stack = NewStack(e.negative)
	return e
}

func (e *Executor) negative() StackItem {
	*e.slots++
	return StackItem{Kind: Negative, Slot: *e.slots - 1}
}

// Stack exposes the simulated stack.
func (e *Executor) Stack() *Stack[StackItem] {
	return e.stack
}

// Clone snapshots the executor. Placeholder numbering stays shared so slots
// created on different paths never collide.
func (e *Executor) Clone() *Executor {
	c := &Executor{codeLen: e.codeLen, slots: e.slots}
	c.stack = e.stack.Clone()
	c.stack.fill = c.negative
	return c
}

// Execute simulates a block and reports where control goes next.
func (e *Executor) Execute(b *cfg.BasicBlock) (Outcome, error) {
	for _, in := range b.Instructions {
		switch op := in.Op; {
		case op == evm.PUSH0 || op.IsPush():
			e.stack.Push(constItem(in.Value()))

		case op.IsDup():
			if err := e.stack.Dup(in.Param()); err != nil {
				return Outcome{}, blockErr(b, in.Offset, err)
			}

		case op.IsSwap():
			if err := e.stack.Swap(in.Param()); err != nil {
				return Outcome{}, blockErr(b, in.Offset, err)
			}

		case op == evm.JUMP:
			dest, err := e.stack.Pop()
			if err != nil {
				return Outcome{}, blockErr(b, in.Offset, err)
			}
			target, err := jumpTarget(dest)
			if err != nil {
				return Outcome{}, blockErr(b, in.Offset, err)
			}
			return Outcome{Kind: OutcomeJump, Target: target, Offset: in.Offset}, nil

		case op == evm.JUMPI:
			args, err := e.stack.PopN(2)
			if err != nil {
				return Outcome{}, blockErr(b, in.Offset, err)
			}
			target, err := jumpTarget(args[0])
			if err != nil {
				return Outcome{}, blockErr(b, in.Offset, err)
			}
			next := cfg.BlockId(in.Next())
			if cond := args[1]; cond.Kind == Const {
				if cond.Value.IsZero() {
					target = next
				}
				return Outcome{Kind: OutcomeJump, Target: target, Offset: in.Offset}, nil
			}
			return Outcome{Kind: OutcomeCond, True: target, False: next, Offset: in.Offset}, nil

		case op.Halts():
			if _, err := e.stack.PopN(op.Info().Pops); err != nil {
				return Outcome{}, blockErr(b, in.Offset, err)
			}
			return Outcome{Kind: OutcomeStop, Offset: in.Offset}, nil

		default:
			info := op.Info()
			if _, err := e.stack.PopN(info.Pops); err != nil {
				return Outcome{}, blockErr(b, in.Offset, err)
			}
			for i := 0; i < info.Pushes; i++ {
				e.stack.Push(StackItem{Kind: Unknown})
			}
		}
	}
	last := b.Last()
	if last.Next() >= e.codeLen {
		return Outcome{Kind: OutcomeStop, Offset: last.Offset}, nil
	}
	return Outcome{Kind: OutcomeJump, Target: b.End(), Offset: last.Offset}, nil
}

func jumpTarget(dest StackItem) (cfg.BlockId, error) {
	if dest.Kind != Const {
		return 0, ErrDynamicJump
	}
	target, overflow := dest.Value.Uint64WithOverflow()
	if overflow {
		target = math.MaxUint64
	}
	return cfg.BlockId(target), nil
}

// Signature describes the return-address context: every constant on the
// stack that names a JUMPDEST, with its depth from the bottom. Two visits of
// a branch with the same signature are the same dynamic context, which tells
// a loop apart from a second call of a shared internal function.
func (e *Executor) Signature(isJumpDest func(uint64) bool) string {
	var sb strings.Builder
	for i, it := range e.stack.items {
		if it.Kind != Const || !it.Value.IsUint64() || !isJumpDest(it.Value.Uint64()) {
			continue
		}
		sb.WriteString(strconv.Itoa(i))
		sb.WriteByte(':')
		sb.WriteString(strconv.FormatUint(it.Value.Uint64(), 16))
		sb.WriteByte(' ')
	}
	return sb.String()
}

// Fingerprint renders the whole stack. Equal fingerprints at the same block
// lead to identical simulations.
func (e *Executor) Fingerprint() string {
	parts := make([]string, len(e.stack.items))
	for i, it := range e.stack.items {
		parts[i] = it.String()
	}
	return strings.Join(parts, ",")
}

// Push is used by callers that seed the entry stack.
func (e *Executor) Push(v *uint256.Int) {
	e.stack.Push(constItem(v))
}
