package mir

import (
	"fmt"
	"strings"

	"github.com/e2m-lab/e2m/core/evm"
	"github.com/holiman/uint256"
)

// Expr is an immutable expression tree node.
type Expr interface {
	fmt.Stringer
	expr()
}

type (
	Const struct {
		Value *uint256.Int
	}

	Var struct {
		Id VarId
	}

	// MemLoad reads a 32 byte word of memory.
	MemLoad struct {
		Offset Expr
	}

	// SLoad reads persistent storage, or transient storage when Transient.
	SLoad struct {
		Key       Expr
		Transient bool
	}

	Unary struct {
		Op evm.ByteCode
		X  Expr
	}

	// Binary operands follow stack order: A was on top.
	Binary struct {
		Op   evm.ByteCode
		A, B Expr
	}

	Ternary struct {
		Op      evm.ByteCode
		A, B, C Expr
	}

	// Hash is keccak256 over a memory range.
	Hash struct {
		Offset, Len Expr
	}

	// Signer is the transaction signer, standing in for CALLER and ORIGIN.
	Signer struct{}

	// ArgLoad reads a word of call input.
	ArgLoad struct {
		Offset Expr
	}

	ArgSize struct{}

	MSize struct{}

	// DataCopy is a byte range of call input, return data, code or memory.
	// Account is set for EXTCODECOPY only.
	DataCopy struct {
		Source  evm.ByteCode
		Offset  Expr
		Size    Expr
		Account Expr
	}

	// Env is an environment query or an external interaction the IR keeps
	// opaque.
	Env struct {
		Op   evm.ByteCode
		Args []Expr
	}
)

func (*Const) expr()    {}
func (*Var) expr()      {}
func (*MemLoad) expr()  {}
func (*SLoad) expr()    {}
func (*Unary) expr()    {}
func (*Binary) expr()   {}
func (*Ternary) expr()  {}
func (*Hash) expr()     {}
func (*Signer) expr()   {}
func (*ArgLoad) expr()  {}
func (*ArgSize) expr()  {}
func (*MSize) expr()    {}
func (*DataCopy) expr() {}
func (*Env) expr()      {}

func NewConst(v uint64) *Const {
	return &Const{Value: uint256.NewInt(v)}
}

func (e *Const) String() string   { return e.Value.Hex() }
func (e *Var) String() string     { return e.Id.String() }
func (e *MemLoad) String() string { return fmt.Sprintf("mload(%v)", e.Offset) }
func (e *SLoad) String() string {
	if e.Transient {
		return fmt.Sprintf("tload(%v)", e.Key)
	}
	return fmt.Sprintf("sload(%v)", e.Key)
}
func (e *Unary) String() string   { return fmt.Sprintf("%v(%v)", e.Op, e.X) }
func (e *Binary) String() string  { return fmt.Sprintf("%v(%v, %v)", e.Op, e.A, e.B) }
func (e *Ternary) String() string { return fmt.Sprintf("%v(%v, %v, %v)", e.Op, e.A, e.B, e.C) }
func (e *Hash) String() string    { return fmt.Sprintf("keccak(%v, %v)", e.Offset, e.Len) }
func (e *Signer) String() string  { return "signer" }
func (e *ArgLoad) String() string { return fmt.Sprintf("arg(%v)", e.Offset) }
func (e *ArgSize) String() string { return "argsize" }
func (e *MSize) String() string   { return "msize" }

func (e *DataCopy) String() string {
	name := strings.ToLower(e.Source.String())
	if e.Account != nil {
		return fmt.Sprintf("%s(%v, %v, %v)", name, e.Account, e.Offset, e.Size)
	}
	return fmt.Sprintf("%s(%v, %v)", name, e.Offset, e.Size)
}

func (e *Env) String() string {
	args := make([]string, len(e.Args))
	for i, a := range e.Args {
		args[i] = a.String()
	}
	return fmt.Sprintf("%v(%s)", e.Op, strings.Join(args, ", "))
}

// Effectful reports whether evaluating the expression changes state outside
// the function, so it must be kept even when its result is unused.
func (e *Env) Effectful() bool {
	switch e.Op {
	case evm.CALL, evm.CALLCODE, evm.DELEGATECALL, evm.STATICCALL, evm.CREATE, evm.CREATE2:
		return true
	}
	return false
}

// Key is the structural identity of an expression. Expressions with equal
// keys are the same computation; the memory and storage models alias on it.
func Key(e Expr) string {
	return e.String()
}

// Equal compares expressions structurally.
func Equal(a, b Expr) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return Key(a) == Key(b)
}

// Children returns the direct operands of e.
func Children(e Expr) []Expr {
	switch e := e.(type) {
	case *MemLoad:
		return []Expr{e.Offset}
	case *SLoad:
		return []Expr{e.Key}
	case *Unary:
		return []Expr{e.X}
	case *Binary:
		return []Expr{e.A, e.B}
	case *Ternary:
		return []Expr{e.A, e.B, e.C}
	case *Hash:
		return []Expr{e.Offset, e.Len}
	case *ArgLoad:
		return []Expr{e.Offset}
	case *DataCopy:
		if e.Account != nil {
			return []Expr{e.Account, e.Offset, e.Size}
		}
		return []Expr{e.Offset, e.Size}
	case *Env:
		return e.Args
	}
	return nil
}

// Uses appends every variable read by e.
func Uses(e Expr, out []VarId) []VarId {
	if v, ok := e.(*Var); ok {
		return append(out, v.Id)
	}
	for _, c := range Children(e) {
		out = Uses(c, out)
	}
	return out
}

// Rewrite rebuilds e bottom-up with variables mapped through fn. The result
// shares no nodes with e.
func Rewrite(e Expr, fn func(VarId) VarId) Expr {
	m := func(x Expr) Expr { return Rewrite(x, fn) }
	switch e := e.(type) {
	case *Const:
		return &Const{Value: new(uint256.Int).Set(e.Value)}
	case *Var:
		return &Var{Id: fn(e.Id)}
	case *MemLoad:
		return &MemLoad{Offset: m(e.Offset)}
	case *SLoad:
		return &SLoad{Key: m(e.Key), Transient: e.Transient}
	case *Unary:
		return &Unary{Op: e.Op, X: m(e.X)}
	case *Binary:
		return &Binary{Op: e.Op, A: m(e.A), B: m(e.B)}
	case *Ternary:
		return &Ternary{Op: e.Op, A: m(e.A), B: m(e.B), C: m(e.C)}
	case *Hash:
		return &Hash{Offset: m(e.Offset), Len: m(e.Len)}
	case *Signer:
		return &Signer{}
	case *ArgLoad:
		return &ArgLoad{Offset: m(e.Offset)}
	case *ArgSize:
		return &ArgSize{}
	case *MSize:
		return &MSize{}
	case *DataCopy:
		c := &DataCopy{Source: e.Source, Offset: m(e.Offset), Size: m(e.Size)}
		if e.Account != nil {
			c.Account = m(e.Account)
		}
		return c
	case *Env:
		args := make([]Expr, len(e.Args))
		for i, a := range e.Args {
			args[i] = m(a)
		}
		return &Env{Op: e.Op, Args: args}
	}
	panic(fmt.Sprintf("mir: unknown expression %T", e))
}
