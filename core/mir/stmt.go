package mir

import (
	"fmt"
	"strings"

	"github.com/e2m-lab/e2m/core/cfg"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Stmt is one IR statement.
type Stmt interface {
	fmt.Stringer
	stmt()
}

type (
	Label struct {
		Id int
	}

	Assign struct {
		Dst   VarId
		Value Expr
	}

	// MemStore writes Width bytes of Value at Offset. Width 0 stores a
	// DataCopy whose Size gives the length.
	MemStore struct {
		Offset Expr
		Value  Expr
		Width  int
	}

	SStore struct {
		Key       Expr
		Value     Expr
		Transient bool
	}

	Log struct {
		Offset Expr
		Len    Expr
		Topics []Expr
	}

	BrTrue struct {
		Cond  Expr
		True  int
		False int
	}

	Br struct {
		Target int
	}

	Stop struct{}

	Abort struct {
		Code Expr
	}

	Result struct {
		Values []Expr
	}

	// StoreStack assigns context variables in parallel: every right-hand
	// side is read before any slot is written.
	StoreStack struct {
		Vars map[VarId]Expr
	}
)

func (*Label) stmt()      {}
func (*Assign) stmt()     {}
func (*MemStore) stmt()   {}
func (*SStore) stmt()     {}
func (*Log) stmt()        {}
func (*BrTrue) stmt()     {}
func (*Br) stmt()         {}
func (*Stop) stmt()       {}
func (*Abort) stmt()      {}
func (*Result) stmt()     {}
func (*StoreStack) stmt() {}

func (s *Label) String() string  { return fmt.Sprintf("L%d:", s.Id) }
func (s *Assign) String() string { return fmt.Sprintf("%v = %v", s.Dst, s.Value) }

func (s *MemStore) String() string {
	switch s.Width {
	case 1:
		return fmt.Sprintf("mstore8(%v, %v)", s.Offset, s.Value)
	case 32:
		return fmt.Sprintf("mstore(%v, %v)", s.Offset, s.Value)
	}
	return fmt.Sprintf("mcopy(%v, %v)", s.Offset, s.Value)
}

func (s *SStore) String() string {
	if s.Transient {
		return fmt.Sprintf("tstore(%v, %v)", s.Key, s.Value)
	}
	return fmt.Sprintf("sstore(%v, %v)", s.Key, s.Value)
}

func (s *Log) String() string {
	return fmt.Sprintf("log(%v, %v, [%s])", s.Offset, s.Len, joinExprs(s.Topics))
}

func (s *BrTrue) String() string {
	return fmt.Sprintf("br_true %v, L%d, L%d", s.Cond, s.True, s.False)
}

func (s *Br) String() string     { return fmt.Sprintf("br L%d", s.Target) }
func (s *Stop) String() string   { return "stop" }
func (s *Abort) String() string  { return fmt.Sprintf("abort %v", s.Code) }
func (s *Result) String() string { return fmt.Sprintf("result(%s)", joinExprs(s.Values)) }

func (s *StoreStack) String() string {
	parts := make([]string, 0, len(s.Vars))
	for _, id := range s.Slots() {
		parts = append(parts, fmt.Sprintf("%v = %v", id, s.Vars[id]))
	}
	return fmt.Sprintf("store_stack {%s}", strings.Join(parts, ", "))
}

// Slots returns the assigned variables in order.
func (s *StoreStack) Slots() []VarId {
	ids := maps.Keys(s.Vars)
	slices.SortFunc(ids, func(a, b VarId) int {
		switch {
		case a.Less(b):
			return -1
		case b.Less(a):
			return 1
		}
		return 0
	})
	return ids
}

func joinExprs(es []Expr) string {
	parts := make([]string, len(es))
	for i, e := range es {
		parts[i] = e.String()
	}
	return strings.Join(parts, ", ")
}

// Operands returns the expressions a statement reads, excluding the
// right-hand sides of StoreStack.
func Operands(s Stmt) []Expr {
	switch s := s.(type) {
	case *Assign:
		return []Expr{s.Value}
	case *MemStore:
		return []Expr{s.Offset, s.Value}
	case *SStore:
		return []Expr{s.Key, s.Value}
	case *Log:
		return append([]Expr{s.Offset, s.Len}, s.Topics...)
	case *BrTrue:
		return []Expr{s.Cond}
	case *Abort:
		return []Expr{s.Code}
	case *Result:
		return s.Values
	}
	return nil
}

// LoopInfo describes a loop emitted by the builder. Parent is the label of the
// enclosing loop or -1.
type LoopInfo struct {
	Label  int
	Head   cfg.BlockId
	Parent int
}

// Function is the IR of one entry point.
type Function struct {
	Name  string
	Stmts []Stmt
	Vars  Vars
	Loops []LoopInfo
}

// Loop returns the loop with the given label.
func (f *Function) Loop(label int) (LoopInfo, bool) {
	for _, l := range f.Loops {
		if l.Label == label {
			return l, true
		}
	}
	return LoopInfo{}, false
}

func (f *Function) String() string {
	return Format(f)
}
