package flow

import (
	"fmt"

	"github.com/holiman/uint256"
)

// ItemKind classifies a simulated stack cell.
type ItemKind uint8

const (
	// Unknown is a value produced by an opcode the simulator does not evaluate.
	Unknown ItemKind = iota
	// Const is a value pushed by PUSH and moved around by DUP/SWAP.
	Const
	// Negative is a placeholder for a value that was live on entry.
	Negative
)

// StackItem is one cell of the simulated operand stack.
type StackItem struct {
	Kind  ItemKind
	Value *uint256.Int // Const only
	Slot  int          // Negative only, creation order
}

func constItem(v *uint256.Int) StackItem {
	return StackItem{Kind: Const, Value: v}
}

// Equal compares two items structurally.
func (s StackItem) Equal(o StackItem) bool {
	if s.Kind != o.Kind {
		return false
	}
	switch s.Kind {
	case Const:
		return s.Value.Eq(o.Value)
	case Negative:
		return s.Slot == o.Slot
	}
	return true
}

func (s StackItem) String() string {
	switch s.Kind {
	case Const:
		return s.Value.Hex()
	case Negative:
		return fmt.Sprintf("in%d", s.Slot)
	}
	return "?"
}
