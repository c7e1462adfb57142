package flow

import (
	"fmt"
	"strings"

	"github.com/e2m-lab/e2m/core/cfg"
)

// Flow is a node of the structured control-flow tree. Back edges are not
// pointers but Continue nodes naming the loop head, so the tree is acyclic.
type Flow interface {
	flow()
}

// Block executes one basic block.
type Block struct {
	Id cfg.BlockId
}

// Sequence runs its children in order.
type Sequence []Flow

// If runs the condition block and then one of the arms. Control reaches the
// node after the If from both arms unless they halt.
type If struct {
	Cond  cfg.BlockId
	True  Sequence
	False Sequence
}

// Loop runs the condition block on every iteration. The arm selected by
// IsTrueBranchLoop is the body, which re-enters the head through Continue;
// the other arm is the exit and follows the Loop in its enclosing sequence.
type Loop struct {
	Cond             cfg.BlockId
	Body             Sequence
	IsTrueBranchLoop bool
}

// Continue jumps back to the head of the enclosing loop with Cond == Head.
type Continue struct {
	Head cfg.BlockId
}

func (*Block) flow()    {}
func (Sequence) flow()  {}
func (*If) flow()       {}
func (*Loop) flow()     {}
func (*Continue) flow() {}

// Walk visits f in pre-order. Returning false from fn skips the children of
// the node.
func Walk(f Flow, fn func(Flow) bool) {
	if !fn(f) {
		return
	}
	switch n := f.(type) {
	case Sequence:
		for _, c := range n {
			Walk(c, fn)
		}
	case *If:
		Walk(n.True, fn)
		Walk(n.False, fn)
	case *Loop:
		Walk(n.Body, fn)
	}
}

// Equal compares two trees structurally.
func Equal(a, b Flow) bool {
	switch x := a.(type) {
	case *Block:
		y, ok := b.(*Block)
		return ok && x.Id == y.Id
	case *Continue:
		y, ok := b.(*Continue)
		return ok && x.Head == y.Head
	case Sequence:
		y, ok := b.(Sequence)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !Equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case *If:
		y, ok := b.(*If)
		return ok && x.Cond == y.Cond && Equal(x.True, y.True) && Equal(x.False, y.False)
	case *Loop:
		y, ok := b.(*Loop)
		return ok && x.Cond == y.Cond && x.IsTrueBranchLoop == y.IsTrueBranchLoop && Equal(x.Body, y.Body)
	}
	return false
}

// Blocks lists every block id in the tree, in visit order, with duplicates.
func Blocks(f Flow) []cfg.BlockId {
	var ids []cfg.BlockId
	Walk(f, func(n Flow) bool {
		switch n := n.(type) {
		case *Block:
			ids = append(ids, n.Id)
		case *If:
			ids = append(ids, n.Cond)
		case *Loop:
			ids = append(ids, n.Cond)
		}
		return true
	})
	return ids
}

// Format renders the tree with one node per line.
func Format(f Flow) string {
	var sb strings.Builder
	format(&sb, f, 0)
	return sb.String()
}

func format(sb *strings.Builder, f Flow, depth int) {
	indent := strings.Repeat("  ", depth)
	switch n := f.(type) {
	case Sequence:
		for _, c := range n {
			format(sb, c, depth)
		}
	case *Block:
		fmt.Fprintf(sb, "%sblock %v\n", indent, n.Id)
	case *Continue:
		fmt.Fprintf(sb, "%scontinue %v\n", indent, n.Head)
	case *If:
		fmt.Fprintf(sb, "%sif %v {\n", indent, n.Cond)
		format(sb, n.True, depth+1)
		fmt.Fprintf(sb, "%s} else {\n", indent)
		format(sb, n.False, depth+1)
		fmt.Fprintf(sb, "%s}\n", indent)
	case *Loop:
		fmt.Fprintf(sb, "%sloop %v (body on %v) {\n", indent, n.Cond, n.IsTrueBranchLoop)
		format(sb, n.Body, depth+1)
		fmt.Fprintf(sb, "%s}\n", indent)
	}
}

func (b *Block) String() string    { return Format(b) }
func (s Sequence) String() string  { return Format(s) }
func (n *If) String() string       { return Format(n) }
func (l *Loop) String() string     { return Format(l) }
func (c *Continue) String() string { return Format(c) }
