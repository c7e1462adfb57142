package cfg

import (
	"github.com/e2m-lab/e2m/core/evm"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
)

// Graph is the segmented program: blocks indexed by their entry offset.
// Edges are not stored; they are discovered by simulating the operand stack.
type Graph struct {
	code      []byte
	blocks    map[BlockId]*BasicBlock
	boundary  map[uint64]bool // offsets that start an instruction
	jumpDests map[BlockId]bool
}

// Segment decodes code and splits it into basic blocks. A block ends right
// after a block-terminating instruction and before every JUMPDEST.
func Segment(code []byte) (*Graph, error) {
	if len(code) == 0 {
		return nil, ErrEmptyCode
	}
	g := &Graph{
		code:      code,
		blocks:    make(map[BlockId]*BasicBlock),
		boundary:  make(map[uint64]bool),
		jumpDests: make(map[BlockId]bool),
	}
	var cur *BasicBlock
	dec := evm.Decode(code)
	for in, ok := dec.Next(); ok; in, ok = dec.Next() {
		g.boundary[in.Offset] = true
		if in.Op == evm.JUMPDEST {
			g.jumpDests[BlockId(in.Offset)] = true
			cur = nil
		}
		if cur == nil {
			cur = &BasicBlock{Id: BlockId(in.Offset)}
			g.blocks[cur.Id] = cur
		}
		cur.Instructions = append(cur.Instructions, in)
		if in.Op.Terminates() {
			cur = nil
		}
	}
	return g, nil
}

// Code returns the raw bytecode the graph was built from.
func (g *Graph) Code() []byte {
	return g.code
}

// Len returns the number of blocks.
func (g *Graph) Len() int {
	return len(g.blocks)
}

// Block looks up a block by id.
func (g *Graph) Block(id BlockId) (*BasicBlock, error) {
	if b, ok := g.blocks[id]; ok {
		return b, nil
	}
	return nil, &BlockError{Id: id, Err: ErrBlockNotFound}
}

// Blocks returns a copy of the id -> block map.
func (g *Graph) Blocks() map[BlockId]*BasicBlock {
	return maps.Clone(g.blocks)
}

// Ids returns all block ids in offset order.
func (g *Graph) Ids() []BlockId {
	ids := maps.Keys(g.blocks)
	slices.Sort(ids)
	return ids
}

// IsJumpDest reports whether the offset holds a JUMPDEST instruction.
func (g *Graph) IsJumpDest(offset uint64) bool {
	return g.jumpDests[BlockId(offset)]
}

// EnsureBoundary makes target the start of a block, splitting the block that
// contains it when needed. Targets inside push data are malformed and targets
// past the end of the code do not exist.
func (g *Graph) EnsureBoundary(target BlockId) error {
	if _, ok := g.blocks[target]; ok {
		return nil
	}
	if uint64(target) >= uint64(len(g.code)) {
		return &BlockError{Id: target, Err: ErrBlockNotFound}
	}
	if !g.boundary[uint64(target)] {
		return &BlockError{Id: target, Err: ErrMisaligned}
	}
	owner := g.owner(target)
	if owner == nil {
		return &BlockError{Id: target, Err: ErrBlockNotFound}
	}
	idx := slices.IndexFunc(owner.Instructions, func(in evm.Instruction) bool {
		return in.Offset == uint64(target)
	})
	head := &BasicBlock{Id: owner.Id, Instructions: owner.Instructions[:idx:idx]}
	tail := &BasicBlock{Id: target, Instructions: owner.Instructions[idx:]}
	g.blocks[head.Id] = head
	g.blocks[tail.Id] = tail
	return nil
}

// owner finds the block whose instruction range covers offset.
func (g *Graph) owner(offset BlockId) *BasicBlock {
	var best *BasicBlock
	for id, b := range g.blocks {
		if id < offset && offset < b.End() && (best == nil || id > best.Id) {
			best = b
		}
	}
	return best
}

// Next returns the fallthrough successor of a block.
func (g *Graph) Next(id BlockId) (BlockId, error) {
	b, err := g.Block(id)
	if err != nil {
		return 0, err
	}
	next := b.End()
	if _, ok := g.blocks[next]; !ok {
		return 0, &BlockError{Id: next, Err: ErrBlockNotFound}
	}
	return next, nil
}
