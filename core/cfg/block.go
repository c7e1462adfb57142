package cfg

import (
	"fmt"

	"github.com/e2m-lab/e2m/core/evm"
)

// BlockId is the code offset of a basic block's first instruction. It doubles as
// the identity of the block and the target of graph edges.
type BlockId uint64

func (id BlockId) String() string {
	return fmt.Sprintf("0x%x", uint64(id))
}

// BasicBlock is a non-empty run of instructions entered only at its first
// instruction. Blocks are not modified after segmentation.
type BasicBlock struct {
	Id           BlockId
	Instructions []evm.Instruction
}

// First returns the entry instruction.
func (b *BasicBlock) First() evm.Instruction {
	return b.Instructions[0]
}

// Last returns the final instruction.
func (b *BasicBlock) Last() evm.Instruction {
	return b.Instructions[len(b.Instructions)-1]
}

// End is the offset right after the block, i.e. its fallthrough successor.
func (b *BasicBlock) End() BlockId {
	return BlockId(b.Last().Next())
}

// Terminated reports whether the block ends with a block-terminating opcode
// rather than running into the next block.
func (b *BasicBlock) Terminated() bool {
	return b.Last().Op.Terminates()
}

// IsJumpDest reports whether the block is a legal dynamic jump destination.
func (b *BasicBlock) IsJumpDest() bool {
	return b.First().Op == evm.JUMPDEST
}

func (b *BasicBlock) String() string {
	return fmt.Sprintf("block %v [%d instructions, end %v]", b.Id, len(b.Instructions), b.End())
}
