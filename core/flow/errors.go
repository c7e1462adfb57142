package flow

import (
	"fmt"

	"github.com/e2m-lab/e2m/core/cfg"
	"github.com/pkg/errors"
)

var (
	ErrStackUnderflow  = errors.New("stack underflow")
	ErrDynamicJump     = errors.New("jump target is not a constant")
	ErrBothArmsLoop    = errors.New("both branch arms loop back")
	ErrAmbiguousBranch = errors.New("branch reached with conflicting structure")
	ErrJumpCycle       = errors.New("unconditional jump cycle")
	ErrTooDeep         = errors.New("branch nesting too deep")
	ErrStepLimit       = errors.New("simulation step limit exceeded")
)

// Error locates a flow recovery failure in the bytecode.
type Error struct {
	Block  cfg.BlockId
	Offset uint64
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%v (block %v, offset %d)", e.Err, e.Block, e.Offset)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func blockErr(b *cfg.BasicBlock, offset uint64, err error) error {
	return &Error{Block: b.Id, Offset: offset, Err: err}
}
