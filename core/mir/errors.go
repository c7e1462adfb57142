package mir

import (
	"fmt"

	"github.com/e2m-lab/e2m/core/cfg"
	"github.com/pkg/errors"
)

var (
	ErrDynamicOffset = errors.New("offset is not a constant")
	ErrStackMismatch = errors.New("stack height differs at join")
	ErrUnknownLoop   = errors.New("continue outside its loop")
)

// Error locates an IR construction failure.
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
