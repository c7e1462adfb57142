package cfg

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrBlockNotFound is returned for a block id that is not in the segmented map.
	ErrBlockNotFound = errors.New("block not found")
	// ErrMisaligned is returned for a jump target that does not start an instruction.
	ErrMisaligned = errors.New("jump target not on instruction boundary")
	// ErrEmptyCode is returned when segmenting an empty buffer.
	ErrEmptyCode = errors.New("empty code")
)

// BlockError ties a segmentation failure to the offending offset.
type BlockError struct {
	Id  BlockId
	Err error
}

func (e *BlockError) Error() string {
	return fmt.Sprintf("%v at %v", e.Err, e.Id)
}

func (e *BlockError) Unwrap() error {
	return e.Err
}
