package evm

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/holiman/uint256"
	"github.com/pkg/errors"
)

// Instruction is a single decoded opcode together with its immediate operand.
// Operand is only set for PUSH1..PUSH32 and may be shorter than the declared
// width when the code ends inside the push data.
type Instruction struct {
	Offset  uint64
	Op      ByteCode
	Operand []byte
}

// Size is the number of code bytes the instruction occupies.
func (in Instruction) Size() uint64 {
	return 1 + uint64(len(in.Operand))
}

// Next is the offset of the instruction that follows.
func (in Instruction) Next() uint64 {
	return in.Offset + in.Size()
}

// Param returns the parameter encoded in the low nibble of DUP, SWAP and LOG
// opcodes: DUPn and SWAPn yield n, LOGn yields the topic count.
func (in Instruction) Param() int {
	switch {
	case in.Op.IsDup():
		return int(in.Op-DUP1) + 1
	case in.Op.IsSwap():
		return int(in.Op-SWAP1) + 1
	case in.Op.IsLog():
		return int(in.Op - LOG0)
	}
	return 0
}

// Value returns the pushed constant. PUSH0 and non-push instructions yield zero.
func (in Instruction) Value() *uint256.Int {
	return new(uint256.Int).SetBytes(in.Operand)
}

func (in Instruction) String() string {
	if in.Op.IsPush() {
		return fmt.Sprintf("%d: %v [%x]", in.Offset, in.Op, in.Operand)
	}
	return fmt.Sprintf("%d: %v", in.Offset, in.Op)
}

// Decoder lazily walks a code buffer. It is finite and cannot be rewound;
// decode the same buffer again to restart.
type Decoder struct {
	code []byte
	pc   uint64
}

// Decode returns a decoder positioned at the start of code.
func Decode(code []byte) *Decoder {
	return &Decoder{code: code}
}

// Next returns the next instruction, or false once the code is exhausted.
func (d *Decoder) Next() (Instruction, bool) {
	if d.pc >= uint64(len(d.code)) {
		return Instruction{}, false
	}
	op := ByteCode(d.code[d.pc])
	in := Instruction{Offset: d.pc, Op: op}
	if n := op.Info().Immediate; n > 0 {
		start := d.pc + 1
		end := start + uint64(n)
		if end > uint64(len(d.code)) {
			// Truncated push at the end of the code is padding, not an error.
			end = uint64(len(d.code))
		}
		in.Operand = d.code[start:end]
	}
	d.pc = in.Next()
	return in, true
}

// Instructions decodes the whole buffer.
func Instructions(code []byte) []Instruction {
	var (
		out []Instruction
		dec = Decode(code)
	)
	for in, ok := dec.Next(); ok; in, ok = dec.Next() {
		out = append(out, in)
	}
	return out
}

// ParseHex decodes bytecode given as hex text. The 0x prefix is optional and
// surrounding whitespace is ignored.
func ParseHex(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	code, err := hexutil.Decode("0x" + s)
	if err != nil {
		return nil, errors.Wrap(err, "decode bytecode hex")
	}
	return code, nil
}
