package evm

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, code []byte) map[uint64]Instruction {
	t.Helper()
	out := make(map[uint64]Instruction)
	for _, in := range Instructions(code) {
		out[in.Offset] = in
	}
	return out
}

func TestDecodeHexAndBytes(t *testing.T) {
	code, err := ParseHex("608040526002610100")
	require.NoError(t, err)

	want := map[uint64]Instruction{
		0: {Offset: 0, Op: PUSH1, Operand: []byte{0x80}},
		2: {Offset: 2, Op: BLOCKHASH},
		3: {Offset: 3, Op: MSTORE},
		4: {Offset: 4, Op: PUSH1, Operand: []byte{0x02}},
		6: {Offset: 6, Op: PUSH1 + 1, Operand: []byte{0x01, 0x00}},
	}
	assert.Equal(t, want, collect(t, code))

	raw := []byte{0x60, 0x80, 0x40, 0x52, 0x60, 0x02, 0x61, 0x01, 0x00}
	assert.Equal(t, collect(t, code), collect(t, raw))

	prefixed, err := ParseHex("0x608040526002610100")
	require.NoError(t, err)
	assert.Equal(t, raw, prefixed)
}

func TestDecodeTruncatedPush(t *testing.T) {
	// PUSH4 with only two operand bytes left.
	ins := Instructions([]byte{0x00, 0x63, 0xaa, 0xbb})
	require.Len(t, ins, 2)
	assert.Equal(t, []byte{0xaa, 0xbb}, ins[1].Operand)
	assert.Equal(t, uint64(4), ins[1].Next())
}

func TestDecodeInvalidOpcode(t *testing.T) {
	ins := Instructions([]byte{0x0c, 0xfe, 0x00})
	require.Len(t, ins, 3)
	assert.False(t, ins[0].Op.Valid())
	assert.Equal(t, ByteCode(0x0c), ins[0].Op)
	assert.True(t, ins[0].Op.Terminates())
	assert.True(t, ins[1].Op.Valid())
	assert.Equal(t, "INVALID", ins[1].Op.String())
}

func TestDecoderIsFinite(t *testing.T) {
	dec := Decode([]byte{0x5b, 0x5b})
	n := 0
	for _, ok := dec.Next(); ok; _, ok = dec.Next() {
		n++
	}
	assert.Equal(t, 2, n)
	_, ok := dec.Next()
	assert.False(t, ok)
}

func TestParams(t *testing.T) {
	tests := []struct {
		op   ByteCode
		want int
	}{
		{DUP1, 1},
		{DUP16, 16},
		{SWAP1, 1},
		{SWAP1 + 2, 3},
		{LOG0, 0},
		{LOG4, 4},
		{ADD, 0},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Instruction{Op: tt.op}.Param(), tt.op.String())
	}
}

func TestOpTableArity(t *testing.T) {
	assert.Equal(t, OpInfo{Name: "CALL", Pops: 7, Pushes: 1, Valid: true}, CALL.Info())
	assert.Equal(t, 2, (DUP1 + 1).Info().Pops)
	assert.Equal(t, 3, (DUP1 + 1).Info().Pushes)
	for i, op := range []ByteCode{LOG0, LOG1, LOG2, LOG3, LOG4} {
		assert.Equal(t, fmt.Sprintf("LOG%d", i), op.String())
		assert.Equal(t, i+2, op.Info().Pops)
		assert.True(t, op.IsLog())
	}
	assert.Equal(t, 32, PUSH32.Info().Immediate)
	assert.True(t, JUMPI.Terminates())
	assert.False(t, JUMPI.Halts())
	assert.True(t, REVERT.Halts())
}

func TestParseHexErrors(t *testing.T) {
	_, err := ParseHex("0x6")
	assert.Error(t, err)
	_, err = ParseHex("zz")
	assert.Error(t, err)

	code, err := ParseHex("  0x00\n")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00}, code)
}
