package mir

import (
	"bytes"
	"testing"

	"github.com/e2m-lab/e2m/core/cfg"
	"github.com/e2m-lab/e2m/core/flow"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	// if (calldata[0]) { x = 2 } else { x = 1 }; sstore(0, x)
	diamond = []byte{
		0x60, 0x00, 0x35, 0x60, 0x0b, 0x57, // 0: PUSH1 0 CALLDATALOAD PUSH1 11 JUMPI
		0x60, 0x01, 0x60, 0x11, 0x56, // 6: PUSH1 1 PUSH1 17 JUMP
		0x5b, 0x60, 0x02, 0x60, 0x11, 0x56, // 11: JUMPDEST PUSH1 2 PUSH1 17 JUMP
		0x5b, 0x60, 0x00, 0x55, 0x00, // 17: JUMPDEST PUSH1 0 SSTORE STOP
	}

	// for (i = 0; i < 10; i++) {}
	counter = []byte{
		0x60, 0x00, // 0: PUSH1 0
		0x5b, 0x80, 0x60, 0x0a, 0x11, 0x15, 0x60, 0x11, 0x57, // 2: JUMPDEST DUP1 PUSH1 10 GT ISZERO PUSH1 17 JUMPI
		0x60, 0x01, 0x01, 0x60, 0x02, 0x56, // 11: PUSH1 1 ADD PUSH1 2 JUMP
		0x5b, 0x00, // 17: JUMPDEST STOP
	}

	// if (calldata[0] >> 224 == 0xaabbccdd) return 42; revert()
	dispatcher = []byte{
		0x60, 0x00, 0x35, 0x60, 0xe0, 0x1c, // 0: PUSH1 0 CALLDATALOAD PUSH1 224 SHR
		0x63, 0xaa, 0xbb, 0xcc, 0xdd, 0x14, // 6: PUSH4 0xaabbccdd EQ
		0x60, 0x13, 0x57, // 12: PUSH1 19 JUMPI
		0x60, 0x00, 0x80, 0xfd, // 15: PUSH1 0 DUP1 REVERT
		0x5b, 0x60, 0x2a, 0x60, 0x00, 0x52, // 19: JUMPDEST PUSH1 42 PUSH1 0 MSTORE
		0x60, 0x20, 0x60, 0x00, 0xf3, // 25: PUSH1 32 PUSH1 0 RETURN
	}
)

func buildIR(t *testing.T, code []byte, hint *Hint) (*Function, error) {
	t.Helper()
	g, err := cfg.Segment(code)
	require.NoError(t, err)
	res, err := flow.Build(g, flow.Options{})
	require.NoError(t, err)
	return Build(g, res.Root, hint)
}

func TestBuildStraightLineFolds(t *testing.T) {
	// PUSH1 2 PUSH1 3 ADD PUSH1 0 SSTORE STOP
	fn, err := buildIR(t, []byte{0x60, 0x02, 0x60, 0x03, 0x01, 0x60, 0x00, 0x55, 0x00}, nil)
	require.NoError(t, err)
	assert.Equal(t, "fun main (slots 0, temps 0)\n    sstore(0x0, 0x5)\n    result()\n", Format(fn))
}

func TestBuildIfMergesContext(t *testing.T) {
	fn, err := buildIR(t, diamond, nil)
	require.NoError(t, err)
	want := `fun main (slots 1, temps 1)
    t0 = arg(0x0)
    br_true t0, L0, L1
L0:
    store_stack {s0 = 0x2}
    br L2
L1:
    store_stack {s0 = 0x1}
L2:
    sstore(0x0, s0)
    result()
`
	assert.Equal(t, want, Format(fn))
}

func TestBuildLoop(t *testing.T) {
	fn, err := buildIR(t, counter, nil)
	require.NoError(t, err)
	want := `fun main (slots 1, temps 3)
    store_stack {s0 = 0x0}
L0:
    t0 = GT(0xa, s0)
    t1 = ISZERO(t0)
    br_true t1, L2, L1
L1:
    t2 = ADD(0x1, s0)
    store_stack {s0 = t2}
    br L0
L2:
    result()
`
	assert.Equal(t, want, Format(fn))
	assert.Equal(t, []LoopInfo{{Label: 0, Head: 2, Parent: -1}}, fn.Loops)
}

func TestBuildSelectsFunctionBySelector(t *testing.T) {
	hint := &Hint{Name: "answer", Selector: [4]byte{0xaa, 0xbb, 0xcc, 0xdd}, Outputs: 1}
	fn, err := buildIR(t, dispatcher, hint)
	require.NoError(t, err)
	assert.Equal(t, "fun answer (slots 0, temps 0)\n    mstore(0x0, 0x2a)\n    result(0x2a)\n", Format(fn))

	other := &Hint{Name: "other", Selector: [4]byte{1, 2, 3, 4}}
	fn, err = buildIR(t, dispatcher, other)
	require.NoError(t, err)
	assert.Equal(t, "fun other (slots 0, temps 0)\n    abort 0x0\n", Format(fn))
}

func TestBuildFoldsKeccakOverKnownMemory(t *testing.T) {
	// mstore(0, 1); sstore(0, keccak256(0, 32))
	code := []byte{0x60, 0x01, 0x60, 0x00, 0x52, 0x60, 0x20, 0x60, 0x00, 0x20, 0x60, 0x00, 0x55, 0x00}
	fn, err := buildIR(t, code, nil)
	require.NoError(t, err)
	digest := crypto.Keccak256Hash(common.LeftPadBytes([]byte{1}, 32))
	require.Len(t, fn.Stmts, 3)
	v, ok := fn.Stmts[1].(*SStore).Value.(*Const)
	require.True(t, ok, "hash not folded: %v", fn.Stmts[1])
	got := v.Value.Bytes32()
	assert.Equal(t, digest.Bytes(), got[:])
}

func TestBuildForwardsMemoryAndStorage(t *testing.T) {
	// mstore(0, calldata[0]); sstore(1, mload(0)); sstore(2, sload(1))
	code := []byte{
		0x60, 0x00, 0x35, 0x60, 0x00, 0x52,
		0x60, 0x00, 0x51, 0x60, 0x01, 0x55,
		0x60, 0x01, 0x54, 0x60, 0x02, 0x55,
		0x00,
	}
	fn, err := buildIR(t, code, nil)
	require.NoError(t, err)
	want := `fun main (slots 0, temps 1)
    t0 = arg(0x0)
    mstore(0x0, t0)
    sstore(0x1, t0)
    sstore(0x2, t0)
    result()
`
	assert.Equal(t, want, Format(fn))
}

func TestBuildLogs(t *testing.T) {
	// log1(0, 0, 7); log2(0, 32, 0xa, 0xb)
	code := []byte{
		0x60, 0x07, 0x60, 0x00, 0x60, 0x00, 0xa1,
		0x60, 0x0b, 0x60, 0x0a, 0x60, 0x20, 0x60, 0x00, 0xa2,
		0x00,
	}
	fn, err := buildIR(t, code, nil)
	require.NoError(t, err)
	want := `fun main (slots 0, temps 0)
    log(0x0, 0x0, [0x7])
    log(0x0, 0x20, [0xa, 0xb])
    result()
`
	assert.Equal(t, want, Format(fn))
}

func TestBuildByteStoreUpdatesWord(t *testing.T) {
	// mstore(0, not(0)); mstore8(0, 0x11); sstore(0, mload(0))
	code := append([]byte{0x7f}, bytes.Repeat([]byte{0xff}, 32)...)
	code = append(code,
		0x60, 0x00, 0x52,
		0x60, 0x11, 0x60, 0x00, 0x53,
		0x60, 0x00, 0x51, 0x60, 0x00, 0x55,
		0x00,
	)
	fn, err := buildIR(t, code, nil)
	require.NoError(t, err)
	require.Len(t, fn.Stmts, 4)
	v, ok := fn.Stmts[2].(*SStore).Value.(*Const)
	require.True(t, ok, "word not rebuilt: %v", fn.Stmts[2])
	want := append([]byte{0x11}, bytes.Repeat([]byte{0xff}, 31)...)
	got := v.Value.Bytes32()
	assert.Equal(t, want, got[:])

	// mstore(0, calldata[0]); mstore8(0, 0x11); sstore(0, mload(0))
	code = []byte{
		0x60, 0x00, 0x35, 0x60, 0x00, 0x52,
		0x60, 0x11, 0x60, 0x00, 0x53,
		0x60, 0x00, 0x51, 0x60, 0x00, 0x55,
		0x00,
	}
	fn, err = buildIR(t, code, nil)
	require.NoError(t, err)
	want2 := `fun main (slots 0, temps 2)
    t0 = arg(0x0)
    mstore(0x0, t0)
    mstore8(0x0, 0x11)
    t1 = mload(0x0)
    sstore(0x0, t1)
    result()
`
	assert.Equal(t, want2, Format(fn))
}

func TestBuildErrors(t *testing.T) {
	// CODECOPY with a size read from call input.
	_, err := buildIR(t, []byte{0x60, 0x00, 0x35, 0x60, 0x00, 0x60, 0x00, 0x39, 0x00}, nil)
	assert.True(t, errors.Is(err, ErrDynamicOffset))
	var me *Error
	require.True(t, errors.As(err, &me))
	assert.Equal(t, uint64(7), me.Offset)

	// The arms of the branch leave different stack heights at the join.
	uneven := []byte{
		0x60, 0x00, 0x35, 0x60, 0x0b, 0x57, // 0: PUSH1 0 CALLDATALOAD PUSH1 11 JUMPI
		0x60, 0x01, 0x60, 0x13, 0x56, // 6: PUSH1 1 PUSH1 19 JUMP
		0x5b, 0x60, 0x02, 0x60, 0x03, 0x60, 0x13, 0x56, // 11: JUMPDEST PUSH1 2 PUSH1 3 PUSH1 19 JUMP
		0x5b, 0x00, // 19: JUMPDEST STOP
	}
	_, err = buildIR(t, uneven, nil)
	assert.True(t, errors.Is(err, ErrStackMismatch))

	// POP on an empty stack.
	_, err = buildIR(t, []byte{0x50, 0x00}, nil)
	assert.True(t, errors.Is(err, flow.ErrStackUnderflow))
}

func TestNewHint(t *testing.T) {
	h := NewHint("transfer(address,uint256)", 1)
	assert.Equal(t, "transfer", h.Name)
	assert.Equal(t, [4]byte{0xa9, 0x05, 0x9c, 0xbb}, h.Selector)
	assert.Equal(t, 2, h.Inputs)
	assert.Equal(t, 0, NewHint("totalSupply()", 1).Inputs)
}
