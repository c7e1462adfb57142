package cfg

import (
	"testing"

	"github.com/e2m-lab/e2m/core/evm"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// PUSH1 0x06 JUMP | PUSH1 0x00 STOP(dead) | JUMPDEST PUSH1 0x01 PUSH1 0x0c JUMPI | STOP | JUMPDEST STOP
var branchy = []byte{
	0x60, 0x06, 0x56, // 0: PUSH1 6, 2: JUMP
	0x60, 0x00, 0x00, // 3: PUSH1 0, 5: STOP
	0x5b, 0x60, 0x01, 0x60, 0x0c, 0x57, // 6: JUMPDEST, 7: PUSH1 1, 9: PUSH1 12, 11: JUMPI
	0x5b, 0x00, // 12: JUMPDEST, 13: STOP
}

func TestSegmentBoundaries(t *testing.T) {
	g, err := Segment(branchy)
	require.NoError(t, err)
	assert.Equal(t, []BlockId{0, 3, 6, 12}, g.Ids())

	b, err := g.Block(6)
	require.NoError(t, err)
	assert.Equal(t, evm.JUMPDEST, b.First().Op)
	assert.Equal(t, evm.JUMPI, b.Last().Op)
	assert.Equal(t, BlockId(12), b.End())
	assert.True(t, b.Terminated())
	assert.True(t, g.IsJumpDest(12))
	assert.False(t, g.IsJumpDest(3))
}

func TestSegmentationCoverage(t *testing.T) {
	codes := [][]byte{
		branchy,
		{0x60, 0x01, 0x60, 0x02, 0x01, 0x5b, 0x5b, 0x00, 0x63, 0x01},
		{0xfe, 0x0c, 0x5b, 0xf3},
	}
	for _, code := range codes {
		g, err := Segment(code)
		require.NoError(t, err)

		seen := make(map[uint64]bool)
		for _, id := range g.Ids() {
			b, err := g.Block(id)
			require.NoError(t, err)
			require.NotEmpty(t, b.Instructions)
			assert.Equal(t, uint64(id), b.First().Offset)
			for _, in := range b.Instructions {
				assert.False(t, seen[in.Offset], "offset %d in two blocks", in.Offset)
				seen[in.Offset] = true
			}
		}
		decoded := evm.Instructions(code)
		assert.Len(t, seen, len(decoded))
		for _, in := range decoded {
			assert.True(t, seen[in.Offset], "offset %d not covered", in.Offset)
		}
	}
}

func TestEnsureBoundary(t *testing.T) {
	g, err := Segment(branchy)
	require.NoError(t, err)

	// 9 is the PUSH1 inside block 6.
	require.NoError(t, g.EnsureBoundary(9))
	assert.Equal(t, []BlockId{0, 3, 6, 9, 12}, g.Ids())
	head, _ := g.Block(6)
	assert.Equal(t, BlockId(9), head.End())
	assert.False(t, head.Terminated())

	// Already a boundary.
	require.NoError(t, g.EnsureBoundary(12))

	// Inside push data.
	err = g.EnsureBoundary(8)
	var be *BlockError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, BlockId(8), be.Id)
	assert.True(t, errors.Is(err, ErrMisaligned))

	err = g.EnsureBoundary(100)
	assert.True(t, errors.Is(err, ErrBlockNotFound))
}

func TestBlockNotFound(t *testing.T) {
	g, err := Segment(branchy)
	require.NoError(t, err)
	_, err = g.Block(7)
	assert.True(t, errors.Is(err, ErrBlockNotFound))
	assert.Contains(t, err.Error(), "0x7")

	_, err = Segment(nil)
	assert.Equal(t, ErrEmptyCode, err)
}

func TestNext(t *testing.T) {
	g, err := Segment(branchy)
	require.NoError(t, err)

	next, err := g.Next(6)
	require.NoError(t, err)
	assert.Equal(t, BlockId(12), next)

	_, err = g.Next(12)
	assert.True(t, errors.Is(err, ErrBlockNotFound))
}
