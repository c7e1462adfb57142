package mir

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryOverlappingWords(t *testing.T) {
	m := newMemoryModel()
	m.put(NewConst(0), NewConst(0xaa), 32)
	m.put(NewConst(1), &Var{Id: TempVar(0)}, 32)

	// Bytes 1..31 of the first word were overwritten by an unknown value.
	_, ok := m.get(NewConst(0))
	assert.False(t, ok)
	v, ok := m.get(NewConst(1))
	require.True(t, ok)
	assert.Equal(t, "t0", v.String())

	m.put(NewConst(1), NewConst(0), 32)
	v, ok = m.get(NewConst(0))
	require.True(t, ok)
	assert.Equal(t, uint256.NewInt(0), v.(*Const).Value)
}

func TestMemoryByteStoreAliasesSymbolicWord(t *testing.T) {
	addr := &Var{Id: TempVar(1)}
	m := newMemoryModel()
	m.put(addr, &Var{Id: TempVar(2)}, 32)
	m.put(addr, NewConst(7), 1)
	_, ok := m.get(addr)
	assert.False(t, ok, "stale word forwarded")

	// A different address expression never aliases.
	m.put(&Var{Id: TempVar(3)}, NewConst(9), 32)
	m.put(addr, &Var{Id: TempVar(4)}, 32)
	v, ok := m.get(addr)
	require.True(t, ok)
	assert.Equal(t, "t4", v.String())
}

func TestStorageSlotsDoNotOverlap(t *testing.T) {
	m := new(accessModel)
	m.put(NewConst(0), &Var{Id: TempVar(0)}, 32)
	m.put(NewConst(1), &Var{Id: TempVar(1)}, 32)
	v, ok := m.get(NewConst(0))
	require.True(t, ok)
	assert.Equal(t, "t0", v.String())

	c := m.clone()
	assert.False(t, c.bytewise)
	assert.True(t, newMemoryModel().clone().bytewise)
}
