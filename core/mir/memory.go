package mir

import (
	"github.com/holiman/uint256"
	"golang.org/x/exp/slices"
)

type cell struct {
	key    string
	offset Expr
	value  Expr
	width  int // 1 or 32
}

// accessModel forwards values through memory or storage. Cells are keyed by
// the structural identity of the address: equal address expressions alias,
// distinct ones never do, even if they could meet at run time. Reads are
// recorded as well so a repeated load reuses the first one.
//
// A bytewise model is memory: a byte store at an address aliases the word at
// that address, and cells with constant addresses overlap by byte range.
type accessModel struct {
	cells    []cell // program order, one per key and width
	bytewise bool
}

func newMemoryModel() *accessModel {
	return &accessModel{bytewise: true}
}

func cellKey(width int, offset Expr) string {
	if width == 1 {
		return "8:" + Key(offset)
	}
	return Key(offset)
}

func (m *accessModel) clone() *accessModel {
	return &accessModel{cells: slices.Clone(m.cells), bytewise: m.bytewise}
}

func (m *accessModel) clear() {
	m.cells = nil
}

func (m *accessModel) put(offset, value Expr, width int) {
	key := cellKey(width, offset)
	m.cells = slices.DeleteFunc(m.cells, func(c cell) bool { return c.key == key })
	m.cells = append(m.cells, cell{key: key, offset: offset, value: value, width: width})
}

// get returns the last word stored or loaded at offset. A word cell that a
// later store overlaps is stale; the word is then rebuilt from constant bytes
// or reported unknown.
func (m *accessModel) get(offset Expr) (Expr, bool) {
	key := cellKey(32, offset)
	for i := len(m.cells) - 1; i >= 0; i-- {
		if m.cells[i].key != key {
			continue
		}
		if !m.shadowed(i) {
			return m.cells[i].value, true
		}
		break
	}
	if !m.bytewise {
		return nil, false
	}
	if c, ok := offset.(*Const); ok {
		if data, ok := m.bytes(c.Value, uint256.NewInt(32)); ok {
			return &Const{Value: new(uint256.Int).SetBytes(data)}, true
		}
	}
	return nil, false
}

// shadowed reports whether a cell recorded after cells[i] writes any byte of
// it.
func (m *accessModel) shadowed(i int) bool {
	if !m.bytewise {
		return false
	}
	c := m.cells[i]
	for _, later := range m.cells[i+1:] {
		if overlaps(c, later) {
			return true
		}
	}
	return false
}

func overlaps(a, b cell) bool {
	if Equal(a.offset, b.offset) {
		return true
	}
	x, ok1 := a.offset.(*Const)
	y, ok2 := b.offset.(*Const)
	if !ok1 || !ok2 || !x.Value.IsUint64() || !y.Value.IsUint64() {
		return false
	}
	xs, ys := x.Value.Uint64(), y.Value.Uint64()
	return xs < ys+uint64(b.width) && ys < xs+uint64(a.width)
}

// bytes assembles a constant memory range from cells with constant
// addresses and values, applied in program order. It fails unless every byte
// is known.
func (m *accessModel) bytes(offset, size *uint256.Int) ([]byte, bool) {
	if !offset.IsUint64() || !size.IsUint64() || size.Uint64() > 1<<16 {
		return nil, false
	}
	base, n := offset.Uint64(), size.Uint64()
	out := make([]byte, n)
	known := make([]bool, n)
	for _, c := range m.cells {
		off, ok := c.offset.(*Const)
		if !ok || !off.Value.IsUint64() {
			continue
		}
		wo := off.Value.Uint64()
		var word []byte
		if v, ok := c.value.(*Const); ok {
			b32 := v.Value.Bytes32()
			word = b32[32-c.width:]
		}
		for i := 0; i < c.width; i++ {
			pos := wo + uint64(i)
			if pos < base || pos >= base+n {
				continue
			}
			if word == nil {
				known[pos-base] = false
				continue
			}
			out[pos-base] = word[i]
			known[pos-base] = true
		}
	}
	for _, k := range known {
		if !k {
			return nil, false
		}
	}
	return out, true
}

// intersect keeps the cells both models agree on.
func (m *accessModel) intersect(o *accessModel) {
	m.cells = slices.DeleteFunc(m.cells, func(c cell) bool {
		for _, oc := range o.cells {
			if oc.key == c.key {
				return !Equal(oc.value, c.value)
			}
		}
		return true
	})
}

// forget drops cells whose address or value satisfies stale.
func (m *accessModel) forget(stale func(Expr) bool) {
	m.cells = slices.DeleteFunc(m.cells, func(c cell) bool {
		return stale(c.offset) || stale(c.value)
	})
}
