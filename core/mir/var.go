package mir

import "fmt"

// VarKind separates context variables from straight-line temporaries.
type VarKind uint8

const (
	// Slot variables carry a stack cell across a control-flow boundary and
	// are numbered by stack depth from the bottom.
	Slot VarKind = iota
	// Temp variables hold the result of one computation.
	Temp
)

// VarId names a variable within one function.
type VarId struct {
	Kind  VarKind
	Index int
}

func SlotVar(i int) VarId { return VarId{Kind: Slot, Index: i} }
func TempVar(i int) VarId { return VarId{Kind: Temp, Index: i} }

func (v VarId) String() string {
	if v.Kind == Slot {
		return fmt.Sprintf("s%d", v.Index)
	}
	return fmt.Sprintf("t%d", v.Index)
}

// Less orders slots before temps, then by index.
func (v VarId) Less(o VarId) bool {
	if v.Kind != o.Kind {
		return v.Kind < o.Kind
	}
	return v.Index < o.Index
}

// Vars is the variable table of a function.
type Vars struct {
	Slots int
	Temps int
}

func (v *Vars) newTemp() VarId {
	id := TempVar(v.Temps)
	v.Temps++
	return id
}

func (v *Vars) useSlot(i int) VarId {
	if i >= v.Slots {
		v.Slots = i + 1
	}
	return SlotVar(i)
}
