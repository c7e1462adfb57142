package flow

// mapArm turns a recorded path into a flow sequence.
func mapArm(items []armItem) Sequence {
	seq := make(Sequence, 0, len(items))
	for _, it := range items {
		switch it.kind {
		case itemBlock:
			seq = append(seq, &Block{Id: it.block})
		case itemContinue:
			seq = append(seq, &Continue{Head: it.block})
		case itemBranch:
			seq = append(seq, mapBranch(it.branch)...)
		}
	}
	return seq
}

// mapBranch emits a Loop followed by its exit path when one arm jumps back to
// the branch, and an If with the shared tail of both arms hoisted behind it
// otherwise.
func mapBranch(r *cndBranch) Sequence {
	switch {
	case r.arms[0].loop:
		loop := &Loop{Cond: r.block, Body: mapArm(r.arms[0].items), IsTrueBranchLoop: true}
		return append(Sequence{loop}, mapArm(r.arms[1].items)...)
	case r.arms[1].loop:
		loop := &Loop{Cond: r.block, Body: mapArm(r.arms[1].items)}
		return append(Sequence{loop}, mapArm(r.arms[0].items)...)
	}
	t, f := mapArm(r.arms[0].items), mapArm(r.arms[1].items)
	n := commonTail(t, f)
	out := Sequence{&If{Cond: r.block, True: t[:len(t)-n], False: f[:len(f)-n]}}
	return append(out, t[len(t)-n:]...)
}

// commonTail counts the trailing nodes two sequences share.
func commonTail(a, b Sequence) int {
	n := 0
	for n < len(a) && n < len(b) && Equal(a[len(a)-1-n], b[len(b)-1-n]) {
		n++
	}
	return n
}
