package flow

import (
	"strconv"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/e2m-lab/e2m/core/cfg"
	"github.com/e2m-lab/e2m/internal/debug"
	"github.com/pkg/errors"
)

const (
	DefaultMaxDepth = 1024
	DefaultMaxSteps = 1 << 20
)

// Options bounds the recovery of pathological inputs.
type Options struct {
	MaxDepth int // open branch frames
	MaxSteps int // simulated blocks per attempt
}

func (o Options) withDefaults() Options {
	if o.MaxDepth <= 0 {
		o.MaxDepth = DefaultMaxDepth
	}
	if o.MaxSteps <= 0 {
		o.MaxSteps = DefaultMaxSteps
	}
	return o
}

// Link is a loop back edge: From is the last block of an iteration and Head
// the condition block it re-enters.
type Link struct {
	Head cfg.BlockId
	From cfg.BlockId
}

// Result is the recovered structure of one entry point.
type Result struct {
	Root  Sequence
	Links []Link
	Steps int
}

type itemKind uint8

const (
	itemBlock itemKind = iota
	itemBranch
	itemContinue
)

// armItem is one step of an explored path. A branch item is always the last
// item of its arm since it owns everything executed after it.
type armItem struct {
	kind   itemKind
	block  cfg.BlockId // block, or loop head for continue
	branch *cndBranch
}

type arm struct {
	items []armItem
	loop  bool
}

// cndBranch is a completed conditional jump with both explored arms.
type cndBranch struct {
	block cfg.BlockId
	sig   string
	arms  [2]arm

	escapes mapset.Set[cfg.BlockId] // loop heads continued to but not closed inside
	keys    mapset.Set[string]      // branch contexts in the subtree
}

func (r *cndBranch) key() string {
	return branchKey(r.block, r.sig)
}

func branchKey(id cfg.BlockId, sig string) string {
	return strconv.FormatUint(uint64(id), 16) + "|" + sig
}

// branchingState is an open branch frame on the walk stack.
type branchingState struct {
	branch      *cndBranch
	fingerprint string
	active      int // 0 while exploring the true arm, 1 for the false arm
	snapshot    *Executor
	falseTarget cfg.BlockId
}

type builder struct {
	g    *cfg.Graph
	opts Options

	exec    *Executor
	frames  []*branchingState
	root    []armItem
	records map[string]*cndBranch
	memo    map[string]*cndBranch
	line    mapset.Set[string] // straight-line visits since the last fork
	links   []Link
	steps   int
}

var errResegmented = errors.New("graph resegmented")

// Build recovers the structured flow of g starting at block 0. Jump targets
// found during the walk that fall inside a block split it; the walk then
// restarts on the refined graph.
func Build(g *cfg.Graph, opts Options) (*Result, error) {
	opts = opts.withDefaults()
	for attempt := 0; ; attempt++ {
		b := &builder{
			g:       g,
			opts:    opts,
			exec:    NewExecutor(uint64(len(g.Code()))),
			records: make(map[string]*cndBranch),
			memo:    make(map[string]*cndBranch),
			line:    mapset.NewThreadUnsafeSet[string](),
		}
		err := b.run()
		if errors.Is(err, errResegmented) {
			debug.Debug("Flow walk restarted after block split", "attempt", attempt, "blocks", g.Len())
			continue
		}
		if err != nil {
			return nil, err
		}
		return &Result{Root: mapArm(b.root), Links: b.links, Steps: b.steps}, nil
	}
}

func (b *builder) run() error {
	cur, live := cfg.BlockId(0), true
	for live {
		blk, err := b.g.Block(cur)
		if err != nil {
			return err
		}
		if b.steps++; b.steps > b.opts.MaxSteps {
			return blockErr(blk, uint64(blk.Id), ErrStepLimit)
		}
		visit := branchKey(cur, b.exec.Fingerprint())
		if b.line.Contains(visit) {
			return blockErr(blk, uint64(blk.Id), ErrJumpCycle)
		}
		b.line.Add(visit)
		b.push(armItem{kind: itemBlock, block: cur})

		out, err := b.exec.Execute(blk)
		if err != nil {
			return err
		}
		switch out.Kind {
		case OutcomeJump:
			if err := b.ensure(out.Target); err != nil {
				return err
			}
			cur = out.Target
		case OutcomeStop:
			cur, live, err = b.unwind()
		case OutcomeCond:
			if err := b.ensure(out.True); err != nil {
				return err
			}
			cur, live, err = b.fork(blk, out)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// ensure makes target a block start. Splitting a block invalidates paths
// already recorded through it, so the walk has to start over.
func (b *builder) ensure(target cfg.BlockId) error {
	if _, err := b.g.Block(target); err == nil {
		return nil
	}
	if err := b.g.EnsureBoundary(target); err != nil {
		return err
	}
	return errResegmented
}

// arm returns the item list new blocks are appended to.
func (b *builder) arm() *[]armItem {
	if n := len(b.frames); n > 0 {
		f := b.frames[n-1]
		return &f.branch.arms[f.active].items
	}
	return &b.root
}

func (b *builder) push(it armItem) {
	a := b.arm()
	*a = append(*a, it)
}

// replaceLast swaps the block just appended for it and returns the block
// recorded before it, if any.
func (b *builder) replaceLast(it armItem) (cfg.BlockId, bool) {
	a := *b.arm()
	a[len(a)-1] = it
	for i := len(a) - 2; i >= 0; i-- {
		if a[i].kind == itemBlock {
			return a[i].block, true
		}
	}
	return 0, false
}

func (b *builder) fork(blk *cfg.BasicBlock, out Outcome) (cfg.BlockId, bool, error) {
	sig := b.exec.Signature(b.g.IsJumpDest)
	open := mapset.NewThreadUnsafeSet[string]()
	for i := len(b.frames) - 1; i >= 0; i-- {
		f := b.frames[i]
		if f.branch.block == blk.Id && f.branch.sig == sig {
			f.branch.arms[f.active].loop = true
			if prev, ok := b.replaceLast(armItem{kind: itemContinue, block: blk.Id}); ok {
				b.links = append(b.links, Link{Head: blk.Id, From: prev})
				debug.Debug("Loop back edge", "head", blk.Id, "from", prev)
			}
			return b.unwind()
		}
		open.Add(f.branch.key())
	}
	if len(b.frames) >= b.opts.MaxDepth {
		return 0, false, blockErr(blk, out.Offset, ErrTooDeep)
	}
	fp := b.exec.Fingerprint()
	if rec, ok := b.memo[branchKey(blk.Id, fp)]; ok && rec.keys.Intersect(open).Cardinality() == 0 {
		b.replaceLast(armItem{kind: itemBranch, branch: rec})
		return b.unwind()
	}
	rec := &cndBranch{block: blk.Id, sig: sig}
	b.replaceLast(armItem{kind: itemBranch, branch: rec})
	b.frames = append(b.frames, &branchingState{
		branch:      rec,
		fingerprint: fp,
		snapshot:    b.exec.Clone(),
		falseTarget: out.False,
	})
	b.line.Clear()
	return out.True, true, nil
}

// unwind closes finished frames until one still has its false arm to explore.
func (b *builder) unwind() (cfg.BlockId, bool, error) {
	for len(b.frames) > 0 {
		top := b.frames[len(b.frames)-1]
		if top.active == 0 {
			top.active = 1
			b.exec, top.snapshot = top.snapshot, nil
			b.line.Clear()
			return top.falseTarget, true, nil
		}
		b.frames = b.frames[:len(b.frames)-1]
		if err := b.finish(top); err != nil {
			return 0, false, err
		}
	}
	return 0, false, nil
}

// finish validates and summarises a completed frame.
func (b *builder) finish(f *branchingState) error {
	rec := f.branch
	if rec.arms[0].loop && rec.arms[1].loop {
		return &Error{Block: rec.block, Offset: uint64(rec.block), Err: ErrBothArmsLoop}
	}
	rec.escapes = mapset.NewThreadUnsafeSet[cfg.BlockId]()
	rec.keys = mapset.NewThreadUnsafeSet[string](rec.key())
	for _, a := range rec.arms {
		for _, it := range a.items {
			switch it.kind {
			case itemContinue:
				rec.escapes.Add(it.block)
			case itemBranch:
				rec.escapes = rec.escapes.Union(it.branch.escapes)
				rec.keys = rec.keys.Union(it.branch.keys)
			}
		}
	}
	if rec.arms[0].loop || rec.arms[1].loop {
		rec.escapes.Remove(rec.block)
	}
	if prev, ok := b.records[rec.key()]; !ok {
		b.records[rec.key()] = rec
	} else if !sameBranch(prev, rec) {
		return &Error{Block: rec.block, Offset: uint64(rec.block), Err: ErrAmbiguousBranch}
	}
	if rec.escapes.Cardinality() == 0 {
		b.memo[branchKey(rec.block, f.fingerprint)] = rec
	}
	return nil
}

// sameBranch compares two records by the paths they recorded.
func sameBranch(x, y *cndBranch) bool {
	if x == y {
		return true
	}
	if x.block != y.block {
		return false
	}
	for i := range x.arms {
		if !sameArm(x.arms[i], y.arms[i]) {
			return false
		}
	}
	return true
}

func sameArm(x, y arm) bool {
	if x.loop != y.loop || len(x.items) != len(y.items) {
		return false
	}
	for i, a := range x.items {
		c := y.items[i]
		if a.kind != c.kind {
			return false
		}
		switch a.kind {
		case itemBranch:
			if !sameBranch(a.branch, c.branch) {
				return false
			}
		default:
			if a.block != c.block {
				return false
			}
		}
	}
	return true
}
