package ir

import "strconv"

// Verify checks that f is well formed: every block is closed by exactly one
// terminator, every callee is live and every use is dominated by its
// definition. Declarations are trivially valid.
func (f *Function) Verify() error {
	if f.discarded {
		return nil
	}
	if f.failure != nil {
		return f.failure
	}
	for _, blk := range f.blocks {
		n := len(blk.insts)
		if n == 0 || !blk.insts[n-1].Op.IsTerminator() {
			return newError(MissingTerminator, f, blk, "control falls through the end of the block")
		}
		for i, inst := range blk.insts {
			if i < n-1 && inst.Op.IsTerminator() {
				return newError(MissingTerminator, f, blk, "terminator %s is not the last instruction", inst.Op)
			}
			if inst.Op == OpCall {
				callee, err := f.module.Func(inst.Callee)
				if err != nil || callee.discarded {
					return newError(UnresolvedCallee, f, blk, "call to a function that is no longer declared")
				}
			}
		}
	}
	return f.verifyDominance()
}

func (f *Function) verifyDominance() error {
	if len(f.blocks) == 0 {
		return nil
	}
	reachable, dom := f.dominators()
	for _, ref := range f.order {
		blk := f.blocks[ref.block]
		if !reachable[blk.index] {
			continue
		}
		inst := blk.insts[ref.inst]
		for _, v := range inst.Operands {
			vi := f.values[v.id-1]
			if vi.block < 0 {
				continue
			}
			if vi.block == blk.index {
				if vi.inst >= ref.inst {
					return newError(DominanceViolation, f, blk, "value %s used before its definition", f.describe(v))
				}
				continue
			}
			if !dom[blk.index][vi.block] {
				return newError(DominanceViolation, f, blk, "value %s from block %q does not dominate this use", f.describe(v), f.blocks[vi.block].label)
			}
		}
	}
	return nil
}

// dominators computes, for every reachable block, the set of blocks that
// dominate it. dom[b][d] is true when d dominates b.
func (f *Function) dominators() ([]bool, [][]bool) {
	n := len(f.blocks)
	reachable := make([]bool, n)
	preds := make([][]int, n)
	stack := []int{0}
	reachable[0] = true
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range f.blocks[b].Successors() {
			preds[s.index] = append(preds[s.index], b)
			if !reachable[s.index] {
				reachable[s.index] = true
				stack = append(stack, s.index)
			}
		}
	}

	dom := make([][]bool, n)
	for b := range dom {
		dom[b] = make([]bool, n)
		if b == 0 {
			dom[b][0] = true
			continue
		}
		for d := range dom[b] {
			dom[b][d] = reachable[d]
		}
	}

	for changed := true; changed; {
		changed = false
		for b := 1; b < n; b++ {
			if !reachable[b] {
				continue
			}
			next := make([]bool, n)
			first := true
			for _, p := range preds[b] {
				if first {
					copy(next, dom[p])
					first = false
					continue
				}
				for d := range next {
					next[d] = next[d] && dom[p][d]
				}
			}
			next[b] = true
			for d := range next {
				if next[d] != dom[b][d] {
					dom[b] = next
					changed = true
					break
				}
			}
		}
	}
	return reachable, dom
}

func (f *Function) describe(v Value) string {
	if name := f.values[v.id-1].name; name != "" {
		return "%" + name
	}
	return "#" + strconv.Itoa(v.id-1)
}
