package ir

// Predecessors returns, for every block in f, the set of blocks whose
// terminator names it as a successor. Computed fresh each call rather than
// kept incrementally, since passes restructure the CFG often enough that a
// cached predecessor map would need constant invalidation.
func Predecessors(f *Function) map[*BasicBlock][]*BasicBlock {
	preds := make(map[*BasicBlock][]*BasicBlock, len(f.Blocks))
	for _, bb := range f.Blocks {
		preds[bb] = nil
	}
	for _, bb := range f.Blocks {
		for _, succ := range bb.Successors() {
			preds[succ] = append(preds[succ], bb)
		}
	}
	return preds
}

// Reachable returns the set of blocks reachable from f's entry block,
// walking successor edges. Grounded on kanso's optimizations.go
// markReachable dead-block sweep.
func Reachable(f *Function) map[*BasicBlock]bool {
	seen := map[*BasicBlock]bool{}
	entry := f.Entry()
	if entry == nil {
		return seen
	}
	stack := []*BasicBlock{entry}
	seen[entry] = true
	for len(stack) > 0 {
		n := len(stack) - 1
		bb := stack[n]
		stack = stack[:n]
		for _, s := range bb.Successors() {
			if s != nil && !seen[s] {
				seen[s] = true
				stack = append(stack, s)
			}
		}
	}
	return seen
}

// RemoveUnreachable drops blocks from f.Blocks that Reachable does not
// mark, returning whether any were removed.
func RemoveUnreachable(f *Function) bool {
	live := Reachable(f)
	kept := f.Blocks[:0:0]
	removed := false
	for _, bb := range f.Blocks {
		if live[bb] {
			kept = append(kept, bb)
		} else {
			removed = true
		}
	}
	f.Blocks = kept
	return removed
}

// Dominators computes the full dominator set of every block of f via the
// standard iterative dataflow fixed point: entry is dominated only by
// itself, and every other block's dominator set is refined to the
// intersection of its predecessors' sets plus itself until no change
// occurs. Blocks unreachable from entry are omitted.
func Dominators(f *Function) map[*BasicBlock]map[*BasicBlock]bool {
	entry := f.Entry()
	doms := map[*BasicBlock]map[*BasicBlock]bool{}
	if entry == nil {
		return doms
	}
	live := Reachable(f)
	order := make([]*BasicBlock, 0, len(live))
	for _, bb := range f.Blocks {
		if live[bb] {
			order = append(order, bb)
		}
	}
	all := map[*BasicBlock]bool{}
	for _, bb := range order {
		all[bb] = true
	}
	for _, bb := range order {
		if bb == entry {
			doms[bb] = map[*BasicBlock]bool{entry: true}
		} else {
			cp := map[*BasicBlock]bool{}
			for k := range all {
				cp[k] = true
			}
			doms[bb] = cp
		}
	}
	preds := Predecessors(f)
	changed := true
	for changed {
		changed = false
		for _, bb := range order {
			if bb == entry {
				continue
			}
			var inter map[*BasicBlock]bool
			for _, p := range preds[bb] {
				if !live[p] {
					continue
				}
				if inter == nil {
					inter = map[*BasicBlock]bool{}
					for k := range doms[p] {
						inter[k] = true
					}
					continue
				}
				for k := range inter {
					if !doms[p][k] {
						delete(inter, k)
					}
				}
			}
			if inter == nil {
				inter = map[*BasicBlock]bool{}
			}
			inter[bb] = true
			if !sameSet(inter, doms[bb]) {
				doms[bb] = inter
				changed = true
			}
		}
	}
	return doms
}

func sameSet(a, b map[*BasicBlock]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for k := range a {
		if !b[k] {
			return false
		}
	}
	return true
}

// Dominates reports whether a dominates b in f (using Dominators(f)'s
// result). A block dominates itself.
func Dominates(doms map[*BasicBlock]map[*BasicBlock]bool, a, b *BasicBlock) bool {
	set, ok := doms[b]
	return ok && set[a]
}
