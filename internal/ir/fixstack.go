package ir

// valueEscapes reports whether inst's result is used by a PHI or by an
// instruction in a different block than inst itself — the exact test
// Util.cpp's valueEscapes performs.
func valueEscapes(inst Instruction) bool {
	res := inst.Result()
	if res == nil {
		return false
	}
	home := inst.Parent()
	for _, u := range res.Uses {
		if _, isPhi := u.User.(*PHIInst); isPhi {
			return true
		}
		if u.User.Parent() != home {
			return true
		}
	}
	return false
}

// FixStack repeatedly demotes PHI nodes and cross-block-escaping values to
// stack slots until a fixed point is reached, i.e. no PHI nodes and no
// escaping values remain. This is the SSA-repair step every CFG-mutating
// pass runs before returning, since splitting/duplicating/relocating
// blocks can turn a value that was block-local into one used from a
// different block or merged via a PHI the pass did not intend to keep.
func FixStack(b *Builder, f *Function) {
	if len(f.Blocks) == 0 {
		return
	}
	entry := f.Blocks[0]
	for {
		var phis []*PHIInst
		var regs []Instruction

		for _, bb := range f.Blocks {
			for _, inst := range bb.Instructions {
				if phi, ok := inst.(*PHIInst); ok {
					phis = append(phis, phi)
					continue
				}
				if _, isAlloca := inst.(*AllocaInst); isAlloca && bb == entry {
					continue
				}
				if valueEscapes(inst) {
					regs = append(regs, inst)
				}
			}
		}

		for _, inst := range regs {
			demoteRegToStack(b, inst, entry)
		}
		for _, phi := range phis {
			demotePHIToStack(b, phi, entry)
		}

		if len(regs) == 0 && len(phis) == 0 {
			return
		}
	}
}

// demoteRegToStack allocates a stack slot in entry for inst's result,
// stores the value immediately after inst, and replaces every remaining
// use with a load inserted just before that use — LLVM's
// DemoteRegToStack, specialized to this IR.
func demoteRegToStack(b *Builder, inst Instruction, entry *BasicBlock) {
	res := inst.Result()
	if res == nil {
		return
	}
	slot := b.Alloca(entry, res.Typ, res.Name+".slot")

	home := inst.Parent()
	storeIdx := indexOf(home.Instructions, inst) + 1
	store := &StoreInst{ID: freshID(b), Val: res, Addr: slot}
	insertAt(home, storeIdx, store)
	addUse(res, store, 0)
	addUse(slot, store, 1)

	uses := append([]*Use{}, res.Uses...)
	res.Uses = nil
	for _, u := range uses {
		if u.User == store {
			continue
		}
		ub := u.User.Parent()
		loadRes := &InstValue{ID: freshID(b), Name: res.Name + ".reload", Typ: res.Typ, Block: ub}
		load := &LoadInst{ID: loadRes.ID, Res: loadRes, Addr: slot}
		loadRes.Def = load
		insertBefore(ub, u.User, load)
		addUse(slot, load, 0)
		u.User.SetOperand(u.Index, loadRes)
		addUse(loadRes, u.User, u.Index)
	}
}

// demotePHIToStack allocates a stack slot in entry for phi's result,
// replaces the PHI with loads at its use sites, and stores the
// corresponding incoming value at the end of each predecessor edge block
// (just before that block's terminator) — LLVM's DemotePHIToStack.
func demotePHIToStack(b *Builder, phi *PHIInst, entry *BasicBlock) {
	res := phi.Res
	slot := b.Alloca(entry, res.Typ, res.Name+".slot")

	for _, edge := range phi.Incoming {
		pred := edge.Block
		store := &StoreInst{ID: freshID(b), Val: edge.Val, Addr: slot}
		insertAt(pred, len(pred.Instructions), store)
		addUse(edge.Val, store, 0)
		addUse(slot, store, 1)
	}

	uses := append([]*Use{}, res.Uses...)
	res.Uses = nil
	for _, u := range uses {
		ub := u.User.Parent()
		loadRes := &InstValue{ID: freshID(b), Name: res.Name + ".reload", Typ: res.Typ, Block: ub}
		load := &LoadInst{ID: loadRes.ID, Res: loadRes, Addr: slot}
		loadRes.Def = load
		insertBefore(ub, u.User, load)
		addUse(slot, load, 0)
		u.User.SetOperand(u.Index, loadRes)
		addUse(loadRes, u.User, u.Index)
	}

	EraseFromParent(phi)
}

func freshID(b *Builder) int { return b.id() }

func indexOf(list []Instruction, target Instruction) int {
	for i, v := range list {
		if v == target {
			return i
		}
	}
	return -1
}

func insertAt(bb *BasicBlock, idx int, inst Instruction) {
	inst.setParent(bb)
	if idx >= len(bb.Instructions) {
		bb.Instructions = append(bb.Instructions, inst)
		return
	}
	bb.Instructions = append(bb.Instructions, nil)
	copy(bb.Instructions[idx+1:], bb.Instructions[idx:])
	bb.Instructions[idx] = inst
}

func insertBefore(bb *BasicBlock, before Instruction, inst Instruction) {
	idx := indexOf(bb.Instructions, before)
	if idx < 0 {
		idx = len(bb.Instructions)
	}
	insertAt(bb, idx, inst)
}
