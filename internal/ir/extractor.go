package ir

// Region is a candidate set of blocks for extraction into a standalone
// function (BB2Func, C4). passes.BB2Func only ever builds single-block
// regions, matching BB2Func.cpp's `blocks.push_back(BB)` usage of LLVM's
// CodeExtractor; Region itself stays a slice so a future multi-block
// extractor needs no interface change.
type Region struct {
	Blocks []*BasicBlock
}

func (r *Region) contains(bb *BasicBlock) bool {
	for _, b := range r.Blocks {
		if b == bb {
			return true
		}
	}
	return false
}

// Eligible mirrors CodeExtractor::isEligible's load-bearing checks,
// narrowed to what this IR can re-attach after extraction: the region must
// be non-empty, contain no PHI nodes (CodeExtractor also bails on regions
// whose entry has PHI predecessors it can't rewrite), and its last block's
// terminator must be a Branch, CondBranch or Switch — a Return,
// Unreachable or Invoke terminator has no "resume here" successor for the
// call site to dispatch to, so such regions are left alone (Invoke is
// additionally excluded by spec.md's Non-goal on exception edges).
func (r *Region) Eligible() bool {
	if len(r.Blocks) == 0 {
		return false
	}
	for _, bb := range r.Blocks {
		if bb.Terminator == nil {
			return false
		}
		for _, inst := range bb.Instructions {
			if _, ok := inst.(*PHIInst); ok {
				return false
			}
		}
	}
	last := r.Blocks[len(r.Blocks)-1]
	switch last.Terminator.(type) {
	case *BranchInst, *CondBranchInst, *SwitchInst:
		return true
	default:
		return false
	}
}

// ExtractRegion lifts r out of its parent function into a new function
// named name, replacing r's blocks in-place with a single call block.
// Live-in values (operands defined outside r, including the enclosing
// function's own Arguments) become the new function's parameters in
// first-use order. Live-out values (results defined inside r and used
// outside it) are written back through trailing pointer out-parameters,
// since this IR has no aggregate/struct type to bundle them into the way
// CodeExtractor's synthesized "switch on return struct" would (a
// deliberate simplification, recorded in DESIGN.md).
//
// The region's own terminator, which may branch to more than one original
// successor, is preserved inside the new function; each of its targets is
// replaced by a small exit thunk that stores the live-outs and returns a
// distinct i32 selector. The call site switches on that selector to reach
// the real original successors, which remain untouched in the caller.
func ExtractRegion(b *Builder, r *Region, name string) (*Function, *CallInst) {
	if !r.Eligible() {
		return nil, nil
	}
	entryBB := r.Blocks[0]
	f := entryBB.Parent
	mod := f.Parent

	_, liveInOrder := collectLiveIn(r)
	liveOut := collectLiveOut(r)

	newFn := &Function{
		globalBase: globalBase{Name: name, Linkage: LinkageInternal},
		ReturnType: I32,
		Parent:     mod,
	}
	newFn.AddAttr(AttrNoInline)
	newFn.AddAttr(AttrOptimizeNone)
	mod.Functions = append(mod.Functions, newFn)

	vmap := map[Value]Value{}
	for _, v := range liveInOrder {
		p := &Parameter{Name: paramName(v), Typ: v.Type()}
		newFn.Params = append(newFn.Params, p)
		arg := &Argument{Name: p.Name, Typ: p.Typ, Parent: newFn, Index: len(newFn.Params) - 1}
		newFn.Args = append(newFn.Args, arg)
		vmap[v] = arg
	}
	outSlots := make([]*Parameter, len(liveOut))
	for i, v := range liveOut {
		p := &Parameter{Name: paramName(v) + ".out", Typ: &PointerType{Elem: v.Type()}}
		newFn.Params = append(newFn.Params, p)
		arg := &Argument{Name: p.Name, Typ: p.Typ, Parent: newFn, Index: len(newFn.Params) - 1}
		newFn.Args = append(newFn.Args, arg)
		outSlots[i] = p
		_ = arg
	}

	bbmap := map[*BasicBlock]*BasicBlock{}
	for _, bb := range r.Blocks {
		bbmap[bb] = &BasicBlock{Name: bb.Name, Parent: newFn}
		newFn.Blocks = append(newFn.Blocks, bbmap[bb])
	}
	for _, bb := range r.Blocks {
		nb := bbmap[bb]
		for _, inst := range bb.Instructions {
			nb.Instructions = append(nb.Instructions, cloneInst(b, inst, vmap, bbmap))
		}
	}

	last := r.Blocks[len(r.Blocks)-1]
	origSuccessors := last.Terminator.Successors()
	exitOf := map[*BasicBlock]int{}
	var uniqueExits []*BasicBlock
	for _, s := range origSuccessors {
		if _, ok := exitOf[s]; !ok {
			exitOf[s] = len(uniqueExits)
			uniqueExits = append(uniqueExits, s)
		}
	}
	thunks := make([]*BasicBlock, len(uniqueExits))
	for i := range uniqueExits {
		thunk := &BasicBlock{Name: name + ".exit" + itoa(i), Parent: newFn}
		newFn.Blocks = append(newFn.Blocks, thunk)
		for j, v := range liveOut {
			argVal := findArgByName(newFn, outSlots[j].Name)
			st := &StoreInst{ID: b.id(), Val: resolve(vmap, v), Addr: argVal}
			b.appendInst(thunk, st)
		}
		b.Ret(thunk, &ConstantInt{Typ: I32, Val: uint64(i)})
		thunks[i] = thunk
	}

	newLast := bbmap[last]
	newLast.Terminator = remapTerminator(last.Terminator, vmap, bbmap, exitOf, thunks)
	for idx, op := range newLast.Terminator.Operands() {
		addUse(op, newLast.Terminator, idx)
	}

	callBlock := entryBB
	callBlock.Instructions = nil
	callBlock.Terminator = nil
	for i := 1; i < len(r.Blocks); i++ {
		removeBlock(f, r.Blocks[i])
	}

	args := make([]Value, 0, len(liveInOrder)+len(liveOut))
	for _, v := range liveInOrder {
		args = append(args, v)
	}
	outAllocas := make([]*InstValue, len(liveOut))
	entryOfCaller := f.Blocks[0]
	for i, v := range liveOut {
		slot := b.Alloca(entryOfCaller, v.Type(), paramName(v)+".outslot")
		outAllocas[i] = slot
		args = append(args, slot)
	}

	callRes := &InstValue{ID: b.id(), Name: name + ".sel", Typ: I32, Block: callBlock}
	call := &CallInst{ID: callRes.ID, Res: callRes, Callee: newFn, Args: args}
	callRes.Def = call
	b.appendInst(callBlock, call)

	for i, v := range liveOut {
		loadRes := &InstValue{ID: b.id(), Name: paramName(v) + ".reload", Typ: v.Type(), Block: callBlock}
		load := &LoadInst{ID: loadRes.ID, Res: loadRes, Addr: outAllocas[i]}
		loadRes.Def = load
		b.appendInst(callBlock, load)
		ReplaceAllUsesWith(v, loadRes)
	}

	if len(uniqueExits) == 1 {
		b.Br(callBlock, uniqueExits[0])
	} else {
		sw := b.Switch(callBlock, callRes, uniqueExits[len(uniqueExits)-1])
		for i := 0; i < len(uniqueExits)-1; i++ {
			sw.AddCase(&ConstantInt{Typ: I32, Val: uint64(i)}, uniqueExits[i])
		}
	}

	return newFn, call
}

func findArgByName(f *Function, name string) *Argument {
	for _, a := range f.Args {
		if a.Name == name {
			return a
		}
	}
	return nil
}

func removeBlock(f *Function, bb *BasicBlock) {
	for i, b := range f.Blocks {
		if b == bb {
			f.Blocks = append(f.Blocks[:i], f.Blocks[i+1:]...)
			return
		}
	}
}

func paramName(v Value) string {
	if iv, ok := v.(*InstValue); ok && iv.Name != "" {
		return iv.Name
	}
	if a, ok := v.(*Argument); ok {
		return a.Name
	}
	return "v"
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	return string(buf[pos:])
}

func resolve(vmap map[Value]Value, v Value) Value {
	if nv, ok := vmap[v]; ok {
		return nv
	}
	return v
}

// collectLiveIn walks r's instructions in order and returns every operand
// defined outside r (another block's InstValue, or an Argument of the
// enclosing function), deduplicated in first-use order. Constants and
// global references need no parameter slot since they are immutable and
// reusable as-is in the extracted function.
func collectLiveIn(r *Region) (map[Value]bool, []Value) {
	inRegion := map[Instruction]bool{}
	for _, bb := range r.Blocks {
		for _, inst := range bb.Instructions {
			inRegion[inst] = true
		}
		if bb.Terminator != nil {
			inRegion[bb.Terminator] = true
		}
	}
	seen := map[Value]bool{}
	var order []Value
	consider := func(v Value) {
		switch vv := v.(type) {
		case *InstValue:
			if inRegion[vv.Def] {
				return
			}
		case *ConstantInt, *ConstantNull, *GlobalRef, *BlockAddress, *InlineAsmValue:
			return
		case *Argument:
			_ = vv
		default:
			return
		}
		if !seen[v] {
			seen[v] = true
			order = append(order, v)
		}
	}
	for _, bb := range r.Blocks {
		for _, inst := range bb.Instructions {
			for _, op := range inst.Operands() {
				consider(op)
			}
		}
		if bb.Terminator != nil {
			for _, op := range bb.Terminator.Operands() {
				consider(op)
			}
		}
	}
	return seen, order
}

// collectLiveOut returns, in definition order, every InstValue defined
// inside r whose uses include at least one instruction outside r.
func collectLiveOut(r *Region) []*InstValue {
	var out []*InstValue
	for _, bb := range r.Blocks {
		for _, inst := range bb.Instructions {
			res := inst.Result()
			if res == nil {
				continue
			}
			for _, u := range res.Uses {
				if !r.contains(u.User.Parent()) {
					out = append(out, res)
					break
				}
			}
		}
	}
	return out
}

// cloneInst builds a copy of inst with operands remapped through vmap
// (falling back to the original value when absent, i.e. for constants)
// and successor blocks remapped through bbmap. It never clones a
// terminator; callers handle the region's single exit-bearing terminator
// separately via remapTerminator.
func cloneInst(b *Builder, inst Instruction, vmap map[Value]Value, bbmap map[*BasicBlock]*BasicBlock) Instruction {
	newID := b.id()
	var res *InstValue
	if r := inst.Result(); r != nil {
		res = &InstValue{ID: newID, Name: r.Name, Typ: r.Typ}
	}
	var out Instruction
	switch v := inst.(type) {
	case *AllocaInst:
		out = &AllocaInst{ID: newID, Res: res, Alloc: v.Alloc}
	case *LoadInst:
		out = &LoadInst{ID: newID, Res: res, Addr: resolve(vmap, v.Addr)}
	case *StoreInst:
		out = &StoreInst{ID: newID, Val: resolve(vmap, v.Val), Addr: resolve(vmap, v.Addr)}
	case *BinaryInst:
		out = &BinaryInst{ID: newID, Res: res, Op: v.Op, LHS: resolve(vmap, v.LHS), RHS: resolve(vmap, v.RHS)}
	case *ICmpInst:
		out = &ICmpInst{ID: newID, Res: res, Pred: v.Pred, LHS: resolve(vmap, v.LHS), RHS: resolve(vmap, v.RHS)}
	case *CastInst:
		out = &CastInst{ID: newID, Res: res, Op: v.Op, Src: resolve(vmap, v.Src)}
	case *SelectInst:
		out = &SelectInst{ID: newID, Res: res, Cond: resolve(vmap, v.Cond), TrueV: resolve(vmap, v.TrueV), FalseV: resolve(vmap, v.FalseV)}
	case *GEPInst:
		idxs := make([]Value, len(v.Indices))
		for i, idx := range v.Indices {
			idxs[i] = resolve(vmap, idx)
		}
		out = &GEPInst{ID: newID, Res: res, Base: resolve(vmap, v.Base), Indices: idxs}
	case *CallInst:
		args := make([]Value, len(v.Args))
		for i, a := range v.Args {
			args[i] = resolve(vmap, a)
		}
		out = &CallInst{ID: newID, Res: res, Callee: v.Callee, Args: args}
	default:
		out = &UnreachableInst{ID: newID}
	}
	if res != nil {
		res.Def = out
		vmap[inst.Result()] = res
	}
	for idx, op := range out.Operands() {
		addUse(op, out, idx)
	}
	return out
}

// remapTerminator clones term's operands through vmap but points every
// successor at its exit thunk rather than the original target, using
// exitOf/thunks to translate.
func remapTerminator(term Terminator, vmap map[Value]Value, bbmap map[*BasicBlock]*BasicBlock, exitOf map[*BasicBlock]int, thunks []*BasicBlock) Terminator {
	target := func(bb *BasicBlock) *BasicBlock {
		if t, ok := bbmap[bb]; ok {
			return t
		}
		return thunks[exitOf[bb]]
	}
	switch v := term.(type) {
	case *BranchInst:
		return &BranchInst{ID: v.ID, Target: target(v.Target)}
	case *CondBranchInst:
		return &CondBranchInst{ID: v.ID, Cond: resolve(vmap, v.Cond), TrueBB: target(v.TrueBB), FalseBB: target(v.FalseBB)}
	case *SwitchInst:
		sw := &SwitchInst{ID: v.ID, Cond: resolve(vmap, v.Cond), Default: target(v.Default)}
		for _, c := range v.Cases {
			sw.Cases = append(sw.Cases, SwitchCase{Val: c.Val, BB: target(c.BB)})
		}
		return sw
	case *ReturnInst:
		return &ReturnInst{ID: v.ID, Val: resolve(vmap, v.Val)}
	default:
		return &UnreachableInst{ID: term.InstID()}
	}
}
