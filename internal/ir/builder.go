package ir

// Builder constructs a Module incrementally, assigning monotonically
// increasing IDs to values and instructions and maintaining each
// InstValue's use list as operands are wired up. It builds new
// functions/blocks from scratch (e.g. BB2Func's extracted function and
// Merge's dispatcher) and, through InsertBefore, SetOperand and
// SplitBasicBlock, is also what passes use to rewrite existing functions
// in place.
type Builder struct {
	nextID int
}

func NewBuilder() *Builder { return &Builder{} }

func (b *Builder) id() int {
	b.nextID++
	return b.nextID
}

func NewModule(identifier, triple string) *Module {
	return &Module{Identifier: identifier, TargetTriple: triple}
}

func (b *Builder) NewFunction(m *Module, name string, ret Type, params []*Parameter) *Function {
	f := &Function{
		globalBase: globalBase{Name: name, Linkage: LinkageExternal},
		Params:     params,
		ReturnType: ret,
		Parent:     m,
	}
	for idx, p := range params {
		f.Args = append(f.Args, &Argument{Name: p.Name, Typ: p.Typ, Parent: f, Index: idx})
	}
	if m != nil {
		m.Functions = append(m.Functions, f)
	}
	return f
}

func (b *Builder) NewBlock(f *Function, name string) *BasicBlock {
	bb := &BasicBlock{Name: name, Parent: f}
	if f != nil {
		f.Blocks = append(f.Blocks, bb)
	}
	return bb
}

// addUse records that user consumes v at operand index idx, if v is an
// InstValue (the only Value kind that tracks uses).
func addUse(v Value, user Instruction, idx int) {
	iv, ok := v.(*InstValue)
	if !ok || iv == nil {
		return
	}
	iv.Uses = append(iv.Uses, &Use{Value: v, User: user, Index: idx})
}

// appendInst appends inst to bb's body and wires use-list entries for its
// operands. It does not handle terminators; use SetTerminator for those.
func (b *Builder) appendInst(bb *BasicBlock, inst Instruction) {
	inst.setParent(bb)
	for idx, op := range inst.Operands() {
		addUse(op, inst, idx)
	}
	bb.Instructions = append(bb.Instructions, inst)
}

func (b *Builder) SetTerminator(bb *BasicBlock, term Terminator) {
	term.setParent(bb)
	for idx, op := range term.Operands() {
		addUse(op, term, idx)
	}
	bb.Terminator = term
}

func (b *Builder) Alloca(bb *BasicBlock, typ Type, name string) *InstValue {
	res := &InstValue{ID: b.id(), Name: name, Typ: &PointerType{Elem: typ}, Block: bb}
	inst := &AllocaInst{ID: res.ID, Res: res, Alloc: typ}
	res.Def = inst
	b.appendInst(bb, inst)
	return res
}

func (b *Builder) Load(bb *BasicBlock, addr Value, elemTyp Type, name string) *InstValue {
	res := &InstValue{ID: b.id(), Name: name, Typ: elemTyp, Block: bb}
	inst := &LoadInst{ID: res.ID, Res: res, Addr: addr}
	res.Def = inst
	b.appendInst(bb, inst)
	return res
}

func (b *Builder) Store(bb *BasicBlock, val, addr Value) {
	inst := &StoreInst{ID: b.id(), Val: val, Addr: addr}
	b.appendInst(bb, inst)
}

func (b *Builder) Binary(bb *BasicBlock, op BinOp, lhs, rhs Value, name string) *InstValue {
	res := &InstValue{ID: b.id(), Name: name, Typ: lhs.Type(), Block: bb}
	inst := &BinaryInst{ID: res.ID, Res: res, Op: op, LHS: lhs, RHS: rhs}
	res.Def = inst
	b.appendInst(bb, inst)
	return res
}

func (b *Builder) ICmp(bb *BasicBlock, pred ICmpPred, lhs, rhs Value, name string) *InstValue {
	res := &InstValue{ID: b.id(), Name: name, Typ: I1, Block: bb}
	inst := &ICmpInst{ID: res.ID, Res: res, Pred: pred, LHS: lhs, RHS: rhs}
	res.Def = inst
	b.appendInst(bb, inst)
	return res
}

func (b *Builder) Cast(bb *BasicBlock, op CastOp, src Value, to Type, name string) *InstValue {
	res := &InstValue{ID: b.id(), Name: name, Typ: to, Block: bb}
	inst := &CastInst{ID: res.ID, Res: res, Op: op, Src: src}
	res.Def = inst
	b.appendInst(bb, inst)
	return res
}

func (b *Builder) Select(bb *BasicBlock, cond, t, f Value, name string) *InstValue {
	res := &InstValue{ID: b.id(), Name: name, Typ: t.Type(), Block: bb}
	inst := &SelectInst{ID: res.ID, Res: res, Cond: cond, TrueV: t, FalseV: f}
	res.Def = inst
	b.appendInst(bb, inst)
	return res
}

func (b *Builder) Phi(bb *BasicBlock, typ Type, name string) *PHIInst {
	res := &InstValue{ID: b.id(), Name: name, Typ: typ, Block: bb}
	inst := &PHIInst{ID: res.ID, Res: res}
	res.Def = inst
	// PHIs are inserted at the block head, never via appendInst ordering
	// rules; callers use AddIncoming then InsertPhiFront.
	return inst
}

// InsertPhiFront prepends a fully-built PHI to bb's instruction list and
// wires its use-list entries.
func (b *Builder) InsertPhiFront(bb *BasicBlock, phi *PHIInst) {
	phi.setParent(bb)
	for idx, e := range phi.Incoming {
		addUse(e.Val, phi, idx)
	}
	bb.Instructions = append([]Instruction{phi}, bb.Instructions...)
}

func (p *PHIInst) AddIncoming(bb *BasicBlock, v Value) {
	p.Incoming = append(p.Incoming, PHIEdge{Block: bb, Val: v})
}

func (b *Builder) Call(bb *BasicBlock, callee *Function, args []Value, name string) *InstValue {
	var res *InstValue
	var id int
	if _, void := callee.ReturnType.(*VoidType); !void {
		id = b.id()
		res = &InstValue{ID: id, Name: name, Typ: callee.ReturnType, Block: bb}
	} else {
		id = b.id()
	}
	inst := &CallInst{ID: id, Res: res, Callee: callee, Args: append([]Value{}, args...)}
	if res != nil {
		res.Def = inst
	}
	b.appendInst(bb, inst)
	return res
}

func (b *Builder) Ret(bb *BasicBlock, v Value) {
	b.SetTerminator(bb, &ReturnInst{ID: b.id(), Val: v})
}

func (b *Builder) Br(bb *BasicBlock, target *BasicBlock) {
	b.SetTerminator(bb, &BranchInst{ID: b.id(), Target: target})
}

func (b *Builder) CondBr(bb *BasicBlock, cond Value, t, f *BasicBlock) {
	b.SetTerminator(bb, &CondBranchInst{ID: b.id(), Cond: cond, TrueBB: t, FalseBB: f})
}

func (b *Builder) Switch(bb *BasicBlock, cond Value, def *BasicBlock) *SwitchInst {
	inst := &SwitchInst{ID: b.id(), Cond: cond, Default: def}
	b.SetTerminator(bb, inst)
	return inst
}

func (b *Builder) Unreachable(bb *BasicBlock) {
	b.SetTerminator(bb, &UnreachableInst{ID: b.id()})
}

// NextID returns a fresh globally unique value/instruction ID, exposed so
// passes can build instruction structs directly (e.g. to splice new
// instructions into the middle of an existing block) without going through
// the append-only NewX helpers above.
func (b *Builder) NextID() int { return b.id() }

// InsertBefore splices inst into bb immediately before the instruction
// currently at bb.Instructions[idx], wiring its operand uses the same way
// appendInst does. Used by passes (ObfuscateZero, ObfuscateConstant) that
// rewrite an operand in the middle of an existing block rather than
// building a function from scratch.
func (b *Builder) InsertBefore(bb *BasicBlock, idx int, inst Instruction) {
	inst.setParent(bb)
	for i, op := range inst.Operands() {
		addUse(op, inst, i)
	}
	tail := append([]Instruction{}, bb.Instructions[idx:]...)
	bb.Instructions = append(bb.Instructions[:idx:idx], inst)
	bb.Instructions = append(bb.Instructions, tail...)
}

// SetOperand replaces inst's operand at idx with v and records a use entry
// for v, mirroring what appendInst does for operands wired at construction
// time. It does not unlink any use the old operand held.
func (b *Builder) SetOperand(inst Instruction, idx int, v Value) {
	inst.SetOperand(idx, v)
	addUse(v, inst, idx)
}

// ReplaceAllUsesWith repoints every recorded use of old onto repl and
// clears old's use list, mirroring LLVM's Value::replaceAllUsesWith. Used
// by Merge, Virtualize and ExtractRegion whenever a value's defining
// instruction is relocated or replaced.
func ReplaceAllUsesWith(old *InstValue, repl Value) {
	for _, u := range old.Uses {
		u.User.SetOperand(u.Index, repl)
		addUse(repl, u.User, u.Index)
	}
	old.Uses = nil
}

// EraseFromParent removes inst from its parent block's instruction list.
// It does not unlink uses of its operands; callers that erase dead code
// must do so in reverse-dependency order or clear operands first.
func EraseFromParent(inst Instruction) {
	bb := inst.Parent()
	if bb == nil {
		return
	}
	if bb.Terminator == inst {
		bb.Terminator = nil
		return
	}
	for i, cur := range bb.Instructions {
		if cur == inst {
			bb.Instructions = append(bb.Instructions[:i], bb.Instructions[i+1:]...)
			return
		}
	}
}

// SplitBasicBlock splits bb immediately before the instruction at index
// splitIdx (within bb.Instructions; splitIdx == len(bb.Instructions) splits
// right before the terminator). The tail half becomes a new block named
// name, bb falls through to it unconditionally, and bb's original
// terminator (if any) moves to the tail. Used by Connect to carve bogus
// split points and by Flattening to split off a conditional entry block.
func (b *Builder) SplitBasicBlock(bb *BasicBlock, splitIdx int, name string) *BasicBlock {
	tail := &BasicBlock{Name: name, Parent: bb.Parent}
	tail.Instructions = append(tail.Instructions, bb.Instructions[splitIdx:]...)
	tail.Terminator = bb.Terminator
	for _, inst := range tail.Instructions {
		inst.setParent(tail)
	}
	if tail.Terminator != nil {
		tail.Terminator.setParent(tail)
	}
	bb.Instructions = bb.Instructions[:splitIdx]

	idx := -1
	for i, f := range bb.Parent.Blocks {
		if f == bb {
			idx = i
			break
		}
	}
	if idx >= 0 {
		rest := append([]*BasicBlock{}, bb.Parent.Blocks[idx+1:]...)
		bb.Parent.Blocks = append(bb.Parent.Blocks[:idx+1], tail)
		bb.Parent.Blocks = append(bb.Parent.Blocks, rest...)
	} else {
		bb.Parent.Blocks = append(bb.Parent.Blocks, tail)
	}

	b.SetTerminator(bb, &BranchInst{ID: b.id(), Target: tail})
	return tail
}
