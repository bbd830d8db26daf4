package ir

// CloneModule produces a new Module containing only the global values for
// which keep returns true, remapping call targets and global references
// to the cloned copies (BlockAddress operands are not remapped and still
// name m's function and block) and leaving
// external declarations in their place for anything dropped — the same
// shape as Func2Mod.cpp's `CloneModule(M, VMap, ShouldCloneDefinition)`.
// Declaration-only stubs are emitted for functions/globals that exist in m
// but were not kept, so call sites inside the kept partition still
// resolve.
func CloneModule(m *Module, keep func(GlobalValue) bool) *Module {
	out := &Module{Identifier: m.Identifier, TargetTriple: m.TargetTriple}

	fnMap := map[*Function]*Function{}
	gvMap := map[*GlobalVariable]*GlobalVariable{}
	aliasMap := map[*Alias]*Alias{}

	for _, f := range m.Functions {
		nf := &Function{
			globalBase:  f.globalBase,
			Params:      f.Params,
			ReturnType:  f.ReturnType,
			VarArg:      f.VarArg,
			CallingConv: f.CallingConv,
			Parent:      out,
		}
		if f.Attrs != nil {
			nf.Attrs = map[Attribute]bool{}
			for k, v := range f.Attrs {
				nf.Attrs[k] = v
			}
		}
		if !keep(f) {
			nf.Blocks = nil
			nf.declarationOnly = true
		}
		for idx, p := range f.Params {
			nf.Args = append(nf.Args, &Argument{Name: p.Name, Typ: p.Typ, Parent: nf, Index: idx})
		}
		out.Functions = append(out.Functions, nf)
		fnMap[f] = nf
	}

	for _, g := range m.Globals {
		ng := &GlobalVariable{globalBase: g.globalBase, Typ: g.Typ}
		if !keep(g) {
			ng.Initializer = nil
			ng.declarationOnly = true
		} else {
			ng.Initializer = g.Initializer
		}
		out.Globals = append(out.Globals, ng)
		gvMap[g] = ng
	}

	for _, a := range m.Aliases {
		na := &Alias{globalBase: a.globalBase}
		out.Aliases = append(out.Aliases, na)
		aliasMap[a] = na
	}
	for _, a := range m.Aliases {
		aliasMap[a].Aliasee = remapGlobal(a.Aliasee, fnMap, gvMap, aliasMap)
	}

	// Bodies are only cloned for kept functions; dropped ones stay
	// declarations (handled above), matching externalize()'s model of a
	// split module where each partition only defines what it owns.
	for _, f := range m.Functions {
		nf := fnMap[f]
		if nf.declarationOnly {
			continue
		}
		cloneFunctionBody(f, nf, fnMap, gvMap)
	}

	return out
}

func remapGlobal(gv GlobalValue, fnMap map[*Function]*Function, gvMap map[*GlobalVariable]*GlobalVariable, aliasMap map[*Alias]*Alias) GlobalValue {
	switch v := gv.(type) {
	case *Function:
		return fnMap[v]
	case *GlobalVariable:
		return gvMap[v]
	case *Alias:
		return aliasMap[v]
	default:
		return gv
	}
}

func cloneFunctionBody(src, dst *Function, fnMap map[*Function]*Function, gvMap map[*GlobalVariable]*GlobalVariable) {
	b := NewBuilder()
	vmap := map[Value]Value{}
	for i, a := range src.Args {
		vmap[a] = dst.Args[i]
	}
	bbmap := map[*BasicBlock]*BasicBlock{}
	for _, bb := range src.Blocks {
		bbmap[bb] = &BasicBlock{Name: bb.Name, Parent: dst}
		dst.Blocks = append(dst.Blocks, bbmap[bb])
	}
	resolveGV := func(v Value) Value {
		if gr, ok := v.(*GlobalRef); ok {
			return &GlobalRef{Target: remapGlobal(gr.Target, fnMap, gvMap, map[*Alias]*Alias{})}
		}
		return resolve(vmap, v)
	}
	for _, bb := range src.Blocks {
		nb := bbmap[bb]
		for _, inst := range bb.Instructions {
			nb.Instructions = append(nb.Instructions, cloneInstWithGlobals(b, inst, vmap, resolveGV, fnMap))
		}
		if bb.Terminator != nil {
			nb.Terminator = remapTerminator(bb.Terminator, vmap, bbmap, nil, nil)
			for idx, op := range nb.Terminator.Operands() {
				addUse(op, nb.Terminator, idx)
			}
		}
	}
}

// cloneInstWithGlobals is cloneInst plus global-reference rewriting
// (cloneInst alone only remaps block-local SSA values); Func2Mod is the
// only caller that needs call targets repointed at a sibling module's
// cloned Function.
func cloneInstWithGlobals(b *Builder, inst Instruction, vmap map[Value]Value, resolveGV func(Value) Value, fnMap map[*Function]*Function) Instruction {
	if call, ok := inst.(*CallInst); ok {
		newID := b.id()
		var res *InstValue
		if r := call.Result(); r != nil {
			res = &InstValue{ID: newID, Name: r.Name, Typ: r.Typ}
		}
		args := make([]Value, len(call.Args))
		for i, a := range call.Args {
			args[i] = resolveGV(a)
		}
		callee := call.Callee
		if mapped, ok := fnMap[call.Callee]; ok {
			callee = mapped
		}
		out := &CallInst{ID: newID, Res: res, Callee: callee, Args: args, CallingConv: call.CallingConv}
		if res != nil {
			res.Def = out
			vmap[call.Result()] = res
		}
		for idx, op := range out.Operands() {
			addUse(op, out, idx)
		}
		return out
	}
	for _, op := range inst.Operands() {
		if gr, ok := op.(*GlobalRef); ok {
			vmap[gr] = resolveGV(gr)
		}
	}
	return cloneInst(b, inst, vmap, map[*BasicBlock]*BasicBlock{})
}
