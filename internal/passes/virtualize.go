package passes

import (
	"math/rand"

	"obfuscate/internal/ir"
)

// virtualizePass implements C6: every eligible integer binary op (width
// ≤ 64) is rewritten as a call to a lazily synthesized, module-internal
// helper function, then the original instruction is erased. Grounded on
// original_source/.../VM.cpp for the rewrite shape (operand casts to i64,
// lazy per-opcode helper creation, result cast back, replaceAllUsesWith +
// eraseFromParent) but, per spec.md §4.6, the Add/Sub/And/Or/Xor helper
// bodies implement an MBA identity rather than VM.cpp's single native
// BinaryOperator — only Shl/AShr/LShr stay direct native-op leaves, as
// spec.md's table specifies.
type virtualizePass struct{}

func init() { registerModulePass(virtualizePass{}) }

func (virtualizePass) Name() string { return "vm" }

func (p virtualizePass) RunOnModule(b *ir.Builder, rng *rand.Rand, m *ir.Module) Result {
	var res Result
	h := &vmHelpers{b: b, m: m, fns: map[string]*ir.Function{}}

	for _, f := range m.Functions {
		for _, bb := range f.Blocks {
			i := 0
			for i < len(bb.Instructions) {
				inst := bb.Instructions[i]
				bi, ok := inst.(*ir.BinaryInst)
				if ok && vmEligible(bi) {
					repl, inserted := h.rewrite(bb, i, bi)
					if repl != nil {
						ir.ReplaceAllUsesWith(bi.Res, repl)
						ir.EraseFromParent(bi)
						res.Modified = true
						i += inserted
						continue
					}
				}
				i++
			}
		}
	}
	return res
}

func vmEligible(bi *ir.BinaryInst) bool {
	it, ok := bi.LHS.Type().(*ir.IntType)
	if !ok || it.Width > 64 {
		return false
	}
	switch bi.Op {
	case ir.OpAdd, ir.OpSub, ir.OpShl, ir.OpAShr, ir.OpLShr, ir.OpAnd, ir.OpOr, ir.OpXor:
		return true
	default:
		return false
	}
}

// vmHelpers lazily builds and caches the eight __YANSOLLVM_VM_* functions
// (spec.md §6's stable name list), one per module pass invocation.
type vmHelpers struct {
	b   *ir.Builder
	m   *ir.Module
	fns map[string]*ir.Function
}

func (h *vmHelpers) getOrCreate(name string, build func(x, y ir.Value, bb *ir.BasicBlock)) *ir.Function {
	if f, ok := h.fns[name]; ok {
		return f
	}
	f := h.b.NewFunction(h.m, name, ir.I64, []*ir.Parameter{
		{Name: "x", Typ: ir.I64},
		{Name: "y", Typ: ir.I64},
	})
	f.SetLinkage(ir.LinkageInternal)
	f.AddAttr(ir.AttrNoInline)
	f.AddAttr(ir.AttrOptimizeNone)
	entry := h.b.NewBlock(f, "entry")
	h.fns[name] = f
	build(f.Args[0], f.Args[1], entry)
	return f
}

// addFn: (x|~y) + (~x & y) - ~(x&y) + (x|y)
func (h *vmHelpers) addFn() *ir.Function {
	return h.getOrCreate("__YANSOLLVM_VM_Add", func(x, y ir.Value, bb *ir.BasicBlock) {
		b := h.b
		notY := b.Binary(bb, ir.OpXor, y, allOnes(ir.I64), "")
		t1 := b.Binary(bb, ir.OpOr, x, notY, "")
		notX := b.Binary(bb, ir.OpXor, x, allOnes(ir.I64), "")
		t2 := b.Binary(bb, ir.OpAnd, notX, y, "")
		andxy := b.Binary(bb, ir.OpAnd, x, y, "")
		notAndxy := b.Binary(bb, ir.OpXor, andxy, allOnes(ir.I64), "")
		orxy := b.Binary(bb, ir.OpOr, x, y, "")
		sum := b.Binary(bb, ir.OpAdd, t1, t2, "")
		sum = b.Binary(bb, ir.OpSub, sum, notAndxy, "")
		sum = b.Binary(bb, ir.OpAdd, sum, orxy, "")
		b.Ret(bb, sum)
	})
}

// subFn: Add(x, ~y) + 1
func (h *vmHelpers) subFn() *ir.Function {
	addFn := h.addFn()
	return h.getOrCreate("__YANSOLLVM_VM_Sub", func(x, y ir.Value, bb *ir.BasicBlock) {
		b := h.b
		notY := b.Binary(bb, ir.OpXor, y, allOnes(ir.I64), "")
		call := b.Call(bb, addFn, []ir.Value{x, notY}, "")
		res := b.Binary(bb, ir.OpAdd, call, intConst(ir.I64, 1), "")
		b.Ret(bb, res)
	})
}

// andFn: (~x | y) + (x & ~y) - ~(x&y)
func (h *vmHelpers) andFn() *ir.Function {
	return h.getOrCreate("__YANSOLLVM_VM_And", func(x, y ir.Value, bb *ir.BasicBlock) {
		b := h.b
		notX := b.Binary(bb, ir.OpXor, x, allOnes(ir.I64), "")
		t1 := b.Binary(bb, ir.OpOr, notX, y, "")
		notY := b.Binary(bb, ir.OpXor, y, allOnes(ir.I64), "")
		t2 := b.Binary(bb, ir.OpAnd, x, notY, "")
		andxy := b.Binary(bb, ir.OpAnd, x, y, "")
		notAndxy := b.Binary(bb, ir.OpXor, andxy, allOnes(ir.I64), "")
		sum := b.Binary(bb, ir.OpAdd, t1, t2, "")
		sum = b.Binary(bb, ir.OpSub, sum, notAndxy, "")
		b.Ret(bb, sum)
	})
}

// orFn: (x^y) + y - (~x & y)
func (h *vmHelpers) orFn() *ir.Function {
	return h.getOrCreate("__YANSOLLVM_VM_Or", func(x, y ir.Value, bb *ir.BasicBlock) {
		b := h.b
		xorxy := b.Binary(bb, ir.OpXor, x, y, "")
		notX := b.Binary(bb, ir.OpXor, x, allOnes(ir.I64), "")
		t := b.Binary(bb, ir.OpAnd, notX, y, "")
		sum := b.Binary(bb, ir.OpAdd, xorxy, y, "")
		sum = b.Binary(bb, ir.OpSub, sum, t, "")
		b.Ret(bb, sum)
	})
}

// xorFn: Add(x,y) - Shl(x&y, 1)
func (h *vmHelpers) xorFn() *ir.Function {
	addFn := h.addFn()
	shlFn := h.shlFn()
	return h.getOrCreate("__YANSOLLVM_VM_Xor", func(x, y ir.Value, bb *ir.BasicBlock) {
		b := h.b
		addCall := b.Call(bb, addFn, []ir.Value{x, y}, "")
		andxy := b.Binary(bb, ir.OpAnd, x, y, "")
		shlCall := b.Call(bb, shlFn, []ir.Value{andxy, intConst(ir.I64, 1)}, "")
		res := b.Binary(bb, ir.OpSub, addCall, shlCall, "")
		b.Ret(bb, res)
	})
}

func (h *vmHelpers) shlFn() *ir.Function {
	return h.getOrCreate("__YANSOLLVM_VM_Shl", func(x, y ir.Value, bb *ir.BasicBlock) {
		res := h.b.Binary(bb, ir.OpShl, x, y, "")
		h.b.Ret(bb, res)
	})
}

func (h *vmHelpers) ashrFn() *ir.Function {
	return h.getOrCreate("__YANSOLLVM_VM_AShr", func(x, y ir.Value, bb *ir.BasicBlock) {
		res := h.b.Binary(bb, ir.OpAShr, x, y, "")
		h.b.Ret(bb, res)
	})
}

func (h *vmHelpers) lshrFn() *ir.Function {
	return h.getOrCreate("__YANSOLLVM_VM_LShr", func(x, y ir.Value, bb *ir.BasicBlock) {
		res := h.b.Binary(bb, ir.OpLShr, x, y, "")
		h.b.Ret(bb, res)
	})
}

// rewrite builds the cast/call/cast-back sequence immediately before
// bi and returns the replacement value plus how many instructions were
// inserted. AShr casts signed, matching original_source/.../VM.cpp; every
// other opcode casts unsigned.
func (h *vmHelpers) rewrite(bb *ir.BasicBlock, idx int, bi *ir.BinaryInst) (ir.Value, int) {
	var helper *ir.Function
	signed := false
	switch bi.Op {
	case ir.OpAdd:
		helper = h.addFn()
	case ir.OpSub:
		helper = h.subFn()
	case ir.OpAnd:
		helper = h.andFn()
	case ir.OpOr:
		helper = h.orFn()
	case ir.OpXor:
		helper = h.xorFn()
	case ir.OpShl:
		helper = h.shlFn()
	case ir.OpAShr:
		helper = h.ashrFn()
		signed = true
	case ir.OpLShr:
		helper = h.lshrFn()
	default:
		return nil, 0
	}

	e := newEmitter(h.b, bb, idx)
	lhs := e.intCast(bi.LHS, ir.I64, signed)
	rhs := e.intCast(bi.RHS, ir.I64, signed)
	call := e.call(helper, []ir.Value{lhs, rhs})
	back := e.intCast(call, bi.Res.Typ, false)
	return back, e.inserted(idx)
}
