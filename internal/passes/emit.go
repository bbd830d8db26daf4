package passes

import "obfuscate/internal/ir"

// emitter inserts instructions one at a time at an advancing cursor inside
// a single basic block, so a multi-step expression (an MBA identity, a
// constant-splitting sequence) can be written as a flat sequence of calls
// instead of manual index bookkeeping. Shared by ObfuscateConstant,
// Virtualize and Merge, which splice expressions into the middle of an
// existing block rather than building a function from scratch.
type emitter struct {
	b   *ir.Builder
	bb  *ir.BasicBlock
	idx int
}

func newEmitter(b *ir.Builder, bb *ir.BasicBlock, idx int) *emitter {
	return &emitter{b: b, bb: bb, idx: idx}
}

// inserted reports how many instructions this emitter has spliced in so
// far, for the caller to advance its own outer cursor past them.
func (e *emitter) inserted(startIdx int) int { return e.idx - startIdx }

func (e *emitter) binary(op ir.BinOp, lhs, rhs ir.Value, typ ir.Type) *ir.InstValue {
	res := &ir.InstValue{ID: e.b.NextID(), Typ: typ, Block: e.bb}
	inst := &ir.BinaryInst{ID: res.ID, Res: res, Op: op, LHS: lhs, RHS: rhs}
	res.Def = inst
	e.b.InsertBefore(e.bb, e.idx, inst)
	e.idx++
	return res
}

func (e *emitter) cast(op ir.CastOp, src ir.Value, to ir.Type) *ir.InstValue {
	res := &ir.InstValue{ID: e.b.NextID(), Typ: to, Block: e.bb}
	inst := &ir.CastInst{ID: res.ID, Res: res, Op: op, Src: src}
	res.Def = inst
	e.b.InsertBefore(e.bb, e.idx, inst)
	e.idx++
	return res
}

func (e *emitter) icmp(pred ir.ICmpPred, lhs, rhs ir.Value) *ir.InstValue {
	res := &ir.InstValue{ID: e.b.NextID(), Typ: ir.I1, Block: e.bb}
	inst := &ir.ICmpInst{ID: res.ID, Res: res, Pred: pred, LHS: lhs, RHS: rhs}
	res.Def = inst
	e.b.InsertBefore(e.bb, e.idx, inst)
	e.idx++
	return res
}

// not computes xor(v, -1), this IR's stand-in for LLVM's dedicated NOT.
func (e *emitter) not(v ir.Value) *ir.InstValue {
	return e.binary(ir.OpXor, v, allOnes(v.Type()), v.Type())
}

// intCast widens/narrows v to "to", mirroring IRBuilder::CreateIntCast:
// truncate when narrowing, sign/zero-extend (per signed) when widening, a
// no-op when the widths already match.
func (e *emitter) intCast(v ir.Value, to ir.Type, signed bool) ir.Value {
	fromW, toW := v.Type().Bits(), to.Bits()
	switch {
	case fromW == toW:
		return v
	case fromW > toW:
		return e.cast(ir.CastTrunc, v, to)
	case signed:
		return e.cast(ir.CastSExt, v, to)
	default:
		return e.cast(ir.CastZExt, v, to)
	}
}

func (e *emitter) call(callee *ir.Function, args []ir.Value) ir.Value {
	id := e.b.NextID()
	var res *ir.InstValue
	if _, void := callee.ReturnType.(*ir.VoidType); !void {
		res = &ir.InstValue{ID: id, Typ: callee.ReturnType, Block: e.bb}
	}
	inst := &ir.CallInst{ID: id, Res: res, Callee: callee, Args: append([]ir.Value{}, args...)}
	if res != nil {
		res.Def = inst
	}
	e.b.InsertBefore(e.bb, e.idx, inst)
	e.idx++
	if res == nil {
		return nil
	}
	return res
}

func widthType(w int) ir.Type {
	switch w {
	case 1:
		return ir.I1
	case 8:
		return ir.I8
	case 32:
		return ir.I32
	case 64:
		return ir.I64
	default:
		return &ir.IntType{Width: w}
	}
}

func allOnes(typ ir.Type) *ir.ConstantInt { return &ir.ConstantInt{Typ: typ, Val: ^uint64(0)} }

func intConst(typ ir.Type, v int64) *ir.ConstantInt { return &ir.ConstantInt{Typ: typ, Val: uint64(v)} }

func uintConst(typ ir.Type, v uint64) *ir.ConstantInt { return &ir.ConstantInt{Typ: typ, Val: v} }
