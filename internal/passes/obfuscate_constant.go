package passes

import (
	"math/rand"

	"obfuscate/internal/ir"
	"obfuscate/internal/ntheory"
)

// obfuscateConstantPass implements C5's function-wide half: every non-zero,
// non-all-ones integer literal operand is rewritten as the product of two
// freshly materialized 64-bit factors whose product is the original value
// (splitConst), and every literal-zero operand is rewritten as an MBA
// expression that always evaluates to zero (one of three two-value
// identities, or a one-value identity when only one value is in scope),
// built over previously computed integer values in scope (replaceZero). Grounded on
// original_source/.../ObfuscateConstant.cpp.
type obfuscateConstantPass struct{}

func init() { registerFunctionPass(obfuscateConstantPass{}) }

func (obfuscateConstantPass) Name() string { return "obfCon" }

func (p obfuscateConstantPass) RunOnFunction(b *ir.Builder, rng *rand.Rand, f *ir.Function) Result {
	var res Result

	// OriginalInst in the grounding source: instructions present before
	// this pass ran contribute their results as substitution operands; of
	// the instructions the pass inserts, only each zero replacement's final
	// value is added to that pool.
	original := map[ir.Instruction]bool{}
	for _, bb := range f.Blocks {
		for _, inst := range bb.Instructions {
			original[inst] = true
		}
	}
	preds := ir.Predecessors(f)

	for _, bb := range f.Blocks {
		if splitConstantsInBlock(b, rng, bb) {
			res.Modified = true
		}
	}

	for _, bb := range f.Blocks {
		if replaceZerosInBlock(b, rng, bb, f, preds, original) {
			res.Modified = true
		}
	}

	return res
}

func obfConstCandidate(inst ir.Instruction) bool {
	switch inst.(type) {
	case *ir.GEPInst, *ir.ReturnInst:
		return false
	default:
		return true
	}
}

// operandRange returns how many of inst's operands are eligible: switches
// only ever touch their condition (operand 0), never their case labels, and
// (for the zero-replacement pass only, handled by the caller) calls are
// skipped entirely since their arguments are ABI-relevant.
func operandRange(inst ir.Instruction) int {
	n := len(inst.Operands())
	if _, isSwitch := inst.(*ir.SwitchInst); isSwitch {
		return 1
	}
	return n
}

func allOnesVal(typ ir.Type) uint64 {
	w := typ.Bits()
	if w >= 64 || w <= 0 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(w)) - 1
}

func splitConstantsInBlock(b *ir.Builder, rng *rand.Rand, bb *ir.BasicBlock) bool {
	modified := false
	i := 0
	for i < len(bb.Instructions) {
		inst := bb.Instructions[i]
		if obfConstCandidate(inst) {
			n := operandRange(inst)
			for idx := 0; idx < n && idx < len(inst.Operands()); idx++ {
				c, ok := inst.Operands()[idx].(*ir.ConstantInt)
				if !ok {
					continue
				}
				v := c.Mask()
				if v == 0 || v == allOnesVal(c.Typ) {
					continue
				}
				repl, inserted := splitConst(b, rng, bb, i, c)
				b.SetOperand(inst, idx, repl)
				modified = true
				i += inserted
			}
		}
		i++
	}
	return modified
}

// splitConst rewrites a constant v into sext/trunc((randv*2+1) * (modinv(randv*2+1)*v)),
// whose product is v mod 2^64 but whose two factors read as arbitrary
// 64-bit noise, each wrapped in a dead add/xor-with-zero so neither shows
// up as a bare constant operand either.
func splitConst(b *ir.Builder, rng *rand.Rand, bb *ir.BasicBlock, idx int, c *ir.ConstantInt) (ir.Value, int) {
	replacedType := c.Typ
	i64 := ir.I64
	v := c.Mask()

	randv := (rng.Uint64() >> 1) * 2
	if randv == 0 {
		randv = 1
	} else {
		randv++
	}

	e := newEmitter(b, bb, idx)
	rv1 := e.binary(ir.OpAdd, uintConst(i64, randv), uintConst(i64, 0), i64)
	rv2 := e.binary(ir.OpXor, uintConst(i64, ntheory.ModInv64(randv)*v), uintConst(i64, 0), i64)
	mul := e.binary(ir.OpMul, rv1, rv2, i64)
	replaced := e.intCast(mul, replacedType, true)
	return replaced, e.inserted(idx)
}

func replaceZerosInBlock(b *ir.Builder, rng *rand.Rand, bb *ir.BasicBlock, f *ir.Function, preds map[*ir.BasicBlock][]*ir.BasicBlock, original map[ir.Instruction]bool) bool {
	modified := false

	var available []ir.Value
	for _, arg := range f.Args {
		available = append(available, arg)
	}
	for cur := singlePred(preds, bb); cur != nil; cur = singlePred(preds, cur) {
		for _, inst := range cur.Instructions {
			if original[inst] {
				appendIntResult(&available, instResultValue(inst))
			}
		}
	}

	i := 0
	for i < len(bb.Instructions) {
		inst := bb.Instructions[i]
		if obfConstCandidate(inst) {
			n := operandRange(inst)
			if _, isCall := inst.(*ir.CallInst); isCall {
				n = 0
			}
			for idx := 0; idx < n && idx < len(inst.Operands()); idx++ {
				c, ok := inst.Operands()[idx].(*ir.ConstantInt)
				if !ok || c.Mask() != 0 {
					continue
				}
				repl, inserted := replaceZero(b, rng, bb, i, available, c.Typ)
				if repl == nil {
					continue
				}
				b.SetOperand(inst, idx, repl)
				modified = true
				available = append(available, repl)
				i += inserted
			}
		}
		if original[inst] {
			appendIntResult(&available, instResultValue(inst))
		}
		i++
	}
	return modified
}

func appendIntResult(available *[]ir.Value, v ir.Value) {
	if v == nil {
		return
	}
	if _, isConst := v.(*ir.ConstantInt); isConst {
		return
	}
	if it, ok := v.Type().(*ir.IntType); ok && it.Width > 0 {
		*available = append(*available, v)
	}
}

func singlePred(preds map[*ir.BasicBlock][]*ir.BasicBlock, bb *ir.BasicBlock) *ir.BasicBlock {
	p := preds[bb]
	if len(p) == 1 {
		return p[0]
	}
	return nil
}

// replaceZero picks one (single candidate in scope) or two (otherwise)
// already-computed integer values and builds one of the original's three
// MBA identities, or the one-variable fallback when only a single value is
// in scope. Returns nil if there is nothing to draw from.
func replaceZero(b *ir.Builder, rng *rand.Rand, bb *ir.BasicBlock, idx int, available []ir.Value, replacedType ir.Type) (ir.Value, int) {
	if len(available) == 0 {
		return nil, 0
	}
	i32 := ir.I32
	e := newEmitter(b, bb, idx)

	ix := rng.Intn(len(available))
	x := e.intCast(available[ix], i32, false)

	if len(available) == 1 {
		// ((~x | 0x7AFAFA69) & 0xA061440) + ((x & 0x1050504) | 0x1010104) == 185013572
		t1 := e.not(x)
		t1 = e.binary(ir.OpOr, t1, uintConst(i32, 0x7AFAFA69), i32)
		t1 = e.binary(ir.OpAnd, t1, uintConst(i32, 0xA061440), i32)
		t2 := e.binary(ir.OpAnd, x, uintConst(i32, 0x1050504), i32)
		t2 = e.binary(ir.OpOr, t2, uintConst(i32, 0x1010104), i32)
		sum := e.binary(ir.OpAdd, t2, t1, i32)
		xorred := e.binary(ir.OpXor, sum, uintConst(i32, 185013572), i32)
		replaced := e.intCast(xorred, replacedType, false)
		return replaced, e.inserted(idx)
	}

	iy := ix
	for iy == ix {
		iy = rng.Intn(len(available))
	}
	y := e.intCast(available[iy], i32, false)

	switch rng.Intn(3) {
	case 0:
		randp1 := ntheory.RandPrime(rng, 1<<8, 1<<16)
		randp2 := ntheory.RandPrime(rng, 1<<8, 1<<16)
		for randp2 == randp1 {
			randp2 = ntheory.RandPrime(rng, 1<<8, 1<<16)
		}
		lhs := mbaExpr(e, rng, x, randp1)
		rhs := mbaExpr(e, rng, y, randp2)
		cmp := e.icmp(ir.ICmpEQ, lhs, rhs)
		replaced := e.cast(ir.CastSExt, cmp, replacedType)
		return replaced, e.inserted(idx)
	case 1:
		// x + y == x^y + 2*(x&y)
		sum := e.binary(ir.OpAdd, x, y, i32)
		xorv := e.binary(ir.OpXor, x, y, i32)
		sub := e.binary(ir.OpSub, sum, xorv, i32)
		andv := e.binary(ir.OpAnd, x, y, i32)
		shl := e.binary(ir.OpShl, andv, uintConst(i32, 1), i32)
		replaced := e.binary(ir.OpXor, sub, shl, i32)
		out := e.intCast(replaced, replacedType, false)
		return out, e.inserted(idx)
	default:
		// x^y == (x|~y) - 3*~(x|y) + 2*~x - y
		notY := e.not(y)
		a := e.binary(ir.OpOr, x, notY, i32)
		orxy := e.binary(ir.OpOr, x, y, i32)
		notOr := e.not(orxy)
		bVal := e.binary(ir.OpMul, notOr, intConst(i32, -3), i32)
		notX := e.not(x)
		c2 := e.binary(ir.OpMul, notX, uintConst(i32, 2), i32)
		c2 = e.binary(ir.OpSub, c2, y, i32)
		xorv := e.binary(ir.OpXor, x, y, i32)
		sub1 := e.binary(ir.OpSub, xorv, a, i32)
		sub2 := e.binary(ir.OpSub, sub1, bVal, i32)
		replaced := e.binary(ir.OpXor, sub2, c2, i32)
		out := e.intCast(replaced, replacedType, false)
		return out, e.inserted(idx)
	}
}

// mbaExpr builds prime*((x|any)&0xFF)^2, any in [1,255], as createExpression
// does in the grounding source (note the wider 0xFF mask here vs obfZero's
// 0x7, matching the original's two distinct createExpression callers).
func mbaExpr(e *emitter, rng *rand.Rand, x ir.Value, prime uint32) ir.Value {
	i32 := ir.I32
	anyV := uint64(1 + rng.Intn(255))
	t := e.binary(ir.OpOr, x, uintConst(i32, anyV), i32)
	t = e.binary(ir.OpAnd, uintConst(i32, 0xFF), t, i32)
	t = e.binary(ir.OpMul, t, t, i32)
	t = e.binary(ir.OpMul, uintConst(i32, uint64(prime)), t, i32)
	return t
}
