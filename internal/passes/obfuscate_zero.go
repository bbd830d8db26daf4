package passes

import (
	"math/rand"

	"obfuscate/internal/ir"
)

// obfuscateZeroPass implements the block-local half of C5: replaces
// literal-zero operands with a sign-extended "p1*(x|any1)^2 == p2*(y|any2)^2"
// comparison that is false for every runtime value but opaque to a reader.
// Grounded on original_source/.../ObfuscateZero.cpp, which this rewrite
// follows with its fixed primes 431/277 (the Supplemented Feature noted
// in SPEC_FULL.md §3 distinguishing it from ObfuscateConstant's
// randPrime-drawn pair).
type obfuscateZeroPass struct{}

func init() { registerFunctionPass(obfuscateZeroPass{}) }

func (obfuscateZeroPass) Name() string { return "obfZero" }

const (
	obfZeroP1 = 431
	obfZeroP2 = 277
)

func (p obfuscateZeroPass) RunOnFunction(b *ir.Builder, rng *rand.Rand, f *ir.Function) Result {
	var res Result
	for _, bb := range f.Blocks {
		if obfuscateZeroBlock(b, rng, bb) {
			res.Modified = true
		}
	}
	return res
}

// obfuscateZeroBlock walks bb top to bottom, maintaining a rolling set of
// previously-seen integer values (available) the same way the original's
// IntegerVect does: a value is only a candidate substitution operand once
// the instruction that defines it has already been walked past.
func obfuscateZeroBlock(b *ir.Builder, rng *rand.Rand, bb *ir.BasicBlock) bool {
	modified := false
	var available []ir.Value

	registerInt := func(v ir.Value) {
		if v == nil {
			return
		}
		if _, isConst := v.(*ir.ConstantInt); isConst {
			return
		}
		if it, ok := v.Type().(*ir.IntType); ok && it.Width > 0 {
			available = append(available, v)
		}
	}

	i := 0
	for i < len(bb.Instructions) {
		inst := bb.Instructions[i]
		if zeroObfCandidate(inst) {
			for idx, op := range inst.Operands() {
				c, ok := op.(*ir.ConstantInt)
				if !ok || c.Mask() != 0 || len(available) == 0 {
					continue
				}
				repl, inserted := buildZeroExpr(b, bb, i, rng, available, c.Typ)
				b.SetOperand(inst, idx, repl)
				modified = true
				registerInt(repl)
				i += inserted
			}
		}
		registerInt(instResultValue(inst))
		i++
	}
	return modified
}

// zeroObfCandidate mirrors isValidCandidateInstruction: GEP/Return/Call
// operands are left untouched (their zero operands are index/ABI-relevant,
// not arbitrary data).
func zeroObfCandidate(inst ir.Instruction) bool {
	switch inst.(type) {
	case *ir.GEPInst, *ir.ReturnInst, *ir.CallInst:
		return false
	default:
		return true
	}
}

func instResultValue(inst ir.Instruction) ir.Value {
	r := inst.Result()
	if r == nil {
		return nil
	}
	return r
}

// buildZeroExpr inserts the instructions computing
// sext(icmp eq, lhsTot, rhsTot) immediately before bb.Instructions[idx] and
// returns the replacement value plus how many instructions were inserted.
func buildZeroExpr(b *ir.Builder, bb *ir.BasicBlock, idx int, rng *rand.Rand, available []ir.Value, replacedType ir.Type) (ir.Value, int) {
	cur := idx
	lhs, n := zeroSubExpr(b, bb, cur, rng, available, obfZeroP1)
	cur += n
	rhs, n := zeroSubExpr(b, bb, cur, rng, available, obfZeroP2)
	cur += n

	cmpRes, next := zInsert(b, bb, cur, ir.I1, func(res *ir.InstValue) ir.Instruction {
		return &ir.ICmpInst{ID: res.ID, Res: res, Pred: ir.ICmpEQ, LHS: lhs, RHS: rhs}
	})
	cur = next

	sextRes, next := zInsert(b, bb, cur, replacedType, func(res *ir.InstValue) ir.Instruction {
		return &ir.CastInst{ID: res.ID, Res: res, Op: ir.CastSExt, Src: cmpRes}
	})
	return sextRes, next - idx
}

// zeroSubExpr builds prime*((x|any)&0x7)^2 at bb.Instructions[idx], where x
// is a randomly chosen already-seen integer value and any is drawn from
// [1,7], so the masked value is never zero. Returns the result plus
// how many instructions were inserted, so the caller can advance its cursor.
func zeroSubExpr(b *ir.Builder, bb *ir.BasicBlock, idx int, rng *rand.Rand, available []ir.Value, prime uint32) (ir.Value, int) {
	x := available[rng.Intn(len(available))]
	anyV := uint64(1 + rng.Intn(7))
	cur := idx

	castRes, n := zInsert(b, bb, cur, ir.I32, func(res *ir.InstValue) ir.Instruction {
		return &ir.CastInst{ID: res.ID, Res: res, Op: ir.CastZExt, Src: x}
	})
	cur = n

	orRes, n := zInsert(b, bb, cur, ir.I32, func(res *ir.InstValue) ir.Instruction {
		return &ir.BinaryInst{ID: res.ID, Res: res, Op: ir.OpOr, LHS: castRes, RHS: &ir.ConstantInt{Typ: ir.I32, Val: anyV}}
	})
	cur = n

	maskedRes, n := zInsert(b, bb, cur, ir.I32, func(res *ir.InstValue) ir.Instruction {
		return &ir.BinaryInst{ID: res.ID, Res: res, Op: ir.OpAnd, LHS: &ir.ConstantInt{Typ: ir.I32, Val: 0x7}, RHS: orRes}
	})
	cur = n

	sqRes, n := zInsert(b, bb, cur, ir.I32, func(res *ir.InstValue) ir.Instruction {
		return &ir.BinaryInst{ID: res.ID, Res: res, Op: ir.OpMul, LHS: maskedRes, RHS: maskedRes}
	})
	cur = n

	primeRes, n := zInsert(b, bb, cur, ir.I32, func(res *ir.InstValue) ir.Instruction {
		return &ir.BinaryInst{ID: res.ID, Res: res, Op: ir.OpMul, LHS: &ir.ConstantInt{Typ: ir.I32, Val: uint64(prime)}, RHS: sqRes}
	})
	return primeRes, n - idx
}

// zInsert builds a fresh instruction producing a value of type typ at
// bb.Instructions[idx] and returns (its result, the index just past it).
func zInsert(b *ir.Builder, bb *ir.BasicBlock, idx int, typ ir.Type, build func(res *ir.InstValue) ir.Instruction) (*ir.InstValue, int) {
	res := &ir.InstValue{ID: b.NextID(), Typ: typ, Block: bb}
	inst := build(res)
	res.Def = inst
	b.InsertBefore(bb, idx, inst)
	return res, idx + 1
}
