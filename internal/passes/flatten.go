package passes

import (
	"math/rand"

	"obfuscate/internal/diag"
	"obfuscate/internal/ir"
	"obfuscate/internal/ntheory"
)

// flatteningPass implements C2: rewrites a function's body into a
// dispatcher loop over a switch keyed by an i32 state variable, so the
// function's static CFG no longer reflects its dynamic control flow.
// Grounded on original_source/.../Flattening.cpp, generalized per
// spec.md §4.2.
type flatteningPass struct{}

func init() { registerFunctionPass(flatteningPass{}) }

func (flatteningPass) Name() string { return "flattening" }

func (p flatteningPass) RunOnFunction(b *ir.Builder, rng *rand.Rand, f *ir.Function) Result {
	var res Result
	if ir.HasInvoke(f) {
		res.noteCode("flattening", diag.CodeSkipInvoke, "function %s contains an invoke, skipping", f.Name)
		return res
	}
	if len(f.Blocks) <= 1 {
		res.noteCode("flattening", diag.CodeSkipTooFewBlocks, "function %s has %d block(s), skipping", f.Name, len(f.Blocks))
		return res
	}

	entry := f.Blocks[0]

	// If the entry block's terminator is conditional (or otherwise has
	// more than one successor), split it off into its own block so the
	// dispatcher has a single unconditional predecessor to loop back
	// into, matching Flattening.cpp's handling of "main begins with an
	// if". This must run regardless of how many instructions precede the
	// terminator — an entry block whose only content is the conditional
	// branch itself still needs the split, or its false-edge successor is
	// silently discarded below when entry.Terminator is overwritten.
	if len(entry.Successors()) > 1 {
		splitIdx := len(entry.Instructions)
		if splitIdx > 0 {
			splitIdx--
		}
		b.SplitBasicBlock(entry, splitIdx, "first")
	}

	orig := append([]*ir.BasicBlock{}, f.Blocks[1:]...)
	if len(orig) == 0 {
		return res
	}

	switchVar := b.Alloca(entry, ir.I32, "switchVar")
	caseOf := assignDispatchKeys(rng, orig)

	// Open Question decision #1: initialize switchVar to the key of
	// entry's successor rather than a fixed 0, so the dispatcher is
	// correct even though entry was just (possibly) split.
	entrySucc := entry.Successors()
	var initIdx uint32
	if len(entrySucc) > 0 {
		if idx, ok := caseOf[entrySucc[0]]; ok {
			initIdx = idx
		}
	}
	b.Store(entry, &ir.ConstantInt{Typ: ir.I32, Val: uint64(initIdx)}, switchVar)
	entry.Terminator = nil

	loopEntry := &ir.BasicBlock{Name: "loopEntry", Parent: f}
	insertAfter(f, entry, loopEntry)
	loadVar := b.Load(loopEntry, switchVar, ir.I32, "switchVar")
	sw := b.Switch(loopEntry, loadVar, orig[0])
	for _, bb := range orig {
		sw.AddCase(&ir.ConstantInt{Typ: ir.I32, Val: uint64(caseOf[bb])}, bb)
	}
	b.Br(entry, loopEntry)

	for _, bb := range orig {
		rewriteBlockToSwitchVar(b, bb, switchVar, caseOf, loopEntry)
	}

	ir.FixStack(b, f)
	res.Modified = true
	return res
}

// rewriteBlockToSwitchVar replaces bb's terminator with a store of the
// next state (a constant for an unconditional branch, a Select of the two
// candidate states for a conditional one) followed by a jump back to
// loopEntry. Blocks that return or are unreachable are left alone: they
// exit the function rather than the dispatcher loop.
func rewriteBlockToSwitchVar(b *ir.Builder, bb *ir.BasicBlock, switchVar *ir.InstValue, caseOf map[*ir.BasicBlock]uint32, loopEntry *ir.BasicBlock) {
	switch term := bb.Terminator.(type) {
	case *ir.BranchInst:
		next := caseOf[term.Target]
		bb.Terminator = nil
		b.Store(bb, &ir.ConstantInt{Typ: ir.I32, Val: uint64(next)}, switchVar)
		b.Br(bb, loopEntry)
	case *ir.CondBranchInst:
		trueCase := caseOf[term.TrueBB]
		falseCase := caseOf[term.FalseBB]
		cond := term.Cond
		bb.Terminator = nil
		sel := b.Select(bb, cond, &ir.ConstantInt{Typ: ir.I32, Val: uint64(trueCase)}, &ir.ConstantInt{Typ: ir.I32, Val: uint64(falseCase)}, "")
		b.Store(bb, sel, switchVar)
		b.Br(bb, loopEntry)
	default:
		// Return/Unreachable/Switch/Invoke: leave as the function's own
		// exit, not the dispatcher's.
	}
}

// assignDispatchKeys gives every block in orig a dispatcher state that is
// an FNV-hashed 32-bit value rather than its sequential position, per
// spec.md §4.2 step 1 ("a random follow-up of FNV ... uniqueness
// enforced"): a static reader of the flattened switch sees opaque case
// values, not the block's original index. Simplified from the spec's
// chained (idx, hash) pair into a single hashed key — see DESIGN.md's
// flatten.go ledger entry.
func assignDispatchKeys(rng *rand.Rand, orig []*ir.BasicBlock) map[*ir.BasicBlock]uint32 {
	const maxAttempts = 64
	used := map[uint32]bool{}
	caseOf := make(map[*ir.BasicBlock]uint32, len(orig))
	for _, bb := range orig {
		var key uint32
		ok := false
		for attempt := 0; attempt < maxAttempts; attempt++ {
			key = ntheory.FNVHash(rng.Uint32(), 0)
			if !used[key] {
				ok = true
				break
			}
		}
		diag.Invariant(ok, diag.CodeHashCollision, "no unique dispatch key for block %s after %d attempts", bb.Name, maxAttempts)
		used[key] = true
		caseOf[bb] = key
	}
	return caseOf
}

func insertAfter(f *ir.Function, after, bb *ir.BasicBlock) {
	idx := -1
	for i, b := range f.Blocks {
		if b == after {
			idx = i
			break
		}
	}
	if idx < 0 {
		f.Blocks = append(f.Blocks, bb)
		return
	}
	rest := append([]*ir.BasicBlock{}, f.Blocks[idx+1:]...)
	f.Blocks = append(f.Blocks[:idx+1], bb)
	f.Blocks = append(f.Blocks, rest...)
}
