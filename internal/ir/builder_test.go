package ir_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obfuscate/internal/ir"
)

func buildStraightLine() (*ir.Function, *ir.Builder) {
	m := ir.NewModule("t.bc", "x86_64-pc-linux-gnu")
	b := ir.NewBuilder()
	f := b.NewFunction(m, "f", ir.I32, []*ir.Parameter{{Name: "a", Typ: ir.I32}})
	entry := b.NewBlock(f, "entry")
	sum := b.Binary(entry, ir.OpAdd, f.Args[0], &ir.ConstantInt{Typ: ir.I32, Val: 1}, "sum")
	b.Ret(entry, sum)
	return f, b
}

func TestBuilderStraightLine(t *testing.T) {
	f, _ := buildStraightLine()
	require.Len(t, f.Blocks, 1)
	require.Len(t, f.Blocks[0].Instructions, 1)
	_, ok := f.Blocks[0].Terminator.(*ir.ReturnInst)
	assert.True(t, ok)
}

func TestReplaceAllUsesWith(t *testing.T) {
	f, b := buildStraightLine()
	entry := f.Blocks[0]
	sum := entry.Instructions[0].Result()

	second := b.Binary(entry, ir.OpMul, sum, sum, "sq")
	assert.Len(t, sum.Uses, 3)

	repl := &ir.ConstantInt{Typ: ir.I32, Val: 7}
	ir.ReplaceAllUsesWith(sum, repl)

	bin := second.Def.(*ir.BinaryInst)
	assert.Equal(t, repl, bin.LHS)
	assert.Equal(t, repl, bin.RHS)
	assert.Empty(t, sum.Uses)
}

func TestSplitBasicBlock(t *testing.T) {
	m := ir.NewModule("t.bc", "")
	b := ir.NewBuilder()
	f := b.NewFunction(m, "f", &ir.VoidType{}, nil)
	entry := b.NewBlock(f, "entry")
	v1 := b.Alloca(entry, ir.I32, "a")
	v2 := b.Load(entry, v1, ir.I32, "av")
	b.Ret(entry, nil)
	_ = v2

	tail := b.SplitBasicBlock(entry, 1, "tail")
	require.Len(t, entry.Instructions, 1)
	require.Len(t, tail.Instructions, 1)
	br, ok := entry.Terminator.(*ir.BranchInst)
	require.True(t, ok)
	assert.Equal(t, tail, br.Target)
	_, ok = tail.Terminator.(*ir.ReturnInst)
	assert.True(t, ok)
	assert.Len(t, f.Blocks, 2)
}
