package asmir

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obfuscate/internal/ir"
)

func TestParseModuleHeader(t *testing.T) {
	m, err := Parse(`module "demo" target "x86_64-pc-linux-gnu"`)
	require.NoError(t, err)
	assert.Equal(t, "demo", m.Identifier)
	assert.Equal(t, "x86_64-pc-linux-gnu", m.TargetTriple)
}

func TestParseStraightLineFunction(t *testing.T) {
	src := `
module "demo"

define i32 @add(i32 %a, i32 %b) {
entry:
  %sum = add i32 %a, %b
  ret i32 %sum
}
`
	m, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, m.Functions, 1)

	fn := m.Functions[0]
	assert.Equal(t, "add", fn.Name)
	assert.Len(t, fn.Args, 2)
	require.Len(t, fn.Blocks, 1)

	bb := fn.Blocks[0]
	require.Len(t, bb.Instructions, 1)
	assert.IsType(t, &ir.BinaryInst{}, bb.Instructions[0])
	assert.IsType(t, &ir.ReturnInst{}, bb.Terminator)
}

func TestParseBranchingAndPhi(t *testing.T) {
	src := `
module "demo"

define i32 @select_one(i1 %cond) {
entry:
  br i1 %cond, label %then, label %else
then:
  br label %join
else:
  br label %join
join:
  %r = phi i32 [ 1, %then ], [ 0, %else ]
  ret i32 %r
}
`
	m, err := Parse(src)
	require.NoError(t, err)
	fn := m.Functions[0]
	require.Len(t, fn.Blocks, 4)

	entry := fn.Blocks[0]
	assert.IsType(t, &ir.CondBranchInst{}, entry.Terminator)

	join := fn.Blocks[3]
	require.Len(t, join.Instructions, 1)
	phi, ok := join.Instructions[0].(*ir.PHIInst)
	require.True(t, ok, "join.Instructions[0] = %T, want *ir.PHIInst", join.Instructions[0])
	assert.Len(t, phi.Incoming, 2)
}

func TestParseLoopBackEdgePhi(t *testing.T) {
	// The phi in the loop header refers to a value defined later in the
	// same block's predecessor (the latch), forcing the deferred-edge path.
	src := `
module "demo"

define i32 @sum_to(i32 %n) {
entry:
  br label %loop
loop:
  %i = phi i32 [ 0, %entry ], [ %i.next, %loop ]
  %i.next = add i32 %i, 1
  %done = icmp eq i32 %i.next, %n
  br i1 %done, label %exit, label %loop
exit:
  ret i32 %i
}
`
	m, err := Parse(src)
	require.NoError(t, err)
	fn := m.Functions[0]
	loop := fn.Blocks[1]
	require.Len(t, loop.Instructions, 3)

	phi, ok := loop.Instructions[0].(*ir.PHIInst)
	require.True(t, ok, "loop.Instructions[0] = %T, want *ir.PHIInst", loop.Instructions[0])
	require.Len(t, phi.Incoming, 2)
	assert.Equal(t, loop, phi.Incoming[1].Block, "second incoming edge should be the back edge")
}

func TestParseGlobalsAndCalls(t *testing.T) {
	src := `
module "demo"

@counter = internal global i32 0

declare i32 @helper(i32 %x)

define i32 @caller() {
entry:
  %p = alloca i32
  store i32 5, %p
  %v = load i32, %p
  %r = call i32 @helper(i32 %v)
  ret i32 %r
}
`
	m, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, m.Globals, 1)
	assert.Equal(t, "counter", m.Globals[0].GlobalName())
	require.Len(t, m.Functions, 2, "declare + define")

	var caller *ir.Function
	for _, fn := range m.Functions {
		if fn.Name == "caller" {
			caller = fn
		}
	}
	require.NotNil(t, caller)

	entry := caller.Blocks[0]
	require.Len(t, entry.Instructions, 4)
	assert.IsType(t, &ir.AllocaInst{}, entry.Instructions[0])
	assert.IsType(t, &ir.StoreInst{}, entry.Instructions[1])
	assert.IsType(t, &ir.LoadInst{}, entry.Instructions[2])
	assert.IsType(t, &ir.CallInst{}, entry.Instructions[3])
}

func TestParseRoundTripsThroughPrinter(t *testing.T) {
	src := `
module "demo"

define void @noop() {
entry:
  ret void
}
`
	m, err := Parse(src)
	require.NoError(t, err)
	out := ir.Print(m)
	assert.Contains(t, out, "noop")
}

func TestParseRejectsGarbage(t *testing.T) {
	_, err := Parse("this is not asm")
	assert.Error(t, err)
}
