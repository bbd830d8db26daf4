package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obfuscate/internal/asmir"
	"obfuscate/internal/ir"
)

func TestObfuscateZeroReplacesZeroOperandWhenValueInScope(t *testing.T) {
	src := `
module "demo"

define i32 @f(i32 %a) {
entry:
  %t = add i32 %a, %a
  %z = add i32 %t, 0
  ret i32 %z
}
`
	m, err := asmir.Parse(src)
	require.NoError(t, err)

	b := ir.NewBuilder()
	fn := m.Functions[0]
	before := len(fn.Blocks[0].Instructions)
	res := obfuscateZeroPass{}.RunOnFunction(b, NewRNG(11), fn)

	assert.True(t, res.Modified)
	assert.Greater(t, len(fn.Blocks[0].Instructions), before, "substituting a zero operand should insert helper instructions")

	// The original "add %t, 0" should no longer have a literal-zero operand.
	ret, ok := fn.Blocks[0].Terminator.(*ir.ReturnInst)
	require.True(t, ok)
	zv, ok := ret.Val.(*ir.InstValue)
	require.True(t, ok)
	add, ok := zv.Def.(*ir.BinaryInst)
	require.True(t, ok)
	c, rhsConst := add.RHS.(*ir.ConstantInt)
	assert.False(t, rhsConst && c.Mask() == 0, "%%z's literal-zero operand should have been replaced")
}

func TestObfuscateZeroLeavesBlockAloneWithNoValueInScope(t *testing.T) {
	src := `
module "demo"

define i32 @f() {
entry:
  %z = add i32 0, 0
  ret i32 %z
}
`
	m, err := asmir.Parse(src)
	require.NoError(t, err)

	b := ir.NewBuilder()
	fn := m.Functions[0]
	before := len(fn.Blocks[0].Instructions)
	res := obfuscateZeroPass{}.RunOnFunction(b, NewRNG(11), fn)

	assert.False(t, res.Modified)
	assert.Equal(t, before, len(fn.Blocks[0].Instructions))
}
