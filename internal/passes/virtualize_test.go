package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obfuscate/internal/asmir"
	"obfuscate/internal/ir"
)

func TestVirtualizeRewritesEligibleBinaryOps(t *testing.T) {
	src := `
module "demo"

define i32 @f(i32 %a, i32 %b) {
entry:
  %s = add i32 %a, %b
  %x = xor i32 %s, %a
  ret i32 %x
}
`
	m, err := asmir.Parse(src)
	require.NoError(t, err)

	b := ir.NewBuilder()
	before := len(m.Functions)
	res := virtualizePass{}.RunOnModule(b, NewRNG(2), m)

	assert.True(t, res.Modified)
	assert.Greater(t, len(m.Functions), before, "lazily-built VM helpers should be added as new module functions")

	fn := m.Functions[0]
	for _, bb := range fn.Blocks {
		for _, inst := range bb.Instructions {
			if bi, ok := inst.(*ir.BinaryInst); ok {
				assert.NotEqual(t, ir.OpAdd, bi.Op, "add should have been replaced by a VM helper call")
				assert.NotEqual(t, ir.OpXor, bi.Op, "xor should have been replaced by a VM helper call")
			}
		}
	}

	var helperNames []string
	for _, f := range m.Functions {
		helperNames = append(helperNames, f.Name)
	}
	assert.Contains(t, helperNames, "__YANSOLLVM_VM_Add")
	assert.Contains(t, helperNames, "__YANSOLLVM_VM_Xor")
}

func TestVirtualizeLeavesWideIntegersAlone(t *testing.T) {
	src := `
module "demo"

define i128 @f(i128 %a, i128 %b) {
entry:
  %s = add i128 %a, %b
  ret i128 %s
}
`
	m, err := asmir.Parse(src)
	require.NoError(t, err)

	b := ir.NewBuilder()
	before := len(m.Functions)
	res := virtualizePass{}.RunOnModule(b, NewRNG(2), m)

	assert.False(t, res.Modified)
	assert.Equal(t, before, len(m.Functions))
}
