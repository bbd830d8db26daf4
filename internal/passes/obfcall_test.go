package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obfuscate/internal/asmir"
	"obfuscate/internal/ir"
)

const obfCallFixture = `
module "demo" target "x86_64-pc-linux-gnu"

define internal i32 @helper(i32 %a) {
entry:
  ret i32 %a
}

define i32 @main() {
entry:
  %r = call i32 @helper(i32 1)
  ret i32 %r
}
`

func TestObfCallAssignsConventionOnX86Target(t *testing.T) {
	m, err := asmir.Parse(obfCallFixture)
	require.NoError(t, err)

	b := ir.NewBuilder()
	res := obfCallPass{}.RunOnModule(b, NewRNG(6), m)

	assert.True(t, res.Modified)
	assert.Empty(t, res.Diagnostics)

	var helper *ir.Function
	for _, f := range m.Functions {
		if f.Name == "helper" {
			helper = f
		}
	}
	require.NotNil(t, helper)
	assert.GreaterOrEqual(t, helper.CallingConv, obfCallConvStart)
	assert.LessOrEqual(t, helper.CallingConv, obfCallConvEnd)

	var mainFn *ir.Function
	for _, f := range m.Functions {
		if f.Name == "main" {
			mainFn = f
		}
	}
	require.NotNil(t, mainFn)
	for _, bb := range mainFn.Blocks {
		for _, inst := range bb.Instructions {
			if c, ok := inst.(*ir.CallInst); ok && c.Callee == helper {
				assert.Equal(t, helper.CallingConv, c.CallingConv)
			}
		}
	}
}

func TestObfCallSkipsNonX86Target(t *testing.T) {
	src := `
module "demo" target "aarch64-unknown-linux-gnu"

define internal i32 @helper(i32 %a) {
entry:
  ret i32 %a
}
`
	m, err := asmir.Parse(src)
	require.NoError(t, err)

	b := ir.NewBuilder()
	res := obfCallPass{}.RunOnModule(b, NewRNG(6), m)

	assert.False(t, res.Modified)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, "OBF0003", res.Diagnostics[0].Code)
}
