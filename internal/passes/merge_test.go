package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obfuscate/internal/asmir"
	"obfuscate/internal/ir"
)

const mergeFixture = `
module "demo"

define internal i32 @helper1(i32 %a) {
entry:
  ret i32 %a
}

define internal i32 @helper2(i32 %a, i32 %b) {
entry:
  %s = add i32 %a, %b
  ret i32 %s
}

define i32 @main() {
entry:
  %r1 = call i32 @helper1(i32 1)
  %r2 = call i32 @helper2(i32 2, i32 3)
  %sum = add i32 %r1, %r2
  ret i32 %sum
}
`

func TestMergeFusesEligibleInternalFunctions(t *testing.T) {
	m, err := asmir.Parse(mergeFixture)
	require.NoError(t, err)

	b := ir.NewBuilder()
	before := len(m.Functions)
	res := mergePass{}.RunOnModule(b, NewRNG(4), m)

	assert.True(t, res.Modified)
	assert.Equal(t, before+1, len(m.Functions), "merge should add exactly one dispatcher function")

	var mainFn *ir.Function
	for _, f := range m.Functions {
		if f.Name == "main" {
			mainFn = f
		}
	}
	require.NotNil(t, mainFn)
	for _, bb := range mainFn.Blocks {
		for _, inst := range bb.Instructions {
			if c, ok := inst.(*ir.CallInst); ok {
				assert.NotEqual(t, "helper1", c.Callee.Name)
				assert.NotEqual(t, "helper2", c.Callee.Name)
			}
		}
	}
}

func TestMergeSkipsWhenFewerThanTwoEligibleFunctions(t *testing.T) {
	src := `
module "demo"

define internal i32 @only(i32 %a) {
entry:
  ret i32 %a
}
`
	m, err := asmir.Parse(src)
	require.NoError(t, err)

	b := ir.NewBuilder()
	before := len(m.Functions)
	res := mergePass{}.RunOnModule(b, NewRNG(4), m)

	assert.False(t, res.Modified)
	assert.Equal(t, before, len(m.Functions))
}
