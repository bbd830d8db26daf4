package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obfuscate/internal/asmir"
	"obfuscate/internal/ir"
)

func TestBB2FuncExtractsEligibleBlock(t *testing.T) {
	src := `
module "demo"

define i32 @host(i32 %a) {
entry:
  br label %body
body:
  %t1 = add i32 %a, 1
  %t2 = add i32 %t1, 1
  %t3 = add i32 %t2, 1
  br label %after
after:
  ret i32 %t3
}
`
	m, err := asmir.Parse(src)
	require.NoError(t, err)

	b := ir.NewBuilder()
	fn := m.Functions[0]
	before := len(m.Functions)
	res := bb2funcPass{}.RunOnFunction(b, NewRNG(5), fn)

	assert.True(t, res.Modified)
	assert.Greater(t, len(m.Functions), before, "extraction should add a new function to the module")
}

func TestBB2FuncSkipsTinyBlocks(t *testing.T) {
	src := `
module "demo"

define i32 @host(i32 %a) {
entry:
  br label %body
body:
  %t1 = add i32 %a, 1
  ret i32 %t1
}
`
	m, err := asmir.Parse(src)
	require.NoError(t, err)

	b := ir.NewBuilder()
	res := bb2funcPass{}.RunOnFunction(b, NewRNG(5), m.Functions[0])
	assert.False(t, res.Modified)
}

func TestBB2FuncSkipsAlreadyExtractedFunction(t *testing.T) {
	src := `
module "demo"

define i32 @newFuncRoot(i32 %a) {
newFuncRoot:
  %t1 = add i32 %a, 1
  %t2 = add i32 %t1, 1
  %t3 = add i32 %t2, 1
  ret i32 %t3
}
`
	m, err := asmir.Parse(src)
	require.NoError(t, err)

	b := ir.NewBuilder()
	res := bb2funcPass{}.RunOnFunction(b, NewRNG(5), m.Functions[0])
	assert.False(t, res.Modified)
}
