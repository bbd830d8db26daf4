package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obfuscate/internal/asmir"
	"obfuscate/internal/ir"
)

const func2modFixture = `
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

func TestFunc2ModPartitionsIntoNPlusOneSplits(t *testing.T) {
	m, err := asmir.Parse(func2modFixture)
	require.NoError(t, err)

	b := ir.NewBuilder()
	res := func2modPass{}.RunOnModule(b, NewRNG(13), m)

	assert.True(t, res.Modified)
	assert.Len(t, res.Splits, numOutputs+1)

	var mainSplit *Split
	for i := range res.Splits {
		if res.Splits[i].Name == m.Identifier+"_main_0" {
			mainSplit = &res.Splits[i]
		}
	}
	require.NotNil(t, mainSplit, "the partition holding main should carry the _main_ marker")

	for _, split := range res.Splits {
		assert.NotNil(t, split.Module)
	}
}

func TestFunc2ModExternalizesInternalLinkage(t *testing.T) {
	m, err := asmir.Parse(func2modFixture)
	require.NoError(t, err)

	b := ir.NewBuilder()
	func2modPass{}.RunOnModule(b, NewRNG(13), m)

	for _, f := range m.Functions {
		if f.Name == "main" {
			continue
		}
		assert.Equal(t, ir.LinkageExternal, f.GetLinkage())
	}
}
