package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obfuscate/internal/asmir"
	"obfuscate/internal/ir"
)

const flattenFixture = `
module "demo"

define i32 @branchy(i32 %a, i32 %b) {
entry:
  %c = icmp eq i32 %a, %b
  br i1 %c, label %then, label %else
then:
  %t = add i32 %a, 1
  br label %join
else:
  %e = add i32 %b, 1
  br label %join
join:
  %r = phi i32 [ %t, %then ], [ %e, %else ]
  ret i32 %r
}
`

func TestFlatteningRewritesMultiBlockFunction(t *testing.T) {
	m, err := asmir.Parse(flattenFixture)
	require.NoError(t, err)

	b := ir.NewBuilder()
	rng := NewRNG(1)
	res := flatteningPass{}.RunOnFunction(b, rng, m.Functions[0])

	assert.True(t, res.Modified)
	assert.Empty(t, res.Diagnostics)

	fn := m.Functions[0]
	var sw *ir.SwitchInst
	for _, bb := range fn.Blocks {
		if s, ok := bb.Terminator.(*ir.SwitchInst); ok {
			sw = s
		}
	}
	require.NotNil(t, sw, "expected a dispatcher switch among the rewritten blocks")
	assert.GreaterOrEqual(t, len(sw.Cases), 1)
}

func TestFlatteningSkipsSingleBlockFunction(t *testing.T) {
	src := `
module "demo"

define i32 @straight(i32 %a) {
entry:
  %r = add i32 %a, 1
  ret i32 %r
}
`
	m, err := asmir.Parse(src)
	require.NoError(t, err)

	b := ir.NewBuilder()
	res := flatteningPass{}.RunOnFunction(b, NewRNG(1), m.Functions[0])

	assert.False(t, res.Modified)
	require.Len(t, res.Diagnostics, 1)
	assert.Equal(t, "OBF0002", res.Diagnostics[0].Code)
}

func TestAssignDispatchKeysAreUnique(t *testing.T) {
	f := &ir.Function{}
	var blocks []*ir.BasicBlock
	for i := 0; i < 8; i++ {
		bb := &ir.BasicBlock{Name: "bb", Parent: f}
		blocks = append(blocks, bb)
	}
	caseOf := assignDispatchKeys(NewRNG(42), blocks)

	seen := map[uint32]bool{}
	for _, bb := range blocks {
		key, ok := caseOf[bb]
		require.True(t, ok)
		assert.False(t, seen[key], "dispatch key %d reused", key)
		seen[key] = true
	}
}
