package passes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"obfuscate/internal/asmir"
	"obfuscate/internal/ir"
)

// connectFixture gives two non-entry blocks each enough instructions (>=4)
// to clear Connect's minimum split size: Connect only rewrites terminators
// once it has at least two eligible blocks to shuffle call targets across.
const connectFixture = `
module "demo"

define i32 @big(i32 %a) {
entry:
  br label %body
body:
  %t1 = add i32 %a, 1
  %t2 = add i32 %t1, 1
  %t3 = add i32 %t2, 1
  %t4 = add i32 %t3, 1
  %t5 = add i32 %t4, 1
  br label %tail
tail:
  %u1 = add i32 %t5, 1
  %u2 = add i32 %u1, 1
  %u3 = add i32 %u2, 1
  %u4 = add i32 %u3, 1
  ret i32 %u4
}
`

func TestConnectSplitsAndRewritesEligibleBlock(t *testing.T) {
	m, err := asmir.Parse(connectFixture)
	require.NoError(t, err)

	b := ir.NewBuilder()
	fn := m.Functions[0]
	before := len(fn.Blocks)
	res := connectPass{}.RunOnFunction(b, NewRNG(3), fn)

	assert.True(t, res.Modified)
	assert.Greater(t, len(fn.Blocks), before, "splitting plus a garbage block should add blocks")

	var foundSwitch bool
	for _, bb := range fn.Blocks {
		if _, ok := bb.Terminator.(*ir.SwitchInst); ok {
			foundSwitch = true
		}
	}
	assert.True(t, foundSwitch, "split block's branch should become a switch")
}

func TestConnectSkipsSingleBlockFunction(t *testing.T) {
	src := `
module "demo"

define i32 @one(i32 %a) {
entry:
  ret i32 %a
}
`
	m, err := asmir.Parse(src)
	require.NoError(t, err)

	b := ir.NewBuilder()
	res := connectPass{}.RunOnFunction(b, NewRNG(1), m.Functions[0])
	assert.False(t, res.Modified)
}

func TestConnectSkipsUndersizedCandidateBlocks(t *testing.T) {
	src := `
module "demo"

define i32 @small(i32 %a) {
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
	fn := m.Functions[0]
	before := len(fn.Blocks)
	res := connectPass{}.RunOnFunction(b, NewRNG(1), fn)

	assert.False(t, res.Modified)
	assert.Equal(t, before, len(fn.Blocks))
}
