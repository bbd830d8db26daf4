package diag

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLevelOf(t *testing.T) {
	cases := map[string]Level{
		CodeSkipInvoke:           Warning,
		CodeSkipTooFewBlocks:     Warning,
		CodeSkipWrongTarget:      Warning,
		CodeHashCollision:        Error,
		CodeExtractorEligibility: Error,
		CodeOutputIO:             Error,
		CodeUnknownMergedCaller:  Warning,
	}
	for code, want := range cases {
		assert.Equal(t, want, LevelOf(code), "LevelOf(%s)", code)
	}
}

func TestDescribeKnownAndUnknown(t *testing.T) {
	assert.NotEmpty(t, Describe(CodeHashCollision))
	assert.Empty(t, Describe("OBF9999"))
}

func TestInvariantPanicsAndRecovers(t *testing.T) {
	err := func() (err error) {
		defer func() { err = Recover() }()
		Invariant(false, CodeHashCollision, "collision on key %d", 7)
		return nil
	}()
	require.Error(t, err)
	fault, ok := err.(*Fault)
	require.True(t, ok, "err = %T, want *Fault", err)
	assert.Equal(t, CodeHashCollision, fault.Code)
}

func TestInvariantHoldsDoesNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Invariant(true, CodeHashCollision, "unreachable")
	})
}
