package obslog

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type errString string

func (e errString) Error() string { return string(e) }

func TestDiagnosticAndFaultDoNotPanic(t *testing.T) {
	assert.NotPanics(t, func() {
		Configure(false)
		Diagnostic("flattening", "OBF0002", "function f has 1 block, skipping")
		Diagnostic("merge", "", "src merged into dispatcher")
		Fault("OBF0004", errString("hash collision on key 7"))
		Run("run-id", "demo", []string{"flattening", "connect"})
	})
}
