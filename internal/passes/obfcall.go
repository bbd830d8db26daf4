package passes

import (
	"math/rand"
	"strings"

	"obfuscate/internal/diag"
	"obfuscate/internal/ir"
)

// obfCallPass implements C8: assigns every internal, non-variadic
// function a random non-standard calling-convention ID drawn from LLVM's
// reserved target-specific band, and propagates it to every call site.
// Grounded on original_source/.../ObfCall.cpp. Gated on the module's
// target triple being x86/x86_64 — the original's obfuscated calling
// conventions are only meaningful (and only registered) for that backend.
type obfCallPass struct{}

func init() { registerModulePass(obfCallPass{}) }

func (obfCallPass) Name() string { return "obfCall" }

// obfCallConvStart/End mirror LLVM's actual reserved range for
// target-specific calling conventions (CallingConv::MaxID is 1023;
// conventions below 64 are the portable/well-known ones).
const (
	obfCallConvStart = 64
	obfCallConvEnd   = 1023
)

func (p obfCallPass) RunOnModule(b *ir.Builder, rng *rand.Rand, m *ir.Module) Result {
	var res Result
	if !isX86Triple(m.TargetTriple) {
		res.noteCode("obfCall", diag.CodeSkipWrongTarget, "target triple %q is not x86/x86_64, skipping", m.TargetTriple)
		return res
	}

	for _, f := range m.Functions {
		if f.GetLinkage() != ir.LinkageInternal || f.VarArg {
			continue
		}
		obfCC := obfCallConvStart + rng.Intn(obfCallConvEnd-obfCallConvStart+1)
		f.CallingConv = obfCC
		for _, caller := range m.Functions {
			for _, bb := range caller.Blocks {
				for _, inst := range bb.Instructions {
					if c, ok := inst.(*ir.CallInst); ok && c.Callee == f {
						c.CallingConv = obfCC
					}
				}
			}
		}
		res.Modified = true
	}
	return res
}

func isX86Triple(triple string) bool {
	t := strings.ToLower(triple)
	for _, prefix := range []string{"x86_64", "x86-64", "amd64", "i386", "i486", "i586", "i686", "x86"} {
		if strings.HasPrefix(t, prefix) {
			return true
		}
	}
	return false
}
