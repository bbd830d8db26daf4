// Package passes implements the nine IR-to-IR obfuscation transforms
// (C2-C9): Flattening, Connect, BB2Func, ObfuscateConstant, ObfuscateZero,
// Virtualize, Merge, ObfCall and Func2Mod. Each pass is a FunctionPass or
// ModulePass value registered by name in init(), mirroring how the original LLVM passes
// each call `static RegisterPass<...> X("name", "description")` — the
// YAML pipeline config in internal/pipeline looks names up here instead
// of LLVM's `-passname` CLI flag.
package passes

import (
	"fmt"
	"math/rand"

	"obfuscate/internal/ir"
)

// Diagnostic is a single non-fatal note a pass wants surfaced (the
// spec.md §7 "Skip-and-report" / "Unknown-user" cases): obfuscation
// continues, but the pipeline logs these through internal/obslog. Code is
// one of internal/diag's stable OBF00xx constants, or empty for a note
// that doesn't correspond to one of the seven named error kinds.
type Diagnostic struct {
	Pass    string
	Code    string
	Message string
}

// Split is one output sub-module produced by Func2Mod. Writing it to disk
// (as bitcode in the original; as internal/ir's textual dump here, since
// this rewrite has no LLVM bitcode writer) is pipeline/CLI glue, not pass
// logic — see DESIGN.md's func2mod.go entry.
type Split struct {
	Name   string
	Module *ir.Module
}

// Result is what every pass returns: whether it changed the function (or
// module, for Func2Mod), plus any diagnostics raised along the way. Splits
// is populated only by Func2Mod; every other pass leaves it nil.
type Result struct {
	Modified    bool
	Diagnostics []Diagnostic
	Splits      []Split
}

func (r *Result) note(pass, format string, args ...interface{}) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Pass: pass, Message: fmt.Sprintf(format, args...)})
}

// noteCode is note with a stable internal/diag code attached, for the
// diagnostics spec.md §7 names explicitly (skip-and-report preconditions,
// unknown merged-function callers).
func (r *Result) noteCode(pass, code, format string, args ...interface{}) {
	r.Diagnostics = append(r.Diagnostics, Diagnostic{Pass: pass, Code: code, Message: fmt.Sprintf(format, args...)})
}

// FunctionPass runs once per function in a module, matching the original
// FunctionPass-derived passes (Flattening, Connect, BB2Func,
// ObfuscateConstant, ObfuscateZero).
type FunctionPass interface {
	Name() string
	RunOnFunction(b *ir.Builder, rng *rand.Rand, f *ir.Function) Result
}

// ModulePass runs once per module, matching the original ModulePass-derived
// passes (Virtualize, Merge, ObfCall, Func2Mod).
type ModulePass interface {
	Name() string
	RunOnModule(b *ir.Builder, rng *rand.Rand, m *ir.Module) Result
}

var (
	functionPasses = map[string]FunctionPass{}
	modulePasses   = map[string]ModulePass{}
)

func registerFunctionPass(p FunctionPass) {
	functionPasses[p.Name()] = p
}

func registerModulePass(p ModulePass) {
	modulePasses[p.Name()] = p
}

// LookupFunctionPass returns the registered FunctionPass named name, or
// (nil, false) if name refers to a ModulePass or nothing at all.
func LookupFunctionPass(name string) (FunctionPass, bool) {
	p, ok := functionPasses[name]
	return p, ok
}

// LookupModulePass returns the registered ModulePass named name.
func LookupModulePass(name string) (ModulePass, bool) {
	p, ok := modulePasses[name]
	return p, ok
}

// Names lists every registered pass name, function passes first, in the
// stable order spec.md §6 assigns them.
func Names() []string {
	return []string{"flattening", "connect", "bb2func", "obfCon", "obfZero", "vm", "merge", "obfCall", "func2mod"}
}
