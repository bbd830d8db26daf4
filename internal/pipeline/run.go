package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/segmentio/ksuid"

	"obfuscate/internal/diag"
	"obfuscate/internal/ir"
	"obfuscate/internal/obslog"
	"obfuscate/internal/passes"
)

// Run is the outcome of driving one Config over one module: every
// diagnostic any pass raised, in order, plus whatever Func2Mod split off
// (nil unless "func2mod" was in Config.Passes).
type Run struct {
	ID          string
	Diagnostics []passes.Diagnostic
	Splits      []passes.Split
}

// Execute runs cfg.Passes in order against m, one pass at a time, matching
// spec.md §5's single-threaded, sequential-under-an-external-pass-manager
// model. FunctionPasses run once per function in m.Functions' order;
// ModulePasses run once. A hard invariant violation (internal/diag.Fault)
// aborts the run and is returned as an error with its code preserved;
// every other diagnostic is collected and logged, and the run continues.
func Execute(cfg *Config, m *ir.Module) (run *Run, err error) {
	run = &Run{ID: ksuid.New().String()}
	obslog.Run(run.ID, m.Identifier, cfg.Passes)

	defer func() {
		if r := diag.Recover(); r != nil {
			fault := r.(*diag.Fault)
			obslog.Fault(fault.Code, fault)
			err = errors.Wrapf(fault, "run %s aborted", run.ID)
		}
	}()

	b := ir.NewBuilder()
	rng := passes.NewRNG(cfg.Seed)

	for _, name := range cfg.Passes {
		if fp, ok := passes.LookupFunctionPass(name); ok {
			for _, f := range m.Functions {
				if len(f.Blocks) == 0 {
					continue // declaration only, nothing to transform
				}
				res := fp.RunOnFunction(b, rng, f)
				run.collect(res)
			}
			continue
		}
		if mp, ok := passes.LookupModulePass(name); ok {
			res := mp.RunOnModule(b, rng, m)
			run.collect(res)
			continue
		}
		return run, errors.Errorf("run %s: unregistered pass %q", run.ID, name)
	}
	return run, nil
}

func (run *Run) collect(res passes.Result) {
	run.Diagnostics = append(run.Diagnostics, res.Diagnostics...)
	for _, d := range res.Diagnostics {
		obslog.Diagnostic(d.Pass, d.Code, d.Message)
	}
	run.Splits = append(run.Splits, res.Splits...)
}

// WriteSplits serializes every Func2Mod split as internal/ir's textual
// dump (this rewrite has no LLVM bitcode writer — see DESIGN.md's
// func2mod.go entry) to dir/<split.Name>.ll, the spec.md §6 Func2Mod output
// naming scheme with a stand-in extension. An I/O failure here is
// spec.md §7's "Output I/O failure": propagated with its code, not
// recovered like a hard invariant violation.
func WriteSplits(dir string, splits []passes.Split) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &diag.Fault{Code: diag.CodeOutputIO, Message: err.Error()}
	}
	for _, split := range splits {
		path := filepath.Join(dir, split.Name+".ll")
		out := ir.Print(split.Module)
		if err := os.WriteFile(path, []byte(out), 0o644); err != nil {
			return errors.Wrapf(&diag.Fault{Code: diag.CodeOutputIO, Message: fmt.Sprintf("writing %s: %s", path, err)}, "run output")
		}
	}
	return nil
}
