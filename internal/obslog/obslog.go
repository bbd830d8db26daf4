// Package obslog wraps github.com/tliron/commonlog, the structured logger
// kanso's LSP server configures via commonlog.Configure, with a single
// package-level logger passes and the pipeline log diagnostics through
// instead of calling fmt.Println directly (spec.md §7: skip-and-report and
// unknown-merged-caller notes are logs, not errors propagated to the
// caller).
package obslog

import (
	"fmt"

	"github.com/tliron/commonlog"
)

var logger commonlog.Logger

// Configure sets the process-wide verbosity (0 disables debug output, 1
// enables it) and initializes the backing commonlog logger, mirroring
// kanso-lsp's main.go commonlog.Configure(1, nil) call. Call once from
// cmd/obfuscate-cli's main before running any pass.
func Configure(verbose bool) {
	level := 0
	if verbose {
		level = 1
	}
	commonlog.Configure(level, nil)
	logger = commonlog.GetLogger("obfuscate")
}

func ensure() commonlog.Logger {
	if logger == nil {
		commonlog.Configure(0, nil)
		logger = commonlog.GetLogger("obfuscate")
	}
	return logger
}

// Diagnostic logs a pass-level skip/unknown-user note at Info level,
// prefixed with its stable internal/diag code when it has one.
func Diagnostic(pass, code, message string) {
	l := ensure()
	if code != "" {
		l.Infof("[%s] %s: %s", pass, code, message)
		return
	}
	l.Infof("[%s] %s", pass, message)
}

// Fault logs a hard invariant violation (spec.md §7) at Error level before
// the pipeline aborts the run.
func Fault(code string, err error) {
	ensure().Errorf("%s: %s", code, err)
}

// Run logs the start of a pipeline invocation, tagged with its ksuid run
// identifier so concurrent or historical runs are distinguishable in a log
// stream.
func Run(runID, moduleName string, passNames []string) {
	ensure().Infof("run %s: module %q, passes %s", runID, moduleName, fmt.Sprint(passNames))
}
