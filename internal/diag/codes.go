// Package diag gives each error kind spec.md §7 distinguishes a stable
// string code, grounded on kanso/internal/errors's Ex-range-per-category
// scheme (ErrorLevel, stable codes, GetErrorDescription/GetErrorCategory).
// internal/passes never imports fatih/color or formats these itself; a
// Diagnostic carries a bare Code, and internal/obslog/cmd/obfuscate-cli do
// the presentation.
package diag

// Level mirrors kanso/internal/errors.ErrorLevel.
type Level string

const (
	Error   Level = "error"
	Warning Level = "warning"
	Note    Level = "note"
)

// Codes, one per error kind spec.md §7 names or gives examples of under
// the "Hard invariant violation" bucket.
const (
	// CodeSkipInvoke: a FunctionPass bailed because the function contains
	// an Invoke terminator (no unwinding model in this IR's CFG passes).
	CodeSkipInvoke = "OBF0001"

	// CodeSkipTooFewBlocks: a FunctionPass needs at least two blocks to
	// do anything (e.g. Flattening's dispatcher has nothing to dispatch
	// over with a single block).
	CodeSkipTooFewBlocks = "OBF0002"

	// CodeSkipWrongTarget: ObfCall's x86/x86_64-only calling-convention
	// trick bailed because the module's target triple doesn't match.
	CodeSkipWrongTarget = "OBF0003"

	// CodeHashCollision: Flattening's FNV-hashed dispatcher key assignment
	// produced a collision after exhausting the retry budget.
	// A bug, not a user-facing error.
	CodeHashCollision = "OBF0004"

	// CodeExtractorEligibility: BB2Func's region-extraction eligibility
	// check was satisfied during planning but violated during extraction.
	// A bug, not a user-facing error.
	CodeExtractorEligibility = "OBF0005"

	// CodeOutputIO: Func2Mod failed to write one of its split modules.
	CodeOutputIO = "OBF0006"

	// CodeUnknownMergedCaller: Merge found a call site it could not
	// rewrite to the merged dispatcher (e.g. an indirect call through a
	// function pointer it couldn't resolve statically).
	CodeUnknownMergedCaller = "OBF0007"
)

var descriptions = map[string]string{
	CodeSkipInvoke:           "function contains an Invoke terminator, pass skipped",
	CodeSkipTooFewBlocks:     "function has too few basic blocks for this transform, pass skipped",
	CodeSkipWrongTarget:      "module target triple is not x86/x86_64, pass skipped",
	CodeHashCollision:        "hash collision during dispatch-key rehash",
	CodeExtractorEligibility: "region extraction eligibility regressed mid-transform",
	CodeOutputIO:             "failed to write a Func2Mod output module",
	CodeUnknownMergedCaller:  "call site could not be rewritten to its merged dispatcher",
}

// Describe returns the stable human-readable description for code, or the
// empty string if code is not one of the constants above.
func Describe(code string) string { return descriptions[code] }

// LevelOf classifies a code: hash collisions and extractor-eligibility
// regressions (hard invariant violations) and Func2Mod output I/O failures
// are Error; every other code is a Warning. Note is never returned.
func LevelOf(code string) Level {
	switch code {
	case CodeHashCollision, CodeExtractorEligibility:
		return Error
	case CodeOutputIO:
		return Error
	default:
		return Warning
	}
}
