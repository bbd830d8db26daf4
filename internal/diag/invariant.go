package diag

import "fmt"

// Fault is a hard invariant violation (spec.md §7): a bug, not a
// user-facing error, raised via panic and expected to be recovered at the
// pipeline boundary and reported with its stable code intact.
type Fault struct {
	Code    string
	Message string
}

func (f *Fault) Error() string {
	return fmt.Sprintf("%s: %s", f.Code, f.Message)
}

// Invariant panics with a *Fault if cond is false. Passes call this for
// the assertion failures spec.md §7 calls out as aborts rather than
// diagnostics: FNV rehash collisions, extractor eligibility regressions.
func Invariant(cond bool, code, format string, args ...interface{}) {
	if cond {
		return
	}
	panic(&Fault{Code: code, Message: fmt.Sprintf(format, args...)})
}

// Recover turns a panicking *Fault into an error, leaving any other panic
// value to propagate (an invariant violation is the only panic this tree
// is meant to produce; anything else is unexpected and should crash).
func Recover() error {
	r := recover()
	if r == nil {
		return nil
	}
	if f, ok := r.(*Fault); ok {
		return f
	}
	panic(r)
}
