// Package invariant is the single place the replica core escalates a
// "this must never happen" condition to a fatal halt, per spec.md §7:
// "Invariant violation ... fatal; the replica halts rather than
// risking divergence. Fatal conditions must never be swallowed."
package invariant

import "fmt"

// Check panics with a formatted message if cond is false. It is for
// conditions the protocol design guarantees can't occur (e.g.
// committing past the end of the log) — never for expected,
// recoverable situations like a dropped duplicate or an out-of-view
// message, which handlers must resolve by returning, not by checking
// an invariant.
func Check(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("invariant violation: "+format, args...))
	}
}
