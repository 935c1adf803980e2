// Package vrlog implements the replicated operation log: an
// append-only, in-memory, ordered sequence of Ops addressed by
// 1-based op-number. Named vrlog (not log) to avoid colliding with
// the standard library package of the same name.
//
// Durability is explicitly out of scope (spec.md §1 Non-goals): this
// log lives in memory only and is reconstructed via state transfer or
// view change if a replica restarts.
package vrlog

import (
	"fmt"

	"github.com/vrlabs/vrd/internal/op"
)

// Log is an ordered, 1-indexed (in prose; 0-indexed internally)
// sequence of Ops.
type Log struct {
	entries []op.Op
}

func New() *Log {
	return &Log{}
}

// Append adds op to the end of the log and returns its new 1-based
// op-number.
func (l *Log) Append(o op.Op) uint64 {
	l.entries = append(l.entries, o)
	return uint64(len(l.entries))
}

// Len returns the log's op-number (number of entries it holds).
func (l *Log) Len() uint64 {
	return uint64(len(l.entries))
}

// At returns the Op at 1-based op-number n. It panics if n is out of
// range — callers must only ever ask for an op-number they know is
// present (I1: k <= n = len(log)).
func (l *Log) At(n uint64) op.Op {
	if n < 1 || n > uint64(len(l.entries)) {
		panic(fmt.Sprintf("vrlog: op-number %d out of range [1, %d]", n, len(l.entries)))
	}
	return l.entries[n-1]
}

// Truncate discards any entries beyond op-number n, used during view
// change to drop an uncommitted tail that was not chosen as part of
// the adopted log.
func (l *Log) Truncate(n uint64) {
	if n >= uint64(len(l.entries)) {
		return
	}
	l.entries = l.entries[:n]
}

// Slice returns the Ops in (from, to] (1-based, from exclusive, to
// inclusive) — used to answer GetState with exactly the suffix a
// lagging replica is missing.
func (l *Log) Slice(from, to uint64) []op.Op {
	if from >= to {
		return nil
	}
	out := make([]op.Op, to-from)
	copy(out, l.entries[from:to])
	return out
}

// All returns every entry currently in the log, e.g. for DoViewChange
// and StartView payloads.
func (l *Log) All() []op.Op {
	out := make([]op.Op, len(l.entries))
	copy(out, l.entries)
	return out
}

// Replace discards the current log wholesale and adopts entries,
// e.g. when a view-change winner's log is transplanted in.
func (l *Log) Replace(entries []op.Op) {
	l.entries = append([]op.Op(nil), entries...)
}
