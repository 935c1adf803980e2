// Package clienttable implements the per-client request cache that
// gives the replication engine at-most-once execution semantics: a
// client retrying a request it already completed gets back the
// cached reply instead of a second Apply call.
package clienttable

// Entry is what the primary remembers about a client's most recent
// request: the request number it last accepted and the reply it
// produced for it. Reply is nil until the request commits.
type Entry struct {
	LastRequestNumber uint64
	LastReply         []byte
}

// Table maps client id to its Entry. It is owned exclusively by the
// replica that holds it (§5: no intra-replica mutation concurrency),
// so it needs no locking of its own.
type Table struct {
	entries map[uint64]Entry
}

func New() *Table {
	return &Table{entries: make(map[uint64]Entry)}
}

// Disposition is the client-table verdict for an incoming Request,
// per spec.md §4.4.
type Disposition int

const (
	// Accept means the request is new and should be appended to the
	// log and prepared.
	Accept Disposition = iota
	// Retry means this exact request number was already accepted;
	// resend the cached reply without re-executing.
	Retry
	// Stale means the request number is older than what's on file;
	// drop it.
	Stale
)

// Check classifies an incoming request against the table without
// mutating it.
func (t *Table) Check(clientID, requestNumber uint64) Disposition {
	entry, ok := t.entries[clientID]
	if !ok || requestNumber > entry.LastRequestNumber {
		return Accept
	}
	if requestNumber == entry.LastRequestNumber {
		return Retry
	}
	return Stale
}

// Reply returns the cached reply for clientID's last request, if any.
func (t *Table) Reply(clientID uint64) ([]byte, bool) {
	entry, ok := t.entries[clientID]
	if !ok {
		return nil, false
	}
	return entry.LastReply, true
}

// Record stores the outcome of a committed request, per I5: once this
// is called the cached reply is final for (clientID, requestNumber).
func (t *Table) Record(clientID, requestNumber uint64, reply []byte) {
	t.entries[clientID] = Entry{LastRequestNumber: requestNumber, LastReply: reply}
}

// Snapshot returns a defensive copy of the table's contents, so callers
// never alias internal map state.
func (t *Table) Snapshot() map[uint64]Entry {
	out := make(map[uint64]Entry, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}
