// Package statemachine defines the application callback contract the
// replication core drives (spec.md §6: "apply(op) -> reply_bytes;
// must be deterministic and side-effect-free outside of its own
// state"), plus a trivial accumulating-counter implementation used by
// tests and the demo cmd/vrd process.
//
// The demonstration counter itself is explicitly out of scope for the
// replication core (spec.md §1 names it as an external collaborator);
// it lives here only so the engine has something concrete to drive in
// tests and in the sample binary.
package statemachine

import (
	"encoding/binary"

	"github.com/vrlabs/vrd/internal/op"
)

// StateMachine applies an Op and returns the reply bytes the client
// protocol should see for it. Implementations must be deterministic:
// replaying the same Op sequence on any replica must produce the same
// replies, since agreement (I3) depends on it.
type StateMachine interface {
	Apply(o op.Op) []byte
}

// Counter is a 64-bit accumulator: Add(v) adds v and returns the new
// total; Nop leaves it unchanged and returns the current total.
type Counter struct {
	total uint64
}

func NewCounter() *Counter {
	return &Counter{}
}

func (c *Counter) Apply(o op.Op) []byte {
	switch v := o.(type) {
	case op.Add:
		c.total += v.Value
	case op.Nop:
		// no-op
	}
	reply := make([]byte, 8)
	binary.LittleEndian.PutUint64(reply, c.total)
	return reply
}

// Total returns the counter's current value, for tests — it has no
// role in the replication protocol itself.
func (c *Counter) Total() uint64 {
	return c.total
}
