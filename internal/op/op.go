// Package op defines the application operations the replicated state
// machine can apply. The replication core treats Op as opaque: it only
// needs to encode it, decode it back out of a byte slice, and hand it
// to the state machine's Apply callback.
package op

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Tag values for the wire encoding. 0 is reserved for Nop so a
// zero-valued buffer always decodes to a harmless no-op.
const (
	TagNop byte = 0
	TagAdd byte = 1
)

// Op is a single application operation. Concrete implementations are
// Nop and Add; the replication core never inspects which one it has.
type Op interface {
	Tag() byte
	Encode(buf *bytes.Buffer) error
}

// Nop does nothing when applied. It exists so the wire format and the
// state machine always have a trivial operation to exercise, e.g. for
// view-change or state-transfer tests that don't care about payload.
type Nop struct{}

func (Nop) Tag() byte { return TagNop }

func (Nop) Encode(buf *bytes.Buffer) error {
	buf.WriteByte(TagNop)
	return nil
}

// Add increments the demonstration state machine's accumulator by
// Value.
type Add struct {
	Value uint64
}

func (a Add) Tag() byte { return TagAdd }

func (a Add) Encode(buf *bytes.Buffer) error {
	buf.WriteByte(TagAdd)
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], a.Value)
	_, err := buf.Write(b[:])
	return err
}

// Decode reads a single self-delimiting Op from data and reports how
// many bytes it consumed, so callers can decode a run of Ops back to
// back (as the log payload of DoViewChange/StartView/NewState does)
// without a separate length prefix per entry.
func Decode(data []byte) (op Op, consumed int, err error) {
	if len(data) < 1 {
		return nil, 0, fmt.Errorf("op: decode: empty buffer")
	}
	switch data[0] {
	case TagNop:
		return Nop{}, 1, nil
	case TagAdd:
		if len(data) < 9 {
			return nil, 0, fmt.Errorf("op: decode Add: need 9 bytes, have %d", len(data))
		}
		v := binary.LittleEndian.Uint64(data[1:9])
		return Add{Value: v}, 9, nil
	default:
		return nil, 0, fmt.Errorf("op: decode: unknown tag %d", data[0])
	}
}

// DecodeAll decodes a contiguous run of self-delimiting Ops, e.g. the
// log payload embedded in DoViewChange/StartView/NewState.
func DecodeAll(data []byte) ([]Op, error) {
	var ops []Op
	for len(data) > 0 {
		o, n, err := Decode(data)
		if err != nil {
			return nil, err
		}
		ops = append(ops, o)
		data = data[n:]
	}
	return ops, nil
}

// EncodeAll writes a run of Ops back to back with no length prefix
// between them, relying on each Op being self-delimiting.
func EncodeAll(buf *bytes.Buffer, ops []Op) error {
	for _, o := range ops {
		if err := o.Encode(buf); err != nil {
			return fmt.Errorf("op: encode: %w", err)
		}
	}
	return nil
}
