// Package wire implements the inter-replica message codec: framing,
// discriminators, and per-message payload layouts.
//
// Every frame is `len:u32-LE || body`, where body[0] is a single-byte
// discriminator and the remainder is the discriminator-specific
// payload. All integer fields are little-endian; usize-valued fields
// (client ids, request numbers, view/op/commit numbers, replica ids)
// are encoded as 8-byte (u64) values. An embedded log is a
// back-to-back run of self-delimiting Op encodings (see package op),
// terminated implicitly by the end of the frame payload.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/vrlabs/vrd/internal/op"
)

// Discriminator byte values, in wire order.
const (
	TagRequest         byte = 1
	TagPrepare         byte = 2
	TagPrepareOk       byte = 3
	TagCommit          byte = 4
	TagStartViewChange byte = 5
	TagDoViewChange    byte = 6
	TagStartView       byte = 7
	TagGetState        byte = 8
	TagNewState        byte = 9
)

// Message is any protocol message that can cross the wire between
// replicas (or from a client, for Request).
type Message interface {
	tag() byte
}

type Request struct {
	ClientID      uint64
	RequestNumber uint64
	Op            op.Op
}

type Prepare struct {
	ViewNumber   uint64
	CommitNumber uint64
	OpNumber     uint64
	Op           op.Op
}

type PrepareOk struct {
	ViewNumber uint64
	OpNumber   uint64
}

type Commit struct {
	ViewNumber   uint64
	CommitNumber uint64
}

type StartViewChange struct {
	ViewNumber uint64
	ReplicaID  uint64
}

type DoViewChange struct {
	ViewNumber   uint64
	OpNumber     uint64
	ReplicaID    uint64
	CommitNumber uint64
	Log          []op.Op
}

type StartView struct {
	ViewNumber   uint64
	OpNumber     uint64
	ReplicaID    uint64
	CommitNumber uint64
	Log          []op.Op
}

type GetState struct {
	ReplicaID  uint64
	ViewNumber uint64
	OpNumber   uint64
}

type NewState struct {
	ViewNumber   uint64
	OpNumber     uint64
	CommitNumber uint64
	Log          []op.Op
}

func (Request) tag() byte         { return TagRequest }
func (Prepare) tag() byte         { return TagPrepare }
func (PrepareOk) tag() byte       { return TagPrepareOk }
func (Commit) tag() byte          { return TagCommit }
func (StartViewChange) tag() byte { return TagStartViewChange }
func (DoViewChange) tag() byte    { return TagDoViewChange }
func (StartView) tag() byte       { return TagStartView }
func (GetState) tag() byte        { return TagGetState }
func (NewState) tag() byte        { return TagNewState }

func putU64(buf *bytes.Buffer, v uint64) {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	buf.Write(b[:])
}

// EncodeBody writes a message's discriminator and payload (everything
// after the 4-byte length prefix) into buf.
func EncodeBody(buf *bytes.Buffer, m Message) error {
	buf.WriteByte(m.tag())

	switch v := m.(type) {
	case Request:
		putU64(buf, v.ClientID)
		putU64(buf, v.RequestNumber)
		return v.Op.Encode(buf)
	case Prepare:
		putU64(buf, v.ViewNumber)
		putU64(buf, v.CommitNumber)
		putU64(buf, v.OpNumber)
		return v.Op.Encode(buf)
	case PrepareOk:
		putU64(buf, v.ViewNumber)
		putU64(buf, v.OpNumber)
		return nil
	case Commit:
		putU64(buf, v.ViewNumber)
		putU64(buf, v.CommitNumber)
		return nil
	case StartViewChange:
		putU64(buf, v.ViewNumber)
		putU64(buf, v.ReplicaID)
		return nil
	case DoViewChange:
		putU64(buf, v.ViewNumber)
		putU64(buf, v.OpNumber)
		putU64(buf, v.ReplicaID)
		putU64(buf, v.CommitNumber)
		return op.EncodeAll(buf, v.Log)
	case StartView:
		putU64(buf, v.ViewNumber)
		putU64(buf, v.OpNumber)
		putU64(buf, v.ReplicaID)
		putU64(buf, v.CommitNumber)
		return op.EncodeAll(buf, v.Log)
	case GetState:
		putU64(buf, v.ReplicaID)
		putU64(buf, v.ViewNumber)
		putU64(buf, v.OpNumber)
		return nil
	case NewState:
		putU64(buf, v.ViewNumber)
		putU64(buf, v.OpNumber)
		putU64(buf, v.CommitNumber)
		return op.EncodeAll(buf, v.Log)
	default:
		return fmt.Errorf("wire: encode: unknown message type %T", m)
	}
}

// Serialize returns the full frame (length prefix included) for m.
func Serialize(m Message) ([]byte, error) {
	var body bytes.Buffer
	if err := EncodeBody(&body, m); err != nil {
		return nil, err
	}

	frame := make([]byte, 4+body.Len())
	binary.LittleEndian.PutUint32(frame, uint32(body.Len()))
	copy(frame[4:], body.Bytes())
	return frame, nil
}

func getU64(data []byte, off int) (uint64, error) {
	if off+8 > len(data) {
		return 0, fmt.Errorf("wire: truncated field at offset %d (have %d bytes)", off, len(data))
	}
	return binary.LittleEndian.Uint64(data[off : off+8]), nil
}

// ParseBody parses a frame body (discriminator + payload, no length
// prefix) into a Message. An unknown discriminator or a truncated
// field is a protocol error: the caller must close the connection and
// must not mutate any replica state.
func ParseBody(body []byte) (Message, error) {
	if len(body) < 1 {
		return nil, fmt.Errorf("%w: empty frame body", ErrProtocol)
	}
	tag := body[0]
	rest := body[1:]

	switch tag {
	case TagRequest:
		clientID, err := getU64(rest, 0)
		if err != nil {
			return nil, wrapProtocol("Request.client_id", err)
		}
		reqNum, err := getU64(rest, 8)
		if err != nil {
			return nil, wrapProtocol("Request.request_number", err)
		}
		o, consumed, err := op.Decode(rest[16:])
		if err != nil {
			return nil, wrapProtocol("Request.op", err)
		}
		if err := requireExact(rest, 16+consumed); err != nil {
			return nil, err
		}
		return Request{ClientID: clientID, RequestNumber: reqNum, Op: o}, nil

	case TagPrepare:
		view, err := getU64(rest, 0)
		if err != nil {
			return nil, wrapProtocol("Prepare.view_number", err)
		}
		commit, err := getU64(rest, 8)
		if err != nil {
			return nil, wrapProtocol("Prepare.commit_number", err)
		}
		opNum, err := getU64(rest, 16)
		if err != nil {
			return nil, wrapProtocol("Prepare.op_number", err)
		}
		o, consumed, err := op.Decode(rest[24:])
		if err != nil {
			return nil, wrapProtocol("Prepare.op", err)
		}
		if err := requireExact(rest, 24+consumed); err != nil {
			return nil, err
		}
		return Prepare{ViewNumber: view, CommitNumber: commit, OpNumber: opNum, Op: o}, nil

	case TagPrepareOk:
		view, err := getU64(rest, 0)
		if err != nil {
			return nil, wrapProtocol("PrepareOk.view_number", err)
		}
		opNum, err := getU64(rest, 8)
		if err != nil {
			return nil, wrapProtocol("PrepareOk.op_number", err)
		}
		if err := requireExact(rest, 16); err != nil {
			return nil, err
		}
		return PrepareOk{ViewNumber: view, OpNumber: opNum}, nil

	case TagCommit:
		view, err := getU64(rest, 0)
		if err != nil {
			return nil, wrapProtocol("Commit.view_number", err)
		}
		commit, err := getU64(rest, 8)
		if err != nil {
			return nil, wrapProtocol("Commit.commit_number", err)
		}
		if err := requireExact(rest, 16); err != nil {
			return nil, err
		}
		return Commit{ViewNumber: view, CommitNumber: commit}, nil

	case TagStartViewChange:
		view, err := getU64(rest, 0)
		if err != nil {
			return nil, wrapProtocol("StartViewChange.view_number", err)
		}
		replicaID, err := getU64(rest, 8)
		if err != nil {
			return nil, wrapProtocol("StartViewChange.replica_id", err)
		}
		if err := requireExact(rest, 16); err != nil {
			return nil, err
		}
		return StartViewChange{ViewNumber: view, ReplicaID: replicaID}, nil

	case TagDoViewChange:
		view, err := getU64(rest, 0)
		if err != nil {
			return nil, wrapProtocol("DoViewChange.view_number", err)
		}
		opNum, err := getU64(rest, 8)
		if err != nil {
			return nil, wrapProtocol("DoViewChange.op_number", err)
		}
		replicaID, err := getU64(rest, 16)
		if err != nil {
			return nil, wrapProtocol("DoViewChange.replica_id", err)
		}
		commit, err := getU64(rest, 24)
		if err != nil {
			return nil, wrapProtocol("DoViewChange.commit_number", err)
		}
		log, err := op.DecodeAll(rest[32:])
		if err != nil {
			return nil, wrapProtocol("DoViewChange.log", err)
		}
		return DoViewChange{ViewNumber: view, OpNumber: opNum, ReplicaID: replicaID, CommitNumber: commit, Log: log}, nil

	case TagStartView:
		view, err := getU64(rest, 0)
		if err != nil {
			return nil, wrapProtocol("StartView.view_number", err)
		}
		opNum, err := getU64(rest, 8)
		if err != nil {
			return nil, wrapProtocol("StartView.op_number", err)
		}
		replicaID, err := getU64(rest, 16)
		if err != nil {
			return nil, wrapProtocol("StartView.replica_id", err)
		}
		commit, err := getU64(rest, 24)
		if err != nil {
			return nil, wrapProtocol("StartView.commit_number", err)
		}
		log, err := op.DecodeAll(rest[32:])
		if err != nil {
			return nil, wrapProtocol("StartView.log", err)
		}
		return StartView{ViewNumber: view, OpNumber: opNum, ReplicaID: replicaID, CommitNumber: commit, Log: log}, nil

	case TagGetState:
		replicaID, err := getU64(rest, 0)
		if err != nil {
			return nil, wrapProtocol("GetState.replica_id", err)
		}
		view, err := getU64(rest, 8)
		if err != nil {
			return nil, wrapProtocol("GetState.view_number", err)
		}
		opNum, err := getU64(rest, 16)
		if err != nil {
			return nil, wrapProtocol("GetState.op_number", err)
		}
		if err := requireExact(rest, 24); err != nil {
			return nil, err
		}
		return GetState{ReplicaID: replicaID, ViewNumber: view, OpNumber: opNum}, nil

	case TagNewState:
		view, err := getU64(rest, 0)
		if err != nil {
			return nil, wrapProtocol("NewState.view_number", err)
		}
		opNum, err := getU64(rest, 8)
		if err != nil {
			return nil, wrapProtocol("NewState.op_number", err)
		}
		commit, err := getU64(rest, 16)
		if err != nil {
			return nil, wrapProtocol("NewState.commit_number", err)
		}
		log, err := op.DecodeAll(rest[24:])
		if err != nil {
			return nil, wrapProtocol("NewState.log", err)
		}
		return NewState{ViewNumber: view, OpNumber: opNum, CommitNumber: commit, Log: log}, nil

	default:
		return nil, fmt.Errorf("%w: unknown discriminator %d", ErrProtocol, tag)
	}
}

func wrapProtocol(field string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrProtocol, field, err)
}

// requireExact reports a protocol error if body has trailing bytes
// past the fields the message type actually consumes — the frame's
// length prefix is authoritative, so anything left over means the
// sender and receiver disagree about the payload shape.
func requireExact(body []byte, consumed int) error {
	if consumed != len(body) {
		return fmt.Errorf("%w: expected %d bytes, frame has %d", ErrProtocol, consumed, len(body))
	}
	return nil
}
