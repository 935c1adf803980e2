package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// ErrProtocol is the sentinel wrapped by every framing/discriminator
// error. Per spec.md §7 a protocol error means: close the connection,
// log it, and make no state changes.
var ErrProtocol = errors.New("protocol error")

// MaxFrameBody caps how large a single frame's declared length may be,
// so a corrupt or hostile length prefix can't make a reader allocate
// unbounded memory before discovering the frame is bad.
const MaxFrameBody = 64 << 20 // 64 MiB

// ReadFrame reads one length-prefixed frame from r and parses it.
// Truncated reads and oversized length prefixes are protocol errors.
func ReadFrame(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: reading length prefix: %v", ErrProtocol, err)
	}

	n := binary.LittleEndian.Uint32(lenBuf[:])
	if n > MaxFrameBody {
		return nil, fmt.Errorf("%w: frame body length %d exceeds maximum %d", ErrProtocol, n, MaxFrameBody)
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("%w: reading %d-byte frame body: %v", ErrProtocol, n, err)
	}

	return ParseBody(body)
}

// WriteFrame serializes m and writes the resulting frame to w.
func WriteFrame(w io.Writer, m Message) error {
	frame, err := Serialize(m)
	if err != nil {
		return err
	}
	_, err = w.Write(frame)
	return err
}
