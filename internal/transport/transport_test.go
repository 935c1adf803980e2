package transport

import (
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vrlabs/vrd/internal/wire"
)

type recorder struct {
	mu   sync.Mutex
	got  []wire.Message
	from []uint64
	ch   chan struct{}
}

func newRecorder() *recorder {
	return &recorder{ch: make(chan struct{}, 16)}
}

func (r *recorder) OnInbound(from uint64, msg wire.Message, _ ReplyFunc) {
	r.mu.Lock()
	r.got = append(r.got, msg)
	r.from = append(r.from, from)
	r.mu.Unlock()
	r.ch <- struct{}{}
}

func (r *recorder) wait(t *testing.T) {
	t.Helper()
	select {
	case <-r.ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound message")
	}
}

// TestSendDeliversToPeer binds two transports on loopback ephemeral
// ports, points each one's address table at the other's bound
// address, and checks that Send on one side surfaces on the other via
// OnInbound.
func TestSendDeliversToPeer(t *testing.T) {
	lnA, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	lnB, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addrs := []string{lnA.Addr().String(), lnB.Addr().String()}

	recvA := newRecorder()
	a := NewTCP(0, addrs, recvA)
	a.listener = lnA

	recvB := newRecorder()
	b := NewTCP(1, addrs, recvB)
	b.listener = lnB

	go acceptLoop(a)
	go acceptLoop(b)

	require.NoError(t, a.Send(1, wire.Commit{ViewNumber: 1, CommitNumber: 2}))
	recvB.wait(t)

	recvB.mu.Lock()
	require.Equal(t, wire.Commit{ViewNumber: 1, CommitNumber: 2}, recvB.got[0])
	recvB.mu.Unlock()

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
}

// TestSendAttributesSenderReplicaID checks that the receiving side
// learns the sending replica's id from the connection preamble, since
// PrepareOk/Commit carry no sender field of their own (spec.md §4.1).
func TestSendAttributesSenderReplicaID(t *testing.T) {
	lnA, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	lnB, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	addrs := []string{lnA.Addr().String(), lnB.Addr().String()}

	recvA := newRecorder()
	a := NewTCP(0, addrs, recvA)
	a.listener = lnA

	recvB := newRecorder()
	b := NewTCP(1, addrs, recvB)
	b.listener = lnB

	go acceptLoop(a)
	go acceptLoop(b)

	require.NoError(t, b.Send(0, wire.PrepareOk{ViewNumber: 1, OpNumber: 3}))
	recvA.wait(t)

	recvA.mu.Lock()
	require.Equal(t, uint64(1), recvA.from[0])
	recvA.mu.Unlock()

	require.NoError(t, a.Close())
	require.NoError(t, b.Close())
}

func TestSendToUnknownReplicaFails(t *testing.T) {
	tr := NewTCP(0, []string{"127.0.0.1:1"}, newRecorder())
	err := tr.Send(5, wire.Commit{})
	require.Error(t, err)
}

func acceptLoop(t *TCP) {
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			return
		}
		t.wg.Add(1)
		go t.serve(conn)
	}
}
