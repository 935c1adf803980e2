package replica

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vrlabs/vrd/internal/op"
	"github.com/vrlabs/vrd/internal/replicaconfig"
	"github.com/vrlabs/vrd/internal/statemachine"
	"github.com/vrlabs/vrd/internal/transport"
	"github.com/vrlabs/vrd/internal/wire"
)

// recordingSender captures every message sent through it, keyed by
// destination replica id, instead of putting anything on a wire — it
// exists so a single-replica test can observe what the replica under
// test tried to broadcast without standing up a second replica.
type recordingSender struct {
	sent []sentMessage
}

type sentMessage struct {
	to  uint64
	msg wire.Message
}

func (s *recordingSender) Send(replicaID uint64, msg wire.Message) error {
	s.sent = append(s.sent, sentMessage{to: replicaID, msg: msg})
	return nil
}

func newTestReplica(t *testing.T, id uint64, n int) (*Replica, *recordingSender) {
	t.Helper()
	addrs := make([]string, n)
	for i := range addrs {
		addrs[i] = "127.0.0.1:0"
	}
	cfg, err := replicaconfig.New(addrs)
	require.NoError(t, err)

	sender := &recordingSender{}
	r := New(id, cfg, sender, statemachine.NewCounter(), 4, nil)
	return r, sender
}

func collectReply(t *testing.T) (transport.ReplyFunc, *[]byte) {
	t.Helper()
	var got []byte
	return func(reply []byte) error {
		got = reply
		return nil
	}, &got
}

// TestPrimaryAcceptsRequestAndPrepares checks that a primary presented
// with a fresh Request appends it to its log and broadcasts a Prepare
// to every backup, immediately acking itself.
func TestPrimaryAcceptsRequestAndPrepares(t *testing.T) {
	r, sender := newTestReplica(t, 0, 3) // replica 0 is primary of view 0

	reply, _ := collectReply(t)
	r.OnInbound(0, wire.Request{ClientID: 1, RequestNumber: 1, Op: op.Add{Value: 5}}, reply)

	require.Equal(t, uint64(1), r.OpNumber())
	require.Len(t, sender.sent, 2) // Prepare to replicas 1 and 2

	for _, s := range sender.sent {
		prep, ok := s.msg.(wire.Prepare)
		require.True(t, ok)
		require.Equal(t, uint64(1), prep.OpNumber)
		require.Equal(t, op.Add{Value: 5}, prep.Op)
	}

	r.mu.Lock()
	_, acked := r.acks[1][0]
	r.mu.Unlock()
	require.True(t, acked, "primary should ack its own op immediately")
}

// TestBackupDropsRequest checks that a non-primary replica silently
// ignores a Request instead of appending it.
func TestBackupDropsRequest(t *testing.T) {
	r, sender := newTestReplica(t, 1, 3) // replica 1 is not primary of view 0

	reply, _ := collectReply(t)
	r.OnInbound(0, wire.Request{ClientID: 1, RequestNumber: 1, Op: op.Add{Value: 5}}, reply)

	require.Equal(t, uint64(0), r.OpNumber())
	require.Empty(t, sender.sent)
}

// TestDuplicateRequestResendsCachedReply checks at-most-once
// execution: a request number already committed must be answered from
// the client table, not re-applied.
func TestDuplicateRequestResendsCachedReply(t *testing.T) {
	r, _ := newTestReplica(t, 0, 1) // a solo deployment commits on its own ack

	reply1, got1 := collectReply(t)
	r.OnInbound(0, wire.Request{ClientID: 1, RequestNumber: 1, Op: op.Add{Value: 5}}, reply1)
	require.Equal(t, uint64(1), r.CommitNumber())
	require.NotNil(t, *got1)

	reply2, got2 := collectReply(t)
	r.OnInbound(0, wire.Request{ClientID: 1, RequestNumber: 1, Op: op.Add{Value: 5}}, reply2)

	require.Equal(t, *got1, *got2, "a retried request must get back the original reply, not a re-executed one")
}

// TestStaleRequestIsDropped checks that a request number older than
// the client's last accepted one is dropped, not re-executed or
// re-acked.
func TestStaleRequestIsDropped(t *testing.T) {
	r, _ := newTestReplica(t, 0, 1)

	reply1, _ := collectReply(t)
	r.OnInbound(0, wire.Request{ClientID: 1, RequestNumber: 2, Op: op.Add{Value: 5}}, reply1)
	require.Equal(t, uint64(1), r.CommitNumber())

	reply2, got2 := collectReply(t)
	r.OnInbound(0, wire.Request{ClientID: 1, RequestNumber: 1, Op: op.Add{Value: 1}}, reply2)

	require.Nil(t, *got2, "a stale request must not receive any reply")
	require.Equal(t, uint64(1), r.CommitNumber(), "a stale request must not be applied")
}

// TestPrepareOkQuorumCommitsInOrder checks that the primary only
// commits once a quorum of PrepareOks has been seen for an op-number,
// and never commits out of order even if a later op-number's quorum
// forms first.
func TestPrepareOkQuorumCommitsInOrder(t *testing.T) {
	r, sender := newTestReplica(t, 0, 5) // quorum = 3

	reply, _ := collectReply(t)
	r.OnInbound(0, wire.Request{ClientID: 1, RequestNumber: 1, Op: op.Add{Value: 1}}, reply)
	r.OnInbound(0, wire.Request{ClientID: 1, RequestNumber: 2, Op: op.Add{Value: 1}}, reply)
	require.Equal(t, uint64(0), r.CommitNumber())

	// Quorum forms for op 2 before op 1 — must not commit early.
	r.OnInbound(2, wire.PrepareOk{ViewNumber: 0, OpNumber: 2}, reply)
	r.OnInbound(3, wire.PrepareOk{ViewNumber: 0, OpNumber: 2}, reply)
	require.Equal(t, uint64(0), r.CommitNumber())

	// Now op 1 reaches quorum: both 1 and 2 should commit, in order.
	r.OnInbound(2, wire.PrepareOk{ViewNumber: 0, OpNumber: 1}, reply)
	r.OnInbound(3, wire.PrepareOk{ViewNumber: 0, OpNumber: 1}, reply)
	require.Equal(t, uint64(2), r.CommitNumber())

	found := false
	for _, s := range sender.sent {
		if _, ok := s.msg.(wire.Commit); ok {
			found = true
		}
	}
	require.True(t, found, "a primary that advances its commit number must announce it")
}

// TestBackupRejectsGapAndRequestsStateTransfer checks that a backup
// that would be left with a hole in its log asks for state transfer
// instead of appending out of order.
func TestBackupRejectsGapAndRequestsStateTransfer(t *testing.T) {
	r, sender := newTestReplica(t, 1, 3) // replica 1 is a backup in view 0

	r.OnInbound(0, wire.Prepare{ViewNumber: 0, CommitNumber: 0, OpNumber: 2, Op: op.Add{Value: 1}}, nil)

	require.Equal(t, uint64(0), r.OpNumber(), "a Prepare that would leave a gap must not be appended")
	require.Len(t, sender.sent, 1)
	getState, ok := sender.sent[0].msg.(wire.GetState)
	require.True(t, ok)
	require.Equal(t, uint64(1), getState.ReplicaID)
}

// TestViewChangeTimeoutPromotesNextPrimary checks that a backup which
// sees no primary traffic for the configured number of ticks starts a
// view change for the next view.
func TestViewChangeTimeoutPromotesNextPrimary(t *testing.T) {
	r, sender := newTestReplica(t, 1, 3) // replica 1 is a backup in view 0

	for i := 0; i < 5; i++ {
		r.OnTimer()
	}

	require.Equal(t, StatusViewChange, r.CurrentStatus())
	require.Equal(t, uint64(1), r.View())

	found := false
	for _, s := range sender.sent {
		if svc, ok := s.msg.(wire.StartViewChange); ok {
			require.Equal(t, uint64(1), svc.ViewNumber)
			found = true
		}
	}
	require.True(t, found)
}

// TestPrimaryHeartbeatsOnTimer checks that a primary broadcasts Commit
// on every tick rather than ever initiating a view change on itself.
func TestPrimaryHeartbeatsOnTimer(t *testing.T) {
	r, sender := newTestReplica(t, 0, 3)

	r.OnTimer()

	require.Equal(t, StatusNormal, r.CurrentStatus())
	require.Len(t, sender.sent, 2)
	for _, s := range sender.sent {
		_, ok := s.msg.(wire.Commit)
		require.True(t, ok)
	}
}
