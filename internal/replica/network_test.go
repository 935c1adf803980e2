package replica

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vrlabs/vrd/internal/op"
	"github.com/vrlabs/vrd/internal/replicaconfig"
	"github.com/vrlabs/vrd/internal/statemachine"
	"github.com/vrlabs/vrd/internal/wire"
)

// memoryNetwork is an in-memory stand-in for internal/transport,
// grounded on the same Sender contract a real transport.TCP offers.
// Send never re-enters a replica's OnInbound directly — doing so could
// deadlock a replica against its own mutex when a chain of replies
// loops back to the sender within one call stack — instead it
// enqueues the delivery and a bounded drain loop processes the queue
// breadth-first, which is enough to drive the normal-case,
// view-change, and state-transfer protocols to a fixed point in tests.
type memoryNetwork struct {
	replicas map[uint64]*Replica
	queue    []delivery
}

type delivery struct {
	to   uint64
	from uint64
	msg  wire.Message
}

func newMemoryNetwork() *memoryNetwork {
	return &memoryNetwork{replicas: make(map[uint64]*Replica)}
}

type busSender struct {
	net  *memoryNetwork
	self uint64
}

func (s *busSender) Send(replicaID uint64, msg wire.Message) error {
	s.net.queue = append(s.net.queue, delivery{to: replicaID, from: s.self, msg: msg})
	return nil
}

// dropPending discards any currently queued deliveries addressed to
// replicaID, simulating that replica being offline or the message
// being lost for this round — the rest of the cluster proceeds as if
// it never received them.
func (n *memoryNetwork) dropPending(replicaID uint64) {
	kept := n.queue[:0]
	for _, d := range n.queue {
		if d.to != replicaID {
			kept = append(kept, d)
		}
	}
	n.queue = kept
}

// drain processes queued deliveries until the queue empties or the
// step cap is hit, failing the test in the latter case since that
// indicates the protocol never reached a fixed point.
func (n *memoryNetwork) drain(t *testing.T) {
	t.Helper()
	const maxSteps = 10000
	for steps := 0; len(n.queue) > 0; steps++ {
		require.Less(t, steps, maxSteps, "network did not reach a fixed point")
		d := n.queue[0]
		n.queue = n.queue[1:]
		target, ok := n.replicas[d.to]
		if !ok {
			continue
		}
		target.OnInbound(d.from, d.msg, nil)
	}
}

func newCluster(t *testing.T, n int, viewChangeIdleTicks int) (*memoryNetwork, []*Replica) {
	t.Helper()
	addrs := make([]string, n)
	for i := range addrs {
		addrs[i] = "127.0.0.1:0"
	}
	cfg, err := replicaconfig.New(addrs)
	require.NoError(t, err)

	net := newMemoryNetwork()
	replicas := make([]*Replica, n)
	for i := 0; i < n; i++ {
		id := uint64(i)
		r := New(id, cfg, &busSender{net: net, self: id}, statemachine.NewCounter(), viewChangeIdleTicks, nil)
		replicas[i] = r
		net.replicas[id] = r
	}
	return net, replicas
}

// TestClusterCommitsRequestAcrossAllReplicas drives a single client
// Request through the primary and checks that every replica in a
// 3-node cluster ends up with the op committed, via S1 from spec.md
// §8 (primary processes, backups catch up from Prepare/Commit).
func TestClusterCommitsRequestAcrossAllReplicas(t *testing.T) {
	net, replicas := newCluster(t, 3, 4)

	var clientReply []byte
	replicas[0].OnInbound(0, wire.Request{ClientID: 1, RequestNumber: 1, Op: op.Add{Value: 7}}, func(reply []byte) error {
		clientReply = reply
		return nil
	})
	net.drain(t)

	for _, r := range replicas {
		require.Equal(t, uint64(1), r.CommitNumber(), "replica %d should have committed the op", r.ID())
		require.Equal(t, uint64(1), r.OpNumber())
	}
	require.NotNil(t, clientReply)
}

// TestClusterViewChangePreservesCommittedLog drives a request to
// commit, forces a view change by starving the primary of ticks while
// feeding backups enough timer ticks to time out, and checks the new
// primary starts the new view with the previously committed op intact
// (S3/S4: the winning log must be at least as complete as any quorum
// member's committed prefix).
func TestClusterViewChangePreservesCommittedLog(t *testing.T) {
	net, replicas := newCluster(t, 3, 2)

	replicas[0].OnInbound(0, wire.Request{ClientID: 1, RequestNumber: 1, Op: op.Add{Value: 3}}, func([]byte) error { return nil })
	net.drain(t)
	require.Equal(t, uint64(1), replicas[0].CommitNumber())

	// Replicas 1 and 2 time out waiting on replica 0 (the view-0
	// primary) and independently initiate a view change to view 1.
	for i := 0; i < 3; i++ {
		replicas[1].OnTimer()
		replicas[2].OnTimer()
		net.drain(t)
	}

	require.Equal(t, uint64(1), replicas[1].View())
	require.Equal(t, StatusNormal, replicas[1].CurrentStatus(), "view change should have completed once a quorum agreed")

	for _, r := range replicas {
		require.GreaterOrEqual(t, r.CommitNumber(), uint64(1), "the committed op must survive the view change on replica %d", r.ID())
	}
}

// TestClusterBackupCatchesUpViaStateTransfer checks that a replica
// which missed two Prepares in a row (e.g. it was offline) recovers
// the full log via GetState/NewState once it observes a later
// Prepare, rather than silently diverging.
func TestClusterBackupCatchesUpViaStateTransfer(t *testing.T) {
	net, replicas := newCluster(t, 3, 4)

	// replica 2 misses every message for ops 1 and 2 entirely (simulating
	// it being offline: it is off the network, so neither the Prepares
	// nor the Commit heartbeats reach it), while the other two replicas
	// commit normally.
	delete(net.replicas, 2)
	replicas[0].OnInbound(0, wire.Request{ClientID: 1, RequestNumber: 1, Op: op.Add{Value: 1}}, func([]byte) error { return nil })
	net.dropPending(2)
	net.drain(t)

	replicas[0].OnInbound(0, wire.Request{ClientID: 1, RequestNumber: 2, Op: op.Add{Value: 1}}, func([]byte) error { return nil })
	net.dropPending(2)
	net.drain(t)

	require.Equal(t, uint64(0), replicas[2].OpNumber(), "replica 2 should still be behind")

	// Replica 2 comes back online; a third request's Prepare finally
	// reaches it, and it discovers the gap and pulls the missing prefix
	// via state transfer.
	net.replicas[2] = replicas[2]
	replicas[0].OnInbound(0, wire.Request{ClientID: 1, RequestNumber: 3, Op: op.Add{Value: 1}}, func([]byte) error { return nil })
	net.drain(t)

	require.Equal(t, uint64(3), replicas[2].OpNumber(), "state transfer should have filled the gap")
	require.Equal(t, uint64(3), replicas[2].CommitNumber())
}
