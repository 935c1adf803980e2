package replica

import (
	"time"

	"github.com/vrlabs/vrd/internal/clienttable"
	"github.com/vrlabs/vrd/internal/logger"
	"github.com/vrlabs/vrd/internal/transport"
	"github.com/vrlabs/vrd/internal/wire"
)

// handleRequest implements spec.md §4.2's normal-case client path: a
// primary classifies the request against its client table, and on
// Accept appends it to the log and prepares it to the other replicas.
// A non-primary or a replica not in StatusNormal silently drops the
// request; spec.md §4.7 leaves client-side retry/redirect as the
// client's problem, not the replica's.
func (r *Replica) handleRequest(m wire.Request, reply transport.ReplyFunc) {
	if !r.isPrimaryLocked() || r.status != StatusNormal {
		return
	}

	switch r.clientTable.Check(m.ClientID, m.RequestNumber) {
	case clienttable.Stale:
		return
	case clienttable.Retry:
		if cached, ok := r.clientTable.Reply(m.ClientID); ok && cached != nil {
			if err := reply(cached); err != nil {
				logger.Warn("replica: resend to client failed", logger.KeyClientID, m.ClientID, logger.KeyError, err)
			}
		}
		return
	}

	correlationID := newCorrelationID()

	// Record the client-table entry before the reply exists, so a
	// retransmission that arrives while this request is still in
	// flight is classified Retry (and silently dropped) rather than
	// Accept (and appended to the log a second time).
	r.clientTable.Record(m.ClientID, m.RequestNumber, nil)

	opNumber := r.log.Append(m.Op)
	r.origins[opNumber] = requestOrigin{clientID: m.ClientID, requestNumber: m.RequestNumber}
	r.pendingReplies[opNumber] = reply
	r.acks[opNumber] = map[uint64]struct{}{r.id: {}}
	r.prepareSentAt[opNumber] = time.Now()

	logger.Debug("replica: accepted request",
		logger.KeyRequestID, correlationID, logger.KeyClientID, m.ClientID, logger.KeyOpNumber, opNumber)

	r.broadcast(wire.Prepare{
		ViewNumber:   r.view,
		CommitNumber: r.commitNumber,
		OpNumber:     opNumber,
		Op:           m.Op,
	})

	// The primary's own ack above may already satisfy quorum (e.g. a
	// single-replica deployment, or a quorum of one) — check without
	// waiting for a PrepareOk that will never arrive.
	before := r.commitNumber
	r.advanceCommit()
	if r.commitNumber != before {
		r.broadcastCommit()
	}
}

// handlePrepare implements the backup side of the normal-case
// protocol: append the op if it extends the log by exactly one,
// request a state transfer if it would leave a gap, then ack.
func (r *Replica) handlePrepare(m wire.Prepare) {
	if r.isPrimaryLocked() {
		return
	}
	if m.ViewNumber < r.view {
		return
	}
	if m.ViewNumber > r.view {
		r.requestStateTransfer(m.ViewNumber)
		return
	}
	if r.status != StatusNormal {
		return
	}

	r.backupIdleTicks = 0

	switch {
	case m.OpNumber > r.log.Len()+1:
		r.requestStateTransfer(r.view)
		return
	case m.OpNumber == r.log.Len()+1:
		r.log.Append(m.Op)
	default:
		// Already have this op-number (a resend); just re-ack it below.
	}

	if m.CommitNumber > r.commitNumber {
		r.commitThrough(min(m.CommitNumber, r.log.Len()))
	}

	primary := r.config.PrimaryOf(r.view)
	ok := wire.PrepareOk{ViewNumber: r.view, OpNumber: m.OpNumber}
	if err := r.sender.Send(primary, ok); err != nil {
		logger.Warn("replica: PrepareOk send failed", logger.KeyPeer, primary, logger.KeyError, err)
	}
}

// handlePrepareOk implements the primary side of quorum tracking:
// record the ack in the set for that op-number, then commit every
// op-number in order whose ack set has reached quorum.
func (r *Replica) handlePrepareOk(from uint64, m wire.PrepareOk) {
	if !r.isPrimaryLocked() || r.status != StatusNormal {
		return
	}
	if m.ViewNumber != r.view || m.OpNumber <= r.commitNumber {
		return
	}

	set, ok := r.acks[m.OpNumber]
	if !ok {
		set = make(map[uint64]struct{})
		r.acks[m.OpNumber] = set
	}
	set[from] = struct{}{}

	before := r.commitNumber
	r.advanceCommit()
	if r.commitNumber != before {
		r.broadcastCommit()
	}
}

// advanceCommit applies every op-number immediately after the current
// commit-number whose ack set has reached quorum, in order — quorum
// can form out of order (a later op's PrepareOks can arrive first),
// but commits must still apply strictly in sequence (I1).
func (r *Replica) advanceCommit() {
	for {
		next := r.commitNumber + 1
		if next > r.log.Len() {
			return
		}
		set, ok := r.acks[next]
		if !ok || len(set) < r.config.Quorum() {
			return
		}
		r.apply(next)
		delete(r.acks, next)
		if sentAt, ok := r.prepareSentAt[next]; ok {
			delete(r.prepareSentAt, next)
			r.m.ObserveQuorumLatency(time.Since(sentAt))
		}
	}
}

// handleCommit implements the backup side of the commit heartbeat:
// apply anything the primary reports committed that this replica has
// in its log but hasn't applied yet, or request state transfer if the
// primary is ahead of this replica's log.
func (r *Replica) handleCommit(m wire.Commit) {
	if r.isPrimaryLocked() {
		return
	}
	if m.ViewNumber < r.view {
		return
	}
	if m.ViewNumber > r.view {
		r.requestStateTransfer(m.ViewNumber)
		return
	}
	if r.status != StatusNormal {
		return
	}

	r.backupIdleTicks = 0

	if m.CommitNumber > r.log.Len() {
		r.requestStateTransfer(r.view)
		return
	}
	if m.CommitNumber > r.commitNumber {
		r.commitThrough(m.CommitNumber)
	}
}
