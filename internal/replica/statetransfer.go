package replica

import (
	"github.com/vrlabs/vrd/internal/logger"
	"github.com/vrlabs/vrd/internal/wire"
)

// requestStateTransfer asks the primary of targetView to bring this
// replica up to date, per spec.md §4.6: triggered whenever a Prepare
// or Commit reveals a gap this replica can't close by itself (a
// missing log entry, or a commit-number beyond what's logged), or
// whenever a peer's view number is ahead of this replica's own.
func (r *Replica) requestStateTransfer(targetView uint64) {
	primary := r.config.PrimaryOf(targetView)
	if primary == r.id {
		return
	}
	r.status = StatusRecovering
	msg := wire.GetState{ReplicaID: r.id, ViewNumber: targetView, OpNumber: r.log.Len()}
	if err := r.sender.Send(primary, msg); err != nil {
		logger.Warn("replica: GetState send failed", logger.KeyPeer, primary, logger.KeyError, err)
	}
}

// handleGetState answers a lagging replica's state-transfer request
// with the suffix of the log it's missing. Only the replica that
// actually believes itself primary of the requested view answers —
// answering for a view it isn't primary of would hand out a log that
// isn't authoritative.
func (r *Replica) handleGetState(from uint64, m wire.GetState) {
	if !r.isPrimaryLocked() || m.ViewNumber != r.view || r.status != StatusNormal {
		return
	}
	if m.OpNumber > r.log.Len() {
		return
	}

	msg := wire.NewState{
		ViewNumber:   r.view,
		OpNumber:     r.log.Len(),
		CommitNumber: r.commitNumber,
		Log:          r.log.Slice(m.OpNumber, r.log.Len()),
	}
	if err := r.sender.Send(from, msg); err != nil {
		logger.Warn("replica: NewState send failed", logger.KeyPeer, from, logger.KeyError, err)
	}
}

// handleNewState adopts a state-transfer response: it brings this
// replica's view and log up to the sender's, appending only the
// suffix of m.Log this replica doesn't already have (the log may have
// grown via ordinary Prepares while the GetState round-trip was in
// flight).
func (r *Replica) handleNewState(m wire.NewState) {
	if r.status != StatusRecovering {
		return
	}
	if m.ViewNumber < r.view {
		return
	}

	r.view = m.ViewNumber
	r.status = StatusNormal
	r.backupIdleTicks = 0

	if m.OpNumber > r.log.Len() {
		gap := m.OpNumber - r.log.Len()
		if gap <= uint64(len(m.Log)) {
			tail := m.Log[uint64(len(m.Log))-gap:]
			for _, o := range tail {
				r.log.Append(o)
			}
		}
	}

	if m.CommitNumber > r.commitNumber {
		r.commitThrough(min(m.CommitNumber, r.log.Len()))
	}

	primary := r.config.PrimaryOf(r.view)
	ok := wire.PrepareOk{ViewNumber: r.view, OpNumber: r.log.Len()}
	if err := r.sender.Send(primary, ok); err != nil {
		logger.Warn("replica: PrepareOk send failed", logger.KeyPeer, primary, logger.KeyError, err)
	}
}
