package replica

import (
	"time"

	"github.com/vrlabs/vrd/internal/logger"
	"github.com/vrlabs/vrd/internal/op"
	"github.com/vrlabs/vrd/internal/wire"
)

// initiateViewChange moves this replica into StatusViewChange for
// targetView and broadcasts StartViewChange, per spec.md §4.6: a
// backup that hasn't heard from the primary within the idle threshold
// starts the next view itself rather than waiting indefinitely.
func (r *Replica) initiateViewChange(targetView uint64) {
	if targetView <= r.view && r.status != StatusNormal {
		return
	}

	r.status = StatusViewChange
	r.view = targetView
	r.backupIdleTicks = 0
	r.viewSnapshot = nil
	r.startViewChangeCounter[targetView] = map[uint64]struct{}{r.id: {}}
	r.m.IncViewChanges()

	r.broadcast(wire.StartViewChange{ViewNumber: targetView, ReplicaID: r.id})
}

// handleStartViewChange tallies votes for a view change. A replica
// that hasn't already joined this view change joins it on seeing the
// first vote for it (spec.md §4.6: any replica, not just backups that
// independently timed out, can be pulled into a view change this
// way). Once a quorum of votes (including this replica's own) is
// seen, this replica sends its DoViewChange to the new primary.
func (r *Replica) handleStartViewChange(from uint64, m wire.StartViewChange) {
	if m.ViewNumber < r.view {
		return
	}
	if m.ViewNumber > r.view || r.status == StatusNormal {
		r.status = StatusViewChange
		r.view = m.ViewNumber
		r.viewSnapshot = nil
		r.backupIdleTicks = 0
		if _, ok := r.startViewChangeCounter[m.ViewNumber]; !ok {
			r.startViewChangeCounter[m.ViewNumber] = map[uint64]struct{}{r.id: {}}
		}
		r.broadcast(wire.StartViewChange{ViewNumber: m.ViewNumber, ReplicaID: r.id})
	}

	set, ok := r.startViewChangeCounter[m.ViewNumber]
	if !ok {
		set = map[uint64]struct{}{r.id: {}}
		r.startViewChangeCounter[m.ViewNumber] = set
	}
	set[m.ReplicaID] = struct{}{}

	if len(set) >= r.config.Quorum() {
		r.sendDoViewChange(m.ViewNumber)
	}
}

// sendDoViewChange reports this replica's log to the candidate
// primary of targetView. A replica that is itself that candidate
// loops its own DoViewChange straight back through the handler so the
// primary-to-be counts its own vote the same way it would count a
// peer's.
func (r *Replica) sendDoViewChange(targetView uint64) {
	msg := wire.DoViewChange{
		ViewNumber:   targetView,
		OpNumber:     r.log.Len(),
		ReplicaID:    r.id,
		CommitNumber: r.commitNumber,
		Log:          r.log.All(),
	}

	primary := r.config.PrimaryOf(targetView)
	if primary == r.id {
		r.handleDoViewChange(r.id, msg)
		return
	}
	if err := r.sender.Send(primary, msg); err != nil {
		logger.Warn("replica: DoViewChange send failed", logger.KeyPeer, primary, logger.KeyError, err)
	}
}

// handleDoViewChange is the candidate primary's side: track the best
// (longest) reported log across every DoViewChange seen for this
// view, and once a quorum has reported in, adopt it and start the
// view.
//
// spec.md §4.1 fixes DoViewChange's wire layout without a "last
// normal view" field the VR paper's tie-break otherwise uses, so the
// ranking here falls back to op-number (log length) alone — see
// DESIGN.md.
func (r *Replica) handleDoViewChange(from uint64, m wire.DoViewChange) {
	if m.ViewNumber < r.view {
		return
	}
	if m.ViewNumber > r.view {
		r.status = StatusViewChange
		r.view = m.ViewNumber
		r.viewSnapshot = nil
	}
	if r.config.PrimaryOf(m.ViewNumber) != r.id {
		return
	}

	set, ok := r.doViewChangeCounter[m.ViewNumber]
	if !ok {
		set = make(map[uint64]struct{})
		r.doViewChangeCounter[m.ViewNumber] = set
	}
	set[m.ReplicaID] = struct{}{}

	if r.viewSnapshot == nil || m.OpNumber > r.viewSnapshot.opNumber {
		r.viewSnapshot = &viewSnapshot{
			opNumber:     m.OpNumber,
			commitNumber: m.CommitNumber,
			log:          append([]op.Op(nil), m.Log...),
		}
	}

	if len(set) >= r.config.Quorum() {
		r.completeViewChange(m.ViewNumber)
	}
}

// completeViewChange adopts the winning DoViewChange snapshot, starts
// the new view as its primary, and announces it to every backup.
func (r *Replica) completeViewChange(targetView uint64) {
	snap := r.viewSnapshot
	if snap == nil {
		return
	}

	r.view = targetView
	r.status = StatusNormal
	r.log.Replace(snap.log)
	r.acks = make(map[uint64]map[uint64]struct{})
	r.prepareSentAt = make(map[uint64]time.Time)
	r.backupIdleTicks = 0

	if snap.commitNumber > r.commitNumber {
		r.commitThrough(min(snap.commitNumber, r.log.Len()))
	}

	delete(r.doViewChangeCounter, targetView)
	delete(r.startViewChangeCounter, targetView)
	r.viewSnapshot = nil

	r.broadcast(wire.StartView{
		ViewNumber:   r.view,
		OpNumber:     r.log.Len(),
		ReplicaID:    r.id,
		CommitNumber: r.commitNumber,
		Log:          r.log.All(),
	})
}

// handleStartView adopts the new primary's log wholesale and resumes
// normal-case processing in the new view, per spec.md §4.6. Any
// pending client replies or origin records for op-numbers the new log
// doesn't carry are for requests that lost the view change and must
// be dropped; those clients will retry.
func (r *Replica) handleStartView(m wire.StartView) {
	if m.ViewNumber < r.view {
		return
	}

	r.view = m.ViewNumber
	r.status = StatusNormal
	r.log.Replace(m.Log)
	r.acks = make(map[uint64]map[uint64]struct{})
	r.prepareSentAt = make(map[uint64]time.Time)
	r.backupIdleTicks = 0

	for opNumber := range r.pendingReplies {
		if opNumber > r.log.Len() {
			delete(r.pendingReplies, opNumber)
		}
	}
	for opNumber := range r.origins {
		if opNumber > r.log.Len() {
			delete(r.origins, opNumber)
		}
	}

	if m.CommitNumber > r.commitNumber {
		r.commitThrough(min(m.CommitNumber, r.log.Len()))
	}

	if !r.isPrimaryLocked() {
		primary := r.config.PrimaryOf(r.view)
		ok := wire.PrepareOk{ViewNumber: r.view, OpNumber: r.log.Len()}
		if err := r.sender.Send(primary, ok); err != nil {
			logger.Warn("replica: PrepareOk send failed", logger.KeyPeer, primary, logger.KeyError, err)
		}
	}
}
