// Package replica implements the per-replica replication state
// machine spec.md §4.6 describes: the normal-case request/prepare/
// commit flow, the view-change protocol, and the state-transfer
// protocol, plus the quorum/view bookkeeping all three share.
//
// A Replica is a single-threaded cooperative actor (spec.md §5): every
// mutation happens inside OnInbound or OnTimer, both of which hold the
// replica's own mutex for their whole duration. That mutex exists to
// make the single-actor guarantee hold even though the transport
// adapter may call in from several goroutines (one per connection,
// see internal/transport) — the replica, not the transport, is where
// handler invocations are actually serialized.
//
// Grounded on the teacher's internal/protocol/nlm/handlers package
// (one handler function per message family, dispatched from a single
// entry point) and corrected against original_source/replica/src/
// replica.rs per spec.md §9's list of deliberate fixes.
package replica

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/vrlabs/vrd/internal/clienttable"
	"github.com/vrlabs/vrd/internal/invariant"
	"github.com/vrlabs/vrd/internal/logger"
	"github.com/vrlabs/vrd/internal/metrics"
	"github.com/vrlabs/vrd/internal/op"
	"github.com/vrlabs/vrd/internal/replicaconfig"
	"github.com/vrlabs/vrd/internal/statemachine"
	"github.com/vrlabs/vrd/internal/telemetry"
	"github.com/vrlabs/vrd/internal/transport"
	"github.com/vrlabs/vrd/internal/vrlog"
	"github.com/vrlabs/vrd/internal/wire"
)

// Sender is the outbound half of the transport contract a Replica
// needs (spec.md §6: "send(replica_id, message): best-effort
// fire-and-forget"). internal/transport.TCP satisfies it; tests use an
// in-memory fake.
type Sender interface {
	Send(replicaID uint64, msg wire.Message) error
}

// viewSnapshot is the best (log, op_number, commit_number) a candidate
// primary has seen across the DoViewChange messages for the view it is
// trying to start. lastNormalView is never filled in, since
// DoViewChange carries no last-normal view: snapshots are ranked by
// opNumber alone (see handleDoViewChange).
type viewSnapshot struct {
	lastNormalView uint64
	opNumber       uint64
	commitNumber   uint64
	log            []op.Op
}

// requestOrigin is what a replica remembers about a Request it itself
// accepted and appended, so that apply() can credit the client table
// and answer the client once the entry commits. spec.md §4.1's Prepare
// payload carries only (view, commit, op, the Op itself) — no client
// id or request number — so a backup that learns of an op only via
// Prepare has no way to attribute it to a client; only the replica
// that originally took the Request from the client can.
type requestOrigin struct {
	clientID      uint64
	requestNumber uint64
}

// Replica holds all per-replica state from spec.md §3 and implements
// transport.Inbound plus the OnTimer tick contract.
type Replica struct {
	mu sync.Mutex

	id     uint64
	config *replicaconfig.Config
	sender Sender
	sm     statemachine.StateMachine
	m      *metrics.Replica

	status       Status
	view         uint64
	log          *vrlog.Log
	commitNumber uint64
	clientTable  *clienttable.Table

	// acks[i] is the set of replica ids known to have Prepare'd
	// op-number i. Primary-only; cleared on view change. A set, not a
	// count, per spec.md §9: a duplicated PrepareOk must not double-
	// count towards quorum.
	acks map[uint64]map[uint64]struct{}

	// prepareSentAt[i] is when this replica, as primary, broadcast the
	// Prepare for op-number i — used only to report quorum_latency_seconds
	// once i commits. Primary-only, like acks; cleared alongside it.
	prepareSentAt map[uint64]time.Time

	// origins[i] / pendingReplies[i] exist only for op-numbers this
	// replica itself accepted as primary: the client identity for the
	// client-table record, and the reply sink to answer that client
	// once the entry commits, even though the Request's own connection
	// handler returned long ago.
	origins        map[uint64]requestOrigin
	pendingReplies map[uint64]transport.ReplyFunc

	backupIdleTicks     int
	viewChangeIdleTicks int

	startViewChangeCounter map[uint64]map[uint64]struct{}
	doViewChangeCounter    map[uint64]map[uint64]struct{}
	viewSnapshot           *viewSnapshot
}

// New builds a Replica at its zero-valued startup state: status
// Normal, every counter zero, per spec.md §3 Lifecycle.
func New(id uint64, cfg *replicaconfig.Config, sender Sender, sm statemachine.StateMachine, viewChangeIdleTicks int, m *metrics.Replica) *Replica {
	if viewChangeIdleTicks < 1 {
		viewChangeIdleTicks = 1
	}
	return &Replica{
		id:                     id,
		config:                 cfg,
		sender:                 sender,
		sm:                     sm,
		m:                      m,
		log:                    vrlog.New(),
		clientTable:            clienttable.New(),
		acks:                   make(map[uint64]map[uint64]struct{}),
		prepareSentAt:          make(map[uint64]time.Time),
		origins:                make(map[uint64]requestOrigin),
		pendingReplies:         make(map[uint64]transport.ReplyFunc),
		startViewChangeCounter: make(map[uint64]map[uint64]struct{}),
		doViewChangeCounter:    make(map[uint64]map[uint64]struct{}),
		viewChangeIdleTicks:    viewChangeIdleTicks,
	}
}

// ID is this replica's immutable identity.
func (r *Replica) ID() uint64 { return r.id }

// View returns the current view number.
func (r *Replica) View() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.view
}

// OpNumber returns the current op-number (log length).
func (r *Replica) OpNumber() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.log.Len()
}

// CommitNumber returns the current commit-number.
func (r *Replica) CommitNumber() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.commitNumber
}

// CurrentStatus returns the replica's current lifecycle status.
func (r *Replica) CurrentStatus() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// IsPrimary reports whether this replica believes itself to be the
// primary of its current view.
func (r *Replica) IsPrimary() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.isPrimaryLocked()
}

func (r *Replica) isPrimaryLocked() bool {
	return r.config.PrimaryOf(r.view) == r.id
}

// OnInbound implements transport.Inbound: the single entry point every
// parsed protocol message is dispatched through, one at a time
// (spec.md §4.6: "Publicly exposes a single entry point on_message(msg)").
func (r *Replica) OnInbound(from uint64, msg wire.Message, reply transport.ReplyFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, span := telemetry.Tracer().Start(context.Background(), "replica.on_message",
		trace.WithAttributes(
			attribute.Int64("replica.id", int64(r.id)),
			attribute.Int64("replica.view", int64(r.view)),
			attribute.String("replica.message_type", msgTypeName(msg)),
		),
	)
	defer span.End()

	r.m.IncMessage(msgTypeName(msg))

	switch m := msg.(type) {
	case wire.Request:
		r.handleRequest(m, reply)
	case wire.Prepare:
		r.handlePrepare(m)
	case wire.PrepareOk:
		r.handlePrepareOk(from, m)
	case wire.Commit:
		r.handleCommit(m)
	case wire.StartViewChange:
		r.handleStartViewChange(from, m)
	case wire.DoViewChange:
		r.handleDoViewChange(from, m)
	case wire.StartView:
		r.handleStartView(m)
	case wire.GetState:
		r.handleGetState(from, m)
	case wire.NewState:
		r.handleNewState(m)
	default:
		logger.Warn("replica: ignoring unrecognized message type", "type", fmt.Sprintf("%T", msg))
	}

	r.reportGauges()
}

// OnTimer implements the timer.OnTimer contract (spec.md §4.6
// "Timer"): on each tick, the primary broadcasts a Commit heartbeat
// and a backup advances its idle counter (Prepare and Commit reset it),
// initiating a view change once it exceeds the configured threshold.
func (r *Replica) OnTimer() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.status == StatusViewChange {
		// A view change that hasn't reached quorum yet must keep
		// retrying with the next view rather than waiting forever
		// (spec.md §4.7: "A replica that has initiated view change but
		// does not reach quorum must eventually retry with v + 1 on
		// subsequent ticks"). initiateViewChange resets
		// backupIdleTicks, so this counts ticks since the last attempt.
		r.backupIdleTicks++
		if r.backupIdleTicks > r.viewChangeIdleTicks {
			r.initiateViewChange(r.view + 1)
		}
		return
	}

	if r.status != StatusNormal {
		return
	}

	if r.isPrimaryLocked() {
		r.broadcastCommit()
		return
	}

	r.backupIdleTicks++
	if r.backupIdleTicks > r.viewChangeIdleTicks {
		r.initiateViewChange(r.view + 1)
	}
}

// broadcastCommit sends Commit{v, k} to every other replica, the
// primary's liveness heartbeat.
func (r *Replica) broadcastCommit() {
	msg := wire.Commit{ViewNumber: r.view, CommitNumber: r.commitNumber}
	r.broadcast(msg)
}

// broadcast best-effort sends msg to every replica other than self.
// Send errors are logged, not propagated: per spec.md §4.7 a send
// failure is not itself a protocol error, and liveness is the view-
// change protocol's job, not this call site's.
func (r *Replica) broadcast(msg wire.Message) {
	for _, id := range r.config.Others(r.id) {
		if err := r.sender.Send(id, msg); err != nil {
			logger.Warn("replica: send failed", logger.KeyPeer, id, logger.KeyError, err)
		}
	}
}

// apply executes log[i] against the state machine, credits the client
// table when this replica originated the request, and advances
// commit_number to i. Per spec.md §4.6 "apply(i)".
func (r *Replica) apply(i uint64) {
	invariant.Check(i <= r.log.Len(), "apply: op-number %d exceeds log length %d", i, r.log.Len())
	invariant.Check(i == r.commitNumber+1, "apply: op-number %d is not the next commit after %d", i, r.commitNumber)

	entry := r.log.At(i)
	reply := r.sm.Apply(entry)

	if origin, ok := r.origins[i]; ok {
		delete(r.origins, i)
		r.clientTable.Record(origin.clientID, origin.requestNumber, reply)
	}

	r.commitNumber = i

	if sink, ok := r.pendingReplies[i]; ok {
		delete(r.pendingReplies, i)
		if err := sink(reply); err != nil {
			logger.Warn("replica: reply to client failed", logger.KeyOpNumber, i, logger.KeyError, err)
		}
	}
}

// commitThrough applies every op in (commitNumber, upTo] in order.
func (r *Replica) commitThrough(upTo uint64) {
	for i := r.commitNumber + 1; i <= upTo; i++ {
		r.apply(i)
	}
}

func (r *Replica) reportGauges() {
	r.m.SetView(r.view)
	r.m.SetOpNumber(r.log.Len())
	r.m.SetCommitNumber(r.commitNumber)
}

func msgTypeName(msg wire.Message) string {
	switch msg.(type) {
	case wire.Request:
		return "Request"
	case wire.Prepare:
		return "Prepare"
	case wire.PrepareOk:
		return "PrepareOk"
	case wire.Commit:
		return "Commit"
	case wire.StartViewChange:
		return "StartViewChange"
	case wire.DoViewChange:
		return "DoViewChange"
	case wire.StartView:
		return "StartView"
	case wire.GetState:
		return "GetState"
	case wire.NewState:
		return "NewState"
	default:
		return "Unknown"
	}
}

// newCorrelationID gives each accepted Request a correlation id, logged
// with handleRequest's "accepted request" line, the way the teacher
// uses uuid for session/identity correlation.
func newCorrelationID() string {
	return uuid.NewString()
}
