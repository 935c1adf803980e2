package logger

// Standard field keys for structured logging, kept consistent across
// the replica core, transport, and status API so log lines can be
// aggregated and queried the same way regardless of which component
// emitted them.
const (
	KeyReplicaID    = "replica_id"
	KeyView         = "view"
	KeyStatus       = "status"
	KeyOpNumber     = "op_number"
	KeyCommitNumber = "commit_number"
	KeyMessage      = "message_type"
	KeyPeer         = "peer"
	KeyRequestID    = "request_id"
	KeyClientID     = "client_id"
	KeyError        = "error"
)
