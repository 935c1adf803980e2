package statusapi

import (
	"net/http"

	"github.com/vrlabs/vrd/internal/replica"
)

// statusPayload is the JSON body GET /status returns.
type statusPayload struct {
	ReplicaID    uint64 `json:"replica_id"`
	View         uint64 `json:"view"`
	OpNumber     uint64 `json:"op_number"`
	CommitNumber uint64 `json:"commit_number"`
	Status       string `json:"status"`
}

// StatusHandler serves GET /status: a snapshot of this replica's
// current view, log position, and lifecycle status.
type StatusHandler struct {
	replica *replica.Replica
}

func NewStatusHandler(r *replica.Replica) *StatusHandler {
	return &StatusHandler{replica: r}
}

func (h *StatusHandler) Get(w http.ResponseWriter, r *http.Request) {
	payload := statusPayload{
		ReplicaID:    h.replica.ID(),
		View:         h.replica.View(),
		OpNumber:     h.replica.OpNumber(),
		CommitNumber: h.replica.CommitNumber(),
		Status:       h.replica.CurrentStatus().String(),
	}
	writeJSON(w, http.StatusOK, okResponse(payload))
}
