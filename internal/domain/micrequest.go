package domain

type MicRequestStatus string

const (
	MicRequestPending  MicRequestStatus = "pending"
	MicRequestApproved MicRequestStatus = "approved"
	MicRequestDenied   MicRequestStatus = "denied"
)

// MicRequest is one per (session, requester): a non-speaker asking for a
// transmit slot. Only an admin/creator resolves it.
type MicRequest struct {
	Requester ParticipantID    `json:"requester"`
	Status    MicRequestStatus `json:"status"`
	CreatedAt int64            `json:"createdAt"`
}

func (r MicRequest) Open() bool {
	return r.Status == MicRequestPending || r.Status == MicRequestApproved
}
