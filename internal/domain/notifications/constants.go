package notifications

const (
	TypeLeaveSubmitted = "leave_submitted"
	TypeLeaveApproved  = "leave_approved"
	TypeLeaveRejected  = "leave_rejected"
	TypeLeaveCancelled = "leave_cancelled"
)
