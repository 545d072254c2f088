package leave

import (
	"neon/internal/domain/auth"
)

// CheckResolve decides whether actor may move req to decision. inLine tells
// whether req's employee sits anywhere below the actor in the reporting line.
// Authorization is decided before status so an outsider learns nothing about
// a request's state.
func CheckResolve(actor auth.UserContext, actorEmployeeID string, req LeaveRequest, decision Status, inLine bool) error {
	if !auth.IsApprover(actor.RoleName) {
		return &AuthorizationError{Action: "resolve", Reason: "role " + actor.RoleName + " cannot approve"}
	}
	if req.EmployeeID == actorEmployeeID || (req.UserID != "" && req.UserID == actor.UserID) {
		return &AuthorizationError{Action: "resolve", Reason: "cannot resolve own request"}
	}
	if actor.RoleName == auth.RoleManager && !inLine {
		return &AuthorizationError{Action: "resolve", Reason: "request is outside the reporting line"}
	}
	if !CanTransition(req.Status, decision) {
		return &ConflictError{RequestID: req.ID, Status: req.Status}
	}
	return nil
}

func CheckCancel(actorEmployeeID string, req LeaveRequest) error {
	if req.EmployeeID != actorEmployeeID {
		return &AuthorizationError{Action: "cancel", Reason: "only the submitter may cancel"}
	}
	if !CanTransition(req.Status, StatusCancelled) {
		return &ConflictError{RequestID: req.ID, Status: req.Status}
	}
	return nil
}
