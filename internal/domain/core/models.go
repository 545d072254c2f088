package core

import "time"

type Employee struct {
	ID                 string    `json:"id"`
	UserID             string    `json:"userId"`
	Name               string    `json:"name"`
	Email              string    `json:"email"`
	ReportingManagerID string    `json:"reportingManagerId,omitempty"`
	HierarchyLevel     int       `json:"hierarchyLevel"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"createdAt"`
}

const (
	EmployeeActive   = "active"
	EmployeeInactive = "inactive"
)
