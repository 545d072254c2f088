package auth

const (
	RoleEmployee    = "Employee"
	RoleManager     = "Manager"
	RoleHR          = "HR"
	RoleAdmin       = "Admin"
	RoleSuperAdmin  = "SuperAdmin"
	RoleTenantAdmin = "TenantAdmin"
	RoleAccountant  = "Accountant"
)

var Roles = []string{
	RoleEmployee,
	RoleManager,
	RoleHR,
	RoleAdmin,
	RoleSuperAdmin,
	RoleTenantAdmin,
	RoleAccountant,
}

// UserContext is the authenticated actor attached to a request.
type UserContext struct {
	UserID         string `json:"userId"`
	TenantID       string `json:"tenantId"`
	EmployeeID     string `json:"employeeId"`
	RoleName       string `json:"role"`
	HierarchyLevel int    `json:"hierarchyLevel"`
}

func IsKnownRole(role string) bool {
	for _, candidate := range Roles {
		if candidate == role {
			return true
		}
	}
	return false
}

// IsApprover reports whether the role may resolve leave requests at all.
// Scope (which requests) is checked separately.
func IsApprover(role string) bool {
	switch role {
	case RoleManager, RoleHR, RoleAdmin:
		return true
	}
	return false
}

// SeesAllRequests reports whether the role's approval scope is the whole tenant.
func SeesAllRequests(role string) bool {
	return role == RoleHR || role == RoleAdmin
}
