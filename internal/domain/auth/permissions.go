package auth

const (
	ModuleLeave     = "leave"
	ModuleApprovals = "approvals"
	ModulePolicies  = "policies"
	ModuleEmployees = "employees"
	ModuleSettings  = "settings"
)

const (
	ActionView    = "view"
	ActionCreate  = "create"
	ActionEdit    = "edit"
	ActionDelete  = "delete"
	ActionApprove = "approve"
)

var Modules = []string{ModuleLeave, ModuleApprovals, ModulePolicies, ModuleEmployees, ModuleSettings}

var Actions = []string{ActionView, ActionCreate, ActionEdit, ActionDelete, ActionApprove}

var allActions = Actions

// defaultGrants is the built-in policy used whenever a tenant has not
// overridden a role/module pair.
var defaultGrants = map[string]map[string][]string{
	RoleEmployee: {
		ModuleLeave:    {ActionView, ActionCreate},
		ModulePolicies: {ActionView},
	},
	RoleManager: {
		ModuleLeave:     {ActionView, ActionCreate},
		ModuleApprovals: {ActionView, ActionApprove},
		ModulePolicies:  {ActionView},
		ModuleEmployees: {ActionView},
	},
	RoleHR: {
		ModuleLeave:     {ActionView, ActionCreate, ActionEdit, ActionApprove},
		ModuleApprovals: {ActionView, ActionApprove},
		ModulePolicies:  {ActionView, ActionCreate, ActionEdit, ActionDelete},
		ModuleEmployees: {ActionView, ActionEdit},
		ModuleSettings:  {ActionView},
	},
	RoleAccountant: {
		ModuleLeave:     {ActionView},
		ModulePolicies:  {ActionView},
		ModuleEmployees: {ActionView},
	},
}

// DefaultPolicy answers a permission question without any tenant override.
func DefaultPolicy(role, module, action string) bool {
	switch role {
	case RoleAdmin, RoleSuperAdmin, RoleTenantAdmin:
		return isKnownModule(module) && contains(allActions, action)
	}
	return contains(defaultGrants[role][module], action)
}

func isKnownModule(module string) bool {
	return contains(Modules, module)
}

func contains(values []string, want string) bool {
	for _, value := range values {
		if value == want {
			return true
		}
	}
	return false
}
