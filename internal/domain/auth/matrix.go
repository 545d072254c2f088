package auth

import (
	"context"
	"fmt"
	"sort"
)

// Overrides maps role -> module -> granted actions. A present module entry
// replaces the default policy for that pair, even when its action list is empty.
type Overrides map[string]map[string][]string

// Effective resolves a permission with the override layer first and the
// default policy second.
func Effective(overrides Overrides, role, module, action string) bool {
	if modules, ok := overrides[role]; ok {
		if actions, ok := modules[module]; ok {
			return contains(actions, action)
		}
	}
	return DefaultPolicy(role, module, action)
}

// Grid expands the effective permissions for every role and module.
func Grid(overrides Overrides) map[string]map[string][]string {
	out := make(map[string]map[string][]string, len(Roles))
	for _, role := range Roles {
		modules := make(map[string][]string, len(Modules))
		for _, module := range Modules {
			granted := []string{}
			for _, action := range Actions {
				if Effective(overrides, role, module, action) {
					granted = append(granted, action)
				}
			}
			modules[module] = granted
		}
		out[role] = modules
	}
	return out
}

// Validate rejects unknown roles, modules or actions and normalises action order.
func (o Overrides) Validate() error {
	for role, modules := range o {
		if !IsKnownRole(role) {
			return fmt.Errorf("unknown role %q", role)
		}
		for module, actions := range modules {
			if !isKnownModule(module) {
				return fmt.Errorf("unknown module %q", module)
			}
			for _, action := range actions {
				if !contains(Actions, action) {
					return fmt.Errorf("unknown action %q", action)
				}
			}
			sort.Strings(actions)
		}
	}
	return nil
}

type OverrideStore interface {
	LoadOverrides(ctx context.Context, tenantID string) (Overrides, error)
	SaveOverrides(ctx context.Context, tenantID string, overrides Overrides) error
}

type Service struct {
	Store OverrideStore
}

func NewService(store OverrideStore) *Service {
	return &Service{Store: store}
}

func (s *Service) Allowed(ctx context.Context, user UserContext, module, action string) (bool, error) {
	overrides, err := s.Store.LoadOverrides(ctx, user.TenantID)
	if err != nil {
		return false, err
	}
	return Effective(overrides, user.RoleName, module, action), nil
}

func (s *Service) Overrides(ctx context.Context, tenantID string) (Overrides, error) {
	return s.Store.LoadOverrides(ctx, tenantID)
}

func (s *Service) EffectiveGrid(ctx context.Context, tenantID string) (map[string]map[string][]string, error) {
	overrides, err := s.Store.LoadOverrides(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return Grid(overrides), nil
}

func (s *Service) SaveOverrides(ctx context.Context, tenantID string, overrides Overrides) error {
	if err := overrides.Validate(); err != nil {
		return err
	}
	return s.Store.SaveOverrides(ctx, tenantID, overrides)
}
