package leave

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"neon/internal/domain/core"
)

type memStore struct {
	mu       sync.Mutex
	types    map[string]LeaveType
	balances map[string]map[string]decimal.Decimal
	requests map[string]LeaveRequest
	runs     map[string]bool
	adjusted []Adjustment
}

func newMemStore() *memStore {
	s := &memStore{
		types:    map[string]LeaveType{},
		balances: map[string]map[string]decimal.Decimal{},
		requests: map[string]LeaveRequest{},
		runs:     map[string]bool{},
	}
	for _, t := range DefaultCatalog() {
		s.types[t.Key] = t
	}
	return s
}

func balanceKey(employeeID string, year int) string {
	return fmt.Sprintf("%s/%d", employeeID, year)
}

func (s *memStore) setBalance(employeeID string, year int, key string, v decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credit(employeeID, year, key, v.Sub(s.balances[balanceKey(employeeID, year)][key]))
}

func (s *memStore) credit(employeeID string, year int, key string, amount decimal.Decimal) {
	bk := balanceKey(employeeID, year)
	if s.balances[bk] == nil {
		s.balances[bk] = map[string]decimal.Decimal{}
	}
	s.balances[bk][key] = s.balances[bk][key].Add(amount)
}

func (s *memStore) ListTypes(_ context.Context, _ string) ([]LeaveType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LeaveType, 0, len(s.types))
	for _, t := range s.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *memStore) GetType(_ context.Context, _ string, key string) (LeaveType, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.types[key]
	if !ok {
		return LeaveType{}, ErrNotFound
	}
	return t, nil
}

func (s *memStore) CreateType(_ context.Context, _ string, t LeaveType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.types[t.Key]; ok {
		return ErrDuplicateType
	}
	s.types[t.Key] = t
	return nil
}

func (s *memStore) UpdateType(_ context.Context, _ string, t LeaveType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.types[t.Key]; !ok {
		return ErrNotFound
	}
	s.types[t.Key] = t
	return nil
}

func (s *memStore) DeleteType(_ context.Context, _ string, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.requests {
		if r.LeaveType == key {
			return ErrTypeInUse
		}
	}
	if _, ok := s.types[key]; !ok {
		return ErrNotFound
	}
	delete(s.types, key)
	return nil
}

func (s *memStore) EnsureTypes(_ context.Context, _ string, types []LeaveType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range types {
		if _, ok := s.types[t.Key]; !ok {
			s.types[t.Key] = t
		}
	}
	return nil
}

func (s *memStore) GetBalance(_ context.Context, _ string, employeeID string, year int) (Balance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := map[string]decimal.Decimal{}
	for k, v := range s.balances[balanceKey(employeeID, year)] {
		values[k] = v
	}
	return Balance{EmployeeID: employeeID, Year: year, Values: values}, nil
}

func (s *memStore) AdjustBalance(_ context.Context, _ string, adj Adjustment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.credit(adj.EmployeeID, adj.Year, adj.LeaveType, adj.Delta)
	s.adjusted = append(s.adjusted, adj)
	return nil
}

func (s *memStore) CreateRequest(_ context.Context, req LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[req.ID] = req
	return nil
}

func (s *memStore) GetRequest(_ context.Context, _ string, id string) (LeaveRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return LeaveRequest{}, ErrNotFound
	}
	return r, nil
}

func (s *memStore) ListRequestsByEmployee(_ context.Context, _ string, employeeID string, limit, offset int) ([]LeaveRequest, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LeaveRequest
	for _, r := range s.requests {
		if r.EmployeeID == employeeID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	total := len(out)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return out[offset:end], total, nil
}

func inScope(ids []string, id string) bool {
	if ids == nil {
		return true
	}
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

func (s *memStore) ListPending(_ context.Context, _ string, employeeIDs []string) ([]LeaveRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LeaveRequest
	for _, r := range s.requests {
		if r.Status == StatusPending && inScope(employeeIDs, r.EmployeeID) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) ListApprovedBetween(_ context.Context, _ string, employeeIDs []string, from, to time.Time) ([]LeaveRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []LeaveRequest
	for _, r := range s.requests {
		if r.Status == StatusApproved && inScope(employeeIDs, r.EmployeeID) && !r.StartDate.After(to) && !r.EndDate.Before(from) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *memStore) resolve(id string, to Status, approverID, reason string, at time.Time) (LeaveRequest, error) {
	r, ok := s.requests[id]
	if !ok {
		return LeaveRequest{}, ErrNotFound
	}
	if r.Status != StatusPending {
		return LeaveRequest{}, ErrStaleStatus
	}
	r.Status = to
	r.ApproverID = approverID
	r.RejectionReason = reason
	r.ResolvedAt = &at
	s.requests[id] = r
	return r, nil
}

func (s *memStore) ApproveRequest(_ context.Context, _ string, id, approverID string, at time.Time) (LeaveRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if ok && r.Status == StatusPending {
		year := r.StartDate.Year()
		paid, lop := SplitApproval(r.LeaveType, r.DaysCount, s.balances[balanceKey(r.EmployeeID, year)][r.LeaveType])
		if paid.IsPositive() {
			s.credit(r.EmployeeID, year, r.LeaveType, paid.Neg())
		}
		if lop.IsPositive() {
			s.credit(r.EmployeeID, year, TypeLossOfPay, lop.Neg())
		}
		r.IsLossOfPay = lop.IsPositive()
		s.requests[id] = r
	}
	return s.resolve(id, StatusApproved, approverID, "", at)
}

func (s *memStore) RejectRequest(_ context.Context, _ string, id, approverID, reason string, at time.Time) (LeaveRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(id, StatusRejected, approverID, reason, at)
}

func (s *memStore) CancelRequest(_ context.Context, _ string, id string, at time.Time) (LeaveRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolve(id, StatusCancelled, "", "", at)
}

func (s *memStore) ApplyAccrual(_ context.Context, _ string, grant AccrualGrant) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := grant.LeaveType + "/" + grant.Period
	if s.runs[key] {
		return false, nil
	}
	s.runs[key] = true
	for _, id := range grant.EmployeeIDs {
		s.credit(id, grant.Year, grant.LeaveType, grant.Amount)
	}
	return true, nil
}

// memDirectory is an employee graph keyed by employee id.
type memDirectory struct {
	employees map[string]core.Employee
}

func newMemDirectory(emps ...core.Employee) *memDirectory {
	d := &memDirectory{employees: map[string]core.Employee{}}
	for _, e := range emps {
		if e.Status == "" {
			e.Status = core.EmployeeActive
		}
		d.employees[e.ID] = e
	}
	return d
}

func (d *memDirectory) GetEmployee(_ context.Context, _ string, id string) (core.Employee, error) {
	e, ok := d.employees[id]
	if !ok {
		return core.Employee{}, core.ErrEmployeeNotFound
	}
	return e, nil
}

func (d *memDirectory) EmployeeByUserID(_ context.Context, _ string, userID string) (core.Employee, error) {
	for _, e := range d.employees {
		if e.UserID == userID {
			return e, nil
		}
	}
	return core.Employee{}, core.ErrEmployeeNotFound
}

func (d *memDirectory) InReportingLine(ctx context.Context, tenantID, managerID, employeeID string) (bool, error) {
	if managerID == employeeID {
		return false, nil
	}
	line, _ := d.ReportingLine(ctx, tenantID, managerID)
	for _, e := range line {
		if e.ID == employeeID {
			return true, nil
		}
	}
	return false, nil
}

func (d *memDirectory) ReportingLine(_ context.Context, _ string, managerID string) ([]core.Employee, error) {
	var out []core.Employee
	frontier := []string{managerID}
	for len(frontier) > 0 {
		var next []string
		for _, id := range frontier {
			for _, e := range d.employees {
				if e.ReportingManagerID == id {
					out = append(out, e)
					next = append(next, e.ID)
				}
			}
		}
		frontier = next
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (d *memDirectory) ActiveEmployees(_ context.Context, _ string) ([]core.Employee, error) {
	var out []core.Employee
	for _, e := range d.employees {
		if e.Status == core.EmployeeActive {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

type countingCache struct {
	counts      map[string]int
	version     int64
	invalidated int
}

func (c *countingCache) GetPendingCount(_ context.Context, tenantID, userID string) (int, int64, bool) {
	n, ok := c.counts[tenantID+"/"+userID]
	return n, c.version, ok
}

func (c *countingCache) SetPendingCount(_ context.Context, tenantID, userID string, version int64, n int) {
	if version != c.version {
		return
	}
	c.counts[tenantID+"/"+userID] = n
}

func (c *countingCache) InvalidatePendingCounts(context.Context, string) {
	c.invalidated++
	c.version++
	c.counts = map[string]int{}
}
