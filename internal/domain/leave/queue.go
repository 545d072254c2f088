package leave

import (
	"sort"
	"time"

	"neon/internal/domain/core"
)

// BuildQueue keeps pending requests not submitted by excludeEmployeeID, oldest
// first, and attaches risk flags.
func BuildQueue(reqs []LeaveRequest, excludeEmployeeID string) []QueueItem {
	items := make([]QueueItem, 0, len(reqs))
	for _, r := range reqs {
		if r.Status != StatusPending || r.EmployeeID == excludeEmployeeID {
			continue
		}
		items = append(items, QueueItem{Request: r, RiskFlags: RiskFlags(r.DaysCount)})
	}
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i].Request, items[j].Request
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return items
}

// StatusOn derives the on-leave flag from approved requests only.
func StatusOn(reqs []LeaveRequest, employeeID string, day time.Time) TodayStatus {
	out := TodayStatus{EmployeeID: employeeID, Date: dateOnly(day)}
	for _, r := range reqs {
		if r.EmployeeID != employeeID || r.Status != StatusApproved {
			continue
		}
		if Covers(r, day) {
			out.OnLeave = true
			out.LeaveType = r.LeaveType
			out.RequestID = r.ID
			return out
		}
	}
	return out
}

// BuildHeatmap lays approved leave out per member and day. Empty cells are "".
func BuildHeatmap(members []core.Employee, approved []LeaveRequest, from time.Time, days int) Heatmap {
	start := dateOnly(from)
	byEmployee := make(map[string][]LeaveRequest, len(members))
	for _, r := range approved {
		if r.Status == StatusApproved {
			byEmployee[r.EmployeeID] = append(byEmployee[r.EmployeeID], r)
		}
	}
	rows := make([]HeatmapRow, 0, len(members))
	for _, m := range members {
		cells := make([]string, days)
		for i := range cells {
			day := start.AddDate(0, 0, i)
			for _, r := range byEmployee[m.ID] {
				if Covers(r, day) {
					cells[i] = r.LeaveType
					break
				}
			}
		}
		rows = append(rows, HeatmapRow{EmployeeID: m.ID, Name: m.Name, Days: cells})
	}
	return Heatmap{From: start, Days: days, Rows: rows}
}
