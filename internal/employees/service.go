// Package employees builds the employee roster with per-user manager
// chains and recent call counts, and seeds test telephony activity.
package employees

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"b24portal/internal/bitrix"
)

// callTimeLayout is the timestamp format the telephony methods accept.
const callTimeLayout = "2006-01-02T15:04:05-0700"

// API is the portal capability the roster needs. *bitrix.Client
// satisfies it.
type API interface {
	CallMethod(ctx context.Context, method string, params bitrix.Params) (json.RawMessage, error)
	CallList(ctx context.Context, method string, params bitrix.Params) ([]json.RawMessage, error)
}

// Manager is one link of a user's management chain, nearest first.
type Manager struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Row is one roster entry.
type Row struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Department string    `json:"department"`
	Position   string    `json:"position"`
	Managers   []Manager `json:"managers"`
	Calls24h   int       `json:"calls_24h"`
}

// Service assembles roster data from the portal.
type Service struct {
	api API
}

// NewService creates a roster service over the given portal handle.
func NewService(api API) *Service {
	return &Service{api: api}
}

// FetchActiveUsers lists users with ACTIVE=Y.
func (s *Service) FetchActiveUsers(ctx context.Context) ([]bitrix.User, error) {
	items, err := s.api.CallList(ctx, "user.get", bitrix.Params{"ACTIVE": "Y"})
	if err != nil {
		return nil, fmt.Errorf("fetch users: %w", err)
	}
	users, err := bitrix.DecodeEach[bitrix.User](items)
	if err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}
	return users, nil
}

// FetchDepartments maps department id to its record.
func (s *Service) FetchDepartments(ctx context.Context) (map[int64]bitrix.Department, error) {
	items, err := s.api.CallList(ctx, "department.get", bitrix.Params{})
	if err != nil {
		return nil, fmt.Errorf("fetch departments: %w", err)
	}
	depts, err := bitrix.DecodeEach[bitrix.Department](items)
	if err != nil {
		return nil, fmt.Errorf("decode departments: %w", err)
	}

	byID := make(map[int64]bitrix.Department, len(depts))
	for _, d := range depts {
		if d.ID == 0 {
			continue
		}
		byID[int64(d.ID)] = d
	}
	return byID, nil
}

// BuildManagerChain walks department parents upward from the user's
// first department, collecting each level's head, nearest first. The
// user is never their own manager and heads missing from the user map
// are skipped. A visited set terminates parent cycles.
func BuildManagerChain(user bitrix.User, depts map[int64]bitrix.Department, usersByID map[int64]bitrix.User) []Manager {
	var headIDs []int64
	var cur int64
	if len(user.Departments) > 0 {
		cur = user.Departments[0]
	}

	visited := make(map[int64]struct{})
	for cur != 0 {
		if _, ok := visited[cur]; ok {
			break
		}
		visited[cur] = struct{}{}

		dept, ok := depts[cur]
		if !ok {
			break
		}
		if head := int64(dept.Head); head != 0 && head != int64(user.ID) {
			headIDs = append(headIDs, head)
		}
		cur = int64(dept.Parent)
	}

	var chain []Manager
	for _, id := range headIDs {
		u, ok := usersByID[id]
		if !ok {
			continue
		}
		chain = append(chain, Manager{ID: id, Name: u.FullName()})
	}
	return chain
}

// CountOutboundCalls counts a user's outbound calls longer than a
// minute started within the last 24 hours.
func (s *Service) CountOutboundCalls(ctx context.Context, userID int64, now time.Time) (int, error) {
	since := now.Add(-24 * time.Hour)

	items, err := s.api.CallList(ctx, "voximplant.statistic.get", bitrix.Params{
		"FILTER": bitrix.Params{
			"PORTAL_USER_ID":   userID,
			"CALL_TYPE":        "1",
			">CALL_DURATION":   60,
			">CALL_START_DATE": since.Format(callTimeLayout),
		},
	})
	if err != nil {
		return 0, fmt.Errorf("fetch call stats for user %d: %w", userID, err)
	}
	return len(items), nil
}

// Roster builds the sorted employee list. Departmentless users sort
// last; within a department users are ordered by name.
func (s *Service) Roster(ctx context.Context) ([]Row, error) {
	users, err := s.FetchActiveUsers(ctx)
	if err != nil {
		return nil, err
	}
	depts, err := s.FetchDepartments(ctx)
	if err != nil {
		return nil, err
	}

	usersByID := make(map[int64]bitrix.User, len(users))
	for _, u := range users {
		usersByID[int64(u.ID)] = u
	}

	now := time.Now().UTC()
	rows := make([]Row, 0, len(users))
	for _, u := range users {
		var deptName string
		if len(u.Departments) > 0 {
			if d, ok := depts[u.Departments[0]]; ok {
				deptName = string(d.Name)
			}
		}

		position := strings.TrimSpace(string(u.WorkPosition))
		if position == "" {
			position = strings.TrimSpace(string(u.Position))
		}

		calls, err := s.CountOutboundCalls(ctx, int64(u.ID), now)
		if err != nil {
			return nil, err
		}

		rows = append(rows, Row{
			ID:         int64(u.ID),
			Name:       u.FullName(),
			Email:      string(u.Email),
			Department: deptName,
			Position:   position,
			Managers:   BuildManagerChain(u, depts, usersByID),
			Calls24h:   calls,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		di, dj := sortDept(rows[i].Department), sortDept(rows[j].Department)
		if di != dj {
			return di < dj
		}
		return strings.ToLower(rows[i].Name) < strings.ToLower(rows[j].Name)
	})
	return rows, nil
}

// sortDept lowercases a department name for ordering, pushing users
// without a department past any real name.
func sortDept(name string) string {
	if name == "" {
		return "яяя"
	}
	return strings.ToLower(name)
}
