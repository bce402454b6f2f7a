package web

import (
	"fmt"
	"net/http"
	"strconv"
)

// defaultCallsPerUser is how many test calls are seeded per user when
// the form does not say otherwise.
const defaultCallsPerUser = 10

// handleEmployeesData returns the roster as JSON.
func (s *Server) handleEmployeesData(w http.ResponseWriter, r *http.Request) {
	rows, err := s.services.Employees.Roster(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "could not load the roster: "+err.Error())
		return
	}
	writeJSON(w, map[string]any{"rows": rows})
}

// handleGenerateCalls seeds test telephony activity for every active
// user. The count parameter defaults to 10; negative values mean zero.
func (s *Server) handleGenerateCalls(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid form")
		return
	}

	perUser := defaultCallsPerUser
	if raw := r.FormValue("count"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			perUser = n
		}
	}
	if perUser < 0 {
		perUser = 0
	}

	users, err := s.services.Employees.FetchActiveUsers(r.Context())
	if err != nil {
		writeError(w, r, http.StatusBadGateway, "could not list users: "+err.Error())
		return
	}
	ids := make([]int64, 0, len(users))
	for _, u := range users {
		ids = append(ids, int64(u.ID))
	}

	if err := s.services.Employees.GenerateTestCalls(r.Context(), ids, perUser); err != nil {
		writeError(w, r, http.StatusBadGateway, "call generation failed: "+err.Error())
		return
	}

	writeJSON(w, map[string]string{
		"message": fmt.Sprintf("Сгенерированы тестовые звонки: по %d шт. на пользователя.", perUser),
	})
}
