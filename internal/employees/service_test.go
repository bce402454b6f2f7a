package employees

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"b24portal/internal/bitrix"
)

type fakeAPI struct {
	lists   map[string][]json.RawMessage
	listing []bitrix.Params
	methods []string
	params  []bitrix.Params
	results map[string]json.RawMessage
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		lists:   make(map[string][]json.RawMessage),
		results: make(map[string]json.RawMessage),
	}
}

func (f *fakeAPI) CallList(_ context.Context, method string, params bitrix.Params) ([]json.RawMessage, error) {
	f.listing = append(f.listing, params)
	return f.lists[method], nil
}

func (f *fakeAPI) CallMethod(_ context.Context, method string, params bitrix.Params) (json.RawMessage, error) {
	f.methods = append(f.methods, method)
	f.params = append(f.params, params)
	if raw, ok := f.results[method]; ok {
		return raw, nil
	}
	return json.RawMessage(`{}`), nil
}

func rawList(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, s := range items {
		out[i] = json.RawMessage(s)
	}
	return out
}

func deptMap(depts ...bitrix.Department) map[int64]bitrix.Department {
	m := make(map[int64]bitrix.Department)
	for _, d := range depts {
		m[int64(d.ID)] = d
	}
	return m
}

func userMap(users ...bitrix.User) map[int64]bitrix.User {
	m := make(map[int64]bitrix.User)
	for _, u := range users {
		m[int64(u.ID)] = u
	}
	return m
}

func TestBuildManagerChain_WalksParents(t *testing.T) {
	depts := deptMap(
		bitrix.Department{ID: 10, Head: 2, Parent: 20},
		bitrix.Department{ID: 20, Head: 3, Parent: 30},
		bitrix.Department{ID: 30, Head: 4},
	)
	users := userMap(
		bitrix.User{ID: 1, Name: "Анна"},
		bitrix.User{ID: 2, Name: "Борис", LastName: "Петров"},
		bitrix.User{ID: 3, Name: "Вера"},
		bitrix.User{ID: 4, Name: "Глеб"},
	)

	chain := BuildManagerChain(bitrix.User{ID: 1, Departments: bitrix.IntList{10}}, depts, users)

	require.Len(t, chain, 3)
	assert.Equal(t, Manager{ID: 2, Name: "Борис Петров"}, chain[0], "nearest manager comes first")
	assert.Equal(t, int64(3), chain[1].ID)
	assert.Equal(t, int64(4), chain[2].ID)
}

func TestBuildManagerChain_SkipsSelfAndUnknownHeads(t *testing.T) {
	depts := deptMap(
		bitrix.Department{ID: 10, Head: 1, Parent: 20},
		bitrix.Department{ID: 20, Head: 99},
	)
	users := userMap(bitrix.User{ID: 1, Name: "Анна"})

	chain := BuildManagerChain(bitrix.User{ID: 1, Departments: bitrix.IntList{10}}, depts, users)
	assert.Empty(t, chain, "own headship and heads without a user record are dropped")
}

func TestBuildManagerChain_TerminatesOnCycle(t *testing.T) {
	depts := deptMap(
		bitrix.Department{ID: 10, Head: 2, Parent: 20},
		bitrix.Department{ID: 20, Head: 3, Parent: 10},
	)
	users := userMap(
		bitrix.User{ID: 2, Name: "Борис"},
		bitrix.User{ID: 3, Name: "Вера"},
	)

	chain := BuildManagerChain(bitrix.User{ID: 1, Departments: bitrix.IntList{10}}, depts, users)
	require.Len(t, chain, 2)
}

func TestBuildManagerChain_NoDepartments(t *testing.T) {
	chain := BuildManagerChain(bitrix.User{ID: 1}, nil, nil)
	assert.Empty(t, chain)
}

func TestCountOutboundCalls_Filter(t *testing.T) {
	api := newFakeAPI()
	api.lists["voximplant.statistic.get"] = rawList(`{"ID":"1"}`, `{"ID":"2"}`)

	svc := NewService(api)
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

	n, err := svc.CountOutboundCalls(context.Background(), 42, now)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	require.Len(t, api.listing, 1)
	filter, ok := api.listing[0]["FILTER"].(bitrix.Params)
	require.True(t, ok)
	assert.Equal(t, int64(42), filter["PORTAL_USER_ID"])
	assert.Equal(t, "1", filter["CALL_TYPE"])
	assert.Equal(t, 60, filter[">CALL_DURATION"])
	assert.Equal(t, "2026-03-09T12:00:00+0000", filter[">CALL_START_DATE"])
}

func TestRoster_SortsByDepartmentThenName(t *testing.T) {
	api := newFakeAPI()
	api.lists["user.get"] = rawList(
		`{"ID":"1","NAME":"Вера","LAST_NAME":"Лебедева","EMAIL":"vera@example.com","WORK_POSITION":"Инженер","UF_DEPARTMENT":[10]}`,
		`{"ID":"2","NAME":"Анна","LAST_NAME":"Иванова","EMAIL":"anna@example.com","POSITION":"Менеджер","UF_DEPARTMENT":[10]}`,
		`{"ID":"3","NAME":"Борис","LAST_NAME":"Петров","EMAIL":"boris@example.com","UF_DEPARTMENT":[]}`,
	)
	api.lists["department.get"] = rawList(
		`{"ID":"10","NAME":"Продажи","UF_HEAD":"1"}`,
	)

	svc := NewService(api)
	rows, err := svc.Roster(context.Background())
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, "Анна Иванова", rows[0].Name)
	assert.Equal(t, "Вера Лебедева", rows[1].Name)
	assert.Equal(t, "Борис Петров", rows[2].Name, "users without a department sort last")

	assert.Equal(t, "Продажи", rows[0].Department)
	assert.Equal(t, "Менеджер", rows[0].Position, "POSITION backs up WORK_POSITION")
	assert.Equal(t, "Инженер", rows[1].Position)

	require.Len(t, rows[0].Managers, 1)
	assert.Equal(t, "Вера Лебедева", rows[0].Managers[0].Name)
	assert.Empty(t, rows[1].Managers, "department head is not their own manager")
}

func TestGenerateTestCalls_RegistersAndFinishes(t *testing.T) {
	api := newFakeAPI()
	api.results["telephony.config.get"] = json.RawMessage(`{"DEFAULT_LINE":"7"}`)
	api.results["telephony.externalCall.register"] = json.RawMessage(`{"CALL_ID":"ext-1"}`)

	svc := NewService(api)
	err := svc.GenerateTestCalls(context.Background(), []int64{5}, 2)
	require.NoError(t, err)

	// One config probe, then register+finish per call.
	require.Equal(t, []string{
		"telephony.config.get",
		"telephony.externalCall.register",
		"telephony.externalCall.finish",
		"telephony.externalCall.register",
		"telephony.externalCall.finish",
	}, api.methods)

	reg := api.params[1]
	assert.Equal(t, int64(5), reg["USER_ID"])
	assert.Equal(t, "7", reg["LINE_NUMBER"])
	phone, _ := reg["PHONE_NUMBER"].(string)
	assert.Regexp(t, `^\+7999\d{7}$`, phone)

	fin := api.params[2]
	assert.Equal(t, "ext-1", fin["CALL_ID"])
	assert.Equal(t, 200, fin["STATUS_CODE"])
	dur, _ := fin["DURATION"].(int)
	assert.GreaterOrEqual(t, dur, 1)
	assert.LessOrEqual(t, dur, 180)
}

func TestGenerateTestCalls_ZeroCountIsNoop(t *testing.T) {
	api := newFakeAPI()
	svc := NewService(api)
	require.NoError(t, svc.GenerateTestCalls(context.Background(), []int64{5}, 0))
	assert.Empty(t, api.methods)
}
