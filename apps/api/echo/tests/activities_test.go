package tests

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/pinhaljunior/aventureiros/apps/api/echo"
	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/attendance"
	"github.com/pinhaljunior/aventureiros/core/audit"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/curriculum"
	"github.com/pinhaljunior/aventureiros/core/points"
	"github.com/pinhaljunior/aventureiros/core/report"
	"github.com/pinhaljunior/aventureiros/core/user"
	testutil "github.com/pinhaljunior/aventureiros/tests"
)

func Test_attendanceApi(t *testing.T) {
	e := setup(t)
	professor := e.createUser("Gil", "+5511955550001", user.RoleProfessor)
	guardian := e.createUser("Hebe", "+5511955550002", user.RoleResponsavel)
	present := e.createChild("Igor", child.ClassAbelhinhas, guardian)
	absent := e.createChild("Joana", child.ClassAbelhinhas)
	e.createChild("Kaio", child.ClassMaos)
	token := e.token(professor)

	rec := e.do(http.MethodPost, "/v1/attendance/sessions", token, attendance.SessionForm{Type: attendance.TypeAula})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "date is required")
	rec = e.do(http.MethodPost, "/v1/attendance/sessions", token, attendance.SessionForm{
		Date: core.NewDate(2025, time.March, 8), Type: "PASSEIO",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/v1/attendance/sessions", token, attendance.SessionForm{
		Date: core.NewDate(2025, time.March, 8), Type: attendance.TypeAula, ClassGroup: child.ClassAbelhinhas,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var session attendance.Session
	decode(t, rec, &session)
	assert.Equal(t, professor.ID, session.CreatedBy)

	sheetURL := fmt.Sprintf("/v1/attendance/sessions/%d/sheet", session.ID)
	rec = e.do(http.MethodGet, sheetURL, token, nil)
	var sheet attendance.Sheet
	decode(t, rec, &sheet)
	require.Len(t, sheet.Entries, 2, "only the session's class group")
	for _, entry := range sheet.Entries {
		assert.False(t, entry.Marked)
	}

	rec = e.do(http.MethodPost, fmt.Sprintf("/v1/attendance/sessions/%d/marks", session.ID), token, echoapi.MarksRequest{
		Marks: []attendance.Mark{{ChildID: present.ID, Present: true, Note: "  chegou cedo "}},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res echoapi.CountResponse
	decode(t, rec, &res)
	assert.Equal(t, 2, res.Count, "unmarked children are recorded as absent")

	rec = e.do(http.MethodGet, sheetURL, token, nil)
	decode(t, rec, &sheet)
	for _, entry := range sheet.Entries {
		assert.True(t, entry.Marked)
		assert.Equal(t, entry.Child.ID == present.ID, entry.Present)
		if entry.Child.ID == present.ID {
			assert.Equal(t, "chegou cedo", entry.Note)
		}
	}

	runCodeTests(t, e, []httpTest{
		{name: "unknown session", path: "/v1/attendance/sessions/9999/sheet", token: token, wantCode: http.StatusNotFound},
		{name: "guardian cannot mark", method: http.MethodPost, path: fmt.Sprintf("/v1/attendance/sessions/%d/marks", session.ID),
			token: e.token(guardian), body: echoapi.MarksRequest{}, wantCode: http.StatusForbidden},
		{name: "absent child records", path: fmt.Sprintf("/v1/children/%d/attendance", absent.ID), token: token, wantCode: http.StatusOK},
	})

	rec = e.do(http.MethodGet, "/v1/my/attendance", e.token(guardian), nil)
	var records []attendance.Record
	decode(t, rec, &records)
	require.Len(t, records, 1)
	assert.Equal(t, present.ID, records[0].ChildID)
	assert.True(t, records[0].Present)
}

func Test_pointsApi(t *testing.T) {
	e := setup(t)
	secretary := e.createUser("Lara", "+5511955550003", user.RoleSecretaria)
	guardian := e.createUser("Mauro", "+5511955550004", user.RoleResponsavel)
	first := e.createChild("Nadia", child.ClassEdificadores, guardian)
	second := e.createChild("Otto", child.ClassEdificadores)
	outsider := e.createChild("Pia", child.ClassMaos)
	token := e.token(secretary)

	runCodeTests(t, e, []httpTest{
		{name: "zero points", method: http.MethodPost, path: "/v1/points", token: token,
			body: points.EntryForm{ChildID: first.ID}, wantCode: http.StatusBadRequest},
		{name: "unknown child", method: http.MethodPost, path: "/v1/points", token: token,
			body: points.EntryForm{ChildID: 9999, Points: 5}, wantCode: http.StatusBadRequest},
		{name: "batch without children", method: http.MethodPost, path: "/v1/points/batch", token: token,
			body: points.BatchForm{Points: 5, Reason: "Uniforme"}, wantCode: http.StatusBadRequest},
		{name: "guardian cannot add", method: http.MethodPost, path: "/v1/points", token: e.token(guardian),
			body: points.EntryForm{ChildID: first.ID, Points: 5}, wantCode: http.StatusForbidden},
	})

	rec := e.do(http.MethodPost, "/v1/points", token, points.EntryForm{ChildID: first.ID, Points: 10, Reason: "Bíblia"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPost, "/v1/points", token, points.EntryForm{ChildID: first.ID, Points: -3, Reason: "Atraso"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPost, "/v1/points/batch", token, points.BatchForm{
		ClassGroup: child.ClassEdificadores,
		ChildIDs:   []int{first.ID, second.ID, outsider.ID},
		Points:     5,
		Reason:     "Uniforme completo",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res echoapi.CountResponse
	decode(t, rec, &res)
	assert.Equal(t, 2, res.Count, "children outside the class group are skipped")

	rec = e.do(http.MethodGet, fmt.Sprintf("/v1/children/%d/points?limit=1", first.ID), token, nil)
	var st points.Statement
	decode(t, rec, &st)
	assert.Equal(t, 12, st.Total)
	assert.Len(t, st.Entries, 1)

	rec = e.do(http.MethodGet, "/v1/points/extract?class_group="+child.ClassEdificadores, token, nil)
	var ext points.Extract
	decode(t, rec, &ext)
	assert.Equal(t, 17, ext.Total)
	assert.Len(t, ext.Totals, 2)

	rec = e.do(http.MethodGet, "/v1/my/points", e.token(guardian), nil)
	var sts []points.Statement
	decode(t, rec, &sts)
	require.Len(t, sts, 1)
	assert.Equal(t, first.ID, sts[0].Child.ID)
	assert.Equal(t, 12, sts[0].Total)
}

func Test_curriculumApi(t *testing.T) {
	e := setup(t)
	professor := e.createUser("Rui", "+5511955550005", user.RoleProfessor)
	director := e.createUser("Sol", "+5511955550006", user.RoleDiretoria)
	guardian := e.createUser("Teo", "+5511955550007", user.RoleResponsavel)
	kid := e.createChild("Ugo", child.ClassLuminares, guardian)
	e.createChild("Vera", child.ClassLuminares)
	token := e.token(professor)

	rec := e.do(http.MethodPost, "/v1/curriculum/contents", token, curriculum.ContentForm{Description: "sem título"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/v1/curriculum/contents", token, curriculum.ContentForm{Title: "Nós e amarras", Module: "Natureza"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var item curriculum.ContentItem
	decode(t, rec, &item)
	assert.True(t, item.Active)

	order := 3
	rec = e.do(http.MethodPut, fmt.Sprintf("/v1/curriculum/contents/%d", item.ID), token, curriculum.ContentForm{
		Title: "Nós e amarras", Module: "Natureza", Order: &order,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &item)
	assert.Equal(t, 3, item.Order)

	rec = e.do(http.MethodPost, "/v1/curriculum/schedules", token, curriculum.ScheduleForm{
		ClassGroup: child.ClassLuminares, ContentItemID: item.ID, PlannedDate: core.NewDate(2025, time.April, 5),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var sched curriculum.ClassSchedule
	decode(t, rec, &sched)
	assert.Equal(t, curriculum.SchedulePlanejado, sched.Status)

	rec = e.do(http.MethodPost, "/v1/curriculum/progress", token, curriculum.ProgressForm{
		ClassGroup:    child.ClassLuminares,
		ContentItemID: item.ID,
		Marks: []curriculum.ProgressMark{
			{ChildID: kid.ID, Status: curriculum.ProgressConcluido, Note: "muito bem"},
			{ChildID: 9999, Status: curriculum.ProgressConcluido},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res echoapi.CountResponse
	decode(t, rec, &res)
	assert.Equal(t, 1, res.Count)

	rec = e.do(http.MethodPost, "/v1/curriculum/progress", e.token(director), curriculum.ProgressForm{
		ClassGroup: child.ClassLuminares, ContentItemID: item.ID,
	})
	assert.Equal(t, http.StatusForbidden, rec.Code, "only professors mark progress")

	rec = e.do(http.MethodGet, fmt.Sprintf("/v1/curriculum/sheet?class_group=%s&content_id=%d", child.ClassLuminares, item.ID), token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var sheet curriculum.Sheet
	decode(t, rec, &sheet)
	require.Len(t, sheet.Entries, 2)
	for _, entry := range sheet.Entries {
		if entry.Child.ID == kid.ID {
			assert.Equal(t, curriculum.ProgressConcluido, entry.Status)
		} else {
			assert.Equal(t, curriculum.ProgressNaoIniciado, entry.Status)
		}
	}

	rec = e.do(http.MethodGet, "/v1/my/progress", e.token(guardian), nil)
	var sheets []curriculum.ChildSheet
	decode(t, rec, &sheets)
	require.Len(t, sheets, 1)
	require.Len(t, sheets[0].Progress, 1)
	assert.Equal(t, "Nós e amarras", sheets[0].Progress[0].ContentTitle)
}

func Test_reportApi(t *testing.T) {
	e := setup(t)
	admin := e.createUser("Wilma", "+5511955550008", user.RoleADM)
	director := e.createUser("Xuxa", "+5511955550009", user.RoleDiretoria, user.RoleProfessor)
	testutil.CreateUser(t, e.usrRepo, "Yuri", "+5511955550010", "", testPassword, user.RoleProfessor, false)
	e.createChild("Zara", child.ClassMaos)

	runCodeTests(t, e, []httpTest{
		{name: "director report", path: "/v1/reports/director", token: e.token(director), wantCode: http.StatusOK},
		{name: "own secondary dashboard", path: "/v1/dashboard/professor", token: e.token(director), wantCode: http.StatusOK},
		{name: "foreign dashboard", path: "/v1/dashboard/tesoureiro", token: e.token(director), wantCode: http.StatusForbidden},
		{name: "config is admin only", path: "/v1/config", token: e.token(director), wantCode: http.StatusForbidden},
		{name: "config", path: "/v1/config", token: e.token(admin), wantCode: http.StatusOK},
	})

	rec := e.do(http.MethodGet, "/v1/reports/director", e.token(director), nil)
	var rep report.DirectorReport
	decode(t, rec, &rep)
	assert.Equal(t, 3, rep.UsersCount)
	assert.Equal(t, 1, rep.ChildrenCount)

	rec = e.do(http.MethodGet, "/v1/dashboard", e.token(director), nil)
	var d report.Dashboard
	decode(t, rec, &d)
	assert.Equal(t, user.RoleDiretoria, d.Role)
	assert.Equal(t, "/dashboard/diretoria", d.Redirect)
	assert.EqualValues(t, 1, d.Counters["pending_activation"])
	assert.EqualValues(t, 1, d.Counters["active_children"])

	rec = e.do(http.MethodGet, "/v1/config", e.token(admin), nil)
	var cfg report.ConfigView
	decode(t, rec, &cfg)
	assert.Equal(t, e.conf.AppName, cfg.AppName)
	assert.Len(t, cfg.Roles, len(user.Roles))
}

func Test_auditApi(t *testing.T) {
	e := setup(t)
	admin := e.createUser("Abel", "+5511955550011", user.RoleADM)
	director := e.createUser("Bela", "+5511955550012", user.RoleDiretoria)

	e.do(http.MethodPost, "/v1/auth/login", "", echoapi.LoginRequest{Whatsapp: director.WhatsappNumber, Password: testPassword})
	e.do(http.MethodGet, "/v1/users?q=bela", e.token(director), nil)
	e.do(http.MethodGet, "/v1/audit/logs", e.token(director), nil)

	token := e.token(admin)
	rec := e.do(http.MethodGet, "/v1/audit/logs", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var logs []audit.Log
	decode(t, rec, &logs)
	require.Len(t, logs, 3)

	// newest first
	assert.Equal(t, "/v1/audit/logs", logs[0].Path)
	assert.Equal(t, http.StatusForbidden, logs[0].StatusCode)
	assert.False(t, logs[0].Success)
	require.NotNil(t, logs[0].UserID)
	assert.Equal(t, director.ID, *logs[0].UserID)

	assert.Equal(t, "bela", logs[1].Payload["q"])
	assert.Equal(t, "/v1/users", logs[1].ViewName)

	login := logs[2]
	assert.Equal(t, http.MethodPost, login.Method)
	assert.Nil(t, login.UserID)
	body, ok := login.Payload["json_body"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, director.WhatsappNumber, body["whatsapp_number"])
	assert.NotContains(t, body, "password", "credentials are never stored")

	rec = e.do(http.MethodGet, "/v1/audit/logs?path=/v1/users", token, nil)
	decode(t, rec, &logs)
	assert.Len(t, logs, 1)

	rec = e.do(http.MethodGet, "/v1/audit/logs?from=not-a-date", token, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	today := core.Today(time.Now(), e.conf.Finance.Location).String()
	rec = e.do(http.MethodGet, "/v1/audit/logs/export?to="+today, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	rows, err := csv.NewReader(strings.NewReader(rec.Body.String())).ReadAll()
	require.NoError(t, err)
	assert.Greater(t, len(rows), 3)
	assert.Equal(t, "Criado em", rows[0][0])
}
