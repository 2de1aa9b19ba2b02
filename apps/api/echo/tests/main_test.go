package tests

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pinhaljunior/aventureiros/core/user"
)

func TestServer_home(t *testing.T) {
	e := setup(t)

	rec := e.do(http.MethodGet, "/", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), e.conf.AppName)
}

func TestServer_authRequired(t *testing.T) {
	e := setup(t)
	guardian := e.createUser("Ana", "+5511999990001", user.RoleResponsavel)

	var tests []httpTest
	for _, path := range []string{
		"/v1/auth/me", "/v1/users", "/v1/children", "/v1/fees", "/v1/my/finances", "/v1/attendance/sessions",
		"/v1/curriculum/contents", "/v1/points", "/v1/documents", "/v1/store/catalog", "/v1/audit/logs",
		"/v1/reports/director", "/v1/dashboard",
	} {
		tests = append(tests, httpTest{name: "no token " + path, path: path, wantCode: http.StatusUnauthorized})
	}
	tests = append(tests,
		httpTest{name: "bad token", path: "/v1/auth/me", token: "nope", wantCode: http.StatusUnauthorized},
		httpTest{name: "guardian on staff route", path: "/v1/children", token: e.token(guardian), wantCode: http.StatusForbidden},
		httpTest{name: "guardian on admin route", path: "/v1/audit/logs", token: e.token(guardian), wantCode: http.StatusForbidden},
	)
	runCodeTests(t, e, tests)

	rec := e.do(http.MethodGet, "/v1/users", "", nil)
	var herr httpErr
	decode(t, rec, &herr)
	assert.Equal(t, "missing or malformed jwt", herr.Error)
}

func TestServer_inactiveUser(t *testing.T) {
	e := setup(t)
	usr := e.createUser("Bia", "+5511999990002", user.RoleDiretoria)
	token := e.token(usr)

	usr.IsActive = false
	_, err := e.usrRepo.UpdateUser(e.ctx(), usr)
	assert.NoError(t, err)

	rec := e.do(http.MethodGet, "/v1/auth/me", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
