package tests

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/pinhaljunior/aventureiros/apps/api/echo"
	"github.com/pinhaljunior/aventureiros/core/user"
	"github.com/pinhaljunior/aventureiros/tests"
)

func Test_userApi_login(t *testing.T) {
	e := setup(t)
	e.createUser("Carla", "+5511988880001", user.RoleDiretoria, user.RoleProfessor)
	testutil.CreateUser(t, e.usrRepo, "Davi", "+5511988880002", "", testPassword, user.RoleDiretoria, false)

	tests := []struct {
		name       string
		data       echoapi.LoginRequest
		wantCode   int
		wantActive string
	}{
		{name: "empty", data: echoapi.LoginRequest{}, wantCode: http.StatusBadRequest},
		{name: "unknown number", data: echoapi.LoginRequest{Whatsapp: "+5511900000000", Password: testPassword}, wantCode: http.StatusBadRequest},
		{name: "wrong password", data: echoapi.LoginRequest{Whatsapp: "+5511988880001", Password: "nope"}, wantCode: http.StatusBadRequest},
		{name: "inactive", data: echoapi.LoginRequest{Whatsapp: "+5511988880002", Password: testPassword}, wantCode: http.StatusForbidden},
		{
			name: "primary role", data: echoapi.LoginRequest{Whatsapp: "(11) 98888-0001", Password: testPassword},
			wantCode: http.StatusOK, wantActive: user.RoleDiretoria,
		},
		{
			name: "requested role", data: echoapi.LoginRequest{Whatsapp: "+5511988880001", Password: testPassword, Role: user.RoleProfessor},
			wantCode: http.StatusOK, wantActive: user.RoleProfessor,
		},
		{
			name: "unavailable role falls back", data: echoapi.LoginRequest{Whatsapp: "+5511988880001", Password: testPassword, Role: user.RoleADM},
			wantCode: http.StatusOK, wantActive: user.RoleDiretoria,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := e.do(http.MethodPost, "/v1/auth/login", "", tt.data)
			require.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
			if tt.wantCode != http.StatusOK {
				return
			}
			var res echoapi.LoginResponse
			decode(t, rec, &res)
			assert.NotEmpty(t, res.Token)
			assert.Equal(t, tt.wantActive, res.ActiveRole)
			assert.Equal(t, user.RedirectFor(tt.wantActive), res.Redirect)
			assert.Equal(t, []string{user.RoleDiretoria, user.RoleProfessor}, res.Roles)
		})
	}
}

func Test_userApi_loginAttempts(t *testing.T) {
	e := setup(t)
	e.createUser("Edu", "+5511988880003", user.RoleSecretaria)

	bad := echoapi.LoginRequest{Whatsapp: "+5511988880003", Password: "wrong-password"}
	for i := 0; i < 5; i++ {
		rec := e.do(http.MethodPost, "/v1/auth/login", "", bad)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	}
	good := echoapi.LoginRequest{Whatsapp: "+5511988880003", Password: testPassword}
	rec := e.do(http.MethodPost, "/v1/auth/login", "", good)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
}

func Test_userApi_switchRole(t *testing.T) {
	e := setup(t)
	usr := e.createUser("Fabi", "+5511988880004", user.RoleTesoureiro, user.RoleResponsavel)
	token := e.token(usr)

	t.Run("available", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/v1/auth/switch-role", token, echoapi.SwitchRoleRequest{Role: user.RoleResponsavel})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res echoapi.LoginResponse
		decode(t, rec, &res)
		assert.Equal(t, user.RoleResponsavel, res.ActiveRole)
		assert.Equal(t, "/dashboard/responsavel", res.Redirect)

		rec = e.do(http.MethodGet, "/v1/auth/me", res.Token, nil)
		var me echoapi.MeResponse
		decode(t, rec, &me)
		assert.Equal(t, user.RoleResponsavel, me.ActiveRole)
	})
	t.Run("unavailable", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/v1/auth/switch-role", token, echoapi.SwitchRoleRequest{Role: user.RoleADM})
		assert.Equal(t, http.StatusForbidden, rec.Code)
	})
}

func Test_userApi_refreshToken(t *testing.T) {
	e := setup(t)
	usr := e.createUser("Gabi", "+5511988880005", user.RoleProfessor)

	rec := e.do(http.MethodPost, "/v1/auth/token-refresh", e.token(usr), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res echoapi.LoginResponse
	decode(t, rec, &res)
	assert.NotEmpty(t, res.Token)

	old := echoapi.GetUserClaims(e.conf, usr, "", 1) // issued in 1970
	token, err := echoapi.GenerateToken(e.conf, old)
	require.NoError(t, err)
	rec = e.do(http.MethodPost, "/v1/auth/token-refresh", token, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func Test_userApi_passwordReset(t *testing.T) {
	e := setup(t)
	usr := testutil.CreateUser(t, e.usrRepo, "Hugo", "+5511988880006", "hugo@example.com", testPassword, user.RoleSecretaria, true)

	rec := e.do(http.MethodPost, "/v1/auth/password-reset", "", echoapi.PasswordResetRequest{Whatsapp: "+5511900000001"})
	assert.Equal(t, http.StatusOK, rec.Code, "unknown numbers are not disclosed")
	assert.Empty(t, e.mail.Sent())

	rec = e.do(http.MethodPost, "/v1/auth/password-reset", "", echoapi.PasswordResetRequest{Whatsapp: usr.WhatsappNumber})
	require.Equal(t, http.StatusOK, rec.Code)
	sent := e.mail.Sent()
	require.Len(t, sent, 1)
	data, ok := sent[0].TemplateData.(map[string]string)
	require.True(t, ok)

	newPwd := "Acampamento#2025"
	rec = e.do(http.MethodPost, "/v1/auth/password-reset-confirm", "", user.ResetUserPassword{
		Token: "bad-token", UID: data["UID"], Password: newPwd, PasswordConfirm: newPwd,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPost, "/v1/auth/password-reset-confirm", "", user.ResetUserPassword{
		Token: data["Token"], UID: data["UID"], Password: newPwd, PasswordConfirm: newPwd,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = e.do(http.MethodPost, "/v1/auth/login", "", echoapi.LoginRequest{Whatsapp: usr.WhatsappNumber, Password: newPwd})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_userApi_signupStaff(t *testing.T) {
	e := setup(t)
	director := e.createUser("Iara", "+5511988880007", user.RoleDiretoria)

	form := user.StaffSignup{
		FirstName:       "João",
		LastName:        "Silva",
		WhatsappNumber:  "11 98888-0008",
		Password:        "Desbravador#77",
		PasswordConfirm: "Desbravador#77",
		Roles:           []string{user.RoleProfessor},
	}
	t.Run("invalid", func(t *testing.T) {
		bad := form
		bad.PasswordConfirm = "other"
		bad.Roles = []string{"CHEF"}
		rec := e.do(http.MethodPost, "/v1/signup/staff", "", bad)
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var fields map[string]string
		decode(t, rec, &fields)
		assert.Contains(t, fields, "password_confirm")
		assert.Contains(t, fields, "roles")
	})

	rec := e.do(http.MethodPost, "/v1/signup/staff", "", form)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var res echoapi.SignupResponse
	decode(t, rec, &res)
	assert.True(t, res.Created)
	assert.False(t, res.User.IsActive)
	assert.Equal(t, user.RoleProfessor, res.User.Role)

	rec = e.do(http.MethodPost, "/v1/auth/login", "", echoapi.LoginRequest{Whatsapp: "+5511988880008", Password: form.Password})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	path := fmt.Sprintf("/v1/users/%d/activate", res.User.ID)
	rec = e.do(http.MethodPost, path, e.token(director), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var act echoapi.ActivateResponse
	decode(t, rec, &act)
	assert.True(t, act.Activated)
	assert.True(t, act.User.IsActive)

	rec = e.do(http.MethodPost, path, e.token(director), nil)
	decode(t, rec, &act)
	assert.False(t, act.Activated)

	rec = e.do(http.MethodPost, "/v1/auth/login", "", echoapi.LoginRequest{Whatsapp: "+5511988880008", Password: form.Password})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func Test_userApi_create(t *testing.T) {
	e := setup(t)
	director := e.createUser("Jane", "+5511988880009", user.RoleDiretoria)
	token := e.token(director)

	t.Run("cannot grant higher roles", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/v1/users", token, user.NewUser{
			WhatsappNumber: "+5511988880010", FirstName: "Kleber", Role: user.RoleProfessor,
			ExtraRoles: []string{user.RoleADM}, Password: "Fogueira#Noite9",
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var fields map[string]string
		decode(t, rec, &fields)
		assert.Contains(t, fields, "role")
	})

	t.Run("guardian with children", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/v1/users", token, user.NewUser{
			WhatsappNumber: "+5511988880011", FirstName: "Lia", Role: user.RoleResponsavel,
			Password: "Fogueira#Noite9", NewChildren: "Miguel;2018-03-04\nNina;2017-08-09",
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var res echoapi.UserSaveResponse
		decode(t, rec, &res)
		assert.True(t, res.Created)
		assert.Len(t, res.Children, 2)

		kids, err := e.children.GuardianChildren(e.ctx(), res.User.ID)
		require.NoError(t, err)
		assert.Len(t, kids, 2)
	})

	t.Run("existing number is updated", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/v1/users", token, user.NewUser{
			WhatsappNumber: "+5511988880011", FirstName: "Lia Maria", Role: user.RoleResponsavel, Password: "Fogueira#Noite9",
		})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var res echoapi.UserSaveResponse
		decode(t, rec, &res)
		assert.False(t, res.Created)
		assert.Equal(t, "Lia Maria", res.User.FirstName)
	})
}

func Test_userApi_update(t *testing.T) {
	e := setup(t)
	director := e.createUser("Mara", "+5511988880012", user.RoleDiretoria)
	professor := e.createUser("Nico", "+5511988880013", user.RoleProfessor)
	token := e.token(director)
	path := fmt.Sprintf("/v1/users/%d", professor.ID)

	runCodeTests(t, e, []httpTest{
		{name: "not found", path: "/v1/users/9999", token: token, wantCode: http.StatusNotFound},
		{name: "bad id", path: "/v1/users/abc", token: token, wantCode: http.StatusNotFound},
		{name: "professor cannot manage users", path: path, token: e.token(professor), wantCode: http.StatusForbidden},
		{
			name: "cannot grant ADM", method: http.MethodPut, path: path, token: token,
			body: user.UpdateUser{FirstName: "Nico", Role: user.RoleADM}, wantCode: http.StatusBadRequest,
		},
	})

	inactive := false
	rec := e.do(http.MethodPut, path, token, user.UpdateUser{
		FirstName: "Nicolas", Role: user.RoleProfessor, ExtraRoles: []string{user.RoleSecretaria}, IsActive: &inactive,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var usr user.User
	decode(t, rec, &usr)
	assert.Equal(t, "Nicolas", usr.FirstName)
	assert.Equal(t, []string{user.RoleSecretaria}, usr.ExtraRoles)
	assert.False(t, usr.IsActive)

	rec = e.do(http.MethodGet, "/v1/users?is_active=false", token, nil)
	var users []user.User
	decode(t, rec, &users)
	require.Len(t, users, 1)
	assert.Equal(t, professor.ID, users[0].ID)

	rec = e.do(http.MethodGet, "/v1/users/roles", token, nil)
	var roles []user.Role
	decode(t, rec, &roles)
	assert.Len(t, roles, len(user.Roles))
}
