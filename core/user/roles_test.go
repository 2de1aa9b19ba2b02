package user

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAvailableRoles(t *testing.T) {
	tests := []struct {
		name string
		usr  User
		want []string
	}{
		{name: "no roles", usr: User{}, want: []string{}},
		{name: "primary only", usr: User{Role: RoleResponsavel}, want: []string{RoleResponsavel}},
		{
			name: "extras by priority",
			usr:  User{Role: RoleProfessor, ExtraRoles: []string{RoleResponsavel, RoleDiretoria}},
			want: []string{RoleProfessor, RoleDiretoria, RoleResponsavel},
		},
		{
			name: "duplicates and unknown roles dropped",
			usr:  User{Role: RoleTesoureiro, ExtraRoles: []string{RoleTesoureiro, "LOL", RoleProfessor, RoleProfessor}},
			want: []string{RoleTesoureiro, RoleProfessor},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, AvailableRoles(tt.usr))
		})
	}
}

func TestResolveActiveRole(t *testing.T) {
	tests := []struct {
		name      string
		available []string
		requested string
		allowed   []string
		want      string
		wantOk    bool
	}{
		{name: "no roles", requested: RoleADM, allowed: []string{RoleADM}},
		{
			name: "requested role allowed", available: []string{RoleProfessor, RoleResponsavel},
			requested: RoleResponsavel, allowed: []string{RoleResponsavel}, want: RoleResponsavel, wantOk: true,
		},
		{
			name: "unavailable request falls back to first", available: []string{RoleProfessor},
			requested: RoleADM, allowed: []string{RoleProfessor}, want: RoleProfessor, wantOk: true,
		},
		{
			name: "switches to an allowed role", available: []string{RoleResponsavel, RoleTesoureiro},
			requested: RoleResponsavel, allowed: []string{RoleTesoureiro, RoleDiretoria}, want: RoleTesoureiro, wantOk: true,
		},
		{
			name: "forbidden", available: []string{RoleResponsavel},
			requested: RoleResponsavel, allowed: []string{RoleDiretoria}, want: RoleResponsavel,
		},
		{
			name: "no restriction", available: []string{RoleSecretaria},
			want: RoleSecretaria, wantOk: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ResolveActiveRole(tt.available, tt.requested, tt.allowed)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOk, ok)
		})
	}
}

func TestRedirectFor(t *testing.T) {
	assert.Equal(t, "/config", RedirectFor(RoleADM))
	assert.Equal(t, "/dashboard/tesoureiro", RedirectFor(RoleTesoureiro))
	assert.Equal(t, "/dashboard/responsavel", RedirectFor("LOL"))
}

func TestMaxRolePriority(t *testing.T) {
	assert.Equal(t, 0, MaxRolePriority(nil))
	assert.Greater(t, MaxRolePriority([]string{RoleResponsavel, RoleDiretoria}), MaxRolePriority([]string{RoleProfessor}))
	assert.Greater(t, MaxRolePriority([]string{RoleADM}), MaxRolePriority(StaffRoles))
}
