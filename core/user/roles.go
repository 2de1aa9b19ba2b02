package user

import "sort"

// Roles
const (
	RoleADM         = "ADM"
	RoleDiretoria   = "DIRETORIA"
	RoleSecretaria  = "SECRETARIA"
	RoleTesoureiro  = "TESOUREIRO"
	RoleProfessor   = "PROFESSOR"
	RoleResponsavel = "RESPONSAVEL"
)

var (
	AllRoles   = []string{RoleADM, RoleDiretoria, RoleSecretaria, RoleTesoureiro, RoleProfessor, RoleResponsavel}
	StaffRoles = []string{RoleDiretoria, RoleSecretaria, RoleTesoureiro, RoleProfessor}

	rolePriorities = map[string]int{
		RoleADM:         50,
		RoleDiretoria:   40,
		RoleSecretaria:  30,
		RoleTesoureiro:  30,
		RoleProfessor:   20,
		RoleResponsavel: 10,
	}

	roleRedirects = map[string]string{
		RoleADM:         "/config",
		RoleDiretoria:   "/dashboard/diretoria",
		RoleSecretaria:  "/dashboard/secretaria",
		RoleTesoureiro:  "/dashboard/tesoureiro",
		RoleProfessor:   "/dashboard/professor",
		RoleResponsavel: "/dashboard/responsavel",
	}

	Roles = []Role{
		{Name: "ADM", Value: RoleADM},
		{Name: "Diretoria", Value: RoleDiretoria},
		{Name: "Secretaria", Value: RoleSecretaria},
		{Name: "Tesoureiro", Value: RoleTesoureiro},
		{Name: "Professor", Value: RoleProfessor},
		{Name: "Responsável", Value: RoleResponsavel},
	}
)

type Role struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

func IsValidRole(role string) bool {
	_, ok := rolePriorities[role]
	return ok
}

func RolePriority(role string) int {
	return rolePriorities[role]
}

func MaxRolePriority(roles []string) int {
	var max int
	for _, role := range roles {
		if RolePriority(role) > max {
			max = RolePriority(role)
		}
	}
	return max
}

// RedirectFor returns the landing page of a role.
func RedirectFor(role string) string {
	if path, ok := roleRedirects[role]; ok {
		return path
	}
	return roleRedirects[RoleResponsavel]
}

// AvailableRoles lists the primary role followed by the extra roles, without duplicates.
func AvailableRoles(usr User) []string {
	roles := make([]string, 0, len(usr.ExtraRoles)+1)
	seen := make(map[string]bool, len(usr.ExtraRoles)+1)
	add := func(r string) {
		if r != "" && IsValidRole(r) && !seen[r] {
			seen[r] = true
			roles = append(roles, r)
		}
	}
	add(usr.Role)
	extras := append([]string(nil), usr.ExtraRoles...)
	sort.SliceStable(extras, func(i, j int) bool { return RolePriority(extras[i]) > RolePriority(extras[j]) })
	for _, r := range extras {
		add(r)
	}
	return roles
}

// ResolveActiveRole picks the role a request runs as.
// The requested role wins when available, else the first available one. When that role is not
// allowed, the first available allowed role is activated instead; ok is false when there is none.
func ResolveActiveRole(available []string, requested string, allowed []string) (active string, ok bool) {
	if len(available) == 0 {
		return "", false
	}
	active = requested
	if !containsRole(available, active) {
		active = available[0]
	}
	if len(allowed) == 0 || containsRole(allowed, active) {
		return active, true
	}
	for _, r := range available {
		if containsRole(allowed, r) {
			return r, true
		}
	}
	return active, false
}

func containsRole(roles []string, role string) bool {
	for _, r := range roles {
		if r == role {
			return true
		}
	}
	return false
}
