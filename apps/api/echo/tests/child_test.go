package tests

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	echoapi "github.com/pinhaljunior/aventureiros/apps/api/echo"
	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/enrollment"
	"github.com/pinhaljunior/aventureiros/core/report"
	"github.com/pinhaljunior/aventureiros/core/user"
)

func newGuardianData(whatsapp string) user.GuardianData {
	return user.GuardianData{
		FirstName:       "Paula",
		LastName:        "Souza",
		WhatsappNumber:  whatsapp,
		CPF:             "123.456.789-09",
		Email:           "paula@example.com",
		Password:        "Fogueira#Noite9",
		PasswordConfirm: "Fogueira#Noite9",
	}
}

func newPayload(name string, birth core.Date) child.Payload {
	return child.Payload{
		FirstName:    name,
		LastName:     "Souza",
		BirthDate:    birth,
		Allergies:    "amendoim",
		AuthActivity: true,
		AuthMedical:  true,
		AuthRules:    true,
	}
}

func Test_childApi_signupGuardian(t *testing.T) {
	e := setup(t)
	today := core.Today(time.Now(), e.conf.Finance.Location)
	birth := today.AddDays(-7*365 - 30)

	t.Run("missing authorizations", func(t *testing.T) {
		p := newPayload("Rafa", birth)
		p.AuthMedical = false
		rec := e.do(http.MethodPost, "/v1/signup/guardian", "", echoapi.GuardianSignupRequest{
			Guardian: newGuardianData("+5511977770001"),
			Children: []child.Payload{p},
		})
		require.Equal(t, http.StatusBadRequest, rec.Code)
		var fields map[string]string
		decode(t, rec, &fields)
		assert.Contains(t, fields, "children[0]")
	})

	t.Run("no children", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/v1/signup/guardian", "", echoapi.GuardianSignupRequest{
			Guardian: newGuardianData("+5511977770001"),
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("json", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/v1/signup/guardian", "", echoapi.GuardianSignupRequest{
			Guardian: newGuardianData("(11) 97777-0001"),
			Children: []child.Payload{newPayload("Rafa", birth), newPayload("Bela", birth.AddDays(-365))},
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var enr enrollment.Enrollment
		decode(t, rec, &enr)
		assert.True(t, enr.Created)
		assert.True(t, enr.Guardian.IsActive)
		assert.Equal(t, "+5511977770001", enr.Guardian.WhatsappNumber)
		require.Len(t, enr.Children, 2)
		assert.Equal(t, "Rafa Souza", enr.Children[0].Name)
		assert.Equal(t, child.ClassGroupFor(birth, today), enr.Children[0].ClassGroup)
		assert.Equal(t, 2*(13-int(today.Month())), enr.FeesCreated)

		h, err := e.children.Health(e.ctx(), enr.Children[0].ID)
		require.NoError(t, err)
		assert.Equal(t, "amendoim", h.Allergies)

		rec = e.do(http.MethodPost, "/v1/auth/login", "", echoapi.LoginRequest{Whatsapp: "+5511977770001", Password: "Fogueira#Noite9"})
		require.Equal(t, http.StatusOK, rec.Code)
		var res echoapi.LoginResponse
		decode(t, rec, &res)
		assert.Equal(t, user.RoleResponsavel, res.ActiveRole)
	})

	t.Run("multipart with photo", func(t *testing.T) {
		rec := e.doMultipart(http.MethodPost, "/v1/signup/guardian", "", echoapi.GuardianSignupRequest{
			Guardian: newGuardianData("+5511977770002"),
			Children: []child.Payload{newPayload("Caio", birth)},
		}, map[string][]byte{"children[0].photo": []byte("fake png")})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		files, err := filepath.Glob(filepath.Join(e.conf.Storage.LocalDir, "child_faces", "*.png"))
		require.NoError(t, err)
		require.Len(t, files, 1)
		content, err := os.ReadFile(files[0])
		require.NoError(t, err)
		assert.Equal(t, "fake png", string(content))
	})
}

func Test_childApi_guardianScope(t *testing.T) {
	e := setup(t)
	guardian := e.createUser("Olga", "+5511977770003", user.RoleResponsavel)
	other := e.createUser("Pedro", "+5511977770004", user.RoleResponsavel)
	professor := e.createUser("Quitéria", "+5511977770005", user.RoleProfessor)
	mine := e.createChild("Renan", child.ClassLuminares, guardian)
	theirs := e.createChild("Sara", child.ClassLuminares, other)

	mineURL := fmt.Sprintf("/v1/children/%d", mine.ID)
	theirsURL := fmt.Sprintf("/v1/children/%d", theirs.ID)
	gToken := e.token(guardian)

	runCodeTests(t, e, []httpTest{
		{name: "own child", path: mineURL, token: gToken, wantCode: http.StatusOK},
		{name: "own health", path: mineURL + "/health", token: gToken, wantCode: http.StatusOK},
		{name: "own overview", path: mineURL + "/overview", token: gToken, wantCode: http.StatusOK},
		{name: "other child", path: theirsURL, token: gToken, wantCode: http.StatusNotFound},
		{name: "other overview", path: theirsURL + "/overview", token: gToken, wantCode: http.StatusNotFound},
		{name: "unknown child", path: "/v1/children/9999", token: gToken, wantCode: http.StatusNotFound},
		{name: "guardian cannot list guardians", path: mineURL + "/guardians", token: gToken, wantCode: http.StatusForbidden},
		{
			name: "guardian cannot edit", method: http.MethodPut, path: mineURL, token: gToken,
			body: child.ChildForm{Name: "Renan"}, wantCode: http.StatusForbidden,
		},
		{name: "staff sees any child", path: theirsURL, token: e.token(professor), wantCode: http.StatusOK},
		{name: "staff overview", path: theirsURL + "/overview", token: e.token(professor), wantCode: http.StatusOK},
		{name: "staff guardians", path: theirsURL + "/guardians", token: e.token(professor), wantCode: http.StatusOK},
	})

	rec := e.do(http.MethodGet, "/v1/my/children", gToken, nil)
	var kids []child.Child
	decode(t, rec, &kids)
	require.Len(t, kids, 1)
	assert.Equal(t, mine.ID, kids[0].ID)

	rec = e.do(http.MethodGet, mineURL+"/overview", gToken, nil)
	var ov report.ChildOverview
	decode(t, rec, &ov)
	assert.Equal(t, mine.ID, ov.Child.ID)
	require.Len(t, ov.Guardians, 1)
	assert.Equal(t, guardian.ID, ov.Guardians[0].GuardianID)
}

func Test_childApi_manage(t *testing.T) {
	e := setup(t)
	secretary := e.createUser("Tina", "+5511977770006", user.RoleSecretaria)
	guardian := e.createUser("Ulisses", "+5511977770007", user.RoleResponsavel)
	token := e.token(secretary)

	rec := e.do(http.MethodPost, "/v1/children", token, child.ChildForm{
		Name: "Vitor", BirthDate: core.NewDate(2018, time.May, 10), ClassGroup: child.ClassEdificadores,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var c child.Child
	decode(t, rec, &c)
	assert.True(t, c.Active)
	assert.Equal(t, child.ClassEdificadores, c.ClassGroup)

	rec = e.do(http.MethodPost, "/v1/children", token, child.ChildForm{Name: "Vitor", ClassGroup: "Pioneiros"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = e.do(http.MethodPut, fmt.Sprintf("/v1/children/%d", c.ID), token, child.ChildForm{
		Name: "Vitor Hugo", BirthDate: c.BirthDate, ClassGroup: child.ClassMaos,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	decode(t, rec, &c)
	assert.Equal(t, "Vitor Hugo", c.Name)
	assert.Equal(t, child.ClassMaos, c.ClassGroup)

	rec = e.do(http.MethodGet, "/v1/children?class_group="+url.QueryEscape(child.ClassMaos), token, nil)
	var kids []child.Child
	decode(t, rec, &kids)
	assert.Len(t, kids, 1)

	t.Run("links", func(t *testing.T) {
		rec := e.do(http.MethodPost, "/v1/guardian-links", token, child.NewLink{
			GuardianID: secretary.ID, ChildID: c.ID,
		})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "only guardians can be linked")

		rec = e.do(http.MethodPost, "/v1/guardian-links", token, child.NewLink{
			GuardianID: guardian.ID, ChildID: c.ID, Relationship: child.RelGrandparent,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

		rec = e.do(http.MethodGet, "/v1/guardian-links?guardian=Ulisses", token, nil)
		var links []child.GuardianLink
		decode(t, rec, &links)
		require.Len(t, links, 1)
		assert.Equal(t, child.RelGrandparent, links[0].Relationship)
		assert.Equal(t, "Vitor Hugo", links[0].ChildName)

		ok, err := e.children.IsGuardianOf(e.ctx(), guardian.ID, c.ID)
		require.NoError(t, err)
		assert.True(t, ok)
	})
}

func Test_childApi_addChildren(t *testing.T) {
	e := setup(t)
	guardian := e.createUser("Wagner", "+5511977770008", user.RoleResponsavel)

	rec := e.do(http.MethodPost, "/v1/my/children", e.token(guardian), echoapi.AddChildrenRequest{
		Children: []child.Payload{newPayload("Xavier", core.NewDate(2019, time.June, 1))},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	kids, err := e.children.GuardianChildren(e.ctx(), guardian.ID)
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.Equal(t, "Xavier Souza", kids[0].Name)
}

func Test_childApi_detailRoutes(t *testing.T) {
	e := setup(t)
	guardian := e.createUser("Yolanda", "+5511977770009", user.RoleResponsavel)
	secretary := e.createUser("Zilda", "+5511977770010", user.RoleSecretaria)
	treasurer := e.createUser("Abel", "+5511977770011", user.RoleTesoureiro)
	kid := e.createChild("Breno", child.ClassLuminares, guardian)

	kidURL := fmt.Sprintf("/v1/children/%d", kid.ID)
	form := child.ChildForm{Name: "Breno Lima", BirthDate: core.NewDate(2018, time.May, 10), ClassGroup: child.ClassLuminares}
	gToken, sToken, tToken := e.token(guardian), e.token(secretary), e.token(treasurer)

	runCodeTests(t, e, []httpTest{
		{name: "guardian detail", path: kidURL, token: gToken, wantCode: http.StatusOK},
		{name: "secretary detail", path: kidURL, token: sToken, wantCode: http.StatusOK},
		{name: "treasurer detail", path: kidURL, token: tToken, wantCode: http.StatusOK},
		{name: "guardian edit", method: http.MethodPut, path: kidURL, token: gToken, body: form, wantCode: http.StatusForbidden},
		{name: "treasurer edit", method: http.MethodPut, path: kidURL, token: tToken, body: form, wantCode: http.StatusForbidden},
		{name: "secretary edit", method: http.MethodPut, path: kidURL, token: sToken, body: form, wantCode: http.StatusOK},
		{name: "treasurer fees", path: kidURL + "/fees", token: tToken, wantCode: http.StatusOK},
		{name: "secretary fees", path: kidURL + "/fees", token: sToken, wantCode: http.StatusForbidden},
		{name: "guardian fees", path: kidURL + "/fees", token: gToken, wantCode: http.StatusForbidden},
		{name: "unknown child fees", path: "/v1/children/9999/fees", token: tToken, wantCode: http.StatusNotFound},
	})

	rec := e.do(http.MethodGet, kidURL, gToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var c child.Child
	decode(t, rec, &c)
	assert.Equal(t, "Breno Lima", c.Name)

	rec = e.do(http.MethodGet, kidURL+"/health", sToken, nil)
	require.Equal(t, http.StatusOK, rec.Code, "registered without a health record")
	var h child.Health
	decode(t, rec, &h)
	assert.Equal(t, kid.ID, h.ChildID)
	assert.Empty(t, h.Allergies)
}
