package tests

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/document"
	"github.com/pinhaljunior/aventureiros/core/user"
)

func Test_documentApi(t *testing.T) {
	e := setup(t)
	secretary := e.createUser("Rosa", "+5511955550021", user.RoleSecretaria)
	guardian := e.createUser("Saulo", "+5511955550022", user.RoleResponsavel)
	professor := e.createUser("Tina", "+5511955550023", user.RoleProfessor)
	kid := e.createChild("Uri", child.ClassLuminares, guardian)
	orphan := e.createChild("Vera", child.ClassLuminares)
	token := e.token(secretary)

	validity := 365
	rec := e.do(http.MethodPost, "/v1/documents/types", token, document.TypeForm{Name: " Ficha Médica ", ValidityDays: &validity})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var medical document.Type
	decode(t, rec, &medical)
	assert.Equal(t, "Ficha Médica", medical.Name)
	assert.True(t, medical.Required)
	assert.True(t, medical.Active)

	rec = e.do(http.MethodPost, "/v1/documents/types", token, document.TypeForm{Name: "RG/Certidão"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var rg document.Type
	decode(t, rec, &rg)

	inactive := false
	rec = e.do(http.MethodPost, "/v1/documents/types", token, document.TypeForm{Name: "Carteirinha", Active: &inactive})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	zero := 0
	runCodeTests(t, e, []httpTest{
		{name: "professor", path: "/v1/documents", token: e.token(professor), wantCode: http.StatusForbidden},
		{name: "guardian", path: fmt.Sprintf("/v1/children/%d/documents", kid.ID), token: e.token(guardian), wantCode: http.StatusForbidden},
		{name: "no type name", method: http.MethodPost, path: "/v1/documents/types", token: token,
			body: document.TypeForm{}, wantCode: http.StatusBadRequest},
		{name: "zero validity", method: http.MethodPost, path: "/v1/documents/types", token: token,
			body: document.TypeForm{Name: "Foto", ValidityDays: &zero}, wantCode: http.StatusBadRequest},
		{name: "unknown type", method: http.MethodPut, path: "/v1/documents/types/9999", token: token,
			body: document.TypeForm{Name: "Foto"}, wantCode: http.StatusNotFound},
		{name: "unknown child", path: "/v1/children/9999/documents", token: token, wantCode: http.StatusNotFound},
	})

	rec = e.do(http.MethodGet, "/v1/documents/types?active=true", token, nil)
	var types []document.Type
	decode(t, rec, &types)
	assert.Len(t, types, 2)

	rec = e.do(http.MethodGet, "/v1/documents", token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var ov document.Overview
	decode(t, rec, &ov)
	require.Len(t, ov.Children, 2)
	assert.Equal(t, 2, ov.Pending[medical.ID])
	assert.Equal(t, 2, ov.Children[0].Pending)

	docsURL := fmt.Sprintf("/v1/children/%d/documents", kid.ID)
	rec = e.do(http.MethodGet, docsURL, token, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var cd document.ChildDocuments
	decode(t, rec, &cd)
	require.Len(t, cd.Documents, 2, "one document per active type")
	byType := make(map[int]document.Document)
	for _, d := range cd.Documents {
		assert.Equal(t, document.StatusPendente, d.Status)
		byType[d.TypeID] = d
	}
	medicalDoc := byType[medical.ID]

	t.Run("status", func(t *testing.T) {
		statusURL := fmt.Sprintf("%s/%d", docsURL, medicalDoc.ID)

		rec := e.do(http.MethodPut, statusURL, token, document.StatusForm{Status: document.StatusRejeitado})
		assert.Equal(t, http.StatusBadRequest, rec.Code, "rejection needs a note")

		rec = e.do(http.MethodPut, fmt.Sprintf("/v1/children/%d/documents/%d", orphan.ID, medicalDoc.ID), token,
			document.StatusForm{Status: document.StatusRecebido})
		assert.Equal(t, http.StatusNotFound, rec.Code, "document of another child")

		received := core.NewDate(2020, time.January, 10)
		rec = e.do(http.MethodPut, statusURL, token, document.StatusForm{Status: document.StatusRecebido, ReceivedDate: &received})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var d document.Document
		decode(t, rec, &d)
		assert.Equal(t, document.StatusVencido, d.Status, "validity ended")
		require.NotNil(t, d.ValidUntil)
		assert.Equal(t, core.NewDate(2021, time.January, 9), *d.ValidUntil)
		assert.Equal(t, secretary.ID, d.UpdatedBy)

		rec = e.do(http.MethodPut, fmt.Sprintf("%s/%d", docsURL, byType[rg.ID].ID), token, document.StatusForm{Status: document.StatusRecebido})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		decode(t, rec, &d)
		assert.Equal(t, document.StatusRecebido, d.Status)
		require.NotNil(t, d.ReceivedDate, "defaults to today")
		assert.Nil(t, d.ValidUntil, "type without validity")
	})

	t.Run("files", func(t *testing.T) {
		filesURL := fmt.Sprintf("%s/%d/files", docsURL, medicalDoc.ID)

		rec := e.doMultipart(http.MethodPost, filesURL, token, nil, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "file is required")

		rec = e.doMultipart(http.MethodPost, filesURL, token, nil, map[string][]byte{"file": []byte("\x89PNG fake")})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var f document.File
		decode(t, rec, &f)
		assert.Equal(t, medicalDoc.ID, f.DocumentID)
		assert.Equal(t, secretary.ID, f.UploadedBy)

		stored, err := filepath.Glob(filepath.Join(e.conf.Storage.LocalDir, "documents", fmt.Sprint(kid.ID), "*.png"))
		require.NoError(t, err)
		assert.Len(t, stored, 1)

		rec = e.do(http.MethodGet, filesURL, token, nil)
		var files []document.File
		decode(t, rec, &files)
		assert.Len(t, files, 1)
	})

	t.Run("request", func(t *testing.T) {
		rec := e.do(http.MethodPost, fmt.Sprintf("%s/requests/%d", docsURL, rg.ID), token, nil)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		var r document.Request
		decode(t, rec, &r)
		assert.Equal(t, document.ChannelWhatsapp, r.Channel)
		assert.Equal(t, document.RequestEnviado, r.Status)
		assert.Contains(t, r.Message, "RG/Certidão")
		assert.Contains(t, r.Message, "Uri")
		assert.True(t, strings.HasPrefix(r.WhatsappURL, "https://wa.me/5511955550022?text="), r.WhatsappURL)

		rec = e.do(http.MethodPost, fmt.Sprintf("/v1/children/%d/documents/requests/%d", orphan.ID, rg.ID), token, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "no guardian")

		rec = e.do(http.MethodPost, fmt.Sprintf("%s/requests/9999", docsURL), token, nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)

		rec = e.do(http.MethodGet, docsURL, token, nil)
		decode(t, rec, &cd)
		assert.Len(t, cd.Requests, 1)
		assert.Equal(t, 1, cd.Pending, "the expired medical record")
	})

	t.Run("guardian", func(t *testing.T) {
		rec := e.do(http.MethodGet, "/v1/my/documents", e.token(guardian), nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var mine []document.ChildDocuments
		decode(t, rec, &mine)
		require.Len(t, mine, 1)
		assert.Equal(t, kid.ID, mine[0].Child.ID)
		assert.Len(t, mine[0].Documents, 2)
	})
}
