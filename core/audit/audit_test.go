package audit_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pinhaljunior/aventureiros/core/audit"
	"github.com/pinhaljunior/aventureiros/core/user"
	inmemdb "github.com/pinhaljunior/aventureiros/storage/database/inmem"
	testutil "github.com/pinhaljunior/aventureiros/tests"
)

func TestSkip(t *testing.T) {
	for path, want := range map[string]bool{
		"":                    true,
		"/static/app.js":      true,
		"/media/photos/a.png": true,
		"/favicon.ico":        true,
		"/robots.txt":         true,
		"/api/v1/children":    false,
		"/mediator":           false,
	} {
		assert.Equal(t, want, audit.Skip(path), path)
	}
}

func TestBuildPayload(t *testing.T) {
	query := url.Values{"page": {"2"}, "ids": {"1", "2"}, "token": {"abc"}}
	form := url.Values{"new_password1": {"x"}, "name": {strings.Repeat("a", 2500)}}
	body := []byte(`{"whatsapp":"+5511","password":"p","child":{"name":"Lia","api_key":"k"},"items":[{"secret":1,"qty":2}]}`)

	got := audit.BuildPayload(query, form, "application/json; charset=UTF-8", body)
	assert.Equal(t, "2", got["page"])
	assert.Equal(t, []string{"1", "2"}, got["ids"])
	assert.NotContains(t, got, "token")
	assert.NotContains(t, got, "new_password1")
	assert.Len(t, got["name"], 2000)
	assert.Equal(t, map[string]interface{}{
		"whatsapp": "+5511",
		"child":    map[string]interface{}{"name": "Lia"},
		"items":    []interface{}{map[string]interface{}{"qty": float64(2)}},
	}, got["json_body"])

	got = audit.BuildPayload(nil, nil, "application/json", []byte("{broken"))
	assert.Equal(t, "{broken", got["json_body"])

	assert.Nil(t, audit.BuildPayload(nil, nil, "multipart/form-data", []byte("binary")))
	assert.Nil(t, audit.BuildPayload(url.Values{"csrfmiddlewaretoken": {"x"}}, nil, "", nil))
}

func TestClientIP(t *testing.T) {
	assert.Equal(t, "10.0.0.1", audit.ClientIP(" 10.0.0.1 , 172.16.0.1", "127.0.0.1"))
	assert.Equal(t, "127.0.0.1", audit.ClientIP("", "127.0.0.1"))
}

type failingRepo struct{}

func (failingRepo) CreateLog(context.Context, audit.Log) (audit.Log, error) {
	return audit.Log{}, errors.New("disk full")
}

func (failingRepo) QueryLogs(context.Context, *audit.Filter) ([]audit.Log, error) {
	return nil, errors.New("disk full")
}

func TestService(t *testing.T) {
	ctx := context.Background()
	mem := inmemdb.Open()
	usrRepo := inmemdb.NewUserRepository(mem)
	svc := audit.NewService(inmemdb.NewAuditRepository(mem), new(testutil.Logger))

	usr := testutil.CreateUser(t, usrRepo, "Yara", "+5511955551234", "", "", user.RoleTesoureiro, true)
	start := time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC)
	for i, path := range []string{"/api/v1/fees", "/api/v1/children", "/api/v1/fees/3"} {
		svc.Record(ctx, audit.Log{
			UserID:     &usr.ID,
			Method:     "GET",
			Path:       path,
			StatusCode: 200,
			Success:    i != 1,
			UserAgent:  strings.Repeat("u", 600),
			Payload:    map[string]interface{}{"page": "1"},
			CreatedAt:  start.Add(time.Duration(i) * time.Minute),
		})
	}
	svc.Record(ctx, audit.Log{Method: "POST", Path: "/api/v1/login", StatusCode: 401})

	t.Run("list", func(t *testing.T) {
		logs, err := svc.List(ctx, nil)
		require.NoError(t, err)
		require.Len(t, logs, 4)
		assert.Equal(t, "/api/v1/login", logs[0].Path)
		assert.Equal(t, "/api/v1/fees/3", logs[1].Path)
		assert.Equal(t, "Yara", logs[1].UserName)
		assert.Len(t, logs[1].UserAgent, 500)

		failed := false
		logs, err = svc.List(ctx, &audit.Filter{PathPrefix: " /api/v1/fees ", Success: &failed})
		require.NoError(t, err)
		assert.Empty(t, logs)

		logs, err = svc.List(ctx, &audit.Filter{UserID: usr.ID, Limit: 2})
		require.NoError(t, err)
		assert.Len(t, logs, 2)
	})

	t.Run("export", func(t *testing.T) {
		var buf bytes.Buffer
		n, err := svc.ExportCSV(ctx, &audit.Filter{PathPrefix: "/api/v1/fees"}, &buf)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		rows, err := csv.NewReader(&buf).ReadAll()
		require.NoError(t, err)
		require.Len(t, rows, 3)
		assert.Equal(t, "Criado em", rows[0][0])
		assert.Equal(t, []string{
			"2025-04-01 12:02:00", "Yara", "GET", "/api/v1/fees/3", "", "200", "Sim", "0", "", "", "", `{"page":"1"}`,
		}, rows[1])
	})

	t.Run("record never fails", func(t *testing.T) {
		logger := new(testutil.Logger)
		failing := audit.NewService(failingRepo{}, logger)
		failing.Record(ctx, audit.Log{Method: "GET", Path: "/api/v1/me"})
		assert.Equal(t, 1, logger.Errors)

		_, err := failing.ExportCSV(ctx, nil, new(bytes.Buffer))
		assert.EqualError(t, err, "disk full")
	})
}
