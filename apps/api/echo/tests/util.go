package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"

	echoapi "github.com/pinhaljunior/aventureiros/apps/api/echo"
	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/attendance"
	"github.com/pinhaljunior/aventureiros/core/audit"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/curriculum"
	"github.com/pinhaljunior/aventureiros/core/document"
	"github.com/pinhaljunior/aventureiros/core/enrollment"
	"github.com/pinhaljunior/aventureiros/core/finance"
	"github.com/pinhaljunior/aventureiros/core/payment"
	"github.com/pinhaljunior/aventureiros/core/points"
	"github.com/pinhaljunior/aventureiros/core/report"
	"github.com/pinhaljunior/aventureiros/core/store"
	"github.com/pinhaljunior/aventureiros/core/user"
	"github.com/pinhaljunior/aventureiros/services/cache"
	"github.com/pinhaljunior/aventureiros/services/email"
	"github.com/pinhaljunior/aventureiros/services/mercadopago"
	"github.com/pinhaljunior/aventureiros/services/storage"
	"github.com/pinhaljunior/aventureiros/storage/database/inmem"
	"github.com/pinhaljunior/aventureiros/tests"
)

const testPassword = "Passeio#Trilha42"

type env struct {
	t        *testing.T
	conf     *core.Config
	app      *echoapi.Server
	logger   *testutil.Logger
	mail     *emailsvc.ConsoleServiceMock
	provider *stubProvider

	usrRepo   user.Repository
	childRepo child.Repository

	users    user.Service
	children child.Service
	fees     finance.Service
	stores   store.Service
	audits   audit.Service
}

// setup wires every service over a fresh in-memory database.
func setup(t *testing.T) *env {
	conf := core.NewTestConfig()
	conf.Storage.LocalDir = t.TempDir()
	logger := new(testutil.Logger)

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	child.InitValidators(validate, translator)

	db := inmemdb.Open()
	tx := inmemdb.NewTransactor()
	usrRepo := inmemdb.NewUserRepository(db)
	childRepo := inmemdb.NewChildRepository(db)

	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	memCache := cache.NewMemoryCache()
	files := storage.NewLocalStorage(conf)
	provider := &stubProvider{secret: conf.MercadoPago.WebhookSecret, charges: make(map[string]payment.Charge)}

	usrSvc := user.NewService(usrRepo, mailSvc, memCache, logger, conf)
	childSvc := child.NewService(childRepo, files, logger, conf)
	feeSvc := finance.NewService(inmemdb.NewFinanceRepository(db), childSvc, tx, provider, mailSvc, logger, conf)
	attendanceSvc := attendance.NewService(inmemdb.NewAttendanceRepository(db), childSvc, tx, logger)
	curriculumSvc := curriculum.NewService(inmemdb.NewCurriculumRepository(db), childSvc, tx, logger)
	pointsSvc := points.NewService(inmemdb.NewPointsRepository(db), childSvc, tx, logger)
	documentSvc := document.NewService(inmemdb.NewDocumentRepository(db), childSvc, files, logger, conf)
	storeSvc := store.NewService(inmemdb.NewStoreRepository(db), tx, provider, files, logger, conf)
	auditSvc := audit.NewService(inmemdb.NewAuditRepository(db), logger)

	app := echoapi.NewServer(&echoapi.Options{
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
		UserSvc:        usrSvc,
		ChildSvc:       childSvc,
		EnrollmentSvc:  enrollment.NewService(usrSvc, childSvc, feeSvc, tx, logger),
		FinanceSvc:     feeSvc,
		AttendanceSvc:  attendanceSvc,
		CurriculumSvc:  curriculumSvc,
		PointsSvc:      pointsSvc,
		DocumentSvc:    documentSvc,
		StoreSvc:       storeSvc,
		AuditSvc:       auditSvc,
		ReportSvc: report.NewService(
			usrSvc, childSvc, feeSvc, pointsSvc, attendanceSvc, curriculumSvc, documentSvc, conf,
		),
		Reconciler: payment.NewReconciler(provider, memCache, feeSvc, storeSvc, logger),
	})

	return &env{
		t:         t,
		conf:      conf,
		app:       app,
		logger:    logger,
		mail:      mailSvc,
		provider:  provider,
		usrRepo:   usrRepo,
		childRepo: childRepo,
		users:     usrSvc,
		children:  childSvc,
		fees:      feeSvc,
		stores:    storeSvc,
		audits:    auditSvc,
	}
}

// stubProvider signs like the real client but keeps its charges in memory.
type stubProvider struct {
	secret  string
	charges map[string]payment.Charge
}

func (p *stubProvider) CreatePixCharge(_ context.Context, req payment.ChargeRequest) (payment.Charge, error) {
	return payment.Charge{}, payment.ErrProviderUnavailable
}

func (p *stubProvider) GetPayment(_ context.Context, id string) (payment.Charge, error) {
	if c, ok := p.charges[id]; ok {
		return c, nil
	}
	return payment.Charge{}, payment.ErrProviderUnavailable
}

func (p *stubProvider) VerifySignature(header string, body []byte) bool {
	return mercadopago.VerifySignature(p.secret, header, body)
}

func (e *env) ctx() context.Context {
	return context.Background()
}

func (e *env) createUser(name, whatsapp, role string, extraRoles ...string) user.User {
	return testutil.CreateUser(e.t, e.usrRepo, name, whatsapp, "", testPassword, role, true, extraRoles...)
}

func (e *env) createChild(name, classGroup string, guardians ...user.User) child.Child {
	c := testutil.CreateChild(e.t, e.childRepo, name, classGroup, true)
	for _, g := range guardians {
		testutil.LinkGuardian(e.t, e.childRepo, g.ID, c.ID)
	}
	return c
}

func (e *env) token(usr user.User, activeRole ...string) string {
	var role string
	if len(activeRole) > 0 {
		role = activeRole[0]
	}
	token, err := echoapi.GenerateToken(e.conf, echoapi.GetUserClaims(e.conf, usr, role))
	require.NoError(e.t, err)
	return token
}

// do sends a JSON request (body may be nil) and returns the recorder.
func (e *env) do(method, path, token string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case []byte:
			buf.Write(b)
		default:
			require.NoError(e.t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.app.ServeHTTP(rec, req)
	return rec
}

// doMultipart posts `data` as the JSON "data" field, along with the given files.
func (e *env) doMultipart(method, path, token string, data interface{}, files map[string][]byte) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if data != nil {
		raw, err := json.Marshal(data)
		require.NoError(e.t, err)
		require.NoError(e.t, w.WriteField("data", string(raw)))
	}
	for field, content := range files {
		fw, err := w.CreateFormFile(field, field+".png")
		require.NoError(e.t, err)
		_, err = fw.Write(content)
		require.NoError(e.t, err)
	}
	require.NoError(e.t, w.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.app.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dest), rec.Body.String())
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     interface{}
	token    string
	wantCode int
}

func runCodeTests(t *testing.T, e *env, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := e.do(method, tt.path, tt.token, tt.body)
			if rec.Code != tt.wantCode {
				t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}
}

// webhook posts a provider notification with the given signature header.
func (e *env) webhook(body []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/webhooks/mercadopago", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set("X-Hub-Signature", signature)
	}
	rec := httptest.NewRecorder()
	e.app.ServeHTTP(rec, req)
	return rec
}
