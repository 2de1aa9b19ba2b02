// Package echoapi is the JSON HTTP API of the club, built on echo.
package echoapi

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"

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
)

type (
	Options struct {
		Conf           *core.Config
		Logger         core.Logger
		Validate       *validator.Validate
		Translator     ut.Translator
		DisableReqLogs bool

		UserSvc       user.Service
		ChildSvc      child.Service
		EnrollmentSvc enrollment.Service
		FinanceSvc    finance.Service
		AttendanceSvc attendance.Service
		CurriculumSvc curriculum.Service
		PointsSvc     points.Service
		DocumentSvc   document.Service
		StoreSvc      store.Service
		AuditSvc      audit.Service
		ReportSvc     report.Service
		Reconciler    payment.Reconciler
	}

	Server struct {
		opts     *Options
		app      *echo.Echo
		errors   chan error
		shutdown chan os.Signal
	}
)

func NewServer(opts *Options) *Server {
	s := &Server{
		opts:     opts,
		app:      echo.New(),
		errors:   make(chan error, 1),
		shutdown: make(chan os.Signal, 1),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	conf := s.opts.Conf

	s.app.HideBanner = true
	s.app.Pre(middleware.RemoveTrailingSlash())
	if !s.opts.DisableReqLogs {
		s.app.Use(middleware.Logger())
	}
	// do not recover in DEV|TEST mode
	if !(conf.Debug || conf.TestMode) {
		s.app.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{LogLevel: log.ERROR}))
	}
	if s.opts.AuditSvc != nil {
		s.app.Use(auditMiddleware(s.opts.AuditSvc))
	}

	s.app.HTTPErrorHandler = newAppHTTPErrorHandler(s.opts.Logger, s.opts.Translator, s.signalShutdown)
	s.app.Debug = conf.Debug

	s.app.GET("/", s.home)

	v1 := s.app.Group("/v1")
	jwt := middleware.JWTWithConfig(newJWTConfig(conf))

	registerUserAPI(v1, jwt, s.opts)
	registerChildAPI(v1, jwt, s.opts)
	registerFinanceAPI(v1, jwt, s.opts)
	registerWebhookAPI(v1, s.opts)
	registerAttendanceAPI(v1, jwt, s.opts)
	registerCurriculumAPI(v1, jwt, s.opts)
	registerPointsAPI(v1, jwt, s.opts)
	registerDocumentAPI(v1, jwt, s.opts)
	registerStoreAPI(v1, jwt, s.opts)
	registerAuditAPI(v1, jwt, s.opts)
	registerReportAPI(v1, jwt, s.opts)
}

// Start listens until the server is shut down; errors are sent to Errors().
func (s *Server) Start() {
	signal.Notify(s.shutdown, os.Interrupt, syscall.SIGTERM)
	if err := s.app.Start(s.opts.Conf.Server.Host); err != nil && err != http.ErrServerClosed {
		s.errors <- err
	}
}

func (s *Server) Errors() <-chan error {
	return s.errors
}

func (s *Server) ShutdownSignal() <-chan os.Signal {
	return s.shutdown
}

func (s *Server) signalShutdown() {
	select {
	case s.shutdown <- syscall.SIGTERM:
	default: // already shutting down
	}
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.Shutdown(ctx)
}

func (s *Server) Close() error {
	return s.app.Close()
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { // for tests
	s.app.ServeHTTP(w, r)
}

func (s *Server) home(ctx echo.Context) error {
	return ctx.String(http.StatusOK, "Bem-vindo à API do "+s.opts.Conf.AppName+"!")
}
