package dig_container

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

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
	emailsvc "github.com/pinhaljunior/aventureiros/services/email"
	logsvc "github.com/pinhaljunior/aventureiros/services/logger"
	"github.com/pinhaljunior/aventureiros/services/mercadopago"
	"github.com/pinhaljunior/aventureiros/services/storage"
	"github.com/pinhaljunior/aventureiros/storage/database"
	inmemdb "github.com/pinhaljunior/aventureiros/storage/database/inmem"
	sqlxrepos "github.com/pinhaljunior/aventureiros/storage/database/sqlx"
)

type DBLoggerParam struct {
	dig.In
	Logger core.Logger `name:"dbLogger"`
}

// Repositories is every repository of the selected database engine, plus its transactor.
type Repositories struct {
	dig.Out

	Users      user.Repository
	Children   child.Repository
	Fees       finance.Repository
	Attendance attendance.Repository
	Curriculum curriculum.Repository
	Points     points.Repository
	Documents  document.Repository
	Store      store.Repository
	Audit      audit.Repository
	Tx         core.Transactor
}

type ServerParams struct {
	dig.In

	Conf       *core.Config
	Logger     core.Logger
	Validate   *validator.Validate
	Translator ut.Translator

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

func newLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

func newDBLogger(conf *core.Config) core.Logger {
	stdLogger := log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)
	return logger
}

// newDB sets up PostgreSQL. It returns nil with the in-memory engine.
func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	if conf.Database.InMemory() {
		loggerParam.Logger.Warn("using the in-memory database: data is lost on restart")
		return nil
	}

	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db, "up"); err != nil {
			return nil, err
		}
		return db, nil
	}

	db, err := setUp()
	if err != nil {
		loggerParam.Logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	return db
}

func newRepositories(conf *core.Config, db *sqlx.DB) Repositories {
	if conf.Database.InMemory() {
		mem := inmemdb.Open()
		return Repositories{
			Users:      inmemdb.NewUserRepository(mem),
			Children:   inmemdb.NewChildRepository(mem),
			Fees:       inmemdb.NewFinanceRepository(mem),
			Attendance: inmemdb.NewAttendanceRepository(mem),
			Curriculum: inmemdb.NewCurriculumRepository(mem),
			Points:     inmemdb.NewPointsRepository(mem),
			Documents:  inmemdb.NewDocumentRepository(mem),
			Store:      inmemdb.NewStoreRepository(mem),
			Audit:      inmemdb.NewAuditRepository(mem),
			Tx:         inmemdb.NewTransactor(),
		}
	}
	return Repositories{
		Users:      sqlxrepos.NewUserRepository(db),
		Children:   sqlxrepos.NewChildRepository(db),
		Fees:       sqlxrepos.NewFinanceRepository(db),
		Attendance: sqlxrepos.NewAttendanceRepository(db),
		Curriculum: sqlxrepos.NewCurriculumRepository(db),
		Points:     sqlxrepos.NewPointsRepository(db),
		Documents:  sqlxrepos.NewDocumentRepository(db),
		Store:      sqlxrepos.NewStoreRepository(db),
		Audit:      sqlxrepos.NewAuditRepository(db),
		Tx:         database.NewTransactor(db),
	}
}

// newCache connects to redis when an address is configured and falls back to memory.
func newCache(conf *core.Config, logger core.Logger) core.Cache {
	if conf.Redis.Address == "" {
		return cache.NewMemoryCache()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := cache.Connect(ctx, conf.Redis)
	if err != nil {
		logger.Error(fmt.Sprintf("connecting to redis, using the memory cache: %v", err), err)
		return cache.NewMemoryCache()
	}
	return cache.NewRedisCache(client, conf)
}

func newFileStorage(conf *core.Config, logger core.Logger) core.FileStorage {
	files, err := storage.New(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up file storage: %v", err), err)
	}
	return files
}

func newEmailService(conf *core.Config, logger core.Logger) core.EmailService {
	out := log.New(os.Stdout, "EMAIL : ", log.LstdFlags)
	return emailsvc.New(conf, logger, emailsvc.NewConsoleService(conf, logger, out))
}

func newPaymentProvider(conf *core.Config, logger core.Logger) payment.Provider {
	return mercadopago.NewClient(conf, logger)
}

func newReconciler(
	provider payment.Provider,
	c core.Cache,
	fees finance.Service,
	orders store.Service,
	logger core.Logger,
) payment.Reconciler {
	return payment.NewReconciler(provider, c, fees, orders, logger)
}

func newServer(p ServerParams) *echoapi.Server {
	return echoapi.NewServer(&echoapi.Options{
		Conf:          p.Conf,
		Logger:        p.Logger,
		Validate:      p.Validate,
		Translator:    p.Translator,
		UserSvc:       p.UserSvc,
		ChildSvc:      p.ChildSvc,
		EnrollmentSvc: p.EnrollmentSvc,
		FinanceSvc:    p.FinanceSvc,
		AttendanceSvc: p.AttendanceSvc,
		CurriculumSvc: p.CurriculumSvc,
		PointsSvc:     p.PointsSvc,
		DocumentSvc:   p.DocumentSvc,
		StoreSvc:      p.StoreSvc,
		AuditSvc:      p.AuditSvc,
		ReportSvc:     p.ReportSvc,
		Reconciler:    p.Reconciler,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newRepositories))
	must(c.Provide(newCache))
	must(c.Provide(newFileStorage))
	must(c.Provide(newEmailService))
	must(c.Provide(newPaymentProvider))
	must(c.Provide(validator.New))
	must(c.Provide(core.NewTranslator))

	must(c.Provide(user.NewService))
	must(c.Provide(child.NewService))
	must(c.Provide(finance.NewService))
	must(c.Provide(enrollment.NewService))
	must(c.Provide(attendance.NewService))
	must(c.Provide(curriculum.NewService))
	must(c.Provide(points.NewService))
	must(c.Provide(document.NewService))
	must(c.Provide(store.NewService))
	must(c.Provide(audit.NewService))
	must(c.Provide(report.NewService))
	must(c.Provide(newReconciler))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
