package main

import (
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"golang.org/x/term"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/attendance"
	"github.com/pinhaljunior/aventureiros/core/child"
	"github.com/pinhaljunior/aventureiros/core/curriculum"
	"github.com/pinhaljunior/aventureiros/core/document"
	"github.com/pinhaljunior/aventureiros/core/finance"
	"github.com/pinhaljunior/aventureiros/core/points"
	"github.com/pinhaljunior/aventureiros/core/store"
	"github.com/pinhaljunior/aventureiros/core/user"
	"github.com/pinhaljunior/aventureiros/services/cache"
	emailsvc "github.com/pinhaljunior/aventureiros/services/email"
	"github.com/pinhaljunior/aventureiros/services/mercadopago"
	"github.com/pinhaljunior/aventureiros/services/storage"
	"github.com/pinhaljunior/aventureiros/storage/database"
	inmemdb "github.com/pinhaljunior/aventureiros/storage/database/inmem"
	sqlxrepos "github.com/pinhaljunior/aventureiros/storage/database/sqlx"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db       *sqlx.DB // nil with the in-memory engine
	conf     *core.Config
	logger   core.Logger
	validate *validator.Validate

	usrRepo user.Repository
	feeRepo finance.Repository

	users      user.Service
	children   child.Service
	fees       finance.Service
	attendance attendance.Service
	points     points.Service
	documents  document.Service
	curriculum curriculum.Service
	store      store.Service
}

// newCommandLine wires the services over PostgreSQL, or over memory when db is nil.
func newCommandLine(conf *core.Config, logger core.Logger, db *sqlx.DB) (*commandLine, error) {
	files, err := storage.New(conf)
	if err != nil {
		return nil, err
	}
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	child.InitValidators(validate, translator)

	cli := &commandLine{db: db, conf: conf, logger: logger, validate: validate}

	var (
		tx          core.Transactor
		childRepo   child.Repository
		attRepo     attendance.Repository
		pointsRepo  points.Repository
		docRepo     document.Repository
		curriculumR curriculum.Repository
		storeRepo   store.Repository
	)
	if db == nil {
		mem := inmemdb.Open()
		tx = inmemdb.NewTransactor()
		cli.usrRepo = inmemdb.NewUserRepository(mem)
		cli.feeRepo = inmemdb.NewFinanceRepository(mem)
		childRepo = inmemdb.NewChildRepository(mem)
		attRepo = inmemdb.NewAttendanceRepository(mem)
		pointsRepo = inmemdb.NewPointsRepository(mem)
		docRepo = inmemdb.NewDocumentRepository(mem)
		curriculumR = inmemdb.NewCurriculumRepository(mem)
		storeRepo = inmemdb.NewStoreRepository(mem)
	} else {
		tx = database.NewTransactor(db)
		cli.usrRepo = sqlxrepos.NewUserRepository(db)
		cli.feeRepo = sqlxrepos.NewFinanceRepository(db)
		childRepo = sqlxrepos.NewChildRepository(db)
		attRepo = sqlxrepos.NewAttendanceRepository(db)
		pointsRepo = sqlxrepos.NewPointsRepository(db)
		docRepo = sqlxrepos.NewDocumentRepository(db)
		curriculumR = sqlxrepos.NewCurriculumRepository(db)
		storeRepo = sqlxrepos.NewStoreRepository(db)
	}

	mailSvc := emailsvc.NewConsoleService(conf, logger, log.New(os.Stdout, "EMAIL : ", log.LstdFlags))
	provider := mercadopago.NewClient(conf, logger)

	cli.users = user.NewService(cli.usrRepo, mailSvc, cache.NewMemoryCache(), logger, conf)
	cli.children = child.NewService(childRepo, files, logger, conf)
	cli.fees = finance.NewService(cli.feeRepo, cli.children, tx, provider, mailSvc, logger, conf)
	cli.attendance = attendance.NewService(attRepo, cli.children, tx, logger)
	cli.points = points.NewService(pointsRepo, cli.children, tx, logger)
	cli.documents = document.NewService(docRepo, cli.children, files, logger, conf)
	cli.curriculum = curriculum.NewService(curriculumR, cli.children, tx, logger)
	cli.store = store.NewService(storeRepo, tx, provider, files, logger, conf)
	return cli, nil
}

func (cli *commandLine) closeDB() {
	if cli.db != nil {
		_ = cli.db.Close()
	}
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS] - run a goose command (up, down, status, redo, ...)")
	fmt.Println("  adduser -whatsapp NUMBER -name NAME -role ROLE - create or update a user")
	fmt.Println("  resetpassword -whatsapp NUMBER - reset user's password")
	fmt.Println("  seed [" + strings.Join(seedNames, "|") + "] - load demo data")
	fmt.Println("  generatefees -month YYYY-MM [-amount 30.00] [-due YYYY-MM-DD] [-class CLASS] - create monthly fees")
	fmt.Println("  exportfees -out FILE.xlsx [-month YYYY-MM] [-status STATUS] [-class CLASS] - export fees")
}

// readPassword prompts for a password; it returns errHelp when nothing was typed.
func readPassword(usage func()) (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	if len(pwd) == 0 {
		usage()
		return "", errHelp
	}
	return string(pwd), nil
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ExitOnError)
	addUserWhatsapp := addUserCmd.String("whatsapp", "", "The user's WhatsApp number. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's full name.")
	addUserEmail := addUserCmd.String("email", "", "The user's email (optional).")
	addUserRole := addUserCmd.String("role", user.RoleDiretoria, "The user's primary role.")
	addUserExtra := addUserCmd.String("extra", "", "Comma separated extra roles.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordWhatsapp := resetPasswordCmd.String("whatsapp", "", "The user's WhatsApp number. The password will be prompted next.")

	generateFeesCmd := flag.NewFlagSet("generatefees", flag.ExitOnError)
	generateMonth := generateFeesCmd.String("month", "", "Reference month, YYYY-MM.")
	generateAmount := generateFeesCmd.String("amount", "", "Fee amount (defaults to the configured amount).")
	generateDue := generateFeesCmd.String("due", "", "Due date, YYYY-MM-DD (defaults to the configured due day).")
	generateClass := generateFeesCmd.String("class", "", "Only children of this class group.")

	exportFeesCmd := flag.NewFlagSet("exportfees", flag.ExitOnError)
	exportOut := exportFeesCmd.String("out", "", "The .xlsx file to write.")
	exportMonth := exportFeesCmd.String("month", "", "Reference month, YYYY-MM.")
	exportStatus := exportFeesCmd.String("status", "", "Fee status.")
	exportClass := exportFeesCmd.String("class", "", "Class group.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserWhatsapp == "" || *addUserName == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := readPassword(addUserCmd.Usage)
		if err != nil {
			return err
		}
		return cli.addUser(*addUserWhatsapp, *addUserName, *addUserEmail, *addUserRole, splitList(*addUserExtra), pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordWhatsapp == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := readPassword(resetPasswordCmd.Usage)
		if err != nil {
			return err
		}
		return cli.resetPassword(*resetPasswordWhatsapp, pwd)

	case "seed":
		name := "demo"
		if len(args) > 2 {
			name = args[2]
		}
		return cli.seed(name)

	case "generatefees":
		if err := generateFeesCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *generateMonth == "" {
			generateFeesCmd.Usage()
			return errHelp
		}
		return cli.generateFees(*generateMonth, *generateAmount, *generateDue, *generateClass)

	case "exportfees":
		if err := exportFeesCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *exportOut == "" {
			exportFeesCmd.Usage()
			return errHelp
		}
		return cli.exportFees(*exportOut, finance.QueryFilter{
			ReferenceMonth: *exportMonth,
			Status:         *exportStatus,
			ClassGroup:     *exportClass,
		})

	default:
		cli.printUsage()
		return errHelp
	}
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
