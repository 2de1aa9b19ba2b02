package main

import (
	"fmt"
	"log"
	"os"

	"github.com/pinhaljunior/aventureiros/core"
	"github.com/pinhaljunior/aventureiros/core/user"
	logsvc "github.com/pinhaljunior/aventureiros/services/logger"
	"github.com/pinhaljunior/aventureiros/storage/database"
)

func main() {
	conf := core.NewConfig()

	stdLogger := log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	logger := logsvc.NewRollbarLogger(stdLogger, conf)
	logger.Enable(!conf.Debug)

	user.LoadCommonPasswords(logger)

	cli, err := setUp(conf, logger)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up: %v", err), err)
	}
	err = cli.run(os.Args)
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		cli.closeDB()
		os.Exit(1)
	}
	cli.closeDB()
}

func setUp(conf *core.Config, logger core.Logger) (*commandLine, error) {
	if conf.Database.InMemory() {
		return newCommandLine(conf, logger, nil)
	}
	db, err := database.Open(conf)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return newCommandLine(conf, logger, db)
}
