package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/feeportal/core"
	"github.com/trezcool/feeportal/core/deadline"
	"github.com/trezcool/feeportal/core/ledger"
	"github.com/trezcool/feeportal/core/student"
	logsvc "github.com/trezcool/feeportal/services/logger"
	"github.com/trezcool/feeportal/storage/database"
	sqlxrepos "github.com/trezcool/feeportal/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.New("ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile, conf)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}

	// set up services
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	student.InitValidators(validate, translator)
	ledger.InitValidators(validate, translator, conf.Fees)
	deadline.InitValidators(validate, translator, conf.Scheduler)

	students := student.NewService(sqlxrepos.NewStudentRepository(db))
	cli := commandLine{
		conf:     conf,
		db:       db,
		students: students,
		ledger:   ledger.NewService(sqlxrepos.NewLedgerRepository(db), students, conf.Fees, validate, translator),
		out:      os.Stdout,
	}

	err = cli.run(os.Args)
	_ = db.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		os.Exit(1)
	}
}
