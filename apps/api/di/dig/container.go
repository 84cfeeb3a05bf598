package dig_container

import (
	"fmt"
	"log"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"go.uber.org/dig"

	echoapi "github.com/trezcool/feeportal/apps/api/echo"
	"github.com/trezcool/feeportal/core"
	"github.com/trezcool/feeportal/core/deadline"
	"github.com/trezcool/feeportal/core/ledger"
	"github.com/trezcool/feeportal/core/student"
	logsvc "github.com/trezcool/feeportal/services/logger"
	smssvc "github.com/trezcool/feeportal/services/sms"
	"github.com/trezcool/feeportal/storage/database"
	sqlxrepos "github.com/trezcool/feeportal/storage/database/sqlx"
)

type (
	DBLoggerParam struct {
		dig.In
		Logger core.Logger `name:"dbLogger"`
	}

	SchedulerLoggerParam struct {
		dig.In
		Logger core.Logger `name:"schedulerLogger"`
	}

	// StoppableSMSService is an SMSService owning a local job queue to drop on shutdown.
	StoppableSMSService interface {
		core.SMSService
		Stop()
	}
)

func newLogger(conf *core.Config) core.Logger {
	return logsvc.New("API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile, conf)
}

func newDBLogger(conf *core.Config) core.Logger {
	return logsvc.New("DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile, conf)
}

func newSchedulerLogger(conf *core.Config) core.Logger {
	return logsvc.New("SCHEDULER : ", log.LstdFlags|log.Lmicroseconds, conf)
}

func newDB(conf *core.Config, loggerParam DBLoggerParam) *sqlx.DB {
	setUp := func() (*sqlx.DB, error) {
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}

		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}

		if err = database.Migrate(db); err != nil {
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

func newSMSService(conf *core.Config, loggerParam SchedulerLoggerParam) StoppableSMSService {
	if conf.Debug || conf.SMS.GatewayURL == "" {
		return smssvc.NewConsoleService(conf, loggerParam.Logger)
	}
	return smssvc.NewGatewayService(conf, loggerParam.Logger)
}

func asSMSService(svc StoppableSMSService) core.SMSService {
	return svc
}

// newValidator registers every custom validation of the app.
func newValidator(conf *core.Config, translator ut.Translator) *validator.Validate {
	validate := core.NewValidator(translator)
	student.InitValidators(validate, translator)
	ledger.InitValidators(validate, translator, conf.Fees)
	deadline.InitValidators(validate, translator, conf.Scheduler)
	return validate
}

func newLedgerService(
	repo ledger.Repository,
	students *student.Service,
	conf *core.Config,
	validate *validator.Validate,
	translator ut.Translator,
) *ledger.Service {
	return ledger.NewService(repo, students, conf.Fees, validate, translator)
}

func newScheduler(
	repo deadline.Repository,
	students *student.Service,
	ledgerSvc *ledger.Service,
	sms core.SMSService,
	loggerParam SchedulerLoggerParam,
	conf *core.Config,
	validate *validator.Validate,
	translator ut.Translator,
) (*deadline.Scheduler, error) {
	return deadline.NewScheduler(repo, students, ledgerSvc, sms, loggerParam.Logger, conf.Scheduler, validate, translator)
}

func newServer(
	conf *core.Config,
	logger core.Logger,
	students *student.Service,
	ledgerSvc *ledger.Service,
	scheduler *deadline.Scheduler,
) *echoapi.Server {
	return echoapi.NewServer(echoapi.ServerDeps{
		Conf:       conf,
		Logger:     logger,
		StudentSvc: students,
		LedgerSvc:  ledgerSvc,
		Scheduler:  scheduler,
	})
}

// New returns a new dependency injection dig.Container
func New() *dig.Container {
	c := dig.New()

	must(c.Provide(core.NewConfig))
	must(c.Provide(newLogger))
	must(c.Provide(newDBLogger, dig.Name("dbLogger")))
	must(c.Provide(newSchedulerLogger, dig.Name("schedulerLogger")))
	must(c.Provide(newDB))
	must(c.Provide(newSMSService))
	must(c.Provide(asSMSService))
	must(c.Provide(sqlxrepos.NewStudentRepository))
	must(c.Provide(sqlxrepos.NewLedgerRepository))
	must(c.Provide(sqlxrepos.NewDeadlineRepository))
	must(c.Provide(core.NewTranslator))
	must(c.Provide(newValidator))
	must(c.Provide(student.NewService))
	must(c.Provide(newLedgerService))
	must(c.Provide(newScheduler))
	must(c.Provide(newServer))

	return c
}

// must exits program if err happened
func must(err error) {
	if err != nil {
		log.Fatal(errors.Wrap(err, "failed to provide dependency").Error())
	}
}
