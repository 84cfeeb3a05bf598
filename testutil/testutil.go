// Package testutil wires the services on the in-memory store for tests.
package testutil

import (
	"context"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/feeportal/core"
	"github.com/trezcool/feeportal/core/deadline"
	"github.com/trezcool/feeportal/core/ledger"
	"github.com/trezcool/feeportal/core/student"
	smssvc "github.com/trezcool/feeportal/services/sms"
	dummydb "github.com/trezcool/feeportal/storage/database/dummy"
)

const (
	Year      = "2024-25"
	OtherYear = "2025-26"
	Password  = "s3cr3t-pa55"
	SecretKey = "test-secret"
)

// NewConfig returns the configuration used by tests: two academic years, a 1 minute tick.
func NewConfig() *core.Config {
	return &core.Config{
		AppName:   "Fee Portal",
		Env:       "TEST",
		Build:     "test",
		TestMode:  true,
		SecretKey: SecretKey,
		Server: core.ServerConfig{
			ShutdownTimeout:    time.Second,
			JWTExpirationDelta: time.Hour,
		},
		Fees: core.FeesConfig{
			AcademicYears: []string{Year, OtherYear},
			Currency:      "INR",
		},
		Scheduler: core.SchedulerConfig{
			TickInterval: time.Minute,
			MaxLeadHours: 168,
			Concurrency:  4,
		},
		SMS: core.SMSConfig{Sender: "FEEPORTAL"},
	}
}

// NewValidator returns a validator with every custom validation of the app registered.
func NewValidator(conf *core.Config) (*validator.Validate, ut.Translator) {
	translator := core.NewTranslator()
	validate := core.NewValidator(translator)
	student.InitValidators(validate, translator)
	ledger.InitValidators(validate, translator, conf.Fees)
	deadline.InitValidators(validate, translator, conf.Scheduler)
	return validate, translator
}

// App holds the services wired on a fresh in-memory store.
type App struct {
	Conf         *core.Config
	DB           *dummydb.DB
	Logger       *Logger
	SMS          *smssvc.ServiceMock
	StudentRepo  student.Repository
	LedgerRepo   ledger.Repository
	DeadlineRepo deadline.Repository
	Students     *student.Service
	Ledger       *ledger.Service
	Scheduler    *deadline.Scheduler
}

// NewApp wires a fresh App. SMS deliveries to the failFor mobile numbers fail.
func NewApp(t testing.TB, failFor ...string) *App {
	t.Helper()

	conf := NewConfig()
	validate, translator := NewValidator(conf)
	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}

	app := &App{
		Conf:         conf,
		DB:           db,
		Logger:       new(Logger),
		SMS:          smssvc.NewServiceMock(failFor...),
		StudentRepo:  dummydb.NewStudentRepository(db),
		LedgerRepo:   dummydb.NewLedgerRepository(db),
		DeadlineRepo: dummydb.NewDeadlineRepository(db),
	}
	app.Students = student.NewService(app.StudentRepo)
	app.Ledger = ledger.NewService(app.LedgerRepo, app.Students, conf.Fees, validate, translator)

	sch, err := deadline.NewScheduler(
		app.DeadlineRepo, app.Students, app.Ledger, app.SMS, app.Logger,
		conf.Scheduler, validate, translator,
	)
	if err != nil {
		t.Fatalf("NewScheduler() failed: %v", err)
	}
	app.Scheduler = sch
	return app
}

func (app *App) AddCatalogEntry(t testing.TB, name string, amount int64) ledger.CatalogEntry {
	t.Helper()
	entry, err := app.Ledger.AddCatalogEntry(context.Background(), ledger.NewCatalogEntry{
		Name:        name,
		Description: name + " fee",
		Amount:      amount,
	})
	if err != nil {
		t.Fatalf("AddCatalogEntry(%s) failed: %v", name, err)
	}
	return entry
}

// Enroll creates a student with a valid password; the pin is derived from the student id.
func (app *App) Enroll(t testing.TB, studentID, name, branch, mobile string) student.Student {
	t.Helper()
	s, err := app.Ledger.Enroll(context.Background(), student.NewStudent{
		StudentID: studentID,
		Pin:       "PIN-" + studentID,
		Name:      name,
		Branch:    branch,
		Mobile:    mobile,
		Password:  Password,
	})
	if err != nil {
		t.Fatalf("Enroll(%s) failed: %v", studentID, err)
	}
	return s
}

// FreezeTime makes core.NowFunc return now until the test ends.
func FreezeTime(t testing.TB, now time.Time) {
	t.Helper()
	prev := core.NowFunc
	core.NowFunc = func() time.Time { return now }
	t.Cleanup(func() { core.NowFunc = prev })
}
