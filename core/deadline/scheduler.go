package deadline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kat-co/vala"
	pkgerrors "github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/trezcool/feeportal/core"
	"github.com/trezcool/feeportal/core/ledger"
	"github.com/trezcool/feeportal/core/student"
)

const dateLayout = "02 Jan 2006 15:04 MST"

var (
	// errors
	ErrNotFound = core.NewNotFoundError("deadline not found")

	errUnknownFeeType = core.NewValidationError(
		errors.New("unknown fee type"),
		core.FieldError{Field: "fee_type", Error: "unknown fee type"},
	)

	reminderTmpl = template.Must(template.New("reminder").Parse(
		"Dear {{.Name}}, you have less time to pay the {{.FeeType}} fee. " +
			"Make sure to pay the fee as soon as possible. Deadline: {{.Deadline}}",
	))
)

type (
	Repository interface {
		CreateDeadline(ctx context.Context, d Deadline) (Deadline, error)
		GetDeadline(ctx context.Context, id string) (Deadline, error) // ErrNotFound
		QueryDeadlines(ctx context.Context) ([]Deadline, error)      // by deadline, soonest first
		DeleteDeadline(ctx context.Context, id string) error         // ErrNotFound
		// MarkNotified sets NotifiedAt if it is still zero and reports whether this call set it.
		MarkNotified(ctx context.Context, id string, at time.Time) (bool, error)
	}

	// Roster lists the students of a branch.
	Roster interface {
		QueryByBranch(ctx context.Context, branch string) ([]student.Student, error)
	}

	Catalog interface {
		Catalog(ctx context.Context) ([]ledger.CatalogEntry, error)
	}

	// Scheduler holds the active deadlines and reminds the students of their branch.
	//
	// Reminders go out one way per deadline: SetDeadline schedules a one-shot message per student on the SMS
	// service, or, when the window is already open or nothing could be scheduled, Tick broadcasts once.
	Scheduler struct {
		repo       Repository
		roster     Roster
		catalog    Catalog
		sms        core.SMSService
		logger     core.Logger
		conf       core.SchedulerConfig
		validate   *validator.Validate
		translator ut.Translator

		wg sync.WaitGroup // in-flight tick broadcasts
	}
)

func NewScheduler(
	repo Repository,
	roster Roster,
	catalog Catalog,
	sms core.SMSService,
	logger core.Logger,
	conf core.SchedulerConfig,
	validate *validator.Validate,
	translator ut.Translator,
) (*Scheduler, error) {
	err := vala.BeginValidation().Validate(
		vala.IsNotNil(repo, "repo"),
		vala.IsNotNil(roster, "roster"),
		vala.IsNotNil(catalog, "catalog"),
		vala.IsNotNil(sms, "sms"),
		vala.IsNotNil(logger, "logger"),
		vala.IsNotNil(validate, "validate"),
		vala.IsNotNil(translator, "translator"),
	).Check()
	if err != nil {
		return nil, pkgerrors.Wrap(err, "creating scheduler")
	}

	if conf.Concurrency < 1 {
		conf.Concurrency = 1
	}
	if conf.TickInterval <= 0 {
		conf.TickInterval = time.Minute
	}
	return &Scheduler{
		repo:       repo,
		roster:     roster,
		catalog:    catalog,
		sms:        sms,
		logger:     logger,
		conf:       conf,
		validate:   validate,
		translator: translator,
	}, nil
}

func jobID(d Deadline, s student.Student) string {
	return d.ID + ":" + s.ID
}

func (sch *Scheduler) reminder(d Deadline, s student.Student) (core.SMSMessage, error) {
	body := new(strings.Builder)
	err := reminderTmpl.Execute(body, struct{ Name, FeeType, Deadline string }{
		Name:     s.Name,
		FeeType:  d.FeeType,
		Deadline: d.Deadline.Format(dateLayout),
	})
	if err != nil {
		return core.SMSMessage{}, pkgerrors.Wrap(err, "rendering reminder")
	}
	return core.SMSMessage{JobID: jobID(d, s), To: s.Mobile, Body: body.String()}, nil
}

// SetDeadline stores a deadline and schedules a reminder for every student of its branch at its notification time.
// Once a job is scheduled the deadline is marked notified at that time, so Tick does not remind the branch again.
// Scheduling failures are logged, never returned: when no job could be scheduled, Tick covers the deadline.
func (sch *Scheduler) SetDeadline(ctx context.Context, nd NewDeadline) (Deadline, error) {
	nd.Clean()
	if err := sch.validate.Struct(nd); err != nil {
		return Deadline{}, core.TranslateValidationErrors(err, sch.translator)
	}
	catalog, err := sch.catalog.Catalog(ctx)
	if err != nil {
		return Deadline{}, core.NewPersistenceError(err, "loading catalog")
	}
	known := false
	for _, e := range catalog {
		if e.Name == nd.FeeType {
			known = true
			break
		}
	}
	if !known {
		return Deadline{}, errUnknownFeeType
	}

	d, err := sch.repo.CreateDeadline(ctx, Deadline{
		ID:        uuid.NewString(),
		FeeType:   nd.FeeType,
		Branch:    nd.Branch,
		Deadline:  nd.Deadline,
		LeadHours: nd.LeadHours,
		CreatedBy: nd.CreatedBy,
		CreatedAt: core.NowFunc(),
	})
	if err != nil {
		return Deadline{}, core.NewPersistenceError(err, "creating deadline")
	}

	// a window that is already open is left to Tick
	at := d.NotificationTime()
	if !at.After(core.NowFunc()) {
		return d, nil
	}
	students, err := sch.roster.QueryByBranch(ctx, d.Branch)
	if err != nil {
		sch.logger.Error(fmt.Sprintf("scheduling reminders for deadline %s: %v", d.ID, err), err)
		return d, nil
	}
	scheduled := 0
	for _, s := range students {
		msg, err := sch.reminder(d, s)
		if err == nil {
			_, err = sch.sms.Schedule(msg, at)
		}
		if err != nil {
			sch.logger.Warn(fmt.Sprintf("scheduling reminder %s: %v", jobID(d, s), err), err)
			continue
		}
		scheduled++
	}
	if scheduled == 0 {
		return d, nil
	}

	// the one-shot jobs are the reminder: Tick must skip this deadline
	marked, err := sch.repo.MarkNotified(ctx, d.ID, at)
	if err != nil {
		sch.logger.Error(fmt.Sprintf("marking deadline %s notified: %v", d.ID, err), err)
		return d, nil
	}
	if marked {
		d.NotifiedAt = at
	}
	return d, nil
}

func (sch *Scheduler) Deadlines(ctx context.Context) ([]Deadline, error) {
	deadlines, err := sch.repo.QueryDeadlines(ctx)
	if err != nil {
		return nil, core.NewPersistenceError(err, "querying deadlines")
	}
	return deadlines, nil
}

// Tick starts a broadcast for every deadline whose window contains now and that was not notified yet.
// It does not wait for delivery; see Wait.
func (sch *Scheduler) Tick(ctx context.Context, now time.Time) ([]Deadline, error) {
	deadlines, err := sch.repo.QueryDeadlines(ctx)
	if err != nil {
		return nil, core.NewPersistenceError(err, "querying deadlines")
	}

	var fired []Deadline
	for _, d := range deadlines {
		if d.Notified() || !d.InWindow(now) {
			continue
		}
		marked, err := sch.repo.MarkNotified(ctx, d.ID, now)
		if err != nil {
			sch.logger.Error(fmt.Sprintf("marking deadline %s notified: %v", d.ID, err), err)
			continue
		}
		if !marked { // another tick got it
			continue
		}
		d.NotifiedAt = now
		fired = append(fired, d)

		sch.wg.Add(1)
		go func(d Deadline) {
			defer sch.wg.Done()
			report, err := sch.broadcast(context.WithoutCancel(ctx), d)
			if err != nil {
				sch.logger.Error(fmt.Sprintf("broadcasting deadline %s: %v", d.ID, err), err)
				return
			}
			if len(report.Failed) > 0 {
				sch.logger.Warn(fmt.Sprintf("deadline %s: %d sent, %d failed", d.ID, report.Sent, len(report.Failed)), report)
			}
		}(d)
	}
	return fired, nil
}

// Wait blocks until the broadcasts started by Tick are done.
func (sch *Scheduler) Wait() {
	sch.wg.Wait()
}

// Run calls Tick every TickInterval until ctx is done, then waits for in-flight broadcasts.
func (sch *Scheduler) Run(ctx context.Context) {
	sch.logger.Info("Scheduler started")
	ticker := time.NewTicker(sch.conf.TickInterval)
	defer ticker.Stop()
	defer sch.Wait()

	for {
		select {
		case <-ctx.Done():
			sch.logger.Info("Scheduler stopped")
			return
		case <-ticker.C:
			if _, err := sch.Tick(ctx, core.NowFunc()); err != nil {
				sch.logger.Error(fmt.Sprintf("tick: %v", err), err)
			}
		}
	}
}

// SendNow broadcasts the deadline's reminder to its branch right away, whatever its window.
func (sch *Scheduler) SendNow(ctx context.Context, id string) (BroadcastReport, error) {
	d, err := sch.get(ctx, id)
	if err != nil {
		return BroadcastReport{}, err
	}
	return sch.broadcast(ctx, d)
}

// RemoveDeadline deletes the deadline then tries to cancel its scheduled reminders.
// Cancellation is advisory: a reminder already firing still goes out.
func (sch *Scheduler) RemoveDeadline(ctx context.Context, id string) error {
	d, err := sch.get(ctx, id)
	if err != nil {
		return err
	}
	if err = sch.repo.DeleteDeadline(ctx, d.ID); err != nil {
		if core.IsNotFound(err) {
			return err
		}
		return core.NewPersistenceError(err, "deleting deadline")
	}

	canceler, ok := sch.sms.(core.SMSCanceler)
	if !ok {
		return nil
	}
	students, err := sch.roster.QueryByBranch(ctx, d.Branch)
	if err != nil {
		sch.logger.Warn(fmt.Sprintf("cancelling reminders of deadline %s: %v", d.ID, err), err)
		return nil
	}
	for _, s := range students {
		canceler.Cancel(jobID(d, s))
	}
	return nil
}

func (sch *Scheduler) get(ctx context.Context, id string) (Deadline, error) {
	d, err := sch.repo.GetDeadline(ctx, core.CleanString(id))
	if err != nil && !core.IsNotFound(err) {
		return Deadline{}, core.NewPersistenceError(err, "getting deadline")
	}
	return d, err
}

// broadcast sends the reminder to every student of the branch.
// A failed recipient is reported and never stops the others.
func (sch *Scheduler) broadcast(ctx context.Context, d Deadline) (BroadcastReport, error) {
	report := BroadcastReport{DeadlineID: d.ID, Failed: []Failure{}}
	students, err := sch.roster.QueryByBranch(ctx, d.Branch)
	if err != nil {
		return report, core.NewPersistenceError(err, "querying branch students")
	}

	var mu sync.Mutex
	fail := func(s student.Student, err error) {
		mu.Lock()
		report.Failed = append(report.Failed, Failure{StudentID: s.StudentID, Mobile: s.Mobile, Error: err.Error()})
		mu.Unlock()
	}

	var g errgroup.Group
	g.SetLimit(sch.conf.Concurrency)
	for _, s := range students {
		g.Go(func() error {
			msg, err := sch.reminder(d, s)
			if err != nil {
				fail(s, err)
				return nil
			}
			msg.JobID = ""
			if err := sch.sms.Send(ctx, msg); err != nil {
				fail(s, err)
				return nil
			}
			mu.Lock()
			report.Sent++
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return report, nil
}
