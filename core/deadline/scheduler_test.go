package deadline_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/trezcool/feeportal/core"
	"github.com/trezcool/feeportal/core/deadline"
	"github.com/trezcool/feeportal/core/student"
	"github.com/trezcool/feeportal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var (
	created    = time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC)
	windowOpen = time.Date(2025, 5, 31, 6, 0, 0, 0, time.UTC)
	due        = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	*testutil.App
	asha, ravi, meera student.Student
}

func setup(t *testing.T, failFor ...string) fixture {
	t.Helper()
	app := testutil.NewApp(t, failFor...)
	app.AddCatalogEntry(t, "Tuition", 50000)
	return fixture{
		App:   app,
		asha:  app.Enroll(t, "S1", "Asha Rao", "cse", "9876543210"),
		ravi:  app.Enroll(t, "S2", "Ravi Kumar", "cse", "9876543211"),
		meera: app.Enroll(t, "S3", "Meera Nair", "ece", "9876543212"),
	}
}

// setDeadline creates the CSE Tuition deadline on May 1st; its reminders get scheduled.
func (f fixture) setDeadline(t *testing.T, at time.Time) deadline.Deadline {
	t.Helper()
	return f.setDeadlineOn(t, created, at)
}

// setDeadlineOn creates the CSE Tuition deadline at now.
func (f fixture) setDeadlineOn(t *testing.T, now, at time.Time) deadline.Deadline {
	t.Helper()
	testutil.FreezeTime(t, now)
	d, err := f.Scheduler.SetDeadline(context.Background(), deadline.NewDeadline{
		FeeType:   "Tuition",
		Branch:    "cse",
		Deadline:  at,
		LeadHours: 24,
		CreatedBy: "admin-1",
	})
	require.NoError(t, err)
	return d
}

func recipients(msgs []core.SMSMessage) []string {
	to := make([]string, 0, len(msgs))
	for _, m := range msgs {
		to = append(to, m.To)
	}
	sort.Strings(to)
	return to
}

func Test_Scheduler_SetDeadline(t *testing.T) {
	f := setup(t)
	d := f.setDeadline(t, due)

	assert.Equal(t, "CSE", d.Branch)
	assert.Equal(t, created, d.CreatedAt)
	assert.Equal(t, "admin-1", d.CreatedBy)
	assert.Equal(t, time.Date(2025, 5, 31, 0, 0, 0, 0, time.UTC), d.NotificationTime())
	assert.Equal(t, d.NotificationTime(), d.NotifiedAt)

	scheduled := f.SMS.Scheduled()
	require.Len(t, scheduled, 2)
	jobs := make(map[string]core.SMSMessage, len(scheduled))
	for _, s := range scheduled {
		assert.Equal(t, d.NotificationTime(), s.At)
		jobs[s.Msg.JobID] = s.Msg
	}
	msg, ok := jobs[d.ID+":"+f.asha.ID]
	require.True(t, ok, "no job for %s", f.asha.StudentID)
	assert.Equal(t, "9876543210", msg.To)
	assert.Equal(t,
		"Dear Asha Rao, you have less time to pay the Tuition fee. "+
			"Make sure to pay the fee as soon as possible. Deadline: 01 Jun 2025 00:00 UTC",
		msg.Body,
	)
	_, ok = jobs[d.ID+":"+f.ravi.ID]
	assert.True(t, ok, "no job for %s", f.ravi.StudentID)
	assert.Empty(t, f.SMS.Sent())

	deadlines, err := f.Scheduler.Deadlines(context.Background())
	require.NoError(t, err)
	require.Len(t, deadlines, 1)
	assert.Equal(t, d.ID, deadlines[0].ID)
	assert.Equal(t, d.NotificationTime(), deadlines[0].NotifiedAt)
}

func Test_Scheduler_SetDeadline_noDuplicateTick(t *testing.T) {
	f := setup(t)
	f.setDeadline(t, due)

	fired, err := f.Scheduler.Tick(context.Background(), time.Date(2025, 5, 31, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, fired)
	f.Scheduler.Wait()
	assert.Empty(t, f.SMS.Sent())
	assert.Len(t, f.SMS.Scheduled(), 2)
}

func Test_Scheduler_SetDeadline_emptyBranch(t *testing.T) {
	f := setup(t)
	testutil.FreezeTime(t, created)

	d, err := f.Scheduler.SetDeadline(context.Background(), deadline.NewDeadline{
		FeeType: "Tuition", Branch: "MECH", Deadline: due, LeadHours: 24,
	})
	require.NoError(t, err)
	assert.False(t, d.Notified())
	assert.Empty(t, f.SMS.Scheduled())
}

func Test_Scheduler_SetDeadline_windowOpen(t *testing.T) {
	f := setup(t)
	testutil.FreezeTime(t, time.Date(2025, 5, 31, 12, 0, 0, 0, time.UTC))

	_, err := f.Scheduler.SetDeadline(context.Background(), deadline.NewDeadline{
		FeeType: "Tuition", Branch: "CSE", Deadline: due, LeadHours: 24,
	})
	require.NoError(t, err)
	assert.Empty(t, f.SMS.Scheduled())
}

func Test_Scheduler_SetDeadline_validation(t *testing.T) {
	f := setup(t)
	testutil.FreezeTime(t, created)

	tests := []struct {
		name      string
		nd        deadline.NewDeadline
		wantField string
		wantMsg   string
	}{
		{
			name:      "unknown fee type",
			nd:        deadline.NewDeadline{FeeType: "Library", Branch: "CSE", Deadline: due, LeadHours: 24},
			wantField: "fee_type", wantMsg: "unknown fee type",
		},
		{
			name:      "blank branch",
			nd:        deadline.NewDeadline{FeeType: "Tuition", Branch: "  ", Deadline: due, LeadHours: 24},
			wantField: "branch", wantMsg: "this field is required",
		},
		{
			name:      "missing deadline",
			nd:        deadline.NewDeadline{FeeType: "Tuition", Branch: "CSE", LeadHours: 24},
			wantField: "deadline", wantMsg: "this field is required",
		},
		{
			name:      "no lead time",
			nd:        deadline.NewDeadline{FeeType: "Tuition", Branch: "CSE", Deadline: due},
			wantField: "lead_hours", wantMsg: "notification lead time must be between 1 and 168 hours",
		},
		{
			name:      "lead time too long",
			nd:        deadline.NewDeadline{FeeType: "Tuition", Branch: "CSE", Deadline: due, LeadHours: 169},
			wantField: "lead_hours", wantMsg: "notification lead time must be between 1 and 168 hours",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.Scheduler.SetDeadline(context.Background(), tt.nd)
			vErr, ok := err.(*core.ValidationError)
			require.True(t, ok, "err = %v", err)
			assert.Equal(t, []core.FieldError{{Field: tt.wantField, Error: tt.wantMsg}}, vErr.Fields)
		})
	}

	deadlines, err := f.Scheduler.Deadlines(context.Background())
	require.NoError(t, err)
	assert.Empty(t, deadlines)
}

func Test_Scheduler_Tick(t *testing.T) {
	f := setup(t)
	d := f.setDeadlineOn(t, windowOpen, due)
	ctx := context.Background()

	t.Run("before the window", func(t *testing.T) {
		fired, err := f.Scheduler.Tick(ctx, time.Date(2025, 5, 30, 23, 59, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Empty(t, fired)
	})

	t.Run("in the window", func(t *testing.T) {
		now := time.Date(2025, 5, 31, 12, 0, 0, 0, time.UTC)
		fired, err := f.Scheduler.Tick(ctx, now)
		require.NoError(t, err)
		require.Len(t, fired, 1)
		assert.Equal(t, d.ID, fired[0].ID)
		assert.Equal(t, now, fired[0].NotifiedAt)

		f.Scheduler.Wait()
		assert.Equal(t, []string{"9876543210", "9876543211"}, recipients(f.SMS.Sent()))
	})

	t.Run("notified once", func(t *testing.T) {
		fired, err := f.Scheduler.Tick(ctx, time.Date(2025, 5, 31, 13, 0, 0, 0, time.UTC))
		require.NoError(t, err)
		assert.Empty(t, fired)
		f.Scheduler.Wait()
		assert.Len(t, f.SMS.Sent(), 2)
	})
}

func Test_Scheduler_Tick_afterDeadline(t *testing.T) {
	f := setup(t)
	f.setDeadlineOn(t, windowOpen, due)

	fired, err := f.Scheduler.Tick(context.Background(), time.Date(2025, 6, 1, 1, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, fired)
	f.Scheduler.Wait()
	assert.Empty(t, f.SMS.Sent())
}

func Test_Scheduler_Tick_concurrent(t *testing.T) {
	f := setup(t)
	f.setDeadlineOn(t, windowOpen, due)
	now := time.Date(2025, 5, 31, 12, 0, 0, 0, time.UTC)

	var (
		wg    sync.WaitGroup
		mu    sync.Mutex
		total int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fired, err := f.Scheduler.Tick(context.Background(), now)
			assert.NoError(t, err)
			mu.Lock()
			total += len(fired)
			mu.Unlock()
		}()
	}
	wg.Wait()
	f.Scheduler.Wait()

	assert.Equal(t, 1, total)
	assert.Len(t, f.SMS.Sent(), 2)
}

func Test_Scheduler_Run(t *testing.T) {
	f := setup(t)
	f.setDeadlineOn(t, windowOpen, due)
	testutil.FreezeTime(t, time.Date(2025, 5, 31, 12, 0, 0, 0, time.UTC))

	conf := f.Conf.Scheduler
	conf.TickInterval = 5 * time.Millisecond
	validate, translator := testutil.NewValidator(f.Conf)
	sch, err := deadline.NewScheduler(f.DeadlineRepo, f.Students, f.Ledger, f.SMS, f.Logger, conf, validate, translator)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		sch.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool { return len(f.SMS.Sent()) == 2 }, time.Second, 5*time.Millisecond)
	cancel()
	<-done
	assert.Len(t, f.SMS.Sent(), 2)
}

func Test_Scheduler_SendNow(t *testing.T) {
	f := setup(t, "9876543211")
	d := f.setDeadlineOn(t, windowOpen, due)
	ctx := context.Background()

	report, err := f.Scheduler.SendNow(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, report.DeadlineID)
	assert.Equal(t, 1, report.Sent)
	require.Len(t, report.Failed, 1)
	assert.Equal(t, "S2", report.Failed[0].StudentID)
	assert.Equal(t, "9876543211", report.Failed[0].Mobile)
	assert.Equal(t, []string{"9876543210"}, recipients(f.SMS.Sent()))

	// sending now does not consume the tick reminder
	got, err := f.DeadlineRepo.GetDeadline(ctx, d.ID)
	require.NoError(t, err)
	assert.False(t, got.Notified())

	_, err = f.Scheduler.SendNow(ctx, "unknown")
	assert.True(t, core.IsNotFound(err), "err = %v", err)
}

func Test_Scheduler_RemoveDeadline(t *testing.T) {
	f := setup(t)
	d := f.setDeadline(t, due)
	ctx := context.Background()

	require.NoError(t, f.Scheduler.RemoveDeadline(ctx, d.ID))

	cancelled := f.SMS.Cancelled()
	sort.Strings(cancelled)
	want := []string{d.ID + ":" + f.asha.ID, d.ID + ":" + f.ravi.ID}
	sort.Strings(want)
	assert.Equal(t, want, cancelled)

	deadlines, err := f.Scheduler.Deadlines(ctx)
	require.NoError(t, err)
	assert.Empty(t, deadlines)

	fired, err := f.Scheduler.Tick(ctx, time.Date(2025, 5, 31, 12, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, fired)

	err = f.Scheduler.RemoveDeadline(ctx, d.ID)
	assert.True(t, core.IsNotFound(err), "err = %v", err)
}

func TestNewScheduler(t *testing.T) {
	app := testutil.NewApp(t)
	validate, translator := testutil.NewValidator(app.Conf)

	_, err := deadline.NewScheduler(nil, app.Students, app.Ledger, app.SMS, app.Logger, app.Conf.Scheduler, validate, translator)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "creating scheduler")
	assert.Contains(t, err.Error(), "repo")

	sch, err := deadline.NewScheduler(app.DeadlineRepo, app.Students, app.Ledger, app.SMS, app.Logger, app.Conf.Scheduler, validate, translator)
	require.NoError(t, err)
	assert.NotNil(t, sch)
}

func TestDeadline_Urgency(t *testing.T) {
	d := deadline.Deadline{Deadline: due}
	tests := []struct {
		now  time.Time
		want deadline.Urgency
	}{
		{now: due.Add(-8 * 24 * time.Hour), want: deadline.UrgencyRelaxed},
		{now: due.Add(-7 * 24 * time.Hour), want: deadline.UrgencyApproaching},
		{now: due.Add(-time.Minute), want: deadline.UrgencyApproaching},
		{now: due, want: deadline.UrgencyOverdue},
		{now: due.Add(time.Hour), want: deadline.UrgencyOverdue},
	}
	for _, tt := range tests {
		t.Run(tt.now.Format(time.RFC3339), func(t *testing.T) {
			assert.Equal(t, tt.want, d.Urgency(tt.now))
		})
	}
}

func TestDeadline_InWindow(t *testing.T) {
	d := deadline.Deadline{Deadline: due, LeadHours: 24}
	assert.False(t, d.InWindow(due.Add(-25*time.Hour)))
	assert.True(t, d.InWindow(due.Add(-24*time.Hour)))
	assert.True(t, d.InWindow(due.Add(-time.Second)))
	assert.False(t, d.InWindow(due))
}
