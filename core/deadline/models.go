package deadline

import (
	"strings"
	"time"

	"github.com/trezcool/feeportal/core"
)

// relaxedPeriod is how far ahead a deadline has to be for it not to be urgent.
const relaxedPeriod = 7 * 24 * time.Hour

type Urgency string

const (
	UrgencyRelaxed     Urgency = "relaxed"
	UrgencyApproaching Urgency = "approaching"
	UrgencyOverdue     Urgency = "overdue"
)

// Deadline is a (fee type, branch, instant) reminder trigger, active until an admin removes it.
type Deadline struct {
	ID         string    `json:"id"`
	FeeType    string    `json:"fee_type"`
	Branch     string    `json:"branch"`
	Deadline   time.Time `json:"deadline"`
	LeadHours  int       `json:"lead_hours"`
	NotifiedAt time.Time `json:"notified_at"` // when reminders went out (or are scheduled to); zero until then
	CreatedBy  string    `json:"created_by,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// NotificationTime is when reminders start: LeadHours before the deadline.
func (d Deadline) NotificationTime() time.Time {
	return d.Deadline.Add(-time.Duration(d.LeadHours) * time.Hour)
}

// InWindow reports whether NotificationTime <= now < Deadline.
func (d Deadline) InWindow(now time.Time) bool {
	return !now.Before(d.NotificationTime()) && now.Before(d.Deadline)
}

func (d Deadline) Notified() bool {
	return !d.NotifiedAt.IsZero()
}

func (d Deadline) Urgency(now time.Time) Urgency {
	left := d.Deadline.Sub(now)
	switch {
	case left > relaxedPeriod:
		return UrgencyRelaxed
	case left > 0:
		return UrgencyApproaching
	default:
		return UrgencyOverdue
	}
}

type NewDeadline struct {
	FeeType   string    `json:"fee_type" validate:"required,notblank"`
	Branch    string    `json:"branch" validate:"required,notblank"`
	Deadline  time.Time `json:"deadline" validate:"required"`
	LeadHours int       `json:"lead_hours" validate:"leadhours"`
	CreatedBy string    `json:"-"`
}

func (nd *NewDeadline) Clean() {
	nd.FeeType = core.CleanString(nd.FeeType)
	nd.Branch = strings.ToUpper(core.CleanString(nd.Branch))
	nd.Deadline = nd.Deadline.UTC()
}

// Failure is one recipient a broadcast could not reach.
type Failure struct {
	StudentID string `json:"student_id"`
	Mobile    string `json:"mobile"`
	Error     string `json:"error"`
}

type BroadcastReport struct {
	DeadlineID string    `json:"deadline_id"`
	Sent       int       `json:"sent"`
	Failed     []Failure `json:"failed"`
}
