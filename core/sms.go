package core

import (
	"context"
	"time"
)

type (
	// SMSMessage is a single text message to one phone number.
	SMSMessage struct {
		JobID string // only set for scheduled messages
		To    string
		Body  string
	}

	// ScheduleHandle identifies a one-shot job queued by SMSService.Schedule.
	ScheduleHandle struct {
		JobID string
		At    time.Time
	}

	// SMSService is the outbound messaging channel.
	// Send delivers immediately and reports a failed delivery as an error;
	// Schedule queues a one-shot delivery at `at`.
	SMSService interface {
		Send(ctx context.Context, msg SMSMessage) error
		Schedule(msg SMSMessage, at time.Time) (ScheduleHandle, error)
	}

	// SMSCanceler is implemented by SMSServices able to retract a queued job.
	// Cancellation is best-effort: a job that already started firing is not stopped.
	SMSCanceler interface {
		Cancel(jobID string) bool
	}
)
