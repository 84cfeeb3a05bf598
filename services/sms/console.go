package smssvc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/trezcool/feeportal/core"
)

var errNoRecipient = errors.New("message has no recipient")

// ConsoleService writes messages to the logger instead of sending them. Used in debug.
type ConsoleService struct {
	sender        string
	logger        core.Logger
	queue         *jobQueue
	disableOutput bool

	mu   sync.Mutex
	sent []core.SMSMessage
}

var (
	_ core.SMSService  = (*ConsoleService)(nil)
	_ core.SMSCanceler = (*ConsoleService)(nil)
)

func NewConsoleService(conf *core.Config, logger core.Logger) *ConsoleService {
	return &ConsoleService{
		sender: conf.SMS.Sender,
		logger: logger,
		queue:  newJobQueue(),
	}
}

func (svc *ConsoleService) Send(_ context.Context, msg core.SMSMessage) error {
	if msg.To == "" {
		return errNoRecipient
	}
	if !svc.disableOutput {
		svc.logger.Info(fmt.Sprintf("SMS from %s to %s: %s", svc.sender, msg.To, msg.Body))
	}
	svc.mu.Lock()
	svc.sent = append(svc.sent, msg)
	svc.mu.Unlock()
	return nil
}

func (svc *ConsoleService) Schedule(msg core.SMSMessage, at time.Time) (core.ScheduleHandle, error) {
	return svc.queue.schedule(msg, at, func(m core.SMSMessage) {
		if err := svc.Send(context.Background(), m); err != nil {
			svc.logger.Error(fmt.Sprintf("sending scheduled SMS %s: %v", m.JobID, err), err)
		}
	})
}

func (svc *ConsoleService) Cancel(jobID string) bool {
	return svc.queue.cancel(jobID)
}

// Sent returns a copy of the messages sent so far.
func (svc *ConsoleService) Sent() []core.SMSMessage {
	svc.mu.Lock()
	defer svc.mu.Unlock()
	return append([]core.SMSMessage(nil), svc.sent...)
}

// Stop drops the scheduled jobs that did not fire yet.
func (svc *ConsoleService) Stop() {
	svc.queue.stop()
}
