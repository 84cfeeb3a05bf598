package smssvc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/trezcool/feeportal/core"
)

var ErrDeliveryFailed = errors.New("delivery failed")

type Scheduled struct {
	Msg core.SMSMessage
	At  time.Time
}

// ServiceMock records messages instead of sending them and never fires scheduled jobs.
type ServiceMock struct {
	mu        sync.Mutex
	sent      []core.SMSMessage
	scheduled []Scheduled
	cancelled []string
	failFor   map[string]bool
}

var (
	_ core.SMSService  = (*ServiceMock)(nil)
	_ core.SMSCanceler = (*ServiceMock)(nil)
)

// NewServiceMock returns a mock failing every delivery to the given numbers.
func NewServiceMock(failFor ...string) *ServiceMock {
	m := &ServiceMock{failFor: make(map[string]bool, len(failFor))}
	for _, to := range failFor {
		m.failFor[to] = true
	}
	return m
}

func (m *ServiceMock) Send(_ context.Context, msg core.SMSMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.To == "" {
		return errNoRecipient
	}
	if m.failFor[msg.To] {
		return ErrDeliveryFailed
	}
	m.sent = append(m.sent, msg)
	return nil
}

func (m *ServiceMock) Schedule(msg core.SMSMessage, at time.Time) (core.ScheduleHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if msg.JobID == "" {
		return core.ScheduleHandle{}, errNoJobID
	}
	m.scheduled = append(m.scheduled, Scheduled{Msg: msg, At: at})
	return core.ScheduleHandle{JobID: msg.JobID, At: at}, nil
}

func (m *ServiceMock) Cancel(jobID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.cancelled {
		if id == jobID {
			return false
		}
	}
	for _, s := range m.scheduled {
		if s.Msg.JobID == jobID {
			m.cancelled = append(m.cancelled, jobID)
			return true
		}
	}
	return false
}

func (m *ServiceMock) Sent() []core.SMSMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]core.SMSMessage(nil), m.sent...)
}

func (m *ServiceMock) Scheduled() []Scheduled {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Scheduled(nil), m.scheduled...)
}

func (m *ServiceMock) Cancelled() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.cancelled...)
}
