package smssvc

import (
	"errors"
	"sync"
	"time"

	"github.com/trezcool/feeportal/core"
)

var errNoJobID = errors.New("scheduled message needs a job id")

// jobQueue holds one-shot jobs in process memory. Jobs do not survive a restart.
type jobQueue struct {
	mu     sync.Mutex
	timers map[string]*time.Timer
}

func newJobQueue() *jobQueue {
	return &jobQueue{timers: make(map[string]*time.Timer)}
}

// schedule runs send(msg) at `at`. Scheduling a job ID again replaces the previous job.
func (q *jobQueue) schedule(msg core.SMSMessage, at time.Time, send func(core.SMSMessage)) (core.ScheduleHandle, error) {
	if msg.JobID == "" {
		return core.ScheduleHandle{}, errNoJobID
	}
	delay := at.Sub(core.NowFunc())
	if delay < 0 {
		delay = 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	if old, ok := q.timers[msg.JobID]; ok {
		old.Stop()
	}
	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		q.mu.Lock()
		if q.timers[msg.JobID] == timer {
			delete(q.timers, msg.JobID)
		}
		q.mu.Unlock()
		send(msg)
	})
	q.timers[msg.JobID] = timer
	return core.ScheduleHandle{JobID: msg.JobID, At: at}, nil
}

// cancel reports whether the job was stopped before it fired.
func (q *jobQueue) cancel(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	timer, ok := q.timers[jobID]
	if !ok {
		return false
	}
	delete(q.timers, jobID)
	return timer.Stop()
}

func (q *jobQueue) pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.timers)
}

// stop drops every pending job.
func (q *jobQueue) stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	for id, timer := range q.timers {
		timer.Stop()
		delete(q.timers, id)
	}
}
