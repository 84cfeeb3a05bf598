package dummydb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/feeportal/core/deadline"
)

type deadlineRepository struct {
	db *deadlineTable
}

var _ deadline.Repository = (*deadlineRepository)(nil) // interface compliance check

func NewDeadlineRepository(db *DB) deadline.Repository {
	return &deadlineRepository{db: db.deadline}
}

func (repo *deadlineRepository) CreateDeadline(_ context.Context, d deadline.Deadline) (deadline.Deadline, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	repo.db.table[d.ID] = &d
	return d, nil
}

func (repo *deadlineRepository) GetDeadline(_ context.Context, id string) (deadline.Deadline, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	if d, ok := repo.db.table[id]; ok {
		return *d, nil
	}
	return deadline.Deadline{}, deadline.ErrNotFound
}

func (repo *deadlineRepository) QueryDeadlines(_ context.Context) ([]deadline.Deadline, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	deadlines := make([]deadline.Deadline, 0, len(repo.db.table))
	for _, d := range repo.db.table {
		deadlines = append(deadlines, *d)
	}
	sort.Slice(deadlines, func(i, j int) bool {
		if !deadlines[i].Deadline.Equal(deadlines[j].Deadline) {
			return deadlines[i].Deadline.Before(deadlines[j].Deadline)
		}
		return deadlines[i].ID < deadlines[j].ID
	})
	return deadlines, nil
}

func (repo *deadlineRepository) DeleteDeadline(_ context.Context, id string) error {
	repo.db.Lock()
	defer repo.db.Unlock()
	if _, ok := repo.db.table[id]; !ok {
		return deadline.ErrNotFound
	}
	delete(repo.db.table, id)
	return nil
}

func (repo *deadlineRepository) MarkNotified(_ context.Context, id string, at time.Time) (bool, error) {
	repo.db.Lock()
	defer repo.db.Unlock()
	d, ok := repo.db.table[id]
	if !ok || !d.NotifiedAt.IsZero() {
		return false, nil
	}
	d.NotifiedAt = at
	return true, nil
}
