package dummydb

import (
	"sync"

	"github.com/trezcool/feeportal/core/deadline"
	"github.com/trezcool/feeportal/core/ledger"
	"github.com/trezcool/feeportal/core/student"
)

type (
	DB struct {
		student     *studentTable
		catalog     *catalogTable
		cell        *cellTable
		extraFee    *extraFeeTable
		fine        *fineTable
		transaction *transactionTable
		deadline    *deadlineTable
		locks       *lockTable
	}

	studentTable struct {
		sync.RWMutex
		table map[string]*student.Student
	}

	catalogTable struct {
		sync.RWMutex
		table []ledger.CatalogEntry
	}

	cellTable struct {
		sync.RWMutex
		table map[string]map[ledger.CellKey]ledger.Cell
	}

	extraFeeTable struct {
		sync.RWMutex
		table map[string][]ledger.ExtraFee
	}

	fineTable struct {
		sync.RWMutex
		table map[string]map[string]ledger.FineMarker
	}

	transactionTable struct {
		sync.RWMutex
		table []ledger.Transaction
	}

	deadlineTable struct {
		sync.RWMutex
		table map[string]*deadline.Deadline
	}

	// lockTable gives each student its own mutex; enrollment takes the global lock.
	lockTable struct {
		global  sync.RWMutex
		mu      sync.Mutex
		student map[string]*sync.Mutex
	}
)

func Open() (*DB, error) {
	db := &DB{
		student:     &studentTable{table: make(map[string]*student.Student)},
		catalog:     &catalogTable{},
		cell:        &cellTable{table: make(map[string]map[ledger.CellKey]ledger.Cell)},
		extraFee:    &extraFeeTable{table: make(map[string][]ledger.ExtraFee)},
		fine:        &fineTable{table: make(map[string]map[string]ledger.FineMarker)},
		transaction: &transactionTable{},
		deadline:    &deadlineTable{table: make(map[string]*deadline.Deadline)},
		locks:       &lockTable{student: make(map[string]*sync.Mutex)},
	}
	return db, nil
}

// lock acquires the lock of studentID (or the global lock if empty) and returns its release func.
func (lt *lockTable) lock(studentID string) func() {
	if studentID == "" {
		lt.global.Lock()
		return lt.global.Unlock
	}
	lt.global.RLock()
	lt.mu.Lock()
	m, ok := lt.student[studentID]
	if !ok {
		m = new(sync.Mutex)
		lt.student[studentID] = m
	}
	lt.mu.Unlock()
	m.Lock()
	return func() {
		m.Unlock()
		lt.global.RUnlock()
	}
}
