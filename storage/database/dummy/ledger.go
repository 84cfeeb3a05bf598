package dummydb

import (
	"context"
	"sort"

	"github.com/trezcool/feeportal/core"
	"github.com/trezcool/feeportal/core/ledger"
	"github.com/trezcool/feeportal/core/student"
)

type ledgerRepository struct {
	db *DB
}

var _ ledger.Repository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(db *DB) ledger.Repository {
	return &ledgerRepository{db: db}
}

func (repo *ledgerRepository) Atomic(ctx context.Context, studentID string, fn func(tx ledger.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	unlock := repo.db.locks.lock(studentID)
	defer unlock()

	tx := &ledgerTx{db: repo.db, studentID: studentID}
	if err := fn(tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

func (repo *ledgerRepository) Catalog(_ context.Context) ([]ledger.CatalogEntry, error) {
	repo.db.catalog.RLock()
	defer repo.db.catalog.RUnlock()
	return append([]ledger.CatalogEntry(nil), repo.db.catalog.table...), nil
}

func (repo *ledgerRepository) AddCatalogEntry(_ context.Context, entry ledger.CatalogEntry) (ledger.CatalogEntry, error) {
	repo.db.catalog.Lock()
	defer repo.db.catalog.Unlock()
	for _, e := range repo.db.catalog.table {
		if e.Name == entry.Name {
			return ledger.CatalogEntry{}, ledger.ErrCatalogEntryExists
		}
	}
	repo.db.catalog.table = append(repo.db.catalog.table, entry)
	return entry, nil
}

// Reads take the same lock as Atomic so that they never see the writes of a unit of work that may still roll back.
// An empty studentID takes the global lock.
func (repo *ledgerRepository) Cells(_ context.Context, studentID, year string) ([]ledger.Cell, error) {
	defer repo.db.locks.lock(studentID)()

	repo.db.cell.RLock()
	defer repo.db.cell.RUnlock()

	var cells []ledger.Cell
	for _, c := range repo.db.cell.table[studentID] {
		if year == "" || c.Year == year {
			cells = append(cells, c)
		}
	}
	sort.Slice(cells, func(i, j int) bool {
		if cells[i].Year != cells[j].Year {
			return cells[i].Year < cells[j].Year
		}
		return cells[i].FeeName < cells[j].FeeName
	})
	return cells, nil
}

func (repo *ledgerRepository) ExtraFees(_ context.Context, studentID, year string) ([]ledger.ExtraFee, error) {
	defer repo.db.locks.lock(studentID)()

	repo.db.extraFee.RLock()
	defer repo.db.extraFee.RUnlock()

	var fees []ledger.ExtraFee
	for _, ef := range repo.db.extraFee.table[studentID] {
		if year == "" || ef.Year == year {
			fees = append(fees, ef)
		}
	}
	return fees, nil
}

func (repo *ledgerRepository) Fines(_ context.Context, studentID string) ([]ledger.FineMarker, error) {
	defer repo.db.locks.lock(studentID)()

	repo.db.fine.RLock()
	defer repo.db.fine.RUnlock()

	fines := make([]ledger.FineMarker, 0, len(repo.db.fine.table[studentID]))
	for _, f := range repo.db.fine.table[studentID] {
		fines = append(fines, f)
	}
	sort.Slice(fines, func(i, j int) bool { return fines[i].FeeName < fines[j].FeeName })
	return fines, nil
}

func (repo *ledgerRepository) QueryTransactions(_ context.Context, studentID string, kind ledger.Kind, ordering ...core.DBOrdering) ([]ledger.Transaction, error) {
	defer repo.db.locks.lock(studentID)()

	repo.db.transaction.RLock()
	defer repo.db.transaction.RUnlock()

	// newest first, so that ties keep the most recent append first when descending
	var txns []ledger.Transaction
	for i := len(repo.db.transaction.table) - 1; i >= 0; i-- {
		txn := repo.db.transaction.table[i]
		if (studentID == "" || txn.StudentID == studentID) && (kind == "" || txn.Kind() == kind) {
			txns = append(txns, txn)
		}
	}
	sort.SliceStable(txns, func(i, j int) bool {
		a, b := txns[i], txns[j]
		for _, ord := range ordering {
			var cmp int
			switch ord.Field {
			case "created_at":
				cmp = compareInt64(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
			case "amount":
				cmp = compareInt64(a.Amount, b.Amount)
			}
			if cmp != 0 {
				return (cmp < 0) == ord.Ascending
			}
		}
		return false
	})
	return txns, nil
}

// ledgerTx applies writes right away and keeps undo funcs to roll them back.
type ledgerTx struct {
	db        *DB
	studentID string
	undo      []func()
}

var _ ledger.Tx = (*ledgerTx)(nil)

func (tx *ledgerTx) rollback() {
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

func (tx *ledgerTx) GetCell(key ledger.CellKey) (ledger.Cell, error) {
	tx.db.cell.RLock()
	defer tx.db.cell.RUnlock()
	if c, ok := tx.db.cell.table[tx.studentID][key]; ok {
		return c, nil
	}
	return ledger.Cell{}, ledger.ErrCellNotFound
}

func (tx *ledgerTx) PutCell(cell ledger.Cell) error {
	t := tx.db.cell
	t.Lock()
	defer t.Unlock()

	key := cell.Key()
	cells, ok := t.table[cell.StudentID]
	if !ok {
		cells = make(map[ledger.CellKey]ledger.Cell)
		t.table[cell.StudentID] = cells
	}
	prev, existed := cells[key]
	cells[key] = cell
	tx.undo = append(tx.undo, func() {
		t.Lock()
		defer t.Unlock()
		if existed {
			t.table[cell.StudentID][key] = prev
		} else {
			delete(t.table[cell.StudentID], key)
		}
	})
	return nil
}

func (tx *ledgerTx) DeleteCell(key ledger.CellKey) (bool, error) {
	t := tx.db.cell
	t.Lock()
	defer t.Unlock()

	prev, ok := t.table[tx.studentID][key]
	if !ok {
		return false, nil
	}
	delete(t.table[tx.studentID], key)
	tx.undo = append(tx.undo, func() {
		t.Lock()
		defer t.Unlock()
		t.table[tx.studentID][key] = prev
	})
	return true, nil
}

func (tx *ledgerTx) AddExtraFee(ef ledger.ExtraFee) error {
	t := tx.db.extraFee
	t.Lock()
	defer t.Unlock()

	prev := t.table[ef.StudentID]
	t.table[ef.StudentID] = append(append([]ledger.ExtraFee(nil), prev...), ef)
	tx.undo = append(tx.undo, func() {
		t.Lock()
		defer t.Unlock()
		t.table[ef.StudentID] = prev
	})
	return nil
}

func (tx *ledgerTx) DeleteExtraFees(key ledger.CellKey) (int, error) {
	t := tx.db.extraFee
	t.Lock()
	defer t.Unlock()

	prev := t.table[tx.studentID]
	kept := make([]ledger.ExtraFee, 0, len(prev))
	for _, ef := range prev {
		if ef.Key() != key {
			kept = append(kept, ef)
		}
	}
	n := len(prev) - len(kept)
	if n == 0 {
		return 0, nil
	}
	t.table[tx.studentID] = kept
	tx.undo = append(tx.undo, func() {
		t.Lock()
		defer t.Unlock()
		t.table[tx.studentID] = prev
	})
	return n, nil
}

func (tx *ledgerTx) HasFine(feeName string) (bool, error) {
	tx.db.fine.RLock()
	defer tx.db.fine.RUnlock()
	_, ok := tx.db.fine.table[tx.studentID][feeName]
	return ok, nil
}

func (tx *ledgerTx) AddFine(fine ledger.FineMarker) error {
	t := tx.db.fine
	t.Lock()
	defer t.Unlock()

	fines, ok := t.table[fine.StudentID]
	if !ok {
		fines = make(map[string]ledger.FineMarker)
		t.table[fine.StudentID] = fines
	}
	prev, existed := fines[fine.FeeName]
	fines[fine.FeeName] = fine
	tx.undo = append(tx.undo, func() {
		t.Lock()
		defer t.Unlock()
		if existed {
			t.table[fine.StudentID][fine.FeeName] = prev
		} else {
			delete(t.table[fine.StudentID], fine.FeeName)
		}
	})
	return nil
}

func (tx *ledgerTx) DeleteFine(feeName string) error {
	t := tx.db.fine
	t.Lock()
	defer t.Unlock()

	prev, ok := t.table[tx.studentID][feeName]
	if !ok {
		return nil
	}
	delete(t.table[tx.studentID], feeName)
	tx.undo = append(tx.undo, func() {
		t.Lock()
		defer t.Unlock()
		t.table[tx.studentID][feeName] = prev
	})
	return nil
}

func (tx *ledgerTx) AppendTransaction(txn ledger.Transaction) error {
	t := tx.db.transaction
	t.Lock()
	defer t.Unlock()

	t.table = append(t.table, txn)
	tx.undo = append(tx.undo, func() {
		t.Lock()
		defer t.Unlock()
		for i := len(t.table) - 1; i >= 0; i-- {
			if t.table[i].ID == txn.ID {
				t.table = append(t.table[:i], t.table[i+1:]...)
				return
			}
		}
	})
	return nil
}

func (tx *ledgerTx) CheckStudentUniqueness(studentID, pin string) error {
	tx.db.student.RLock()
	defer tx.db.student.RUnlock()
	for _, s := range tx.db.student.table {
		if s.StudentID == studentID {
			return student.ErrStudentIDExists
		}
		if s.Pin == pin {
			return student.ErrPinExists
		}
	}
	return nil
}

func (tx *ledgerTx) CreateStudent(s student.Student) (student.Student, error) {
	t := tx.db.student
	t.Lock()
	defer t.Unlock()

	t.table[s.ID] = &s
	tx.undo = append(tx.undo, func() {
		t.Lock()
		defer t.Unlock()
		delete(t.table, s.ID)
	})
	return s, nil
}
