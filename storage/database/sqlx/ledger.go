package sqlxrepos

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/feeportal/core"
	"github.com/trezcool/feeportal/core/ledger"
	"github.com/trezcool/feeportal/core/student"
)

var transactionOrderings = map[string]bool{"created_at": true, "amount": true}

type (
	catalogRow struct {
		ID          string    `db:"id"`
		Name        string    `db:"name"`
		Description string    `db:"description"`
		Amount      int64     `db:"amount"`
		CreatedAt   time.Time `db:"created_at"`
	}

	cellRow struct {
		StudentID   string    `db:"student_id"`
		FeeName     string    `db:"fee_name"`
		Year        string    `db:"year"`
		TotalAmount int64     `db:"total_amount"`
		DueAmount   int64     `db:"due_amount"`
		CreatedAt   time.Time `db:"created_at"`
		UpdatedAt   time.Time `db:"updated_at"`
	}

	extraFeeRow struct {
		ID          string    `db:"id"`
		StudentID   string    `db:"student_id"`
		Year        string    `db:"year"`
		Name        string    `db:"name"`
		Description string    `db:"description"`
		Amount      int64     `db:"amount"`
		CreatedAt   time.Time `db:"created_at"`
	}

	fineRow struct {
		StudentID string    `db:"student_id"`
		FeeName   string    `db:"fee_name"`
		CreatedAt time.Time `db:"created_at"`
	}

	transactionRow struct {
		ID          string      `db:"id"`
		StudentID   null.String `db:"student_id"`
		Description string      `db:"description"`
		Amount      int64       `db:"amount"`
		Type        string      `db:"transaction_type"`
		Reference   null.String `db:"reference"`
		Year        null.String `db:"year"`
		FeeName     null.String `db:"fee_name"`
		Method      null.String `db:"method"`
		CreatedAt   time.Time   `db:"created_at"`
	}
)

func (r cellRow) toCell() ledger.Cell {
	return ledger.Cell{
		StudentID: r.StudentID,
		Year:      r.Year,
		FeeName:   r.FeeName,
		Total:     r.TotalAmount,
		Due:       r.DueAmount,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
}

func newTransactionRow(txn ledger.Transaction) (transactionRow, error) {
	row := transactionRow{
		ID:          txn.ID,
		StudentID:   null.NewString(txn.StudentID, txn.StudentID != ""),
		Description: txn.Description,
		Amount:      txn.Amount,
		Type:        string(txn.Kind()),
		CreatedAt:   txn.CreatedAt,
	}
	switch e := txn.Event.(type) {
	case ledger.PaymentEvent:
		row.Reference = null.StringFrom(e.Reference)
		row.Year = null.StringFrom(e.Year)
		row.FeeName = null.StringFrom(e.FeeName)
		row.Method = null.StringFrom(e.Method)
	case ledger.FeeAddedEvent:
		row.Year = null.StringFrom(e.Year)
		row.FeeName = null.StringFrom(e.FeeName)
	case ledger.FeeRemovedEvent:
		row.Year = null.StringFrom(e.Year)
		row.FeeName = null.StringFrom(e.FeeName)
	default:
		return transactionRow{}, fmt.Errorf("unknown transaction event %T", txn.Event)
	}
	return row, nil
}

func (r transactionRow) toTransaction() (ledger.Transaction, error) {
	txn := ledger.Transaction{
		ID:          r.ID,
		StudentID:   r.StudentID.String,
		Description: r.Description,
		Amount:      r.Amount,
		CreatedAt:   r.CreatedAt.UTC(),
	}
	switch ledger.Kind(r.Type) {
	case ledger.KindPayment:
		txn.Event = ledger.PaymentEvent{
			Reference: r.Reference.String,
			Year:      r.Year.String,
			FeeName:   r.FeeName.String,
			Method:    r.Method.String,
		}
	case ledger.KindFeeAdded:
		txn.Event = ledger.FeeAddedEvent{Year: r.Year.String, FeeName: r.FeeName.String, Description: r.Description}
	case ledger.KindFeeRemoved:
		txn.Event = ledger.FeeRemovedEvent{Year: r.Year.String, FeeName: r.FeeName.String}
	default:
		return ledger.Transaction{}, fmt.Errorf("unknown transaction type %q", r.Type)
	}
	return txn, nil
}

type ledgerRepository struct {
	db *sqlx.DB
}

var _ ledger.Repository = (*ledgerRepository)(nil) // interface compliance check

func NewLedgerRepository(db *sqlx.DB) ledger.Repository {
	return &ledgerRepository{db: db}
}

// Atomic runs fn in one SQL transaction. On postgres the student row is locked for the duration.
func (repo *ledgerRepository) Atomic(ctx context.Context, studentID string, fn func(tx ledger.Tx) error) error {
	sqlTx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() { _ = sqlTx.Rollback() }()

	if studentID != "" && repo.db.DriverName() == "postgres" {
		if _, err = sqlTx.ExecContext(ctx, "SELECT id FROM students WHERE id = $1 FOR UPDATE", studentID); err != nil {
			return errors.Wrap(err, "locking student")
		}
	}

	if err = fn(&ledgerTx{ctx: ctx, tx: sqlTx, studentID: studentID}); err != nil {
		return err
	}
	return errors.Wrap(sqlTx.Commit(), "committing transaction")
}

func (repo *ledgerRepository) Catalog(ctx context.Context) ([]ledger.CatalogEntry, error) {
	var rows []catalogRow
	q := "SELECT id, name, description, amount, created_at FROM fees ORDER BY created_at, name"
	if err := repo.db.SelectContext(ctx, &rows, q); err != nil {
		return nil, errors.Wrap(err, "selecting fees")
	}
	catalog := make([]ledger.CatalogEntry, 0, len(rows))
	for _, r := range rows {
		catalog = append(catalog, ledger.CatalogEntry{
			ID:          r.ID,
			Name:        r.Name,
			Description: r.Description,
			Amount:      r.Amount,
			CreatedAt:   r.CreatedAt.UTC(),
		})
	}
	return catalog, nil
}

func (repo *ledgerRepository) AddCatalogEntry(ctx context.Context, entry ledger.CatalogEntry) (ledger.CatalogEntry, error) {
	var n int
	if err := repo.db.GetContext(ctx, &n, repo.db.Rebind("SELECT COUNT(*) FROM fees WHERE name = ?"), entry.Name); err != nil {
		return ledger.CatalogEntry{}, errors.Wrap(err, "checking fee name")
	}
	if n > 0 {
		return ledger.CatalogEntry{}, ledger.ErrCatalogEntryExists
	}
	q := repo.db.Rebind("INSERT INTO fees (id, name, description, amount, created_at) VALUES (?, ?, ?, ?, ?)")
	if _, err := repo.db.ExecContext(ctx, q, entry.ID, entry.Name, entry.Description, entry.Amount, entry.CreatedAt); err != nil {
		return ledger.CatalogEntry{}, errors.Wrap(err, "inserting fee")
	}
	return entry, nil
}

func (repo *ledgerRepository) Cells(ctx context.Context, studentID, year string) ([]ledger.Cell, error) {
	q := "SELECT student_id, fee_name, year, total_amount, due_amount, created_at, updated_at FROM student_fees WHERE student_id = ?"
	args := []interface{}{studentID}
	if year != "" {
		q += " AND year = ?"
		args = append(args, year)
	}
	q += " ORDER BY year, fee_name"

	var rows []cellRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting cells")
	}
	cells := make([]ledger.Cell, 0, len(rows))
	for _, r := range rows {
		cells = append(cells, r.toCell())
	}
	return cells, nil
}

func (repo *ledgerRepository) ExtraFees(ctx context.Context, studentID, year string) ([]ledger.ExtraFee, error) {
	q := "SELECT id, student_id, year, name, description, amount, created_at FROM extra_fees WHERE student_id = ?"
	args := []interface{}{studentID}
	if year != "" {
		q += " AND year = ?"
		args = append(args, year)
	}
	q += " ORDER BY created_at"

	var rows []extraFeeRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting extra fees")
	}
	fees := make([]ledger.ExtraFee, 0, len(rows))
	for _, r := range rows {
		fees = append(fees, ledger.ExtraFee{
			ID:          r.ID,
			StudentID:   r.StudentID,
			Year:        r.Year,
			Name:        r.Name,
			Description: r.Description,
			Amount:      r.Amount,
			CreatedAt:   r.CreatedAt.UTC(),
		})
	}
	return fees, nil
}

func (repo *ledgerRepository) Fines(ctx context.Context, studentID string) ([]ledger.FineMarker, error) {
	var rows []fineRow
	q := repo.db.Rebind("SELECT student_id, fee_name, created_at FROM student_fines WHERE student_id = ? ORDER BY fee_name")
	if err := repo.db.SelectContext(ctx, &rows, q, studentID); err != nil {
		return nil, errors.Wrap(err, "selecting fines")
	}
	fines := make([]ledger.FineMarker, 0, len(rows))
	for _, r := range rows {
		fines = append(fines, ledger.FineMarker{StudentID: r.StudentID, FeeName: r.FeeName, CreatedAt: r.CreatedAt.UTC()})
	}
	return fines, nil
}

func (repo *ledgerRepository) QueryTransactions(ctx context.Context, studentID string, kind ledger.Kind, ordering ...core.DBOrdering) ([]ledger.Transaction, error) {
	q := "SELECT id, student_id, description, amount, transaction_type, reference, year, fee_name, method, created_at " +
		"FROM transactions WHERE 1 = 1"
	var args []interface{}
	if studentID != "" {
		q += " AND student_id = ?"
		args = append(args, studentID)
	}
	if kind != "" {
		q += " AND transaction_type = ?"
		args = append(args, string(kind))
	}
	q += orderBy(ordering, transactionOrderings, "created_at DESC")

	var rows []transactionRow
	if err := repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "selecting transactions")
	}
	txns := make([]ledger.Transaction, 0, len(rows))
	for _, r := range rows {
		txn, err := r.toTransaction()
		if err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, nil
}

type ledgerTx struct {
	ctx       context.Context
	tx        *sqlx.Tx
	studentID string
}

var _ ledger.Tx = (*ledgerTx)(nil)

func (t *ledgerTx) exec(q string, args ...interface{}) (sql.Result, error) {
	return t.tx.ExecContext(t.ctx, t.tx.Rebind(q), args...)
}

func (t *ledgerTx) GetCell(key ledger.CellKey) (ledger.Cell, error) {
	var row cellRow
	q := "SELECT student_id, fee_name, year, total_amount, due_amount, created_at, updated_at " +
		"FROM student_fees WHERE student_id = ? AND year = ? AND fee_name = ?"
	if err := t.tx.GetContext(t.ctx, &row, t.tx.Rebind(q), t.studentID, key.Year, key.FeeName); err != nil {
		if err == sql.ErrNoRows {
			return ledger.Cell{}, ledger.ErrCellNotFound
		}
		return ledger.Cell{}, errors.Wrap(err, "selecting cell")
	}
	return row.toCell(), nil
}

func (t *ledgerTx) PutCell(cell ledger.Cell) error {
	q := "INSERT INTO student_fees (id, student_id, fee_name, year, total_amount, due_amount, paid_amount, created_at, updated_at) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?) " +
		"ON CONFLICT (student_id, year, fee_name) DO UPDATE SET " +
		"total_amount = excluded.total_amount, due_amount = excluded.due_amount, " +
		"paid_amount = excluded.paid_amount, updated_at = excluded.updated_at"
	_, err := t.exec(q,
		uuid.NewString(), cell.StudentID, cell.FeeName, cell.Year,
		cell.Total, cell.Due, cell.Paid(), cell.CreatedAt, cell.UpdatedAt,
	)
	return errors.Wrap(err, "upserting cell")
}

func (t *ledgerTx) DeleteCell(key ledger.CellKey) (bool, error) {
	res, err := t.exec("DELETE FROM student_fees WHERE student_id = ? AND year = ? AND fee_name = ?", t.studentID, key.Year, key.FeeName)
	if err != nil {
		return false, errors.Wrap(err, "deleting cell")
	}
	n, err := res.RowsAffected()
	return n > 0, errors.Wrap(err, "deleting cell")
}

func (t *ledgerTx) AddExtraFee(ef ledger.ExtraFee) error {
	_, err := t.exec(
		"INSERT INTO extra_fees (id, student_id, year, name, description, amount, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		ef.ID, ef.StudentID, ef.Year, ef.Name, ef.Description, ef.Amount, ef.CreatedAt,
	)
	return errors.Wrap(err, "inserting extra fee")
}

func (t *ledgerTx) DeleteExtraFees(key ledger.CellKey) (int, error) {
	res, err := t.exec("DELETE FROM extra_fees WHERE student_id = ? AND year = ? AND name = ?", t.studentID, key.Year, key.FeeName)
	if err != nil {
		return 0, errors.Wrap(err, "deleting extra fees")
	}
	n, err := res.RowsAffected()
	return int(n), errors.Wrap(err, "deleting extra fees")
}

func (t *ledgerTx) HasFine(feeName string) (bool, error) {
	var n int
	q := t.tx.Rebind("SELECT COUNT(*) FROM student_fines WHERE student_id = ? AND fee_name = ?")
	if err := t.tx.GetContext(t.ctx, &n, q, t.studentID, feeName); err != nil {
		return false, errors.Wrap(err, "selecting fine")
	}
	return n > 0, nil
}

func (t *ledgerTx) AddFine(fine ledger.FineMarker) error {
	_, err := t.exec(
		"INSERT INTO student_fines (student_id, fee_name, created_at) VALUES (?, ?, ?)",
		fine.StudentID, fine.FeeName, fine.CreatedAt,
	)
	return errors.Wrap(err, "inserting fine")
}

func (t *ledgerTx) DeleteFine(feeName string) error {
	_, err := t.exec("DELETE FROM student_fines WHERE student_id = ? AND fee_name = ?", t.studentID, feeName)
	return errors.Wrap(err, "deleting fine")
}

func (t *ledgerTx) AppendTransaction(txn ledger.Transaction) error {
	row, err := newTransactionRow(txn)
	if err != nil {
		return err
	}
	_, err = t.tx.NamedExecContext(t.ctx,
		"INSERT INTO transactions (id, student_id, description, amount, transaction_type, reference, year, fee_name, method, created_at) "+
			"VALUES (:id, :student_id, :description, :amount, :transaction_type, :reference, :year, :fee_name, :method, :created_at)",
		row,
	)
	return errors.Wrap(err, "inserting transaction")
}

func (t *ledgerTx) CheckStudentUniqueness(studentID, pin string) error {
	var found []struct {
		StudentID string `db:"student_id"`
		Pin       string `db:"pin"`
	}
	q := t.tx.Rebind("SELECT student_id, pin FROM students WHERE student_id = ? OR pin = ?")
	if err := t.tx.SelectContext(t.ctx, &found, q, studentID, pin); err != nil {
		return errors.Wrap(err, "checking student uniqueness")
	}
	for _, f := range found {
		if f.StudentID == studentID {
			return student.ErrStudentIDExists
		}
	}
	if len(found) > 0 {
		return student.ErrPinExists
	}
	return nil
}

func (t *ledgerTx) CreateStudent(s student.Student) (student.Student, error) {
	_, err := t.tx.NamedExecContext(t.ctx,
		"INSERT INTO students ("+studentColumns+") VALUES "+
			"(:id, :student_id, :pin, :name, :course, :branch, :mobile, :password, :photo_color, :created_at, :updated_at)",
		studentRow{
			ID:         s.ID,
			StudentID:  s.StudentID,
			Pin:        s.Pin,
			Name:       s.Name,
			Course:     s.Course,
			Branch:     s.Branch,
			Mobile:     s.Mobile,
			Password:   s.PasswordHash,
			PhotoColor: s.PhotoColor,
			CreatedAt:  s.CreatedAt,
			UpdatedAt:  s.UpdatedAt,
		},
	)
	if err != nil {
		switch uniqueViolation(err) {
		case "student_id":
			return student.Student{}, student.ErrStudentIDExists
		case "pin":
			return student.Student{}, student.ErrPinExists
		}
		return student.Student{}, errors.Wrap(err, "inserting student")
	}
	return s, nil
}

// uniqueViolation returns the students column whose UNIQUE constraint err violates, if any.
// A concurrent enrollment can pass CheckStudentUniqueness and still lose the insert.
func uniqueViolation(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		if pqErr.Code != "23505" {
			return ""
		}
		switch pqErr.Constraint {
		case "students_student_id_key":
			return "student_id"
		case "students_pin_key":
			return "pin"
		}
		return ""
	}
	// sqlite only reports the column in the message
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed: students.student_id"):
		return "student_id"
	case strings.Contains(msg, "UNIQUE constraint failed: students.pin"):
		return "pin"
	}
	return ""
}
