package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/xid"

	"github.com/trezcool/feeportal/core"
	"github.com/trezcool/feeportal/core/student"
)

var (
	// errors
	ErrCellNotFound       = core.NewNotFoundError("fee not found for this student/year")
	ErrFeeNotFound        = core.NewNotFoundError("fee type not found for this student/year")
	ErrCatalogEntryExists = errors.New("a fee with this name already exists")

	errNoFeeSelected  = core.NewValidationError(errors.New("no fee type selected"), core.FieldError{Field: "fee_name", Error: "no fee type selected"})
	errInvalidAmount  = core.NewValidationError(errors.New("invalid amount"), core.FieldError{Field: "amount", Error: "invalid amount"})
	errInvalidMethod  = core.NewValidationError(errors.New("invalid payment method"), core.FieldError{Field: "method", Error: "invalid payment method"})
	errInvalidYear    = core.NewValidationError(errors.New("unknown academic year"), core.FieldError{Field: "year", Error: "unknown academic year"})
	errInvalidKind    = core.NewValidationError(errors.New("unknown transaction kind"), core.FieldError{Field: "kind", Error: "unknown transaction kind"})
	errAmountExceeded = core.NewConflictError("amount exceeds due amount")
	errAmountTooLarge = core.NewValidationError(errors.New("amount is too large"), core.FieldError{Field: "amount", Error: "amount is too large"})
	errNothingDue     = core.NewConflictError("nothing is due for this fee")

	transactionOrderings = map[string]bool{"created_at": true, "amount": true}
)

type (
	// Tx is a unit of work against one student's ledger (or the student registry, for enrollment).
	// Every write made through a Tx is discarded if the Atomic callback returns an error.
	Tx interface {
		GetCell(key CellKey) (Cell, error) // ErrCellNotFound
		PutCell(cell Cell) error
		DeleteCell(key CellKey) (bool, error)
		AddExtraFee(ef ExtraFee) error
		DeleteExtraFees(key CellKey) (int, error)
		HasFine(feeName string) (bool, error)
		AddFine(fine FineMarker) error
		DeleteFine(feeName string) error
		AppendTransaction(txn Transaction) error
		CheckStudentUniqueness(studentID, pin string) error // student.ErrStudentIDExists | student.ErrPinExists
		CreateStudent(s student.Student) (student.Student, error)
	}

	Repository interface {
		// Atomic runs fn in one unit of work, mutually exclusive with any other unit of work on studentID.
		// An empty studentID is used for enrollment.
		Atomic(ctx context.Context, studentID string, fn func(tx Tx) error) error

		Catalog(ctx context.Context) ([]CatalogEntry, error) // in creation order
		AddCatalogEntry(ctx context.Context, entry CatalogEntry) (CatalogEntry, error)
		// Cells returns the student's cells for year, or for all years if year is empty.
		Cells(ctx context.Context, studentID, year string) ([]Cell, error)
		ExtraFees(ctx context.Context, studentID, year string) ([]ExtraFee, error)
		Fines(ctx context.Context, studentID string) ([]FineMarker, error)
		// QueryTransactions filters on the internal student ID.
		QueryTransactions(ctx context.Context, studentID string, kind Kind, ordering ...core.DBOrdering) ([]Transaction, error)
	}

	// Students resolves the admin-assigned student id.
	Students interface {
		GetByStudentID(ctx context.Context, studentID string) (student.Student, error)
	}

	Service struct {
		repo       Repository
		students   Students
		fees       core.FeesConfig
		validate   *validator.Validate
		translator ut.Translator
	}
)

func NewService(
	repo Repository,
	students Students,
	fees core.FeesConfig,
	validate *validator.Validate,
	translator ut.Translator,
) *Service {
	return &Service{
		repo:       repo,
		students:   students,
		fees:       fees,
		validate:   validate,
		translator: translator,
	}
}

// storageErr leaves domain errors untouched and reports anything else as a PersistenceError.
func storageErr(err error, msg string) error {
	if err == nil || core.IsValidation(err) || core.IsNotFound(err) || core.IsConflict(err) || core.IsPersistence(err) {
		return err
	}
	return core.NewPersistenceError(err, msg)
}

// SeedCells creates one cell per catalog entry and year, with total = due = the catalog amount.
func SeedCells(tx Tx, studentID string, catalog []CatalogEntry, years []string) error {
	now := core.NowFunc()
	for _, year := range years {
		for _, entry := range catalog {
			cell := Cell{
				StudentID: studentID,
				Year:      year,
				FeeName:   entry.Name,
				Total:     entry.Amount,
				Due:       entry.Amount,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := tx.PutCell(cell); err != nil {
				return pkgerrors.Wrapf(err, "seeding %s/%s", year, entry.Name)
			}
		}
	}
	return nil
}

// Enroll creates a student and seeds their ledger for every configured year, all or nothing.
func (svc *Service) Enroll(ctx context.Context, ns student.NewStudent) (student.Student, error) {
	if err := ns.Validate(svc.validate, svc.translator); err != nil {
		return student.Student{}, err
	}
	s, err := ns.Build()
	if err != nil {
		return student.Student{}, pkgerrors.Wrap(err, "building student")
	}
	catalog, err := svc.repo.Catalog(ctx)
	if err != nil {
		return student.Student{}, storageErr(err, "loading catalog")
	}

	err = svc.repo.Atomic(ctx, "", func(tx Tx) error {
		if err := tx.CheckStudentUniqueness(s.StudentID, s.Pin); err != nil {
			return student.UniquenessError(err)
		}
		created, err := tx.CreateStudent(s)
		if err != nil {
			return student.UniquenessError(err)
		}
		s = created
		return SeedCells(tx, s.ID, catalog, svc.fees.AcademicYears)
	})
	if err != nil {
		return student.Student{}, storageErr(err, "enrolling student")
	}
	return s, nil
}

// AddCatalogEntry only affects students enrolled afterwards.
func (svc *Service) AddCatalogEntry(ctx context.Context, ne NewCatalogEntry) (CatalogEntry, error) {
	ne.Clean()
	if err := svc.validate.Struct(ne); err != nil {
		return CatalogEntry{}, core.TranslateValidationErrors(err, svc.translator)
	}
	entry, err := svc.repo.AddCatalogEntry(ctx, CatalogEntry{
		ID:          uuid.NewString(),
		Name:        ne.Name,
		Description: ne.Description,
		Amount:      ne.Amount,
		CreatedAt:   core.NowFunc(),
	})
	if err == ErrCatalogEntryExists {
		return CatalogEntry{}, core.NewValidationError(err, core.FieldError{Field: "name", Error: err.Error()})
	}
	return entry, storageErr(err, "adding catalog entry")
}

func (svc *Service) Catalog(ctx context.Context) ([]CatalogEntry, error) {
	catalog, err := svc.repo.Catalog(ctx)
	return catalog, storageErr(err, "loading catalog")
}

// AddExtraFee charges an ad-hoc fee. Not idempotent: adding the same fee twice doubles the charge.
func (svc *Service) AddExtraFee(ctx context.Context, studentID string, ne NewExtraFee) (ExtraFee, error) {
	ne.Clean()
	if err := svc.validate.Struct(ne); err != nil {
		return ExtraFee{}, core.TranslateValidationErrors(err, svc.translator)
	}
	s, err := svc.students.GetByStudentID(ctx, studentID)
	if err != nil {
		return ExtraFee{}, storageErr(err, "finding student")
	}

	now := core.NowFunc()
	ef := ExtraFee{
		ID:          uuid.NewString(),
		StudentID:   s.ID,
		Year:        ne.Year,
		Name:        ne.Name,
		Description: ne.Description,
		Amount:      ne.Amount,
		CreatedAt:   now,
	}
	err = svc.repo.Atomic(ctx, s.ID, func(tx Tx) error {
		cell, err := tx.GetCell(ef.Key())
		switch {
		case err == nil:
			// due never exceeds total, so checking total covers both
			if cell.Total > math.MaxInt64-ef.Amount {
				return errAmountTooLarge
			}
			cell.Total += ef.Amount
			cell.Due += ef.Amount
			cell.UpdatedAt = now
		case core.IsNotFound(err):
			cell = Cell{
				StudentID: s.ID,
				Year:      ef.Year,
				FeeName:   ef.Name,
				Total:     ef.Amount,
				Due:       ef.Amount,
				CreatedAt: now,
				UpdatedAt: now,
			}
		default:
			return err
		}
		if err := tx.PutCell(cell); err != nil {
			return err
		}
		if err := tx.AddExtraFee(ef); err != nil {
			return err
		}
		return tx.AppendTransaction(Transaction{
			ID:          uuid.NewString(),
			StudentID:   s.ID,
			Description: fmt.Sprintf("Extra fee %q added for %s: %s", ef.Name, ef.Year, ef.Description),
			Amount:      ef.Amount,
			CreatedAt:   now,
			Event:       FeeAddedEvent{Year: ef.Year, FeeName: ef.Name, Description: ef.Description},
		})
	})
	if err != nil {
		return ExtraFee{}, storageErr(err, "adding extra fee")
	}
	return ef, nil
}

// RemoveFee drops the (year, feeName) cell and any matching extra fee, whatever is still due.
// Fine markers on feeName are kept.
func (svc *Service) RemoveFee(ctx context.Context, studentID, year, feeName string) error {
	s, err := svc.students.GetByStudentID(ctx, studentID)
	if err != nil {
		return storageErr(err, "finding student")
	}
	return svc.removeFee(ctx, s, year, feeName)
}

// RemoveFeeByIdentity is RemoveFee for callers that only know the student's (name, pin, branch).
func (svc *Service) RemoveFeeByIdentity(ctx context.Context, finder IdentityFinder, name, pin, branch, year, feeName string) error {
	s, err := finder.FindByIdentity(ctx, name, pin, branch)
	if err != nil {
		return storageErr(err, "finding student")
	}
	return svc.removeFee(ctx, s, year, feeName)
}

// IdentityFinder resolves a student from the (name, pin, branch) triple.
type IdentityFinder interface {
	FindByIdentity(ctx context.Context, name, pin, branch string) (student.Student, error)
}

func (svc *Service) removeFee(ctx context.Context, s student.Student, year, feeName string) error {
	key := CellKey{Year: core.CleanString(year), FeeName: core.CleanString(feeName)}
	err := svc.repo.Atomic(ctx, s.ID, func(tx Tx) error {
		cellRemoved, err := tx.DeleteCell(key)
		if err != nil {
			return err
		}
		n, err := tx.DeleteExtraFees(key)
		if err != nil {
			return err
		}
		if !cellRemoved && n == 0 {
			return ErrFeeNotFound
		}
		return tx.AppendTransaction(Transaction{
			ID:          uuid.NewString(),
			StudentID:   s.ID,
			Description: fmt.Sprintf("Fee %q removed for %s", key.FeeName, key.Year),
			Amount:      0,
			CreatedAt:   core.NowFunc(),
			Event:       FeeRemovedEvent{Year: key.Year, FeeName: key.FeeName},
		})
	})
	return storageErr(err, "removing fee")
}

// Pay applies a payment to one cell. Checks run in order: fee exists, amount > 0, amount <= due, method set.
func (svc *Service) Pay(ctx context.Context, studentID string, pr PaymentRequest) (Receipt, error) {
	pr.Clean()
	s, err := svc.students.GetByStudentID(ctx, studentID)
	if err != nil {
		return Receipt{}, storageErr(err, "finding student")
	}

	var receipt Receipt
	err = svc.repo.Atomic(ctx, s.ID, func(tx Tx) error {
		cell, err := tx.GetCell(CellKey{Year: pr.Year, FeeName: pr.FeeName})
		if err != nil {
			if core.IsNotFound(err) {
				return errNoFeeSelected
			}
			return err
		}
		if pr.Amount <= 0 {
			return errInvalidAmount
		}
		if pr.Amount > cell.Due {
			return errAmountExceeded
		}
		if pr.Method == "" {
			return errInvalidMethod
		}

		now := core.NowFunc()
		cell.Due -= pr.Amount
		cell.UpdatedAt = now
		if err := tx.PutCell(cell); err != nil {
			return err
		}
		if cell.Due == 0 {
			if err := tx.DeleteFine(cell.FeeName); err != nil {
				return err
			}
		}

		evt := PaymentEvent{
			Reference: newReference(),
			Year:      cell.Year,
			FeeName:   cell.FeeName,
			Method:    pr.Method,
		}
		txn := Transaction{
			ID:          uuid.NewString(),
			StudentID:   s.ID,
			Description: fmt.Sprintf("%s payment for %s (%s) via %s", evt.Reference, evt.FeeName, evt.Year, evt.Method),
			Amount:      pr.Amount,
			CreatedAt:   now,
			Event:       evt,
		}
		if err := tx.AppendTransaction(txn); err != nil {
			return err
		}
		receipt = newReceipt(s, txn, evt, cell.Due, svc.fees.Currency)
		return nil
	})
	if err != nil {
		return Receipt{}, storageErr(err, "paying fee")
	}
	return receipt, nil
}

func newReference() string {
	return "TXN" + strings.ToUpper(xid.New().String())
}

// FlagFine marks feeName as delinquent; the (year, feeName) cell must exist and still be due.
func (svc *Service) FlagFine(ctx context.Context, studentID, year, feeName string) error {
	s, err := svc.students.GetByStudentID(ctx, studentID)
	if err != nil {
		return storageErr(err, "finding student")
	}
	key := CellKey{Year: core.CleanString(year), FeeName: core.CleanString(feeName)}
	err = svc.repo.Atomic(ctx, s.ID, func(tx Tx) error {
		cell, err := tx.GetCell(key)
		if err != nil {
			return err
		}
		if cell.Due == 0 {
			return errNothingDue
		}
		fined, err := tx.HasFine(key.FeeName)
		if err != nil || fined {
			return err
		}
		return tx.AddFine(FineMarker{StudentID: s.ID, FeeName: key.FeeName, CreatedAt: core.NowFunc()})
	})
	return storageErr(err, "flagging fine")
}

func (svc *Service) IsDelinquent(ctx context.Context, studentID, feeName string) (bool, error) {
	s, err := svc.students.GetByStudentID(ctx, studentID)
	if err != nil {
		return false, storageErr(err, "finding student")
	}
	fines, err := svc.repo.Fines(ctx, s.ID)
	if err != nil {
		return false, storageErr(err, "loading fines")
	}
	feeName = core.CleanString(feeName)
	for _, f := range fines {
		if f.FeeName == feeName {
			return true, nil
		}
	}
	return false, nil
}

// Ledger returns every cell of the student, by year then fee name.
func (svc *Service) Ledger(ctx context.Context, studentID string) (Ledger, error) {
	s, err := svc.students.GetByStudentID(ctx, studentID)
	if err != nil {
		return nil, storageErr(err, "finding student")
	}
	cells, err := svc.repo.Cells(ctx, s.ID, "")
	if err != nil {
		return nil, storageErr(err, "loading cells")
	}
	l := make(Ledger, len(svc.fees.AcademicYears))
	for _, c := range cells {
		if l[c.Year] == nil {
			l[c.Year] = make(map[string]Cell)
		}
		l[c.Year][c.FeeName] = c
	}
	return l, nil
}

// Details lists every fee billed for year.
func (svc *Service) Details(ctx context.Context, studentID, year string) (Statement, error) {
	return svc.statement(ctx, studentID, year, false)
}

// Dues lists the fees of year that are still due.
func (svc *Service) Dues(ctx context.Context, studentID, year string) (Statement, error) {
	return svc.statement(ctx, studentID, year, true)
}

func (svc *Service) statement(ctx context.Context, studentID, year string, dueOnly bool) (Statement, error) {
	year = core.CleanString(year)
	if !svc.fees.HasAcademicYear(year) {
		return Statement{}, errInvalidYear
	}
	s, err := svc.students.GetByStudentID(ctx, studentID)
	if err != nil {
		return Statement{}, storageErr(err, "finding student")
	}
	catalog, err := svc.repo.Catalog(ctx)
	if err != nil {
		return Statement{}, storageErr(err, "loading catalog")
	}
	cells, err := svc.repo.Cells(ctx, s.ID, year)
	if err != nil {
		return Statement{}, storageErr(err, "loading cells")
	}
	extras, err := svc.repo.ExtraFees(ctx, s.ID, year)
	if err != nil {
		return Statement{}, storageErr(err, "loading extra fees")
	}
	fines, err := svc.repo.Fines(ctx, s.ID)
	if err != nil {
		return Statement{}, storageErr(err, "loading fines")
	}

	catalogIdx := make(map[string]int, len(catalog))
	descriptions := make(map[string]string, len(catalog)+len(extras))
	for i, e := range catalog {
		catalogIdx[e.Name] = i
		descriptions[e.Name] = e.Description
	}
	isExtra := make(map[string]bool, len(extras))
	for _, ef := range extras {
		isExtra[ef.Name] = true
		if ef.Description != "" {
			descriptions[ef.Name] = ef.Description // latest wins
		}
	}
	fined := make(map[string]bool, len(fines))
	for _, f := range fines {
		fined[f.FeeName] = true
	}

	sortCells(cells, catalogIdx)

	st := Statement{StudentID: s.StudentID, Year: year, Currency: svc.fees.Currency, Lines: []FeeLine{}}
	for _, c := range cells {
		if dueOnly && c.Due == 0 {
			continue
		}
		_, inCatalog := catalogIdx[c.FeeName]
		st.Lines = append(st.Lines, FeeLine{
			Name:        c.FeeName,
			Description: descriptions[c.FeeName],
			Total:       c.Total,
			Due:         c.Due,
			Paid:        c.Paid(),
			Fine:        c.Due > 0 && fined[c.FeeName],
			Extra:       isExtra[c.FeeName] || !inCatalog,
		})
		st.Total += c.Total
		st.Due += c.Due
		st.Paid += c.Paid()
	}
	return st, nil
}

// sortCells orders catalog fees in catalog order, then the others by name.
func sortCells(cells []Cell, catalogIdx map[string]int) {
	sort.SliceStable(cells, func(i, j int) bool {
		ci, iok := catalogIdx[cells[i].FeeName]
		cj, jok := catalogIdx[cells[j].FeeName]
		switch {
		case iok && jok:
			return ci < cj
		case iok != jok:
			return iok
		default:
			return cells[i].FeeName < cells[j].FeeName
		}
	})
}

// Transactions lists transactions, most recent first unless ordering says otherwise.
func (svc *Service) Transactions(ctx context.Context, filter TransactionFilter, ordering ...core.DBOrdering) ([]Transaction, error) {
	filter.StudentID = core.CleanString(filter.StudentID)
	if filter.Kind != "" && !filter.Kind.IsValid() {
		return nil, errInvalidKind
	}
	var id string
	if filter.StudentID != "" {
		s, err := svc.students.GetByStudentID(ctx, filter.StudentID)
		if err != nil {
			return nil, storageErr(err, "finding student")
		}
		id = s.ID
	}
	for _, ord := range ordering {
		if !transactionOrderings[ord.Field] {
			return nil, core.NewValidationError(nil, core.FieldError{Field: "ordering", Error: "cannot order by " + ord.Field})
		}
	}
	if len(ordering) == 0 {
		ordering = []core.DBOrdering{{Field: "created_at", Ascending: false}}
	}
	txns, err := svc.repo.QueryTransactions(ctx, id, filter.Kind, ordering...)
	return txns, storageErr(err, "querying transactions")
}

// RecentTransactions returns the student's last n transactions, most recent first.
func (svc *Service) RecentTransactions(ctx context.Context, studentID string, n int) ([]Transaction, error) {
	txns, err := svc.Transactions(ctx, TransactionFilter{StudentID: studentID})
	if err != nil {
		return nil, err
	}
	if n >= 0 && len(txns) > n {
		txns = txns[:n]
	}
	return txns, nil
}
