package ledger

import (
	"time"

	"github.com/trezcool/feeportal/core"
)

// PaymentMethods are the methods offered on the payment form. Informational only: any non-blank method is accepted.
var PaymentMethods = []string{
	"Credit Card",
	"Debit Card",
	"UPI",
	"PhonePe",
	"GooglePay",
	"Paytm",
	"Amazon Pay",
	"PayPal",
	"Super Money",
}

// CatalogEntry is a fee type and its canonical per-year amount.
type CatalogEntry struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}

type NewCatalogEntry struct {
	Name        string `json:"name" validate:"required,notblank"`
	Description string `json:"description"`
	Amount      int64  `json:"amount" validate:"min=0"`
}

func (ne *NewCatalogEntry) Clean() {
	ne.Name = core.CleanString(ne.Name)
	ne.Description = core.CleanString(ne.Description)
}

type CellKey struct {
	Year    string
	FeeName string
}

// Cell is one ledger entry: what a student owes for one fee in one academic year.
// 0 <= Due <= Total always holds.
type Cell struct {
	StudentID string    `json:"-"`
	Year      string    `json:"year"`
	FeeName   string    `json:"fee_name"`
	Total     int64     `json:"total"`
	Due       int64     `json:"due"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Cell) Key() CellKey {
	return CellKey{Year: c.Year, FeeName: c.FeeName}
}

func (c Cell) Paid() int64 {
	return c.Total - c.Due
}

// Ledger maps year -> fee name -> Cell.
type Ledger map[string]map[string]Cell

// ExtraFee is an ad-hoc charge added outside the catalog.
type ExtraFee struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"-"`
	Year        string    `json:"year"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	CreatedAt   time.Time `json:"created_at"`
}

func (ef ExtraFee) Key() CellKey {
	return CellKey{Year: ef.Year, FeeName: ef.Name}
}

type NewExtraFee struct {
	Year        string `json:"year" validate:"required,academicyear"`
	Name        string `json:"name" validate:"required,notblank"`
	Description string `json:"description"`
	Amount      int64  `json:"amount" validate:"gt=0"`
}

func (ne *NewExtraFee) Clean() {
	ne.Year = core.CleanString(ne.Year)
	ne.Name = core.CleanString(ne.Name)
	ne.Description = core.CleanString(ne.Description)
}

// FineMarker flags a fee as delinquent for a student. It references the fee by name only.
type FineMarker struct {
	StudentID string    `json:"-"`
	FeeName   string    `json:"fee_name"`
	CreatedAt time.Time `json:"created_at"`
}

type PaymentRequest struct {
	Year    string `json:"year"`
	FeeName string `json:"fee_name"`
	Amount  int64  `json:"amount"`
	Method  string `json:"method"`
}

func (pr *PaymentRequest) Clean() {
	pr.Year = core.CleanString(pr.Year)
	pr.FeeName = core.CleanString(pr.FeeName)
	pr.Method = core.CleanString(pr.Method)
}

// FeeLine is one row of a Statement.
type FeeLine struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Total       int64  `json:"total"`
	Due         int64  `json:"due"`
	Paid        int64  `json:"paid"`
	Fine        bool   `json:"fine"`  // delinquent and still due
	Extra       bool   `json:"extra"` // not a catalog fee
}

// Statement lists a student's fees for one year, catalog fees first then extra fees.
type Statement struct {
	StudentID string    `json:"student_id"`
	Year      string    `json:"year"`
	Currency  string    `json:"currency"`
	Lines     []FeeLine `json:"lines"`
	Total     int64     `json:"total"`
	Due       int64     `json:"due"`
	Paid      int64     `json:"paid"`
}
