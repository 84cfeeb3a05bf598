package ledger

import (
	"encoding/json"
	"fmt"
	"time"
)

type Kind string

const (
	KindPayment    Kind = "payment"
	KindFeeAdded   Kind = "fee_added"
	KindFeeRemoved Kind = "fee_removed"
)

var Kinds = []Kind{KindPayment, KindFeeAdded, KindFeeRemoved}

func (k Kind) IsValid() bool {
	for _, kind := range Kinds {
		if k == kind {
			return true
		}
	}
	return false
}

// Event carries the fields that only make sense for one Kind of Transaction.
// Implemented by PaymentEvent, FeeAddedEvent and FeeRemovedEvent only.
type Event interface {
	Kind() Kind
	isEvent()
}

type PaymentEvent struct {
	Reference string
	Year      string
	FeeName   string
	Method    string
}

type FeeAddedEvent struct {
	Year        string
	FeeName     string
	Description string
}

type FeeRemovedEvent struct {
	Year    string
	FeeName string
}

func (PaymentEvent) Kind() Kind    { return KindPayment }
func (FeeAddedEvent) Kind() Kind   { return KindFeeAdded }
func (FeeRemovedEvent) Kind() Kind { return KindFeeRemoved }

func (PaymentEvent) isEvent()    {}
func (FeeAddedEvent) isEvent()   {}
func (FeeRemovedEvent) isEvent() {}

// Transaction is an immutable record of a ledger-affecting event.
type Transaction struct {
	ID          string
	StudentID   string
	Description string
	Amount      int64
	CreatedAt   time.Time
	Event       Event
}

func (t Transaction) Kind() Kind {
	if t.Event == nil {
		return ""
	}
	return t.Event.Kind()
}

// YearAndFee returns the year and fee name every event carries.
func (t Transaction) YearAndFee() (string, string) {
	switch e := t.Event.(type) {
	case PaymentEvent:
		return e.Year, e.FeeName
	case FeeAddedEvent:
		return e.Year, e.FeeName
	case FeeRemovedEvent:
		return e.Year, e.FeeName
	default:
		return "", ""
	}
}

// Summary is the one-line text shown in transaction listings.
func (t Transaction) Summary() string {
	switch e := t.Event.(type) {
	case PaymentEvent:
		return fmt.Sprintf("%s: paid %d for %s (%s) via %s", e.Reference, t.Amount, e.FeeName, e.Year, e.Method)
	case FeeAddedEvent:
		return fmt.Sprintf("%s (%s) added: %d", e.FeeName, e.Year, t.Amount)
	case FeeRemovedEvent:
		return fmt.Sprintf("%s (%s) removed", e.FeeName, e.Year)
	default:
		return t.Description
	}
}

type transactionJSON struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"student"`
	Kind        Kind      `json:"kind"`
	Description string    `json:"description"`
	Amount      int64     `json:"amount"`
	Reference   string    `json:"reference,omitempty"`
	Year        string    `json:"year,omitempty"`
	FeeName     string    `json:"fee_name,omitempty"`
	Method      string    `json:"method,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (t Transaction) MarshalJSON() ([]byte, error) {
	tj := transactionJSON{
		ID:          t.ID,
		StudentID:   t.StudentID,
		Kind:        t.Kind(),
		Description: t.Description,
		Amount:      t.Amount,
		CreatedAt:   t.CreatedAt,
	}
	switch e := t.Event.(type) {
	case PaymentEvent:
		tj.Reference, tj.Year, tj.FeeName, tj.Method = e.Reference, e.Year, e.FeeName, e.Method
	case FeeAddedEvent:
		tj.Year, tj.FeeName = e.Year, e.FeeName
	case FeeRemovedEvent:
		tj.Year, tj.FeeName = e.Year, e.FeeName
	}
	return json.Marshal(tj)
}

// TransactionFilter selects transactions; StudentID is the admin-assigned id.
type TransactionFilter struct {
	StudentID string `query:"student_id"`
	Kind      Kind   `query:"kind"`
}
