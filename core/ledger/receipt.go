package ledger

import (
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/feeportal/core/student"
)

// Receipt is returned by a successful payment. It is not persisted.
type Receipt struct {
	Reference    string    `json:"reference"`
	Timestamp    time.Time `json:"timestamp"`
	StudentID    string    `json:"student_id"`
	StudentName  string    `json:"student_name"`
	Course       string    `json:"course"`
	Branch       string    `json:"branch"`
	Pin          string    `json:"pin"`
	Year         string    `json:"year"`
	FeeName      string    `json:"fee_name"`
	Method       string    `json:"method"`
	Amount       int64     `json:"amount"`
	RemainingDue int64     `json:"remaining_due"`
	Currency     string    `json:"currency"`
}

func newReceipt(s student.Student, txn Transaction, evt PaymentEvent, remaining int64, currency string) Receipt {
	return Receipt{
		Reference:    evt.Reference,
		Timestamp:    txn.CreatedAt,
		StudentID:    s.StudentID,
		StudentName:  s.Name,
		Course:       s.Course,
		Branch:       s.Branch,
		Pin:          s.Pin,
		Year:         evt.Year,
		FeeName:      evt.FeeName,
		Method:       evt.Method,
		Amount:       txn.Amount,
		RemainingDue: remaining,
		Currency:     currency,
	}
}

// WriteText renders the downloadable plain-text receipt.
func (r Receipt) WriteText(w io.Writer) error {
	lines := []struct{ label, value string }{
		{"Transaction ID", r.Reference},
		{"Date", r.Timestamp.Format("2006-01-02 15:04:05 MST")},
		{"Student ID", r.StudentID},
		{"Name", r.StudentName},
		{"Course", r.Course},
		{"Branch", r.Branch},
		{"PIN", r.Pin},
		{"Academic Year", r.Year},
		{"Fee Type", r.FeeName},
		{"Payment Method", r.Method},
		{"Amount Paid", fmt.Sprintf("%s %d", r.Currency, r.Amount)},
		{"Remaining Due", fmt.Sprintf("%s %d", r.Currency, r.RemainingDue)},
	}
	if _, err := fmt.Fprint(w, "PAYMENT RECEIPT\n===============\n"); err != nil {
		return errors.Wrap(err, "writing receipt header")
	}
	for _, l := range lines {
		if _, err := fmt.Fprintf(w, "%-15s: %s\n", l.label, l.value); err != nil {
			return errors.Wrap(err, "writing receipt line")
		}
	}
	return nil
}
