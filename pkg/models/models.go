package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Loan and ScheduledRepayment share a two-state lifecycle. Transitions are
// one-way: once repaid, a record never goes back to due.
const (
	StatusDue    = "due"
	StatusRepaid = "repaid"
)

// Loan is a disbursed principal to be repaid over a fixed number of monthly
// installments. Amounts are integer values in the smallest currency unit.
type Loan struct {
	ID                uuid.UUID       `json:"id"`
	CustomerKey       string          `json:"customer_key"` // Link to external customer system
	Amount            decimal.Decimal `json:"amount"`
	CurrencyCode      string          `json:"currency_code"` // ISO 4217, 3-letter
	Terms             int             `json:"terms"`
	ProcessedAt       time.Time       `json:"processed_at"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"` // not floored; may go negative on overpayment
	Status            string          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// ScheduledRepayment is one planned installment of a loan.
type ScheduledRepayment struct {
	ID                uuid.UUID       `json:"id"`
	LoanID            uuid.UUID       `json:"loan_id"`
	Amount            decimal.Decimal `json:"amount"`
	OutstandingAmount decimal.Decimal `json:"outstanding_amount"` // floored at 0
	CurrencyCode      string          `json:"currency_code"`
	DueDate           time.Time       `json:"due_date"`
	Status            string          `json:"status"`
}

// ReceivedRepayment records one actual repayment event. Rows are append-only
// and not necessarily aligned 1:1 with scheduled installments.
type ReceivedRepayment struct {
	ID           uuid.UUID       `json:"id"`
	LoanID       uuid.UUID       `json:"loan_id"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
	ReceivedAt   time.Time       `json:"received_at"`
}
