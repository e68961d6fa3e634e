package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TopicLoanCreated       = "loan_created"
	TopicRepaymentReceived = "repayment_received"
)

type LoanCreated struct {
	LoanID       string          `json:"loan_id"`
	CustomerKey  string          `json:"customer_key"`
	Amount       decimal.Decimal `json:"amount"`
	CurrencyCode string          `json:"currency_code"`
	Terms        int             `json:"terms"`
	ProcessedAt  time.Time       `json:"processed_at"`
}

type RepaymentReceived struct {
	RepaymentID     string          `json:"repayment_id"`
	LoanID          string          `json:"loan_id"`
	Amount          decimal.Decimal `json:"amount"`
	CurrencyCode    string          `json:"currency_code"`
	ReceivedAt      time.Time       `json:"received_at"`
	LoanOutstanding decimal.Decimal `json:"loan_outstanding"`
	LoanStatus      string          `json:"loan_status"`
}
