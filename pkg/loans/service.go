package loans

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"loanbook/pkg/events"
	"loanbook/pkg/models"
	"loanbook/pkg/store"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidTerms  = errors.New("terms must be positive")
)

// Service handles the business logic for loans and repayments.
type Service struct {
	storage   store.Storage
	publisher events.Publisher
}

// NewService creates a new Service with a given Storage implementation.
// A nil publisher disables event publishing.
func NewService(s store.Storage, pub events.Publisher) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Service{
		storage:   s,
		publisher: pub,
	}
}

// CreateLoan disburses a new loan and generates its amortization schedule:
// one installment of round(amount/terms) per term, due one calendar month
// apart starting one month after processedAt. Rounding is half away from
// zero, so the schedule total may drift from the principal by up to terms-1
// smallest units; the residual is not reconciled with a final balloon row.
func (s *Service) CreateLoan(customerKey string, amount decimal.Decimal, currencyCode string, terms int, processedAt time.Time) (*models.Loan, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}
	if terms <= 0 {
		return nil, ErrInvalidTerms
	}

	now := time.Now()
	loan := &models.Loan{
		ID:                uuid.New(),
		CustomerKey:       customerKey,
		Amount:            amount,
		CurrencyCode:      currencyCode,
		Terms:             terms,
		ProcessedAt:       processedAt,
		OutstandingAmount: amount,
		Status:            models.StatusDue,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	installment := amount.Div(decimal.NewFromInt(int64(terms))).Round(0)

	schedule := make([]*models.ScheduledRepayment, 0, terms)
	for i := 0; i < terms; i++ {
		schedule = append(schedule, &models.ScheduledRepayment{
			ID:                uuid.New(),
			LoanID:            loan.ID,
			Amount:            installment,
			OutstandingAmount: installment,
			CurrencyCode:      currencyCode,
			DueDate:           addMonths(processedAt, i+1),
			Status:            models.StatusDue,
		})
	}

	if err := s.storage.CreateLoan(loan, schedule); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	s.publish(events.TopicLoanCreated, events.LoanCreated{
		LoanID:       loan.ID.String(),
		CustomerKey:  loan.CustomerKey,
		Amount:       loan.Amount,
		CurrencyCode: loan.CurrencyCode,
		Terms:        loan.Terms,
		ProcessedAt:  loan.ProcessedAt,
	})

	return loan, nil
}

// RepayLoan applies a single repayment event against a loan. The loan's
// outstanding amount drops by the full received amount and may go negative;
// at most one schedule row is touched per call (the earliest-due row still
// in status due), with its outstanding floored at zero. The touched row's
// status follows the loan-level remaining balance, not the row's own: a
// partial repayment that zeroes the row still leaves it due until the loan
// itself is settled. Overpayment never cascades into later rows.
func (s *Service) RepayLoan(loanID uuid.UUID, amount decimal.Decimal, currencyCode string, receivedAt time.Time) (*models.ReceivedRepayment, error) {
	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, ErrInvalidAmount
	}

	loan, err := s.storage.GetLoan(loanID)
	if err != nil {
		return nil, err
	}

	remaining := loan.OutstandingAmount.Sub(amount)

	scheduled, err := s.storage.FirstDueScheduledRepayment(loan.ID)
	if err != nil && !errors.Is(err, store.ErrNoDueRepayment) {
		return nil, err
	}
	if scheduled != nil {
		outstanding := scheduled.OutstandingAmount.Sub(amount)
		if outstanding.IsNegative() {
			outstanding = decimal.Zero
		}
		scheduled.OutstandingAmount = outstanding
		scheduled.Status = statusFor(remaining)
	}

	loan.OutstandingAmount = remaining
	loan.Status = statusFor(remaining)
	loan.UpdatedAt = time.Now()

	received := &models.ReceivedRepayment{
		ID:           uuid.New(),
		LoanID:       loan.ID,
		Amount:       amount,
		CurrencyCode: currencyCode,
		ReceivedAt:   receivedAt,
	}

	if err := s.storage.ApplyRepayment(loan, scheduled, received); err != nil {
		return nil, fmt.Errorf("failed to store repayment: %w", err)
	}

	s.publish(events.TopicRepaymentReceived, events.RepaymentReceived{
		RepaymentID:     received.ID.String(),
		LoanID:          loan.ID.String(),
		Amount:          received.Amount,
		CurrencyCode:    received.CurrencyCode,
		ReceivedAt:      received.ReceivedAt,
		LoanOutstanding: loan.OutstandingAmount,
		LoanStatus:      loan.Status,
	})

	return received, nil
}

// GetLoan retrieves a loan by its ID.
func (s *Service) GetLoan(id uuid.UUID) (*models.Loan, error) {
	return s.storage.GetLoan(id)
}

// GetAllLoans retrieves all loans.
func (s *Service) GetAllLoans() ([]*models.Loan, error) {
	return s.storage.GetAllLoans()
}

// ScheduleForLoan retrieves a loan's schedule, earliest due first.
func (s *Service) ScheduleForLoan(loanID uuid.UUID) ([]*models.ScheduledRepayment, error) {
	return s.storage.ScheduleForLoan(loanID)
}

// RepaymentsForLoan retrieves all received repayments for a loan.
func (s *Service) RepaymentsForLoan(loanID uuid.UUID) ([]*models.ReceivedRepayment, error) {
	return s.storage.RepaymentsForLoan(loanID)
}

// publish sends an event best-effort; a broker failure never fails the
// operation that produced it.
func (s *Service) publish(topic string, event any) {
	if err := s.publisher.Publish(topic, event); err != nil {
		log.Printf("failed to publish %s event: %v", topic, err)
	}
}

func statusFor(remaining decimal.Decimal) string {
	if remaining.LessThanOrEqual(decimal.Zero) {
		return models.StatusRepaid
	}
	return models.StatusDue
}
