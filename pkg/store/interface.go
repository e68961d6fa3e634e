package store

import (
	"github.com/google/uuid"
	"loanbook/pkg/models"
)

// Storage defines the interface for database operations related to loans,
// scheduled repayments and received repayments.
type Storage interface {
	// CreateLoan persists a loan together with its full schedule in a single
	// atomic operation.
	CreateLoan(loan *models.Loan, schedule []*models.ScheduledRepayment) error
	GetLoan(id uuid.UUID) (*models.Loan, error)
	GetAllLoans() ([]*models.Loan, error)

	// ScheduleForLoan returns all schedule rows for a loan, ordered by due
	// date ascending.
	ScheduleForLoan(loanID uuid.UUID) ([]*models.ScheduledRepayment, error)
	// FirstDueScheduledRepayment returns the earliest-due schedule row still
	// in status due, or ErrNoDueRepayment.
	FirstDueScheduledRepayment(loanID uuid.UUID) (*models.ScheduledRepayment, error)

	// ApplyRepayment persists the outcome of one repayment event atomically:
	// the updated loan, the updated schedule row (nil when no row was due)
	// and the new received repayment.
	ApplyRepayment(loan *models.Loan, scheduled *models.ScheduledRepayment, received *models.ReceivedRepayment) error
	RepaymentsForLoan(loanID uuid.UUID) ([]*models.ReceivedRepayment, error)

	Close() error
}
