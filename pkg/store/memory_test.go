package store

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"loanbook/pkg/models"
)

func TestMemoryStore_FirstDueOrdersByDueDate(t *testing.T) {
	s := NewMemoryStore()

	loan, schedule := testLoanWithSchedule(300, 100, 100, 100)
	// Shuffle insertion order; the first-due lookup must still follow due
	// dates, not insertion.
	shuffled := []*models.ScheduledRepayment{schedule[2], schedule[0], schedule[1]}
	if err := s.CreateLoan(loan, shuffled); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	first, err := s.FirstDueScheduledRepayment(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get first due repayment: %v", err)
	}
	if first.ID != schedule[0].ID {
		t.Errorf("Expected earliest-due row %s, got %s", schedule[0].ID, first.ID)
	}

	rows, _ := s.ScheduleForLoan(loan.ID)
	for i := 1; i < len(rows); i++ {
		if rows[i].DueDate.Before(rows[i-1].DueDate) {
			t.Errorf("Schedule rows not ordered by due date")
		}
	}
}

func TestMemoryStore_ApplyRepayment(t *testing.T) {
	s := NewMemoryStore()

	loan, schedule := testLoanWithSchedule(200, 100, 100)
	if err := s.CreateLoan(loan, schedule); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	updated := *loan
	updated.OutstandingAmount = decimal.NewFromInt(100)
	row := *schedule[0]
	row.OutstandingAmount = decimal.Zero
	row.Status = models.StatusRepaid
	received := &models.ReceivedRepayment{
		ID:           uuid.New(),
		LoanID:       loan.ID,
		Amount:       decimal.NewFromInt(100),
		CurrencyCode: "EUR",
		ReceivedAt:   time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.ApplyRepayment(&updated, &row, received); err != nil {
		t.Fatalf("Failed to apply repayment: %v", err)
	}

	fetched, _ := s.GetLoan(loan.ID)
	if !fetched.OutstandingAmount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Expected loan outstanding 100, got %s", fetched.OutstandingAmount)
	}

	next, err := s.FirstDueScheduledRepayment(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get next due repayment: %v", err)
	}
	if next.ID != schedule[1].ID {
		t.Errorf("Expected second row to be next due, got %s", next.ID)
	}

	repayments, _ := s.RepaymentsForLoan(loan.ID)
	if len(repayments) != 1 {
		t.Errorf("Expected 1 received repayment, got %d", len(repayments))
	}
}

func TestMemoryStore_Errors(t *testing.T) {
	s := NewMemoryStore()

	if _, err := s.GetLoan(uuid.New()); !errors.Is(err, ErrLoanNotFound) {
		t.Errorf("Expected ErrLoanNotFound, got %v", err)
	}
	if _, err := s.FirstDueScheduledRepayment(uuid.New()); !errors.Is(err, ErrNoDueRepayment) {
		t.Errorf("Expected ErrNoDueRepayment, got %v", err)
	}

	unknown := &models.Loan{ID: uuid.New()}
	err := s.ApplyRepayment(unknown, nil, &models.ReceivedRepayment{ID: uuid.New(), LoanID: unknown.ID})
	if !errors.Is(err, ErrLoanNotFound) {
		t.Errorf("Expected ErrLoanNotFound, got %v", err)
	}
}
