package store

import (
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"loanbook/pkg/models"
)

func testLoanWithSchedule(amount int64, installments ...int64) (*models.Loan, []*models.ScheduledRepayment) {
	now := time.Now().UTC()
	loan := &models.Loan{
		ID:                uuid.New(),
		CustomerKey:       "cust_test",
		Amount:            decimal.NewFromInt(amount),
		CurrencyCode:      "EUR",
		Terms:             len(installments),
		ProcessedAt:       time.Date(2023, time.January, 1, 0, 0, 0, 0, time.UTC),
		OutstandingAmount: decimal.NewFromInt(amount),
		Status:            models.StatusDue,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	var schedule []*models.ScheduledRepayment
	for i, inst := range installments {
		schedule = append(schedule, &models.ScheduledRepayment{
			ID:                uuid.New(),
			LoanID:            loan.ID,
			Amount:            decimal.NewFromInt(inst),
			OutstandingAmount: decimal.NewFromInt(inst),
			CurrencyCode:      "EUR",
			DueDate:           time.Date(2023, time.Month(2+i), 1, 0, 0, 0, 0, time.UTC),
			Status:            models.StatusDue,
		})
	}
	return loan, schedule
}

func TestSQLiteStore_CreateAndGetLoan(t *testing.T) {
	dbFile := "test_store_loans.db"
	os.Remove(dbFile)
	defer os.Remove(dbFile)

	s, err := NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	loan, schedule := testLoanWithSchedule(500, 167, 167, 167)
	if err := s.CreateLoan(loan, schedule); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	fetched, err := s.GetLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan: %v", err)
	}
	if fetched.CustomerKey != loan.CustomerKey {
		t.Errorf("Expected CustomerKey %s, got %s", loan.CustomerKey, fetched.CustomerKey)
	}
	if !fetched.Amount.Equal(loan.Amount) {
		t.Errorf("Expected Amount %s, got %s", loan.Amount, fetched.Amount)
	}
	if fetched.Terms != 3 {
		t.Errorf("Expected Terms 3, got %d", fetched.Terms)
	}
	if fetched.Status != models.StatusDue {
		t.Errorf("Expected status due, got %s", fetched.Status)
	}

	rows, err := s.ScheduleForLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get schedule: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("Expected 3 schedule rows, got %d", len(rows))
	}
	for i := 1; i < len(rows); i++ {
		if rows[i].DueDate.Before(rows[i-1].DueDate) {
			t.Errorf("Schedule rows not ordered by due date: %s before %s", rows[i].DueDate, rows[i-1].DueDate)
		}
	}

	if _, err := s.GetLoan(uuid.New()); !errors.Is(err, ErrLoanNotFound) {
		t.Errorf("Expected ErrLoanNotFound for unknown loan, got %v", err)
	}
}

func TestSQLiteStore_FirstDueAndApplyRepayment(t *testing.T) {
	dbFile := "test_store_repay.db"
	os.Remove(dbFile)
	defer os.Remove(dbFile)

	s, err := NewSQLiteStore(dbFile)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer s.Close()

	loan, schedule := testLoanWithSchedule(500, 250, 250)
	if err := s.CreateLoan(loan, schedule); err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	first, err := s.FirstDueScheduledRepayment(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get first due repayment: %v", err)
	}
	if first.ID != schedule[0].ID {
		t.Errorf("Expected earliest-due row %s, got %s", schedule[0].ID, first.ID)
	}

	// Apply a repayment that settles the first row.
	first.OutstandingAmount = decimal.Zero
	first.Status = models.StatusRepaid
	loan.OutstandingAmount = decimal.NewFromInt(250)
	loan.UpdatedAt = time.Now().UTC()
	received := &models.ReceivedRepayment{
		ID:           uuid.New(),
		LoanID:       loan.ID,
		Amount:       decimal.NewFromInt(250),
		CurrencyCode: "EUR",
		ReceivedAt:   time.Date(2023, time.February, 1, 0, 0, 0, 0, time.UTC),
	}
	if err := s.ApplyRepayment(loan, first, received); err != nil {
		t.Fatalf("Failed to apply repayment: %v", err)
	}

	fetched, _ := s.GetLoan(loan.ID)
	if !fetched.OutstandingAmount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Expected loan outstanding 250, got %s", fetched.OutstandingAmount)
	}

	next, err := s.FirstDueScheduledRepayment(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get next due repayment: %v", err)
	}
	if next.ID != schedule[1].ID {
		t.Errorf("Expected second row %s to be next due, got %s", schedule[1].ID, next.ID)
	}

	repayments, err := s.RepaymentsForLoan(loan.ID)
	if err != nil {
		t.Fatalf("Failed to get repayments: %v", err)
	}
	if len(repayments) != 1 {
		t.Fatalf("Expected 1 received repayment, got %d", len(repayments))
	}
	if !repayments[0].Amount.Equal(decimal.NewFromInt(250)) {
		t.Errorf("Expected repayment amount 250, got %s", repayments[0].Amount)
	}

	// Settle the second row as well; no due rows remain.
	next.OutstandingAmount = decimal.Zero
	next.Status = models.StatusRepaid
	loan.OutstandingAmount = decimal.Zero
	loan.Status = models.StatusRepaid
	if err := s.ApplyRepayment(loan, next, &models.ReceivedRepayment{
		ID:           uuid.New(),
		LoanID:       loan.ID,
		Amount:       decimal.NewFromInt(250),
		CurrencyCode: "EUR",
		ReceivedAt:   time.Date(2023, time.March, 1, 0, 0, 0, 0, time.UTC),
	}); err != nil {
		t.Fatalf("Failed to apply second repayment: %v", err)
	}

	if _, err := s.FirstDueScheduledRepayment(loan.ID); !errors.Is(err, ErrNoDueRepayment) {
		t.Errorf("Expected ErrNoDueRepayment, got %v", err)
	}
}
