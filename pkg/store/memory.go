package store

import (
	"sort"
	"sync"

	"github.com/google/uuid"
	"loanbook/pkg/models"
)

// MemoryStore is an in-memory implementation of Storage. It is safe for
// concurrent use and returns copies so callers cannot mutate stored state
// without going through a write operation.
type MemoryStore struct {
	mu         sync.Mutex
	loans      map[uuid.UUID]models.Loan
	schedules  map[uuid.UUID]models.ScheduledRepayment
	repayments []models.ReceivedRepayment
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		loans:     make(map[uuid.UUID]models.Loan),
		schedules: make(map[uuid.UUID]models.ScheduledRepayment),
	}
}

func (m *MemoryStore) CreateLoan(loan *models.Loan, schedule []*models.ScheduledRepayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.loans[loan.ID] = *loan
	for _, sr := range schedule {
		m.schedules[sr.ID] = *sr
	}
	return nil
}

func (m *MemoryStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loan, ok := m.loans[id]
	if !ok {
		return nil, ErrLoanNotFound
	}
	return &loan, nil
}

func (m *MemoryStore) GetAllLoans() ([]*models.Loan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	loans := make([]*models.Loan, 0, len(m.loans))
	for _, l := range m.loans {
		loan := l
		loans = append(loans, &loan)
	}
	return loans, nil
}

func (m *MemoryStore) ScheduleForLoan(loanID uuid.UUID) ([]*models.ScheduledRepayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.scheduleLocked(loanID, false), nil
}

func (m *MemoryStore) FirstDueScheduledRepayment(loanID uuid.UUID) (*models.ScheduledRepayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	due := m.scheduleLocked(loanID, true)
	if len(due) == 0 {
		return nil, ErrNoDueRepayment
	}
	return due[0], nil
}

// scheduleLocked returns copies of a loan's schedule rows ordered by due date
// ascending, optionally restricted to rows still due. Callers must hold mu.
func (m *MemoryStore) scheduleLocked(loanID uuid.UUID, dueOnly bool) []*models.ScheduledRepayment {
	var schedule []*models.ScheduledRepayment
	for _, sr := range m.schedules {
		if sr.LoanID != loanID {
			continue
		}
		if dueOnly && sr.Status != models.StatusDue {
			continue
		}
		row := sr
		schedule = append(schedule, &row)
	}
	sort.Slice(schedule, func(i, j int) bool {
		return schedule[i].DueDate.Before(schedule[j].DueDate)
	})
	return schedule
}

func (m *MemoryStore) ApplyRepayment(loan *models.Loan, scheduled *models.ScheduledRepayment, received *models.ReceivedRepayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.loans[loan.ID]; !ok {
		return ErrLoanNotFound
	}
	if scheduled != nil {
		if _, ok := m.schedules[scheduled.ID]; !ok {
			return ErrNoDueRepayment
		}
		m.schedules[scheduled.ID] = *scheduled
	}
	m.loans[loan.ID] = *loan
	m.repayments = append(m.repayments, *received)
	return nil
}

func (m *MemoryStore) RepaymentsForLoan(loanID uuid.UUID) ([]*models.ReceivedRepayment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var repayments []*models.ReceivedRepayment
	for _, rr := range m.repayments {
		if rr.LoanID == loanID {
			repayment := rr
			repayments = append(repayments, &repayment)
		}
	}
	return repayments, nil
}

func (m *MemoryStore) Close() error {
	return nil
}

var _ Storage = (*MemoryStore)(nil)
