package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"loanbook/pkg/models"

	_ "github.com/lib/pq"
)

// PostgresStore implements Storage on top of PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a PostgreSQL connection and initializes the schema.
func NewPostgresStore(dataSourceName string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	return s, nil
}

func (s *PostgresStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS loans (
		id UUID PRIMARY KEY,
		customer_key TEXT NOT NULL,
		amount NUMERIC NOT NULL,
		currency_code TEXT NOT NULL,
		terms INTEGER NOT NULL,
		processed_at TIMESTAMPTZ NOT NULL,
		outstanding_amount NUMERIC NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS scheduled_repayments (
		id UUID PRIMARY KEY,
		loan_id UUID NOT NULL REFERENCES loans(id),
		amount NUMERIC NOT NULL,
		outstanding_amount NUMERIC NOT NULL,
		currency_code TEXT NOT NULL,
		due_date TIMESTAMPTZ NOT NULL,
		status TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS received_repayments (
		id UUID PRIMARY KEY,
		loan_id UUID NOT NULL REFERENCES loans(id),
		amount NUMERIC NOT NULL,
		currency_code TEXT NOT NULL,
		received_at TIMESTAMPTZ NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateLoan inserts a loan and its full schedule within a transaction.
func (s *PostgresStore) CreateLoan(loan *models.Loan, schedule []*models.ScheduledRepayment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO loans (id, customer_key, amount, currency_code, terms, processed_at, outstanding_amount, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		loan.ID.String(), loan.CustomerKey, loan.Amount, loan.CurrencyCode, loan.Terms, loan.ProcessedAt, loan.OutstandingAmount, loan.Status, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}

	for _, sr := range schedule {
		_, err = tx.Exec(
			`INSERT INTO scheduled_repayments (id, loan_id, amount, outstanding_amount, currency_code, due_date, status)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			sr.ID.String(), sr.LoanID.String(), sr.Amount, sr.OutstandingAmount, sr.CurrencyCode, sr.DueDate, sr.Status,
		)
		if err != nil {
			return fmt.Errorf("failed to create scheduled repayment: %w", err)
		}
	}

	return tx.Commit()
}

// GetLoan retrieves a loan by its ID.
func (s *PostgresStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT id, customer_key, amount, currency_code, terms, processed_at, outstanding_amount, status, created_at, updated_at FROM loans WHERE id = $1`, id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrLoanNotFound
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// GetAllLoans retrieves all loans.
func (s *PostgresStore) GetAllLoans() ([]*models.Loan, error) {
	rows, err := s.db.Query(`SELECT id, customer_key, amount, currency_code, terms, processed_at, outstanding_amount, status, created_at, updated_at FROM loans`)
	if err != nil {
		return nil, fmt.Errorf("failed to get all loans: %w", err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// ScheduleForLoan retrieves all schedule rows for a loan, earliest due first.
func (s *PostgresStore) ScheduleForLoan(loanID uuid.UUID) ([]*models.ScheduledRepayment, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, amount, outstanding_amount, currency_code, due_date, status FROM scheduled_repayments WHERE loan_id = $1 ORDER BY due_date ASC`,
		loanID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get schedule for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var schedule []*models.ScheduledRepayment
	for rows.Next() {
		sr, err := scanScheduledRepayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scheduled repayment row: %w", err)
		}
		schedule = append(schedule, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return schedule, nil
}

// FirstDueScheduledRepayment retrieves the earliest-due schedule row still due.
func (s *PostgresStore) FirstDueScheduledRepayment(loanID uuid.UUID) (*models.ScheduledRepayment, error) {
	row := s.db.QueryRow(
		`SELECT id, loan_id, amount, outstanding_amount, currency_code, due_date, status FROM scheduled_repayments WHERE loan_id = $1 AND status = $2 ORDER BY due_date ASC LIMIT 1`,
		loanID.String(), models.StatusDue,
	)
	sr, err := scanScheduledRepayment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNoDueRepayment
		}
		return nil, fmt.Errorf("failed to get first due scheduled repayment: %w", err)
	}
	return sr, nil
}

// ApplyRepayment persists the outcome of one repayment event within a transaction.
func (s *PostgresStore) ApplyRepayment(loan *models.Loan, scheduled *models.ScheduledRepayment, received *models.ReceivedRepayment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if scheduled != nil {
		result, err := tx.Exec(
			`UPDATE scheduled_repayments SET outstanding_amount = $1, status = $2 WHERE id = $3`,
			scheduled.OutstandingAmount, scheduled.Status, scheduled.ID.String(),
		)
		if err != nil {
			return fmt.Errorf("failed to update scheduled repayment: %w", err)
		}
		if n, err := result.RowsAffected(); err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		} else if n == 0 {
			return ErrNoDueRepayment
		}
	}

	result, err := tx.Exec(
		`UPDATE loans SET outstanding_amount = $1, status = $2, updated_at = $3 WHERE id = $4`,
		loan.OutstandingAmount, loan.Status, loan.UpdatedAt, loan.ID.String(),
	)
	if err != nil {
		return fmt.Errorf("failed to update loan: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	} else if n == 0 {
		return ErrLoanNotFound
	}

	_, err = tx.Exec(
		`INSERT INTO received_repayments (id, loan_id, amount, currency_code, received_at)
		VALUES ($1, $2, $3, $4, $5)`,
		received.ID.String(), received.LoanID.String(), received.Amount, received.CurrencyCode, received.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create received repayment: %w", err)
	}

	return tx.Commit()
}

// RepaymentsForLoan retrieves all received repayments for a loan, oldest first.
func (s *PostgresStore) RepaymentsForLoan(loanID uuid.UUID) ([]*models.ReceivedRepayment, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, amount, currency_code, received_at FROM received_repayments WHERE loan_id = $1 ORDER BY received_at ASC`,
		loanID.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get repayments for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var repayments []*models.ReceivedRepayment
	for rows.Next() {
		var rr models.ReceivedRepayment
		var idStr, loanIDStr string
		var receivedAt time.Time
		if err := rows.Scan(&idStr, &loanIDStr, &rr.Amount, &rr.CurrencyCode, &receivedAt); err != nil {
			return nil, fmt.Errorf("failed to scan received repayment row: %w", err)
		}
		rr.ID = uuid.MustParse(idStr)
		rr.LoanID = uuid.MustParse(loanIDStr)
		rr.ReceivedAt = receivedAt
		repayments = append(repayments, &rr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return repayments, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

var _ Storage = (*PostgresStore)(nil)
