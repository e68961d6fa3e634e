package store

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"loanbook/pkg/models"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore manages the database connection and operations for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLiteStore and initializes the database.
func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}

	// Manually enable foreign keys and WAL mode
	_, err = db.Exec("PRAGMA foreign_keys = ON;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	_, err = db.Exec("PRAGMA journal_mode = WAL;")
	if err != nil {
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("could not connect to database: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initSchema(); err != nil {
		return nil, fmt.Errorf("could not initialize schema: %w", err)
	}
	log.Println("Database connection established and schema initialized.")
	return s, nil
}

// initSchema creates the database tables if they don't already exist.
// We use TEXT for decimal fields in SQLite to ensure no precision is lost.
func (s *SQLiteStore) initSchema() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		customer_key TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency_code TEXT NOT NULL,
		terms INTEGER NOT NULL,
		processed_at DATETIME NOT NULL,
		outstanding_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE TABLE IF NOT EXISTS scheduled_repayments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		outstanding_amount TEXT NOT NULL,
		currency_code TEXT NOT NULL,
		due_date DATETIME NOT NULL,
		status TEXT NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	CREATE TABLE IF NOT EXISTS received_repayments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL,
		amount TEXT NOT NULL,
		currency_code TEXT NOT NULL,
		received_at DATETIME NOT NULL,
		FOREIGN KEY(loan_id) REFERENCES loans(id)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// CreateLoan inserts a loan and its full schedule within a transaction.
func (s *SQLiteStore) CreateLoan(loan *models.Loan, schedule []*models.ScheduledRepayment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO loans (id, customer_key, amount, currency_code, terms, processed_at, outstanding_amount, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		loan.ID.String(), loan.CustomerKey, loan.Amount, loan.CurrencyCode, loan.Terms, loan.ProcessedAt, loan.OutstandingAmount, loan.Status, loan.CreatedAt, loan.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}

	for _, sr := range schedule {
		_, err = tx.Exec(
			`INSERT INTO scheduled_repayments (id, loan_id, amount, outstanding_amount, currency_code, due_date, status)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			sr.ID.String(), sr.LoanID.String(), sr.Amount, sr.OutstandingAmount, sr.CurrencyCode, sr.DueDate, sr.Status,
		)
		if err != nil {
			return fmt.Errorf("failed to create scheduled repayment: %w", err)
		}
	}

	return tx.Commit()
}

// GetLoan retrieves a loan by its ID.
func (s *SQLiteStore) GetLoan(id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRow(`SELECT id, customer_key, amount, currency_code, terms, processed_at, outstanding_amount, status, created_at, updated_at FROM loans WHERE id = ?`, id.String())
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
func (s *SQLiteStore) GetAllLoans() ([]*models.Loan, error) {
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
func (s *SQLiteStore) ScheduleForLoan(loanID uuid.UUID) ([]*models.ScheduledRepayment, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, amount, outstanding_amount, currency_code, due_date, status FROM scheduled_repayments WHERE loan_id = ? ORDER BY due_date ASC`,
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
func (s *SQLiteStore) FirstDueScheduledRepayment(loanID uuid.UUID) (*models.ScheduledRepayment, error) {
	row := s.db.QueryRow(
		`SELECT id, loan_id, amount, outstanding_amount, currency_code, due_date, status FROM scheduled_repayments WHERE loan_id = ? AND status = ? ORDER BY due_date ASC LIMIT 1`,
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
func (s *SQLiteStore) ApplyRepayment(loan *models.Loan, scheduled *models.ScheduledRepayment, received *models.ReceivedRepayment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if scheduled != nil {
		result, err := tx.Exec(
			`UPDATE scheduled_repayments SET outstanding_amount = ?, status = ? WHERE id = ?`,
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
		`UPDATE loans SET outstanding_amount = ?, status = ?, updated_at = ? WHERE id = ?`,
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
		VALUES (?, ?, ?, ?, ?)`,
		received.ID.String(), received.LoanID.String(), received.Amount, received.CurrencyCode, received.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create received repayment: %w", err)
	}

	return tx.Commit()
}

// RepaymentsForLoan retrieves all received repayments for a loan, oldest first.
func (s *SQLiteStore) RepaymentsForLoan(loanID uuid.UUID) ([]*models.ReceivedRepayment, error) {
	rows, err := s.db.Query(
		`SELECT id, loan_id, amount, currency_code, received_at FROM received_repayments WHERE loan_id = ? ORDER BY received_at ASC`,
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
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanLoan(row rowScanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr string
	var processed, created, updated time.Time
	err := row.Scan(&idStr, &loan.CustomerKey, &loan.Amount, &loan.CurrencyCode, &loan.Terms, &processed, &loan.OutstandingAmount, &loan.Status, &created, &updated)
	if err != nil {
		return nil, err
	}
	loan.ID = uuid.MustParse(idStr)
	loan.ProcessedAt = processed
	loan.CreatedAt = created
	loan.UpdatedAt = updated
	return &loan, nil
}

func scanScheduledRepayment(row rowScanner) (*models.ScheduledRepayment, error) {
	var sr models.ScheduledRepayment
	var idStr, loanIDStr string
	var dueDate time.Time
	err := row.Scan(&idStr, &loanIDStr, &sr.Amount, &sr.OutstandingAmount, &sr.CurrencyCode, &dueDate, &sr.Status)
	if err != nil {
		return nil, err
	}
	sr.ID = uuid.MustParse(idStr)
	sr.LoanID = uuid.MustParse(loanIDStr)
	sr.DueDate = dueDate
	return &sr, nil
}

var _ Storage = (*SQLiteStore)(nil)
