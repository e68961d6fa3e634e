package store

import "errors"

var (
	ErrLoanNotFound   = errors.New("loan not found")
	ErrNoDueRepayment = errors.New("no due scheduled repayment")
)
