package enums

import "fmt"

// LoanStatus maps to the loan_status enum in Postgres.
type LoanStatus string

const (
	LoanStatusCheckedOut LoanStatus = "checked_out"
	LoanStatusOverdue    LoanStatus = "overdue"
	LoanStatusReturned   LoanStatus = "returned"
	LoanStatusLost       LoanStatus = "lost"
	LoanStatusDamaged    LoanStatus = "damaged"
)

var validLoanStatuses = []LoanStatus{
	LoanStatusCheckedOut,
	LoanStatusOverdue,
	LoanStatusReturned,
	LoanStatusLost,
	LoanStatusDamaged,
}

// String implements fmt.Stringer.
func (l LoanStatus) String() string {
	return string(l)
}

// IsValid reports whether the value is a known LoanStatus.
func (l LoanStatus) IsValid() bool {
	for _, candidate := range validLoanStatuses {
		if candidate == l {
			return true
		}
	}
	return false
}

// IsActive reports whether the loan still holds a copy.
func (l LoanStatus) IsActive() bool {
	return l == LoanStatusCheckedOut || l == LoanStatusOverdue
}

// IsTerminal reports whether the loan has reached a final state.
func (l LoanStatus) IsTerminal() bool {
	switch l {
	case LoanStatusReturned, LoanStatusLost, LoanStatusDamaged:
		return true
	default:
		return false
	}
}

// ParseLoanStatus converts raw input into a LoanStatus.
func ParseLoanStatus(value string) (LoanStatus, error) {
	for _, candidate := range validLoanStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid loan status %q", value)
}
