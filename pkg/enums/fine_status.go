package enums

import "fmt"

// FineStatus maps to the fine_status enum in Postgres.
type FineStatus string

const (
	FineStatusPending       FineStatus = "pending"
	FineStatusPartiallyPaid FineStatus = "partially_paid"
	FineStatusPaid          FineStatus = "paid"
	FineStatusWaived        FineStatus = "waived"
)

var validFineStatuses = []FineStatus{
	FineStatusPending,
	FineStatusPartiallyPaid,
	FineStatusPaid,
	FineStatusWaived,
}

// String implements fmt.Stringer.
func (f FineStatus) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FineStatus.
func (f FineStatus) IsValid() bool {
	for _, candidate := range validFineStatuses {
		if candidate == f {
			return true
		}
	}
	return false
}

// IsSettled reports whether the fine can no longer accept payments.
func (f FineStatus) IsSettled() bool {
	return f == FineStatusPaid || f == FineStatusWaived
}

// ParseFineStatus converts raw input into a FineStatus.
func ParseFineStatus(value string) (FineStatus, error) {
	for _, candidate := range validFineStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fine status %q", value)
}
