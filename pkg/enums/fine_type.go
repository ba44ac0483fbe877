package enums

import "fmt"

// FineType maps to the fine_type enum in Postgres.
type FineType string

const (
	FineTypeOverdue    FineType = "overdue"
	FineTypeDamage     FineType = "damage"
	FineTypeLoss       FineType = "loss"
	FineTypeProcessing FineType = "processing"
)

var validFineTypes = []FineType{
	FineTypeOverdue,
	FineTypeDamage,
	FineTypeLoss,
	FineTypeProcessing,
}

// String implements fmt.Stringer.
func (f FineType) String() string {
	return string(f)
}

// IsValid reports whether the value is a known FineType.
func (f FineType) IsValid() bool {
	for _, candidate := range validFineTypes {
		if candidate == f {
			return true
		}
	}
	return false
}

// ParseFineType converts raw input into a FineType.
func ParseFineType(value string) (FineType, error) {
	for _, candidate := range validFineTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid fine type %q", value)
}
