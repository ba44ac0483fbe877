package enums

import "fmt"

// CheckinCondition describes the state a copy comes back in.
type CheckinCondition string

const (
	CheckinConditionReturned CheckinCondition = "returned"
	CheckinConditionLost     CheckinCondition = "lost"
	CheckinConditionDamaged  CheckinCondition = "damaged"
)

var validCheckinConditions = []CheckinCondition{
	CheckinConditionReturned,
	CheckinConditionLost,
	CheckinConditionDamaged,
}

// LoanStatus returns the terminal loan status for the condition.
func (c CheckinCondition) LoanStatus() LoanStatus {
	switch c {
	case CheckinConditionLost:
		return LoanStatusLost
	case CheckinConditionDamaged:
		return LoanStatusDamaged
	default:
		return LoanStatusReturned
	}
}

// IsValid reports whether the value is a known CheckinCondition.
func (c CheckinCondition) IsValid() bool {
	for _, candidate := range validCheckinConditions {
		if candidate == c {
			return true
		}
	}
	return false
}

// ParseCheckinCondition converts raw input into a CheckinCondition.
func ParseCheckinCondition(value string) (CheckinCondition, error) {
	for _, candidate := range validCheckinConditions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid checkin condition %q", value)
}
