package enums

import "fmt"

// NotificationKind maps to the notification_kind enum in Postgres.
type NotificationKind string

const (
	NotificationKindReservationAvailable NotificationKind = "reservation_available"
	NotificationKindDueDateReminder      NotificationKind = "due_date_reminder"
	NotificationKindOverdueNotice        NotificationKind = "overdue_notice"
	NotificationKindFineAssessed         NotificationKind = "fine_assessed"
	NotificationKindSubscriptionExpired  NotificationKind = "subscription_expired"
)

var validNotificationKinds = []NotificationKind{
	NotificationKindReservationAvailable,
	NotificationKindDueDateReminder,
	NotificationKindOverdueNotice,
	NotificationKindFineAssessed,
	NotificationKindSubscriptionExpired,
}

// String implements fmt.Stringer.
func (n NotificationKind) String() string {
	return string(n)
}

// IsValid checks whether the given kind matches the canonical enum.
func (n NotificationKind) IsValid() bool {
	for _, candidate := range validNotificationKinds {
		if candidate == n {
			return true
		}
	}
	return false
}

// ParseNotificationKind converts raw strings into NotificationKind.
func ParseNotificationKind(value string) (NotificationKind, error) {
	for _, candidate := range validNotificationKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid notification kind %q", value)
}
