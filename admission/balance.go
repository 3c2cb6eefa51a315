package admission

import "github.com/shopspring/decimal"

// =============================================================================
// LEAVE-BALANCE VALIDATOR
// =============================================================================

// ValidateBalance checks an OFF request's cost against the user's allowance
// snapshot and, when set, the absence type's per-request cap.
//
// The allowance is compared as-is: costs of other PENDING requests are not
// reserved against it. Two pending requests can therefore each fit while
// their sum does not; the allowance is only debited on approval.
func ValidateBalance(user *User, absenceType *AbsenceType, dayCost decimal.Decimal) error {
	if absenceType == nil {
		return ErrInvalidAbsenceType
	}
	if user == nil {
		return ErrUserNotFound
	}

	if absenceType.AvailableDays != nil && dayCost.GreaterThan(*absenceType.AvailableDays) {
		return &BalanceExceededError{
			UserID:    user.ID,
			Cost:      dayCost,
			Remaining: *absenceType.AvailableDays,
			Limit:     "absence_type",
		}
	}

	if dayCost.GreaterThan(user.AllowedLeaveDays) {
		return &BalanceExceededError{
			UserID:    user.ID,
			Cost:      dayCost,
			Remaining: user.AllowedLeaveDays,
			Limit:     "allowance",
		}
	}
	return nil
}
