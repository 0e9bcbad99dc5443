package accounts

// UserStatus is the account lifecycle status
type UserStatus = string

const (
	// UserStatusActive accounts can log in and use metered tools
	UserStatusActive UserStatus = "active"
	// UserStatusInactive accounts registered but never verified their email
	UserStatusInactive UserStatus = "inactive"
	// UserStatusBanned accounts are locked out by an administrator
	UserStatusBanned UserStatus = "banned"
)

// IsValidStatus checks if the status is one of the predefined statuses
func IsValidStatus(s UserStatus) bool {
	switch s {
	case UserStatusActive, UserStatusInactive, UserStatusBanned:
		return true
	default:
		return false
	}
}

// StatusAuthError maps a lifecycle status to the error a request guard
// should surface, nil for statuses that allow authentication.
func StatusAuthError(status UserStatus) error {
	switch status {
	case UserStatusBanned:
		return ErrUserBanned
	case UserStatusInactive:
		return ErrUserInactive
	default:
		return nil
	}
}
