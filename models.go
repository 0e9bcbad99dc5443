package accounts

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// User is the account model. PasswordHash and the federated provider tokens
// never serialize to JSON; every transport response goes through this model.
type User struct {
	bun.BaseModel `bun:"table:users,alias:usr"`

	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	Status         UserStatus `bun:"status,notnull" json:"status,omitempty"`
	FirstName      string     `bun:"first_name" json:"first_name,omitempty"`
	LastName       string     `bun:"last_name" json:"last_name,omitempty"`
	DisplayName    string     `bun:"display_name" json:"display_name,omitempty"`
	ProfilePicture string     `bun:"profile_picture" json:"profile_picture,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	Locale         string     `bun:"locale" json:"locale,omitempty"`
	Theme          string     `bun:"theme" json:"theme,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	EmailValidated bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`

	// Federated identity. GoogleID is unique when present; accounts created
	// through password registration leave it empty.
	GoogleID           string     `bun:"google_id,nullzero,unique" json:"-"`
	GoogleAccessToken  string     `bun:"google_access_token" json:"-"`
	GoogleRefreshToken string     `bun:"google_refresh_token" json:"-"`
	GoogleTokenExpiry  *time.Time `bun:"google_token_expiry,nullzero" json:"-"`

	// Coin state. Coins caches the BalanceAfter of the account's most recent
	// coin transaction; the Ledger is the only writer.
	Coins           int64 `bun:"coins,notnull,default:0" json:"coins"`
	DailyUsageCount int   `bun:"daily_usage_count,notnull,default:0" json:"daily_usage_count"`
	DailyUsageLimit int   `bun:"daily_usage_limit,notnull,default:50" json:"daily_usage_limit"`

	LoginAttempts  int            `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time     `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time     `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	Metadata       map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt      *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the zero value so legacy rows behave as active.
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusActive
	}
}

// IsAdmin reports whether the account holds the admin role.
func (u *User) IsAdmin() bool {
	return u != nil && u.Role == RoleAdmin
}

// HasPassword reports whether the account can authenticate with a password.
// Pure federated accounts have no hash.
func (u *User) HasPassword() bool {
	return u != nil && u.PasswordHash != ""
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// NormalizeEmail lower-cases and trims an email for the unique email column.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// TransactionType tags the business reason for a coin transaction
type TransactionType = string

const (
	// TransactionRegistrationBonus is the initial grant on signup
	TransactionRegistrationBonus TransactionType = "registration_bonus"
	// TransactionToolUsage is the per-invocation debit for a metered tool
	TransactionToolUsage TransactionType = "tool_usage"
	// TransactionAdminAdjustment is a manual balance override
	TransactionAdminAdjustment TransactionType = "admin_adjustment"
	// TransactionRefund credits back a failed or disputed charge
	TransactionRefund TransactionType = "refund"
)

// CoinTransaction is one append-only ledger row. Rows are immutable once
// written; for a given user, ordered by creation, each row's BalanceAfter
// equals the next row's BalanceBefore.
type CoinTransaction struct {
	bun.BaseModel `bun:"table:coin_transactions,alias:ctr"`

	ID            uuid.UUID       `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID       `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User           `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	Type          TransactionType `bun:"transaction_type,notnull" json:"transaction_type,omitempty"`
	Amount        int64           `bun:"amount,notnull" json:"amount"`
	BalanceBefore int64           `bun:"balance_before,notnull" json:"balance_before"`
	BalanceAfter  int64           `bun:"balance_after,notnull" json:"balance_after"`
	Reason        string          `bun:"reason" json:"reason,omitempty"`
	CreatedAt     time.Time       `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}
