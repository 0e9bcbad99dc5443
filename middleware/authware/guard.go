package authware

import (
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"

	accounts "github.com/texttools/go-accounts"
)

// RequireRole rejects requests whose resolved account does not hold one of
// the given roles. It must run after Protect.
func RequireRole(cfg Config, roles ...accounts.UserRole) router.MiddlewareFunc {
	cfg = cfg.withDefaults()
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			user := UserFromLocals(ctx, cfg.ContextKey)
			if user == nil {
				return cfg.ErrorHandler(ctx, accounts.ErrTokenMalformed)
			}

			if !accounts.RoleIn(user.Role, roles...) {
				return cfg.ErrorHandler(ctx, errors.New(
					"you do not have permission to perform this action",
					errors.CategoryAuthz,
				).WithCode(errors.CodeForbidden))
			}

			return ctx.Next()
		}
	}
}

// RequireQuota rejects requests once the account's daily usage counter has
// reached its limit. Admin accounts are exempt. It must run after Protect.
func RequireQuota(cfg Config) router.MiddlewareFunc {
	cfg = cfg.withDefaults()
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			user := UserFromLocals(ctx, cfg.ContextKey)
			if user == nil {
				return cfg.ErrorHandler(ctx, accounts.ErrTokenMalformed)
			}

			if user.IsAdmin() {
				return ctx.Next()
			}

			if user.DailyUsageCount >= user.DailyUsageLimit {
				return cfg.ErrorHandler(ctx, accounts.NewUsageLimitError(
					user.DailyUsageCount,
					user.DailyUsageLimit,
				))
			}

			return ctx.Next()
		}
	}
}

// TrackUsage bumps the account's daily usage counter after the handler
// completes successfully. A failed increment is logged and never blocks
// the response.
func TrackUsage(cfg Config) router.MiddlewareFunc {
	cfg = cfg.withDefaults()
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if err := ctx.Next(); err != nil {
				return err
			}

			user := UserFromLocals(ctx, cfg.ContextKey)
			if user == nil {
				return nil
			}

			if err := cfg.Users.IncrementDailyUsage(ctx.Context(), user.ID); err != nil {
				cfg.Logger.Error("failed to track usage for account %s: %v", user.ID, err)
			}

			return nil
		}
	}
}
