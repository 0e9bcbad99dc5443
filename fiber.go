package accounts

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// SessionCookieName is the cookie checked for a bearer token when no
// Authorization header is present.
const SessionCookieName = "token"

// FiberAuthConfig configures the fiber-native guard. Apps mounting the
// whole surface on the go-router abstraction should use authware instead;
// this is for apps that talk to fiber directly.
type FiberAuthConfig struct {
	Validator  TokenValidator
	Users      Users
	Logger     Logger
	ContextKey string
	CookieName string
	// Production masks internal error detail in responses.
	Production bool
}

func (cfg FiberAuthConfig) withDefaults() FiberAuthConfig {
	if cfg.Validator == nil {
		panic("accounts: fiber guard requires a Validator")
	}
	if cfg.Users == nil {
		panic("accounts: fiber guard requires Users")
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultLogger()
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}
	if cfg.CookieName == "" {
		cfg.CookieName = SessionCookieName
	}
	return cfg
}

// FiberProtect authenticates the request, loads the account, enforces
// status rules, and stores the account in fiber locals and the request
// context.
func FiberProtect(config FiberAuthConfig) fiber.Handler {
	cfg := config.withDefaults()
	return func(c *fiber.Ctx) error {
		user, claims, err := resolveFiberUser(c, cfg)
		if err != nil {
			return renderFiberAuthError(c, cfg, err)
		}

		storeFiberUser(c, cfg, user, claims)
		return c.Next()
	}
}

// FiberOptional is FiberProtect with every failure swallowed; guests
// proceed without an attached account.
func FiberOptional(config FiberAuthConfig) fiber.Handler {
	cfg := config.withDefaults()
	return func(c *fiber.Ctx) error {
		user, claims, err := resolveFiberUser(c, cfg)
		if err == nil {
			storeFiberUser(c, cfg, user, claims)
		}
		return c.Next()
	}
}

// FiberRequireRole rejects accounts whose role is not in the allowed set.
// Must run after FiberProtect.
func FiberRequireRole(config FiberAuthConfig, roles ...UserRole) fiber.Handler {
	cfg := config.withDefaults()
	return func(c *fiber.Ctx) error {
		user := UserFromFiber(c, cfg.ContextKey)
		if user == nil {
			return renderFiberAuthError(c, cfg, ErrTokenMalformed)
		}
		if !RoleIn(user.Role, roles...) {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"error": "you do not have permission to perform this action",
			})
		}
		return c.Next()
	}
}

// FiberRequireQuota rejects requests past the daily usage limit; admins
// are exempt. Must run after FiberProtect.
func FiberRequireQuota(config FiberAuthConfig) fiber.Handler {
	cfg := config.withDefaults()
	return func(c *fiber.Ctx) error {
		user := UserFromFiber(c, cfg.ContextKey)
		if user == nil {
			return renderFiberAuthError(c, cfg, ErrTokenMalformed)
		}
		if user.IsAdmin() {
			return c.Next()
		}
		if user.DailyUsageCount >= user.DailyUsageLimit {
			limitErr := NewUsageLimitError(user.DailyUsageCount, user.DailyUsageLimit)
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":     limitErr.Message,
				"text_code": limitErr.TextCode,
				"metadata":  limitErr.Metadata,
			})
		}
		return c.Next()
	}
}

// FiberTrackUsage bumps the daily usage counter after a successful
// handler. Increment failures are logged, never surfaced.
func FiberTrackUsage(config FiberAuthConfig) fiber.Handler {
	cfg := config.withDefaults()
	return func(c *fiber.Ctx) error {
		if err := c.Next(); err != nil {
			return err
		}

		user := UserFromFiber(c, cfg.ContextKey)
		if user == nil {
			return nil
		}

		if err := cfg.Users.IncrementDailyUsage(c.UserContext(), user.ID); err != nil {
			cfg.Logger.Error("failed to track usage for account %s: %v", user.ID, err)
		}
		return nil
	}
}

// UserFromFiber returns the account attached by FiberProtect, if any.
func UserFromFiber(c *fiber.Ctx, key string) *User {
	if key == "" {
		key = "user"
	}
	user, _ := c.Locals(key).(*User)
	return user
}

// SetSessionCookie stores a signed token as the http-only session cookie.
func SetSessionCookie(c *fiber.Ctx, name, token string, duration time.Duration) {
	if name == "" {
		name = SessionCookieName
	}
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    token,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(c *fiber.Ctx, name string) {
	if name == "" {
		name = SessionCookieName
	}
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * 24 * 365),
		HTTPOnly: true,
		Secure:   true,
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

func resolveFiberUser(c *fiber.Ctx, cfg FiberAuthConfig) (*User, AuthClaims, error) {
	raw := fiberBearerToken(c, cfg.CookieName)
	if raw == "" {
		return nil, nil, ErrTokenMalformed
	}

	claims, err := cfg.Validator.Validate(raw)
	if err != nil {
		return nil, nil, err
	}

	user, err := cfg.Users.GetByIdentifier(c.UserContext(), claims.UserID())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, nil, ErrTokenMalformed
		}
		return nil, nil, errors.Wrap(err, errors.CategoryInternal, "failed to load account for token")
	}

	if err := StatusAuthError(user.Status); err != nil {
		return nil, nil, err
	}

	return user, claims, nil
}

// storeFiberUser attaches the account and claims to fiber locals and
// enriches the request context so downstream code using the std context
// helpers sees the same principal.
func storeFiberUser(c *fiber.Ctx, cfg FiberAuthConfig, user *User, claims AuthClaims) {
	c.Locals(cfg.ContextKey, user)
	c.Locals("claims", claims)

	ctx := WithContext(c.UserContext(), user)
	ctx = WithClaimsContext(ctx, claims)
	c.SetUserContext(ctx)
}

// fiberBearerToken checks the Authorization header first, then the
// session cookie.
func fiberBearerToken(c *fiber.Ctx, cookieName string) string {
	header := c.Get(fiber.HeaderAuthorization)
	if len(header) > 7 && strings.EqualFold(header[:6], "Bearer") {
		return strings.TrimSpace(header[6:])
	}
	return c.Cookies(cookieName)
}

func renderFiberAuthError(c *fiber.Ctx, cfg FiberAuthConfig, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "unexpected authentication error").
			WithCode(errors.CodeInternal)
	}

	cfg.Logger.Info("request rejected: %s (%s) %s %s",
		richErr.Message, richErr.TextCode, c.Method(), c.OriginalURL())

	switch richErr.Category {
	case errors.CategoryAuth:
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": "not authenticated",
		})
	case errors.CategoryAuthz:
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": richErr.Message,
		})
	default:
		if cfg.Production {
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal server error",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":     richErr.Message,
			"text_code": richErr.TextCode,
		})
	}
}
