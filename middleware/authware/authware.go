// Package authware provides router middleware that authenticates requests
// with a bearer token, loads the owning account, and enforces account
// status, role, and daily usage rules.
package authware

import (
	"net/http"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/go-router"

	accounts "github.com/texttools/go-accounts"
)

const (
	// DefaultContextKey is the locals key the resolved account is stored under.
	DefaultContextKey = "user"
	// DefaultClaimsKey is the locals key the validated claims are stored under.
	DefaultClaimsKey = "claims"
	// DefaultCookieName is the session cookie checked when no header is present.
	DefaultCookieName = "token"
)

var defaultTokenLookup = "header:" + router.HeaderAuthorization + ",cookie:" + DefaultCookieName

// Config configures the middleware chain.
type Config struct {
	// Filter skips the middleware when it returns true.
	Filter func(router.Context) bool

	SuccessHandler router.HandlerFunc
	ErrorHandler   router.ErrorHandler

	// Validator verifies raw bearer tokens.
	Validator accounts.TokenValidator
	// Users loads the account referenced by validated claims.
	Users accounts.Users

	Logger accounts.Logger

	ContextKey string
	ClaimsKey  string

	// TokenLookup lists token sources in precedence order, e.g.
	// "header:Authorization,cookie:token".
	TokenLookup string
	AuthScheme  string

	// Production masks internal error detail in responses.
	Production bool
}

func (cfg Config) withDefaults() Config {
	if cfg.Validator == nil {
		panic("authware: Validator is required")
	}
	if cfg.Users == nil {
		panic("authware: Users is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = accounts.DefaultLogger()
	}
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.ClaimsKey == "" {
		cfg.ClaimsKey = DefaultClaimsKey
	}
	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}
	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}
	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = DefaultErrorHandler(cfg.Logger, cfg.Production)
	}
	return cfg
}

// Protect authenticates the request and attaches the account to the
// request context. Requests without a valid token, or whose account is
// missing, banned, or inactive, never reach the wrapped handler.
func Protect(config ...Config) router.MiddlewareFunc {
	cfg := getConfig(config...)
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			user, claims, err := resolveRequestUser(ctx, cfg)
			if err != nil {
				return cfg.ErrorHandler(ctx, err)
			}

			attachUser(ctx, cfg, user, claims)

			return cfg.SuccessHandler(ctx)
		}
	}
}

// Optional runs the same extraction and checks as Protect but swallows
// every failure so the request proceeds as a guest.
func Optional(config ...Config) router.MiddlewareFunc {
	cfg := getConfig(config...)
	return func(hf router.HandlerFunc) router.HandlerFunc {
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			user, claims, err := resolveRequestUser(ctx, cfg)
			if err != nil {
				cfg.Logger.Debug("optional guard proceeding as guest: %v", err)
				return cfg.SuccessHandler(ctx)
			}

			attachUser(ctx, cfg, user, claims)
			return cfg.SuccessHandler(ctx)
		}
	}
}

func getConfig(config ...Config) Config {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}
	return cfg.withDefaults()
}

// resolveRequestUser performs the full extract-validate-load-check
// sequence shared by Protect and Optional.
func resolveRequestUser(ctx router.Context, cfg Config) (*accounts.User, accounts.AuthClaims, error) {
	raw, err := ExtractRawToken(ctx, GetExtractors(cfg.TokenLookup, cfg.AuthScheme))
	if err != nil {
		return nil, nil, accounts.ErrTokenMalformed
	}

	claims, err := cfg.Validator.Validate(raw)
	if err != nil {
		return nil, nil, err
	}

	user, err := cfg.Users.GetByIdentifier(ctx.Context(), claims.UserID())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			// Token is valid but its account is gone: same generic
			// response as a bad token.
			return nil, nil, accounts.ErrTokenMalformed
		}
		return nil, nil, errors.Wrap(err, errors.CategoryInternal, "failed to load account for token")
	}

	if err := accounts.StatusAuthError(user.Status); err != nil {
		return nil, nil, err
	}

	return user, claims, nil
}

func attachUser(ctx router.Context, cfg Config, user *accounts.User, claims accounts.AuthClaims) {
	ctx.Locals(cfg.ContextKey, user)
	ctx.Locals(cfg.ClaimsKey, claims)

	stdCtx := accounts.WithContext(ctx.Context(), user)
	stdCtx = accounts.WithClaimsContext(stdCtx, claims)
	ctx.SetContext(stdCtx)
}

// UserFromLocals returns the account attached by Protect, if any.
func UserFromLocals(ctx router.Context, key string) *accounts.User {
	if key == "" {
		key = DefaultContextKey
	}
	user, _ := ctx.Locals(key).(*accounts.User)
	return user
}

// DefaultErrorHandler renders middleware failures following the
// propagation policy: authentication failures get a generic 401,
// authorization failures a specific reason, quota and balance failures
// include their metadata, and anything else is masked in production.
func DefaultErrorHandler(logger accounts.Logger, production bool) router.ErrorHandler {
	if logger == nil {
		logger = accounts.DefaultLogger()
	}

	return func(c router.Context, err error) error {
		var richErr *errors.Error
		if !errors.As(err, &richErr) {
			richErr = errors.Wrap(err, errors.CategoryInternal, "unexpected middleware error").
				WithCode(errors.CodeInternal)
		}

		logger.Info("request rejected: %s (%s) %s %s",
			richErr.Message,
			richErr.TextCode,
			c.Method(),
			c.OriginalURL(),
		)

		switch {
		case richErr.TextCode == accounts.TextCodeUsageLimitExceeded:
			return c.JSON(http.StatusTooManyRequests, errorBody(richErr, true))

		case richErr.TextCode == accounts.TextCodeInsufficientCoins:
			return c.JSON(router.StatusBadRequest, errorBody(richErr, true))

		case richErr.Category == errors.CategoryAuth:
			// Generic on purpose: no hint whether the token was absent,
			// malformed, or expired.
			return c.JSON(router.StatusUnauthorized, map[string]any{
				"error": "not authenticated",
			})

		case richErr.Category == errors.CategoryAuthz:
			return c.JSON(http.StatusForbidden, map[string]any{
				"error": richErr.Message,
			})

		default:
			logger.Error("middleware failure: %s %s", richErr.Message, print.MaybePrettyJSON(richErr.Metadata))
			if production {
				return c.JSON(http.StatusInternalServerError, map[string]any{
					"error": "internal server error",
				})
			}
			return c.JSON(http.StatusInternalServerError, errorBody(richErr, true))
		}
	}
}

func errorBody(err *errors.Error, includeMeta bool) map[string]any {
	body := map[string]any{
		"error":     err.Message,
		"text_code": err.TextCode,
	}
	if includeMeta && len(err.Metadata) > 0 {
		body["metadata"] = err.Metadata
	}
	return body
}
