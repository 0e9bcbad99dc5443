package accounts

import (
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (AuthClaims, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (AuthClaims, error) {
	if f == nil {
		return nil, ErrTokenMalformed
	}
	return f(tokenString)
}

// MultiTokenValidator tries validators in order until one succeeds.
// It treats ErrTokenMalformed as "try next" and returns the last malformed
// error if all validators fail.
type MultiTokenValidator struct {
	validators []TokenValidator
}

// NewMultiTokenValidator filters nil validators and returns a composite validator.
func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	filtered := make([]TokenValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &MultiTokenValidator{validators: filtered}
}

// Validate satisfies the TokenValidator interface.
func (m *MultiTokenValidator) Validate(tokenString string) (AuthClaims, error) {
	var lastErr error
	for _, v := range m.validators {
		claims, err := v.Validate(tokenString)
		if err == nil {
			return claims, nil
		}
		if IsMalformedError(err) {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrTokenMalformed
}

// JWKSValidatorOptions configures NewJWKSTokenValidator.
type JWKSValidatorOptions struct {
	// JWKSetURL is the remote key set endpoint.
	JWKSetURL string
	// Issuer, when set, is enforced during validation.
	Issuer string
	// Audience, when set, is enforced during validation.
	Audience []string
	// RefreshInterval defaults to one hour.
	RefreshInterval time.Duration
	Logger          Logger
}

// JWKSTokenValidator validates externally issued RS256 tokens against a
// remote JWK set. Used for provider-minted id tokens; application session
// tokens go through TokenService instead.
type JWKSTokenValidator struct {
	jwks   *keyfunc.JWKS
	opts   JWKSValidatorOptions
	logger Logger
}

// NewJWKSTokenValidator fetches the key set and returns a validator that
// keeps it refreshed in the background.
func NewJWKSTokenValidator(opts JWKSValidatorOptions) (*JWKSTokenValidator, error) {
	if opts.JWKSetURL == "" {
		return nil, errors.New("jwk set url is required", errors.CategoryBadInput)
	}

	logger := opts.Logger
	if logger == nil {
		logger = defLogger{}
	}

	refresh := opts.RefreshInterval
	if refresh == 0 {
		refresh = time.Hour
	}

	jwks, err := keyfunc.Get(opts.JWKSetURL, keyfunc.Options{
		RefreshErrorHandler: func(err error) {
			logger.Warn("background JWK set refresh failed: %v", err)
		},
		RefreshInterval:   refresh,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryOperation, "failed to fetch JWK set")
	}

	return &JWKSTokenValidator{jwks: jwks, opts: opts, logger: logger}, nil
}

// Validate satisfies the TokenValidator interface.
func (v *JWKSTokenValidator) Validate(tokenString string) (AuthClaims, error) {
	parserOptions := make([]jwt.ParserOption, 0, 2)
	if v.opts.Issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(v.opts.Issuer))
	}
	if len(v.opts.Audience) > 0 {
		// jwt.WithAudience takes a single value; the first configured
		// audience is the one tokens must carry.
		parserOptions = append(parserOptions, jwt.WithAudience(v.opts.Audience[0]))
	}

	token, err := jwt.ParseWithClaims(tokenString, &JWTClaims{}, v.jwks.Keyfunc, parserOptions...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).WithTextCode(ErrTokenMalformed.TextCode)
	}

	claims, ok := token.Claims.(*JWTClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenMalformed
	}

	return claims, nil
}
