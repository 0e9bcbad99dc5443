package social

import (
	"context"
	"strings"

	accounts "github.com/texttools/go-accounts"
)

// Flow runs the federated login handshake end to end: it builds the
// authorization redirect, verifies the callback state, exchanges the code,
// and resolves the provider profile to an account.
type Flow struct {
	providers map[string]Provider
	states    StateManager
	resolver  *Resolver
	logger    accounts.Logger
}

// NewFlow creates a Flow over the given providers.
func NewFlow(states StateManager, resolver *Resolver, providers ...Provider) *Flow {
	f := &Flow{
		providers: make(map[string]Provider, len(providers)),
		states:    states,
		resolver:  resolver,
	}
	for _, p := range providers {
		if p != nil {
			f.providers[strings.ToLower(p.Name())] = p
		}
	}
	return f
}

// WithFlowLogger sets the logger used for flow diagnostics.
func (f *Flow) WithFlowLogger(logger accounts.Logger) *Flow {
	if logger != nil {
		f.logger = logger
	}
	return f
}

// Provider returns the named provider if configured.
func (f *Flow) Provider(name string) (Provider, error) {
	p, ok := f.providers[strings.ToLower(name)]
	if !ok {
		return nil, ErrProviderNotFound
	}
	return p, nil
}

// Begin returns the provider authorization URL for a new login attempt.
// PKCE is always enabled; the verifier travels inside the encrypted state.
func (f *Flow) Begin(ctx context.Context, providerName, redirectURL string) (string, error) {
	provider, err := f.Provider(providerName)
	if err != nil {
		return "", err
	}

	verifier, err := generateCodeVerifier()
	if err != nil {
		return "", err
	}

	state, err := f.states.Encode(&LoginState{
		Provider:     provider.Name(),
		CodeVerifier: verifier,
		RedirectURL:  redirectURL,
	})
	if err != nil {
		return "", err
	}

	return provider.AuthCodeURL(state,
		WithPKCE(computeCodeChallenge(verifier), "S256"),
	), nil
}

// Complete verifies the callback state, exchanges the authorization code,
// fetches the provider profile, and resolves it to an account. It returns
// the resolution result and the redirect URL captured at Begin time.
func (f *Flow) Complete(ctx context.Context, providerName, stateToken, code string) (*Result, string, error) {
	provider, err := f.Provider(providerName)
	if err != nil {
		return nil, "", err
	}

	state, err := f.states.Decode(stateToken)
	if err != nil {
		return nil, "", err
	}
	if !strings.EqualFold(state.Provider, provider.Name()) {
		return nil, "", ErrInvalidState
	}

	var opts []ExchangeOption
	if state.CodeVerifier != "" {
		opts = append(opts, WithCodeVerifier(state.CodeVerifier))
	}

	token, err := provider.Exchange(ctx, code, opts...)
	if err != nil {
		return nil, "", wrapProviderError(ErrTokenExchangeFailed, provider.Name(), "exchange", err)
	}

	profile, err := provider.UserInfo(ctx, token)
	if err != nil {
		return nil, "", wrapProviderError(ErrUserInfoFailed, provider.Name(), "user_info", err)
	}

	result, err := f.resolver.Resolve(ctx, profile, token)
	if err != nil {
		return nil, "", err
	}

	if f.logger != nil && result.IsNewUser {
		f.logger.Info("created account %s from %s login", result.User.ID, provider.Name())
	}

	return result, state.RedirectURL, nil
}
