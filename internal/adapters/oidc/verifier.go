// Package oidc verifies API bearer tokens against an OpenID Connect issuer.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/target/selfheal/internal/core"
	"github.com/target/selfheal/internal/domain/model"
)

// VerifierConfig holds configuration for the bearer-token verifier.
type VerifierConfig struct {
	// Issuer is the OIDC issuer URL; discovery is fetched from <Issuer>/.well-known/openid-configuration.
	Issuer string
	// Audience is the expected "aud" claim. Required unless SkipAudienceCheck is set.
	Audience          string
	SkipAudienceCheck bool
	HTTPClient        *http.Client // Optional, defaults to a 30s-timeout client
}

// Verifier validates ID tokens presented as API bearer tokens.
type Verifier struct {
	verifier *gooidc.IDTokenVerifier
}

var _ core.TokenVerifier = (*Verifier)(nil)

// NewVerifier performs OIDC discovery and returns a Verifier bound to the issuer's keys.
func NewVerifier(ctx context.Context, cfg VerifierConfig) (*Verifier, error) {
	issuer := strings.TrimSpace(cfg.Issuer)
	if issuer == "" {
		return nil, errors.New("issuer is required")
	}
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	issuer = strings.TrimSuffix(issuer, "/")
	if cfg.Audience == "" && !cfg.SkipAudienceCheck {
		return nil, errors.New("audience is required")
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	// go-oidc reads the HTTP client from the context for discovery and key fetches.
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	provider, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	return newVerifier(provider.Verifier(&gooidc.Config{
		ClientID:          cfg.Audience,
		SkipClientIDCheck: cfg.SkipAudienceCheck,
	})), nil
}

func newVerifier(v *gooidc.IDTokenVerifier) *Verifier {
	return &Verifier{verifier: v}
}

type tokenClaims struct {
	Sub            string `json:"sub"`
	Email          string `json:"email"`
	Mail           string `json:"mail"`
	SamAccountName string `json:"samaccountname"`
}

// Verify checks the token's signature, issuer, audience and expiry.
func (v *Verifier) Verify(ctx context.Context, rawToken string) (model.Principal, error) {
	rawToken = strings.TrimSpace(rawToken)
	if rawToken == "" {
		return model.Principal{}, errors.New("bearer token is required")
	}
	tok, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return model.Principal{}, fmt.Errorf("verify token: %w", err)
	}
	var claims tokenClaims
	if err := tok.Claims(&claims); err != nil {
		return model.Principal{}, fmt.Errorf("parse token claims: %w", err)
	}
	return model.Principal{
		Subject: firstNonEmpty(claims.SamAccountName, claims.Sub, tok.Subject),
		Email:   firstNonEmpty(claims.Email, claims.Mail),
	}, nil
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
